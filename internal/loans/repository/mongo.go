package repository

import (
	"context"
	"time"
)

const (
	LoansCollection     = "Loans"
	SnapshotsCollection = "Device_snapshots"
)

// withTimeout bounds ctx by timeout without extending an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
