package model

import (
	"time"
)

type LoanStatus string

const (
	LoanWaitlisted LoanStatus = "Waitlisted"
	LoanPending    LoanStatus = "Pending"
	LoanActive     LoanStatus = "Active"
	LoanOverdue    LoanStatus = "Overdue"
	LoanCancelled  LoanStatus = "Cancelled"
	LoanReturned   LoanStatus = "Returned"
)

// loanTransitions lists every allowed (from -> to) move of the loan lifecycle.
// Creation is not a transition: new loans start as Pending or Waitlisted.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanWaitlisted: {LoanPending, LoanCancelled},
	LoanPending:    {LoanActive, LoanCancelled},
	LoanActive:     {LoanReturned, LoanOverdue, LoanCancelled},
	LoanOverdue:    {LoanReturned, LoanCancelled},
}

func (s LoanStatus) IsValid() bool {
	switch s {
	case LoanWaitlisted, LoanPending, LoanActive, LoanOverdue, LoanCancelled, LoanReturned:
		return true
	}
	return false
}

func (s LoanStatus) IsTerminal() bool {
	return s == LoanReturned || s == LoanCancelled
}

// HoldsDevice reports whether a loan in this status occupies a physical unit
// (or a promised one) of the device.
func (s LoanStatus) HoldsDevice() bool {
	return s == LoanPending || s == LoanActive || s == LoanOverdue
}

func CanTransition(from, to LoanStatus) bool {
	for _, next := range loanTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type LoanRecord struct {
	ID            string     `json:"id" bson:"_id"`
	UserID        string     `json:"user_id" bson:"user_id" validate:"required,max=128"`
	DeviceID      string     `json:"device_id" bson:"device_id" validate:"required,max=128"`
	ReservationID string     `json:"reservation_id,omitempty" bson:"reservation_id,omitempty" validate:"omitempty,max=128"`
	StartDate     time.Time  `json:"start_date" bson:"start_date"`
	DueDate       time.Time  `json:"due_date" bson:"due_date"`
	Status        LoanStatus `json:"status" bson:"status" validate:"required,oneof=Waitlisted Pending Active Overdue Cancelled Returned"`
	CreatedAt     time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" bson:"updated_at"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty" bson:"activated_at,omitempty"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty" bson:"returned_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`
	WasOverdue    bool       `json:"was_overdue,omitempty" bson:"was_overdue"`
	CancelReason  string     `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty" validate:"omitempty,max=500"`
	Notes         string     `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=1000"`
	Version       int64      `json:"version" bson:"version"`
}

// IsOverdueAt reports whether an Active loan is past its due date at t.
func (l *LoanRecord) IsOverdueAt(t time.Time) bool {
	return l.Status == LoanActive && !l.DueDate.IsZero() && t.After(l.DueDate)
}

func (l *LoanRecord) Clone() *LoanRecord {
	if l == nil {
		return nil
	}
	c := *l
	c.ActivatedAt = cloneTime(l.ActivatedAt)
	c.ReturnedAt = cloneTime(l.ReturnedAt)
	c.CancelledAt = cloneTime(l.CancelledAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type CreateLoanRequest struct {
	DeviceID      string `json:"device_id" validate:"required,max=128"`
	ReservationID string `json:"reservation_id,omitempty" validate:"omitempty,max=128"`
	Notes         string `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type CancelLoanRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// LoanFilter selects loans for listing. Non-empty fields are combined.
type LoanFilter struct {
	LoanID string
	UserID string
	Status LoanStatus
	Limit  int
	Offset int64
}
