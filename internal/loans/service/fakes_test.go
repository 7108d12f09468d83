package service

import (
	"context"
	"sort"
	"sync"
	"time"

	loanserrors "campusloans/internal/loans/errors"
	"campusloans/internal/loans/validator"
	"campusloans/pkg/config"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"
)

// ──────────────────────────────────────────────────────────────
// In-memory loan repository
// ──────────────────────────────────────────────────────────────

type memLoanRepo struct {
	mu    sync.Mutex
	loans map[string]*model.LoanRecord

	// updateHook runs before every Update; a non-nil error is returned as is.
	updateHook func(loan *model.LoanRecord) error
	updates    int
}

func newMemLoanRepo() *memLoanRepo {
	return &memLoanRepo{loans: map[string]*model.LoanRecord{}}
}

func (r *memLoanRepo) put(loans ...*model.LoanRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range loans {
		if l.Version == 0 {
			l.Version = 1
		}
		r.loans[l.ID] = l.Clone()
	}
}

func (r *memLoanRepo) get(id string) *model.LoanRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loans[id].Clone()
}

func (r *memLoanRepo) Create(_ context.Context, loan *model.LoanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if loan.ReservationID != "" {
		for _, l := range r.loans {
			if l.ReservationID == loan.ReservationID {
				return loanserrors.ErrDuplicateReservation
			}
		}
	}
	loan.Version = 1
	r.loans[loan.ID] = loan.Clone()
	return nil
}

func (r *memLoanRepo) FindByID(_ context.Context, id string) (*model.LoanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.loans[id]
	if !ok {
		return nil, loanserrors.ErrNotFound
	}
	return l.Clone(), nil
}

func (r *memLoanRepo) FindByReservationID(_ context.Context, reservationID string) (*model.LoanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.loans {
		if reservationID != "" && l.ReservationID == reservationID {
			return l.Clone(), nil
		}
	}
	return nil, loanserrors.ErrNotFound
}

func (r *memLoanRepo) FindByDeviceAndStatus(_ context.Context, deviceID string, status model.LoanStatus) ([]*model.LoanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LoanRecord
	for _, l := range r.loans {
		if l.DeviceID == deviceID && l.Status == status {
			out = append(out, l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *memLoanRepo) CountByDeviceAndStatus(ctx context.Context, deviceID string, status model.LoanStatus) (int64, error) {
	loans, _ := r.FindByDeviceAndStatus(ctx, deviceID, status)
	return int64(len(loans)), nil
}

func (r *memLoanRepo) FindActiveDueBefore(_ context.Context, t time.Time) ([]*model.LoanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.LoanRecord
	for _, l := range r.loans {
		if l.Status == model.LoanActive && l.DueDate.Before(t) {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (r *memLoanRepo) matching(filter model.LoanFilter) []*model.LoanRecord {
	var out []*model.LoanRecord
	for _, l := range r.loans {
		if filter.LoanID != "" && l.ID != filter.LoanID {
			continue
		}
		if filter.UserID != "" && l.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && l.Status != filter.Status {
			continue
		}
		out = append(out, l.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memLoanRepo) List(_ context.Context, filter model.LoanFilter) ([]*model.LoanRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.matching(filter)
	if int(filter.Offset) >= len(out) {
		return []*model.LoanRecord{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *memLoanRepo) Count(_ context.Context, filter model.LoanFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.matching(filter))), nil
}

func (r *memLoanRepo) Update(_ context.Context, loan *model.LoanRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	if r.updateHook != nil {
		if err := r.updateHook(loan); err != nil {
			return err
		}
	}
	stored, ok := r.loans[loan.ID]
	if !ok {
		return loanserrors.ErrNotFound
	}
	if stored.Version != loan.Version {
		return loanserrors.ErrVersionConflict
	}
	loan.Version++
	r.loans[loan.ID] = loan.Clone()
	return nil
}

// ──────────────────────────────────────────────────────────────
// In-memory snapshot repository
// ──────────────────────────────────────────────────────────────

type memSnapshotRepo struct {
	mu    sync.Mutex
	snaps map[string]model.DeviceSnapshot
}

func newMemSnapshotRepo(snaps ...model.DeviceSnapshot) *memSnapshotRepo {
	r := &memSnapshotRepo{snaps: map[string]model.DeviceSnapshot{}}
	for _, s := range snaps {
		r.snaps[s.ID] = s
	}
	return r
}

func (r *memSnapshotRepo) Get(_ context.Context, id string) (*model.DeviceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snaps[id]
	if !ok {
		return nil, loanserrors.ErrSnapshotNotFound
	}
	return &s, nil
}

func (r *memSnapshotRepo) Upsert(_ context.Context, snap *model.DeviceSnapshot) (*model.DeviceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.snaps[snap.ID]
	r.snaps[snap.ID] = *snap
	if !ok {
		return nil, nil
	}
	return &prev, nil
}

func (r *memSnapshotRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.snaps[id]; !ok {
		return loanserrors.ErrSnapshotNotFound
	}
	delete(r.snaps, id)
	return nil
}

func (r *memSnapshotRepo) List(_ context.Context) ([]*model.DeviceSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.DeviceSnapshot{}
	for _, s := range r.snaps {
		s := s
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ──────────────────────────────────────────────────────────────
// Publisher, notifier, catalog, clock
// ──────────────────────────────────────────────────────────────

type publishedEvent struct {
	Type    string
	Payload model.LoanEventPayload
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, payload model.LoanEventPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Payload: payload})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	sent  map[string][]string
	delay time.Duration
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: map[string][]string{}}
}

func (n *recordingNotifier) record(kind string, loan *model.LoanRecord) error {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[kind] = append(n.sent[kind], loan.ID)
	return nil
}

func (n *recordingNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[kind])
}

func (n *recordingNotifier) SendLoanCreatedEmail(_ context.Context, l *model.LoanRecord, _ *model.DeviceSnapshot) error {
	return n.record("created", l)
}

func (n *recordingNotifier) SendWaitlistProcessedEmail(_ context.Context, l *model.LoanRecord, _ *model.DeviceSnapshot) error {
	return n.record("waitlist", l)
}

func (n *recordingNotifier) SendLoanActivatedEmail(_ context.Context, l *model.LoanRecord, _ *model.DeviceSnapshot) error {
	return n.record("activated", l)
}

func (n *recordingNotifier) SendLoanCancelledEmail(_ context.Context, l *model.LoanRecord, _ *model.DeviceSnapshot) error {
	return n.record("cancelled", l)
}

func (n *recordingNotifier) SendLoanReturnedEmail(_ context.Context, l *model.LoanRecord, _ *model.DeviceSnapshot) error {
	return n.record("returned", l)
}

type mockCatalog struct {
	getDeviceFn     func(ctx context.Context, id string) (*model.Device, error)
	listSnapshotsFn func(ctx context.Context) ([]*model.DeviceSnapshot, error)

	mu        sync.Mutex
	listCalls int
}

func (m *mockCatalog) GetDevice(ctx context.Context, id string) (*model.Device, error) {
	if m.getDeviceFn != nil {
		return m.getDeviceFn(ctx, id)
	}
	return &model.Device{ID: id, AvailableCount: 1, MaxDeviceCount: 1}, nil
}

func (m *mockCatalog) ListSnapshots(ctx context.Context) ([]*model.DeviceSnapshot, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.listSnapshotsFn != nil {
		return m.listSnapshotsFn(ctx)
	}
	return nil, nil
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ──────────────────────────────────────────────────────────────
// Fixture
// ──────────────────────────────────────────────────────────────

var t0 = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

type fixture struct {
	loans     *memLoanRepo
	snapshots *memSnapshotRepo
	publisher *recordingPublisher
	notifier  *recordingNotifier
	catalog   *mockCatalog
	clock     *fixedClock
	cfg       *config.Config
	svc       LoanService
}

func newFixture(snaps ...model.DeviceSnapshot) *fixture {
	log := logger.Discard()
	f := &fixture{
		loans:     newMemLoanRepo(),
		snapshots: newMemSnapshotRepo(snaps...),
		publisher: &recordingPublisher{},
		notifier:  newRecordingNotifier(),
		catalog:   &mockCatalog{},
		clock:     &fixedClock{now: t0},
		cfg: &config.Config{
			Log:                  log,
			LoanPeriod:           48 * time.Hour,
			RevalidateOnActivate: true,
		},
	}
	f.svc = NewLoanService(Dependencies{
		Loans:     f.loans,
		Snapshots: f.snapshots,
		Catalog:   f.catalog,
		Publisher: f.publisher,
		Notifier:  f.notifier,
		Validator: validator.NewLoanValidator(log),
		Clock:     f.clock,
	}, f.cfg)
	return f
}

func device(id string, available, max int) model.DeviceSnapshot {
	return model.DeviceSnapshot{
		ID:             id,
		Brand:          "Dell",
		Model:          "Latitude 5440",
		Category:       "laptops",
		AvailableCount: available,
		MaxDeviceCount: max,
		LastUpdated:    t0,
	}
}

func loanRecord(id, user, dev string, status model.LoanStatus, created time.Time) *model.LoanRecord {
	return &model.LoanRecord{
		ID:        id,
		UserID:    user,
		DeviceID:  dev,
		Status:    status,
		StartDate: created,
		DueDate:   created.Add(48 * time.Hour),
		CreatedAt: created,
		UpdatedAt: created,
		Version:   1,
	}
}
