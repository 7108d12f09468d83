// Package gateway turns catalog, reservation and confirmation events into
// loan service calls. Events arrive as Event Grid webhook batches or as Kafka
// messages; both paths share Normalize and Handle.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"campusloans/internal/loans/service"
	"campusloans/pkg/auth"
	"campusloans/pkg/dedup"
	apperrors "campusloans/pkg/errors"
	"campusloans/pkg/kafka"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"
)

type Source string

const (
	SourceCatalog       Source = "catalog"
	SourceReservations  Source = "reservations"
	SourceConfirmations Source = "confirmations"
)

type Outcome int

const (
	Processed Outcome = iota
	Duplicate
	Ignored
	Rejected
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Processed:
		return "processed"
	case Duplicate:
		return "duplicate"
	case Ignored:
		return "ignored"
	case Rejected:
		return "rejected"
	default:
		return "failed"
	}
}

type BatchResult struct {
	ValidationResponse string `json:"validationResponse,omitempty"`
	Received           int    `json:"received"`
	Processed          int    `json:"processed"`
	Duplicates         int    `json:"duplicates"`
	Ignored            int    `json:"ignored"`
	Rejected           int    `json:"rejected"`
	Failed             int    `json:"failed"`
}

func (r *BatchResult) count(o Outcome) {
	switch o {
	case Processed:
		r.Processed++
	case Duplicate:
		r.Duplicates++
	case Ignored:
		r.Ignored++
	case Rejected:
		r.Rejected++
	default:
		r.Failed++
	}
}

type handlerFunc func(g *Gateway, ctx context.Context, ev Event) error

type route struct {
	source Source
	handle handlerFunc
}

var routes = map[string]route{
	model.EventDeviceCreated:        {SourceCatalog, (*Gateway).applyDevice},
	model.EventDeviceUpdated:        {SourceCatalog, (*Gateway).applyDevice},
	model.EventDeviceSnapshot:       {SourceCatalog, (*Gateway).applyDevice},
	model.EventDeviceDeleted:        {SourceCatalog, (*Gateway).removeDevice},
	model.EventReservationConfirmed: {SourceReservations, (*Gateway).reservationConfirmed},
	model.EventReservationCancelled: {SourceReservations, (*Gateway).reservationCancelled},
	model.EventDeviceCollected:      {SourceConfirmations, (*Gateway).deviceCollected},
	model.EventDeviceReturned:       {SourceConfirmations, (*Gateway).deviceReturned},
}

type Gateway struct {
	loans service.LoanService
	dedup dedup.Store
	log   *logger.Logger
	now   func() time.Time
}

func New(loans service.LoanService, store dedup.Store, log *logger.Logger) *Gateway {
	return &Gateway{
		loans: loans,
		dedup: store,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// HandleBatch processes raw events in order. A subscription handshake as the
// first event short-circuits the batch. Domain failures are counted and
// acknowledged; infrastructure failures are joined into the returned error
// so the sender redelivers, and dedup skips what already succeeded.
func (g *Gateway) HandleBatch(ctx context.Context, source Source, raws []json.RawMessage) (*BatchResult, error) {
	result := &BatchResult{Received: len(raws)}
	var failures []error

	for i, raw := range raws {
		ev, err := Normalize(raw)
		if err != nil {
			g.log.Warn("Skipping malformed event", "source", source, "index", i, "error", err)
			result.Rejected++
			continue
		}

		if ev.Type == EventGridValidation {
			if i == 0 {
				code, err := validationCode(ev)
				if err != nil {
					return result, err
				}
				g.log.Info("Answering event subscription handshake", "source", source)
				result.ValidationResponse = code
				return result, nil
			}
			result.Ignored++
			continue
		}

		outcome, err := g.Handle(ctx, source, ev)
		result.count(outcome)
		if err != nil {
			failures = append(failures, fmt.Errorf("event %s (%s): %w", ev.ID, ev.Type, err))
		}
	}

	return result, errors.Join(failures...)
}

// Handle dispatches one event. The returned error is non-nil only for
// failures worth redelivering.
func (g *Gateway) Handle(ctx context.Context, source Source, ev Event) (Outcome, error) {
	r, ok := routes[ev.Type]
	if !ok || r.source != source {
		g.log.Info("Ignoring unsupported event type",
			"source", source,
			"event_type", ev.Type,
			"event_id", ev.ID,
		)
		return Ignored, nil
	}

	claimed := false
	key := string(source) + ":" + ev.ID
	if ev.ID != "" && g.dedup != nil {
		first, err := g.dedup.Claim(ctx, key)
		switch {
		case err != nil:
			// Handlers are idempotent; dedup only saves work.
			g.log.Warn("Event dedup unavailable, processing anyway", "event_id", ev.ID, "error", err)
		case !first:
			g.log.Debug("Skipping duplicate event", "event_id", ev.ID, "event_type", ev.Type)
			return Duplicate, nil
		default:
			claimed = true
		}
	}

	err := r.handle(g, ctx, ev)
	if err == nil {
		g.log.Debug("Event processed", "event_id", ev.ID, "event_type", ev.Type)
		return Processed, nil
	}

	if apperrors.IsDomainError(err) {
		appErr := apperrors.AsAppError(err)
		g.log.Warn("Event rejected",
			"source", source,
			"event_id", ev.ID,
			"event_type", ev.Type,
			"code", appErr.Code,
			"message", appErr.Message,
		)
		return Rejected, nil
	}

	g.log.Error("Event processing failed",
		"source", source,
		"event_id", ev.ID,
		"event_type", ev.Type,
		"error", err,
	)
	if claimed {
		if releaseErr := g.dedup.Release(ctx, key); releaseErr != nil {
			g.log.Warn("Failed to release event claim", "event_id", ev.ID, "error", releaseErr)
		}
	}
	return Failed, err
}

// KafkaHandler adapts the gateway to a topic consumer. Header values fill in
// an id or type the body lacks.
func (g *Gateway) KafkaHandler(source Source) kafka.MessageHandler {
	return func(ctx context.Context, msg kafka.Message) error {
		raws, err := ParseBatch(msg.Value)
		if err != nil {
			return kafka.NewBusinessError("Dropping unparseable message", fmt.Errorf("%w: %w", kafka.ErrInvalidMessage, err))
		}

		var failures []error
		for _, raw := range raws {
			ev, normErr := Normalize(raw)
			if ev.Type == "" && ev.Data != nil && msg.GetEventType() != "" {
				ev.Type, normErr = canonicalType(msg.GetEventType()), nil
			}
			if normErr != nil {
				g.log.Warn("Skipping malformed event", "source", source, "offset", msg.Offset, "error", normErr)
				continue
			}
			if ev.ID == "" && len(raws) == 1 {
				ev.ID = msg.GetEventID()
			}

			if _, err := g.Handle(ctx, source, ev); err != nil {
				failures = append(failures, err)
			}
		}
		return batchError(failures, len(raws))
	}
}

// batchError redelivers the whole message when any event failed transiently.
// Already processed events are skipped on redelivery by the dedup store.
func batchError(failures []error, total int) error {
	if len(failures) == 0 {
		return nil
	}
	message := fmt.Sprintf("%d of %d events failed", len(failures), total)
	joined := errors.Join(failures...)
	for _, err := range failures {
		if kafka.ClassifyError(err) == kafka.ErrorTypeTransient {
			return kafka.NewTransientError(message, joined)
		}
	}
	return kafka.NewPermanentError(message, joined)
}

func validationCode(ev Event) (string, error) {
	var data struct {
		ValidationCode string `json:"validationCode"`
	}
	if err := json.Unmarshal(ev.Data, &data); err != nil || data.ValidationCode == "" {
		return "", apperrors.MalformedEvent("Subscription validation event has no validationCode")
	}
	return data.ValidationCode, nil
}

// ──────────────────────────────────────────────────────────────
// Handlers
// ──────────────────────────────────────────────────────────────

func (g *Gateway) applyDevice(ctx context.Context, ev Event) error {
	var payload model.DeviceEventPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return apperrors.MalformedEvent("Device event data is not valid: " + err.Error())
	}
	if payload.ID == "" {
		payload.ID = subjectID(ev.Subject)
	}
	if payload.ID == "" {
		return apperrors.MalformedEvent(ev.Type + " is missing the device id")
	}
	return g.loans.Snapshots().Apply(ctx, payload.Snapshot(g.now()))
}

func (g *Gateway) removeDevice(ctx context.Context, ev Event) error {
	var payload model.DeviceEventPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return apperrors.MalformedEvent("Device event data is not valid: " + err.Error())
	}
	if payload.ID == "" {
		payload.ID = subjectID(ev.Subject)
	}
	if payload.ID == "" {
		return apperrors.MalformedEvent(ev.Type + " is missing the device id")
	}
	return g.loans.Snapshots().Remove(ctx, payload.ID)
}

func decodeReservation(ev Event) (model.ReservationEventPayload, error) {
	var payload model.ReservationEventPayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil {
		return payload, apperrors.MalformedEvent("Reservation event data is not valid: " + err.Error())
	}
	if payload.LoanID == "" && payload.ReservationID == "" {
		return payload, apperrors.MalformedEvent(ev.Type + " has neither loanId nor reservationId")
	}
	return payload, nil
}

func refOf(p model.ReservationEventPayload) service.LoanRef {
	return service.LoanRef{LoanID: p.LoanID, ReservationID: p.ReservationID}
}

func (g *Gateway) reservationConfirmed(ctx context.Context, ev Event) error {
	payload, err := decodeReservation(ev)
	if err != nil {
		return err
	}
	if payload.ReservationID == "" {
		return apperrors.MalformedEvent(ev.Type + " is missing reservationId")
	}
	_, err = g.loans.LinkReservation(ctx, refOf(payload))
	return err
}

func (g *Gateway) reservationCancelled(ctx context.Context, ev Event) error {
	payload, err := decodeReservation(ev)
	if err != nil {
		return err
	}
	_, err = g.loans.CancelLoan(ctx, refOf(payload), auth.System(string(SourceReservations)), payload.Reason)
	return err
}

func (g *Gateway) deviceCollected(ctx context.Context, ev Event) error {
	payload, err := decodeReservation(ev)
	if err != nil {
		return err
	}
	_, err = g.loans.ActivateLoan(ctx, refOf(payload))
	return err
}

func (g *Gateway) deviceReturned(ctx context.Context, ev Event) error {
	payload, err := decodeReservation(ev)
	if err != nil {
		return err
	}
	_, err = g.loans.ReturnLoan(ctx, refOf(payload))
	return err
}
