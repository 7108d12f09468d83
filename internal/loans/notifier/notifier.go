// Package notifier hands loan emails to the notification service. The loan
// service only knows user ids; address lookup and rendering happen downstream.
package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"campusloans/pkg/kafka"
	"campusloans/pkg/logger"
	"campusloans/pkg/model"
)

const (
	TemplateLoanCreated       = "loan_created"
	TemplateLoanWaitlisted    = "loan_waitlisted"
	TemplateWaitlistProcessed = "waitlist_processed"
	TemplateLoanActivated     = "loan_activated"
	TemplateLoanCancelled     = "loan_cancelled"
	TemplateLoanReturned      = "loan_returned"

	EventEmailRequested = "Notification.EmailRequested"
)

type EmailRequest struct {
	Template      string     `json:"template"`
	UserID        string     `json:"userId"`
	Subject       string     `json:"subject"`
	LoanID        string     `json:"loanId"`
	DeviceID      string     `json:"deviceId"`
	DeviceName    string     `json:"deviceName"`
	Status        string     `json:"status"`
	ReservationID string     `json:"reservationId,omitempty"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	WasOverdue    bool       `json:"wasOverdue,omitempty"`
}

func deviceName(loan *model.LoanRecord, device *model.DeviceSnapshot) string {
	if device == nil {
		return loan.DeviceID
	}
	name := strings.TrimSpace(device.Brand + " " + device.Model)
	if name == "" {
		return loan.DeviceID
	}
	return name
}

func buildCreated(loan *model.LoanRecord, device *model.DeviceSnapshot) EmailRequest {
	name := deviceName(loan, device)
	if loan.Status == model.LoanWaitlisted {
		return newRequest(TemplateLoanWaitlisted, "You're on the waitlist for "+name, loan, name)
	}
	return newRequest(TemplateLoanCreated, "Your loan request for "+name+" was received", loan, name)
}

func newRequest(template, subject string, loan *model.LoanRecord, name string) EmailRequest {
	req := EmailRequest{
		Template:      template,
		UserID:        loan.UserID,
		Subject:       subject,
		LoanID:        loan.ID,
		DeviceID:      loan.DeviceID,
		DeviceName:    name,
		Status:        string(loan.Status),
		ReservationID: loan.ReservationID,
		Reason:        loan.CancelReason,
		WasOverdue:    loan.WasOverdue,
	}
	if !loan.DueDate.IsZero() {
		due := loan.DueDate
		req.DueDate = &due
	}
	return req
}

func buildWaitlistProcessed(loan *model.LoanRecord, device *model.DeviceSnapshot) EmailRequest {
	name := deviceName(loan, device)
	return newRequest(TemplateWaitlistProcessed, name+" is now available for you", loan, name)
}

func buildActivated(loan *model.LoanRecord, device *model.DeviceSnapshot) EmailRequest {
	name := deviceName(loan, device)
	return newRequest(TemplateLoanActivated, "You've collected "+name, loan, name)
}

func buildCancelled(loan *model.LoanRecord, device *model.DeviceSnapshot) EmailRequest {
	name := deviceName(loan, device)
	return newRequest(TemplateLoanCancelled, "Your loan of "+name+" was cancelled", loan, name)
}

func buildReturned(loan *model.LoanRecord, device *model.DeviceSnapshot) EmailRequest {
	name := deviceName(loan, device)
	return newRequest(TemplateLoanReturned, "Thanks for returning "+name, loan, name)
}

// KafkaNotifier publishes email requests to the notification topic, keyed by
// user id.
type KafkaNotifier struct {
	producer kafka.Publisher
	log      *logger.Logger
}

func NewKafkaNotifier(producer kafka.Publisher, log *logger.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, log: log}
}

func (n *KafkaNotifier) SendLoanCreatedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.send(ctx, buildCreated(loan, device))
}

func (n *KafkaNotifier) SendWaitlistProcessedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.send(ctx, buildWaitlistProcessed(loan, device))
}

func (n *KafkaNotifier) SendLoanActivatedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.send(ctx, buildActivated(loan, device))
}

func (n *KafkaNotifier) SendLoanCancelledEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.send(ctx, buildCancelled(loan, device))
}

func (n *KafkaNotifier) SendLoanReturnedEmail(ctx context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.send(ctx, buildReturned(loan, device))
}

func (n *KafkaNotifier) send(ctx context.Context, req EmailRequest) error {
	msg, err := kafka.NewMessage().
		WithKey(req.UserID).
		WithValue(req).
		WithEventID("").
		WithEventType(EventEmailRequested).
		WithCorrelationID(req.LoanID).
		WithSource("campusloans.loans").
		BuildE()
	if err != nil {
		return fmt.Errorf("failed to encode %s email: %w", req.Template, err)
	}
	if err := n.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to queue %s email: %w", req.Template, err)
	}

	n.log.Debug("Email queued", "template", req.Template, "loan_id", req.LoanID)
	return nil
}

// LogNotifier only logs. Used when Kafka is disabled.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendLoanCreatedEmail(_ context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.logRequest(buildCreated(loan, device))
}

func (n *LogNotifier) SendWaitlistProcessedEmail(_ context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.logRequest(buildWaitlistProcessed(loan, device))
}

func (n *LogNotifier) SendLoanActivatedEmail(_ context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.logRequest(buildActivated(loan, device))
}

func (n *LogNotifier) SendLoanCancelledEmail(_ context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.logRequest(buildCancelled(loan, device))
}

func (n *LogNotifier) SendLoanReturnedEmail(_ context.Context, loan *model.LoanRecord, device *model.DeviceSnapshot) error {
	return n.logRequest(buildReturned(loan, device))
}

func (n *LogNotifier) logRequest(req EmailRequest) error {
	n.log.Info("Email notification",
		"template", req.Template,
		"user_id", req.UserID,
		"loan_id", req.LoanID,
		"subject", req.Subject,
	)
	return nil
}
