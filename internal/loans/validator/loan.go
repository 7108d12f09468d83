package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"campusloans/pkg/logger"
	"campusloans/pkg/model"

	"github.com/go-playground/validator/v10"
)

var identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:\-]{0,127}$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type LoanValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewLoanValidator(log *logger.Logger) *LoanValidator {
	v := validator.New()

	if err := v.RegisterValidation("identifier", validateIdentifier); err != nil {
		log.Fatal("Failed to register 'identifier' validator",
			"error", err,
		)
	}

	return &LoanValidator{
		validate: v,
		logger:   log,
	}
}

func validateIdentifier(fl validator.FieldLevel) bool {
	return identifierRegex.MatchString(fl.Field().String())
}

type createLoanInput struct {
	UserID        string `validate:"required,identifier"`
	DeviceID      string `validate:"required,identifier"`
	ReservationID string `validate:"omitempty,identifier"`
	Notes         string `validate:"omitempty,max=1000"`
}

func (v *LoanValidator) ValidateCreate(userID string, req *model.CreateLoanRequest) error {
	input := createLoanInput{
		UserID:        userID,
		DeviceID:      req.DeviceID,
		ReservationID: req.ReservationID,
		Notes:         req.Notes,
	}
	return v.run(&input)
}

func (v *LoanValidator) ValidateCancel(req *model.CancelLoanRequest) error {
	return v.run(req)
}

// ValidateFilter checks listing parameters. Pagination is normalized by the
// caller; only the status needs checking here.
func (v *LoanValidator) ValidateFilter(filter *model.LoanFilter) error {
	if filter.Status != "" && !filter.Status.IsValid() {
		return ValidationErrors{
			ValidationError{
				Field:   "Status",
				Message: fmt.Sprintf("Status must be one of: %s %s %s %s %s %s",
					model.LoanWaitlisted, model.LoanPending, model.LoanActive,
					model.LoanOverdue, model.LoanCancelled, model.LoanReturned),
			},
		}
	}
	return nil
}

func (v *LoanValidator) ValidateRecord(loan *model.LoanRecord) error {
	if err := v.run(loan); err != nil {
		return err
	}
	if !loan.DueDate.After(loan.StartDate) {
		return ValidationErrors{
			ValidationError{
				Field:   "DueDate",
				Message: "due_date must be after start_date",
			},
		}
	}
	return nil
}

func (v *LoanValidator) run(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *LoanValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
		case "identifier":
			message = fmt.Sprintf("%s must be 1-128 letters, digits or . _ : -", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
