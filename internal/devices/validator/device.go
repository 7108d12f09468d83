package validator

import (
	"errors"
	"fmt"
	"strings"

	"campusloans/pkg/logger"
	"campusloans/pkg/model"

	"github.com/go-playground/validator/v10"
)

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

type DeviceValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewDeviceValidator(log *logger.Logger) *DeviceValidator {
	return &DeviceValidator{
		validate: validator.New(),
		logger:   log,
	}
}

func (v *DeviceValidator) Validate(d *model.Device) error {
	return v.run(d)
}

func (v *DeviceValidator) ValidateUpdate(u *model.DeviceUpdate) error {
	return v.run(u)
}

func (v *DeviceValidator) run(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *DeviceValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			if err.Kind().String() == "string" {
				message = fmt.Sprintf("%s must be at least %s characters", err.Field(), err.Param())
			} else {
				message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
			}
		case "max":
			if err.Kind().String() == "string" {
				message = fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
			} else {
				message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
			}
		case "ltefield":
			message = fmt.Sprintf("%s cannot exceed %s", err.Field(), err.Param())
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", err.Field())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid device id", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
