package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"matchpass/internal/types"
)

var (
	// productCodePattern matches catalog codes and legacy aliases:
	// lowercase letters, digits and dashes.
	productCodePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,99}$`)

	// promoCodePattern matches promo codes before normalisation.
	promoCodePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects field errors.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid reports whether no errors were collected.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator and registers the ledger's custom
// tags:
//   - product_code: catalog code or legacy alias syntax
//   - promo_code:   promo code syntax
//   - ledger_action: a valid consumption action
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. Field names in errors use the json tag.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	mustRegister(v, "product_code", func(fl validator.FieldLevel) bool {
		return productCodePattern.MatchString(fl.Field().String())
	})
	mustRegister(v, "promo_code", func(fl validator.FieldLevel) bool {
		return promoCodePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
	mustRegister(v, "ledger_action", func(fl validator.FieldLevel) bool {
		_, ok := types.ParseAction(fl.Field().String())
		return ok
	})

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("core: register validation %q: %v", tag, err))
	}
}

// ValidateStruct validates s and returns a validation AppError whose code is
// that of the first failing field and whose details carry every failure under
// "validation_errors".
func (v *Validator) ValidateStruct(s any) error {
	result := v.Check(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// Check validates s and returns every failure.
func (v *Validator) Check(s any) ValidationResult {
	err := v.validate.Struct(s)
	if err == nil {
		return ValidationResult{}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		v.logger.Error("validator misuse", "error", err)
		return ValidationResult{Errors: []ValidationError{{
			Code:    string(types.ErrCodeValidationInvalidBody),
			Message: "request could not be validated",
		}}}
	}

	out := make([]ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, toValidationError(fe))
	}
	return ValidationResult{Errors: out}
}

func toValidationError(fe validator.FieldError) ValidationError {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationMissingField),
			Message: fmt.Sprintf("%s is required", field),
		}
	case "ledger_action":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidAction),
			Message: fmt.Sprintf("%s must be one of positive, negative (or like, pass)", field),
		}
	case "max":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidBody),
			Message: fmt.Sprintf("%s must be at most %s characters", field, fe.Param()),
		}
	default:
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidBody),
			Message: fmt.Sprintf("%s is invalid (%s)", field, fe.Tag()),
		}
	}
}
