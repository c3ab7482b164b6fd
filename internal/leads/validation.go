package leads

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks required fields and budget consistency.
func (r *GenerateLeadRequest) Validate() error {
	if r == nil {
		return &ValidationError{Field: "request", Reason: "is required"}
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return toValidationError(verrs[0])
		}
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	budget := r.AssessmentData.EstimatedBudget
	if *budget.Min > *budget.Max {
		return &ValidationError{Field: "assessmentData.estimatedBudget", Reason: "min must not exceed max"}
	}
	return nil
}

func toValidationError(fe validator.FieldError) *ValidationError {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}
	reason := "is invalid"
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "gte":
		reason = "must be at least " + fe.Param()
	case "lte":
		reason = "must be at most " + fe.Param()
	case "email":
		reason = "must be an email address"
	}
	return &ValidationError{Field: field, Reason: reason}
}
