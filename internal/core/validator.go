package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"krishisat/internal/risk"
	"krishisat/internal/types"
)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult separates blocking errors from advisory warnings.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
}

// IsValid reports whether there are no blocking errors.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// warner is implemented by request types that can flag inputs which are
// accepted but adjusted downstream.
type warner interface {
	ValidationWarnings() []string
}

// Validator wraps go-playground/validator with the domain tags:
//
//	ndvi  - float within [-1, 1]
//	bbox  - [minLon, minLat, maxLon, maxLat] with in-range, ordered corners
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator. Field names in errors use the json tag.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	mustRegister(v, "ndvi", validateNDVI)
	mustRegister(v, "bbox", validateBBox)

	return &Validator{validate: v, logger: logger}
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("failed to register %q validation: %v", tag, err))
	}
}

// ValidateStruct returns nil or an AppError whose code matches the first
// failure. All failures are listed under details.validation_errors.
func (v *Validator) ValidateStruct(s any) error {
	result := v.ValidateStructWithWarnings(s)
	if result.IsValid() {
		return nil
	}
	first := result.Errors[0]
	return types.NewAppErrorWithDetails(types.ErrorCode(first.Code), first.Message, nil,
		map[string]any{"validation_errors": result.Errors})
}

// ValidateStructWithWarnings collects every failure plus any warnings the
// request type reports about itself.
func (v *Validator) ValidateStructWithWarnings(s any) ValidationResult {
	var result ValidationResult

	if err := v.validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			v.logger.Error("unexpected validation failure", "error", err)
			result.Errors = append(result.Errors, ValidationError{
				Code:    string(types.ErrCodeValidationFailed),
				Message: "request could not be validated",
			})
			return result
		}
		for _, fe := range verrs {
			result.Errors = append(result.Errors, ValidationError{
				Field:   fieldPath(fe),
				Code:    string(tagToErrorCode(fe.Tag())),
				Message: fieldMessage(fe),
			})
		}
	}

	if w, ok := s.(warner); ok && result.IsValid() {
		result.Warnings = w.ValidationWarnings()
	}
	return result
}

func tagToErrorCode(tag string) types.ErrorCode {
	switch tag {
	case "required", "required_with":
		return types.ErrCodeValidationMissingField
	case "latitude":
		return types.ErrCodeValidationInvalidLat
	case "longitude":
		return types.ErrCodeValidationInvalidLon
	case "bbox":
		return types.ErrCodeValidationInvalidBBox
	default:
		return types.ErrCodeValidationFailed
	}
}

// fieldPath strips the top-level struct name from the namespace, leaving
// e.g. "weather.humidity" or "ndvi_series[3]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required", "required_with":
		return fmt.Sprintf("%s is required", field)
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at least %s values", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("%s must contain at most %s values", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must contain exactly %s values", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	case "latitude":
		return fmt.Sprintf("%s must be a latitude within [-90, 90]", field)
	case "longitude":
		return fmt.Sprintf("%s must be a longitude within [-180, 180]", field)
	case "ndvi":
		return fmt.Sprintf("%s must be within [-1, 1]", field)
	case "bbox":
		return fmt.Sprintf("%s must be [min_lon, min_lat, max_lon, max_lat] with min below max", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func validateNDVI(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.Float32, reflect.Float64:
		v := f.Float()
		return v >= -1 && v <= 1
	default:
		return false
	}
}

func validateBBox(fl validator.FieldLevel) bool {
	f := fl.Field()
	if (f.Kind() != reflect.Slice && f.Kind() != reflect.Array) || f.Len() != 4 {
		return false
	}
	var b risk.BBox
	for i := range b {
		el := f.Index(i)
		if el.Kind() != reflect.Float64 && el.Kind() != reflect.Float32 {
			return false
		}
		b[i] = el.Float()
	}
	return b.Validate() == nil
}
