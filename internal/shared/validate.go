package shared

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ncompliance/ncompliance/internal/platform/httpx"
)

var defaultValidator = validator.New(validator.WithRequiredStructEnabled())

// Validator returns the process wide validator instance.
func Validator() *validator.Validate {
	return defaultValidator
}

// ValidateStruct runs struct tag validation and converts failures into an
// httpx.ValidationError keyed by lower-cased field name.
func ValidateStruct(s any) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[strings.ToLower(fe.Field())] = describe(fe)
	}
	return httpx.NewValidationError(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "필수 입력 항목입니다."
	case "max":
		return "최대 " + fe.Param() + "자까지 입력할 수 있습니다."
	case "min":
		return "최소 " + fe.Param() + "자 이상 입력해야 합니다."
	case "email":
		return "올바른 이메일 형식이 아닙니다."
	case "oneof":
		return "허용되지 않는 값입니다: " + fe.Param()
	case "url":
		return "올바른 URL 형식이 아닙니다."
	default:
		return fe.Error()
	}
}
