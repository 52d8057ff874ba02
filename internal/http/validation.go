package http

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/example/campus-scheduler/internal/alarm"
	"github.com/example/campus-scheduler/internal/application"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("color", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return value == "" || application.ValidColor(value)
	})
	_ = v.RegisterValidation("alarm_offset", func(fl validator.FieldLevel) bool {
		return alarm.Offset(fl.Field().String()).Valid()
	})
	return v
}

// validateRequest runs the validate tags of dst and returns Korean messages
// keyed by the JSON path of each failing field, e.g. "slots[0].day".
func validateRequest(dst any) map[string]string {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"body": "요청 형식이 올바르지 않습니다."}
	}

	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := fe.Namespace()
		if idx := strings.Index(key, "."); idx >= 0 {
			key = key[idx+1:]
		}
		if _, exists := out[key]; exists {
			continue
		}
		out[key] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "필수 입력 항목입니다."
	case "max":
		if fe.Kind() == reflect.String {
			return fe.Param() + "자 이하로 입력해 주세요."
		}
		if fe.Kind() == reflect.Slice {
			return fe.Param() + "개 이하로 입력해 주세요."
		}
		return fe.Param() + " 이하의 값을 입력해 주세요."
	case "min":
		if fe.Kind() == reflect.Slice {
			return "최소 " + fe.Param() + "개 이상 입력해 주세요."
		}
		return fe.Param() + " 이상의 값을 입력해 주세요."
	case "datetime":
		return "날짜는 YYYY-MM-DD 형식이어야 합니다."
	case "color":
		return "허용되지 않은 색상입니다."
	case "alarm_offset":
		return "알 수 없는 알림 시간입니다."
	default:
		return "입력값이 올바르지 않습니다."
	}
}
