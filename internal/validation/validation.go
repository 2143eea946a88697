// Package validation wraps go-playground/validator with the marketplace's custom
// rules and turns failures into human-readable messages.
package validation

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"torashaout/internal/models"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("currency", func(fl validator.FieldLevel) bool {
		return models.IsSupportedCurrency(fl.Field().String())
	})
	_ = v.RegisterValidation("gateway", func(fl validator.FieldLevel) bool {
		return models.IsSupportedGateway(fl.Field().String())
	})
	_ = v.RegisterValidation("payout_method", func(fl validator.FieldLevel) bool {
		m := models.PayoutMethod(fl.Field().String())
		return m == models.PayoutBankTransfer || m == models.PayoutMobileMoney
	})
	return v
}

// Messages maps "<jsonField>.<tag>" to the message reported for that failure.
type Messages map[string]string

// Struct validates s and returns one message per failing field, in field order.
// An empty result means s is valid.
func Struct(s interface{}, msgs Messages) []string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(fe, msgs))
	}
	return out
}

func message(fe validator.FieldError, msgs Messages) string {
	if m, ok := msgs[fe.Field()+"."+fe.Tag()]; ok {
		return m
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "currency":
		return fmt.Sprintf("Currency must be one of %s", strings.Join(models.SupportedCurrencies, ", "))
	case "gateway":
		return fmt.Sprintf("Payment gateway must be one of %s", strings.Join(models.SupportedGateways, ", "))
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min", "max", "gte", "lte":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// TrimStrings trims surrounding whitespace from every exported string field of the
// struct s points to.
func TrimStrings(s interface{}) {
	v := reflect.ValueOf(s)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return
	}
	v = v.Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.String && f.CanSet() {
			f.SetString(strings.TrimSpace(f.String()))
		}
	}
}
