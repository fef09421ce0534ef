// Package validation checks request bodies before they reach the transfer
// engine.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/minipay/internal/apperr"
)

const (
	// MinAmount and MaxAmount bound a single top-up or transfer, in the
	// smallest currency unit.
	MinAmount int64 = 1
	MaxAmount int64 = 10_000_000

	bodyLocalsKey = "validatedBody"
)

// Validator wraps a configured go-playground validator.
type Validator struct {
	v *validator.Validate
}

// New builds a validator with the nospace and amount rules registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// registration only fails on an empty tag or nil func
	_ = v.RegisterValidation("nospace", func(fl validator.FieldLevel) bool {
		return !strings.ContainsFunc(fl.Field().String(), unicode.IsSpace)
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		n := fl.Field().Int()
		return n >= MinAmount && n <= MaxAmount
	})
	return &Validator{v: v}
}

// Struct validates s and reports the first failing rule as an
// apperr.ErrBadRequest with a human readable message.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var errs validator.ValidationErrors
	if errors.As(err, &errs) && len(errs) > 0 {
		return apperr.New(apperr.ErrBadRequest, message(errs[0]))
	}
	return apperr.Wrap(apperr.ErrBadRequest, "bad request", err)
}

// Amount checks a bare amount against the transfer bounds.
func Amount(amount int64) error {
	if amount < MinAmount || amount > MaxAmount {
		return apperr.New(apperr.ErrBadRequest, amountMessage)
	}
	return nil
}

const amountMessage = "amount should be integer and greater than 0 or less than 10,000,000"

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s max %s characters long", field, fe.Param())
	case "nospace":
		return field + " cannot contain spaces"
	case "amount":
		return amountMessage
	default:
		return field + " is invalid"
	}
}

// Trimmer is implemented by request bodies that normalize their fields before
// validation.
type Trimmer interface {
	Trim()
}

// Body parses the JSON body into T, validates it and stores it for the next
// handler. Parse failures are reported with fallback.
func Body[T any](v *Validator, fallback string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body T
		if err := c.BodyParser(&body); err != nil {
			return apperr.Wrap(apperr.ErrBadRequest, fallback, err)
		}
		if t, ok := any(&body).(Trimmer); ok {
			t.Trim()
		}
		if err := v.Struct(&body); err != nil {
			return err
		}
		c.Locals(bodyLocalsKey, body)
		return c.Next()
	}
}

// From returns the body validated by Body.
func From[T any](c *fiber.Ctx) (T, bool) {
	body, ok := c.Locals(bodyLocalsKey).(T)
	return body, ok
}
