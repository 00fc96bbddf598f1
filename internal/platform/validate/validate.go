// Package validate checks request bodies with struct tags and reports
// failures as validation errors.
package validate

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/medcenter/portal/internal/platform/apperr"
	"github.com/medcenter/portal/internal/platform/civil"
)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New registers the portal's custom tags:
//
//	date   YYYY-MM-DD calendar date
//	hhmm   HH:MM or HH:MM:SS wall-clock time with zero seconds
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("date", func(fl validator.FieldLevel) bool {
		_, err := civil.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		_, err := civil.ParseTime(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

// Validate returns an apperr validation error describing every failed field.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(err.Error())
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Validation(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "date":
		return fe.Field() + " must be a YYYY-MM-DD date"
	case "hhmm":
		return fe.Field() + " must be an HH:MM time"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "uuid":
		return fe.Field() + " must be a UUID"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}

// BindAndValidate decodes the request into dst and validates it. The
// returned error is an *echo.HTTPError ready to be returned by a handler:
// 400 for a malformed body, 422 for rule violations.
func BindAndValidate(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, apperr.Body{Error: apperr.KindValidation, Message: "invalid request body"})
	}
	if err := c.Validate(dst); err != nil {
		return apperr.ToHTTP(err)
	}
	return nil
}
