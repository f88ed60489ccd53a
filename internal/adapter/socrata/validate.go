package socrata

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pscheid92/moodmap/internal/domain"
)

// NewValidator returns a validator that knows the "isotime" tag used on
// domain.Record. Floating timestamps are checked in loc.
func NewValidator(loc *time.Location) *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("isotime", func(fl validator.FieldLevel) bool {
		_, err := domain.ParseTimestamp(fl.Field().String(), loc)
		return err == nil
	})
	return v
}
