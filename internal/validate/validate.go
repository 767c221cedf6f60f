package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/gunjou/be-toko-yani/internal/store"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// Struct validates a request struct against its validate tags. Failures
// wrap store.ErrValidation so the HTTP layer maps them to 400.
func Struct(req any) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	fields := make([]string, 0, len(verrs))
	for _, e := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", strings.ToLower(e.Field()), e.Tag()))
	}
	return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(fields, ", "))
}
