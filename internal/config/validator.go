// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` right after defaults are applied.  Any
// failure aborts startup so the binary never runs with a partial store
// address or an unknown timezone.  The rules in use are `required`,
// `timezone`, `hostname_port`, `oneof`, and `gte`.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var v = validator.New()

// validateStruct flattens validator's field errors into one message that
// names every offending key.
func validateStruct(c *Config) error {
	err := v.Struct(c)
	var fe validator.ValidationErrors
	if !errors.As(err, &fe) {
		return err
	}
	msgs := make([]string, 0, len(fe))
	for _, f := range fe {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", f.Namespace(), f.Tag()))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}
