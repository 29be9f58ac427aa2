package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validation tags.
//
// Validation happens after defaults are applied, so a config that fails here
// was explicitly misconfigured rather than merely incomplete.
func Validate(cfg *Config) error {
	validate := validator.New()

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
}

// describeFieldError renders one validation failure with enough context to
// find the offending field in the config file.
func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	if fe.Param() != "" {
		return fmt.Sprintf("%s: failed %q validation (param %s)", field, fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: failed %q validation", field, fe.Tag())
}
