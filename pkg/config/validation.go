package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validate tags plus
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			return fmt.Errorf("%s", strings.Join(msgs, "; "))
		}
		return err
	}

	if err := cfg.Database.Validate(); err != nil {
		return err
	}

	// A support token without a destination chat can never deliver anything.
	if cfg.Support.Token != "" && cfg.Support.ChatID == 0 {
		return fmt.Errorf("support.chat_id is required when support.token is set")
	}

	// The default language must be one a user can actually select.
	if !contains(cfg.Locales.Supported, cfg.Locales.Default) {
		return fmt.Errorf("locales.default %q is not in locales.supported %v",
			cfg.Locales.Default, cfg.Locales.Supported)
	}

	return nil
}

// describeFieldError renders a single validation failure in config-file terms.
func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "min", "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
