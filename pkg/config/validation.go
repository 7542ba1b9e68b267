package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct-level validation
// tags plus a few cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	v := validator.New()

	if err := v.Struct(cfg); err != nil {
		return err
	}

	// expiry is a keyword or an absolute date
	switch cfg.Kerberos.Expiry {
	case ExpiryNever, ExpiryYesterday:
	default:
		if _, err := time.Parse(time.RFC3339, cfg.Kerberos.Expiry); err != nil {
			return fmt.Errorf("kerberos.expiry must be %q, %q, or an RFC3339 date: %w",
				ExpiryNever, ExpiryYesterday, err)
		}
	}

	return nil
}
