package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/adhocore/gronx"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// fail fast on critical errors; defaults must already be applied
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", describe(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.Digest.Enabled {
		if !gronx.New().IsValid(cfg.Digest.Cron) {
			return fmt.Errorf("invalid digest.cron: not a valid cron expression")
		}
	}
	if f := cfg.Digest.FontFile; f != "" {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("digest font file not accessible: %w", err)
		}
	}
	return nil
}

// describe flattens validator errors into "telegram.token (required)" form.
func describe(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i >= 0 {
			ns = ns[i+1:]
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", strings.ToLower(ns), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

// ValidateRouting checks only the routing section, for hot reloads.
func ValidateRouting(cfg *Config) error {
	if err := validate.Struct(cfg.Routing); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid routing: %s", describe(verrs))
		}
		return fmt.Errorf("invalid routing: %w", err)
	}
	return nil
}
