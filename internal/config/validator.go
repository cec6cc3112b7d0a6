package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration beyond what struct tags can express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			return fmt.Errorf("invalid config: %s", formatValidationErrors(verrs))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := cfg.ConfirmationTimeout(); err != nil {
		return fmt.Errorf("invalid config: confirmation.timeout: %w", err)
	}
	if _, err := cfg.SweepInterval(); err != nil {
		return fmt.Errorf("invalid config: confirmation.sweep_interval: %w", err)
	}
	if _, err := cfg.ShutdownTimeout(); err != nil {
		return fmt.Errorf("invalid config: server.shutdown_timeout: %w", err)
	}
	if cfg.Confirmation.Store == "sqlite" && cfg.Confirmation.SQLitePath == "" {
		return fmt.Errorf("invalid config: confirmation.sqlite_path is required when confirmation.store is sqlite")
	}
	if _, err := cfg.Tokens(); err != nil {
		return fmt.Errorf("invalid config: identity.tokens: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if seen[b.Domain] {
			return fmt.Errorf("invalid config: duplicate backend for domain %q", b.Domain)
		}
		seen[b.Domain] = true
	}
	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
