package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/dittorepo/pkg/security"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that span
// sections (store references, unique names).
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	stores := make(map[string]bool)
	for i, b := range cfg.Binaries {
		if stores[b.Name] {
			return fmt.Errorf("binaries[%d]: duplicate binary store name %q", i, b.Name)
		}
		stores[b.Name] = true
	}

	keys := make(map[string]bool)
	for i, repo := range cfg.Repositories {
		if keys[repo.Key] {
			return fmt.Errorf("repositories[%d]: duplicate repository key %q", i, repo.Key)
		}
		keys[repo.Key] = true

		if !stores[repo.BinaryStore] {
			return fmt.Errorf("repositories[%d]: binary store %q is not defined", i, repo.BinaryStore)
		}
		if err := repo.Descriptor().Validate(); err != nil {
			return fmt.Errorf("repositories[%d]: %w", i, err)
		}
	}

	for i, target := range cfg.Security.Permissions {
		for _, key := range target.Repositories {
			if key != security.AnyRepository && !keys[key] {
				return fmt.Errorf("security.permissions[%d]: unknown repository %q", i, key)
			}
		}
	}

	if cfg.Security.Enabled && len(cfg.Security.Admins) == 0 && len(cfg.Security.Permissions) == 0 {
		return fmt.Errorf("security: enabled without admins or permission targets")
	}
	if slices.Contains(cfg.Security.Admins, "") {
		return fmt.Errorf("security.admins: empty user name")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
