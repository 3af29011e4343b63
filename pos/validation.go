package pos

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidateConfigFields validates an account config map against field
// definitions supplied by a gateway's GetRequiredConfig.
func ValidateConfigFields(bank string, conf map[string]string, fields []ConfigField) error {
	for _, field := range fields {
		if !field.Required {
			continue
		}

		value, exists := conf[field.Key]
		if !exists {
			return fmt.Errorf("%s: required field %q is missing", bank, field.Key)
		}

		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s: required field %q cannot be empty", bank, field.Key)
		}

		if err := validateFieldPattern(bank, field, value); err != nil {
			return err
		}

		if err := validateFieldLength(bank, field, value); err != nil {
			return err
		}
	}

	return nil
}

func validateFieldPattern(bank string, field ConfigField, value string) error {
	if field.Pattern == "" {
		return nil
	}

	matched, err := regexp.MatchString(field.Pattern, value)
	if err != nil {
		return fmt.Errorf("%s: invalid pattern for field %q: %v", bank, field.Key, err)
	}

	if !matched {
		return fmt.Errorf("%s: field %q does not match required pattern", bank, field.Key)
	}
	return nil
}

func validateFieldLength(bank string, field ConfigField, value string) error {
	if field.MinLength > 0 && len(value) < field.MinLength {
		return fmt.Errorf("%s: field %q must be at least %d characters", bank, field.Key, field.MinLength)
	}

	if field.MaxLength > 0 && len(value) > field.MaxLength {
		return fmt.Errorf("%s: field %q must not exceed %d characters", bank, field.Key, field.MaxLength)
	}
	return nil
}
