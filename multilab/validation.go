package multilab

import (
	"fmt"
	"strings"
	"unicode"
)

const maxLabNameLength = 100

// ValidateLabName checks a laboratory name before it is stored.
func ValidateLabName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("lab name cannot be empty")
	}
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("lab name has leading/trailing whitespace: %q", name)
	}

	if n := len([]rune(name)); n > maxLabNameLength {
		return fmt.Errorf("lab name length %d exceeds maximum of %d characters", n, maxLabNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("lab name contains control character %U", r)
		}
	}
	return nil
}
