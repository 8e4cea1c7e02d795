package services

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrInvalidCategoryName = errors.New("Please enter a valid category name.")
	ErrInvalidPlanName     = errors.New("plan names use letters, digits, spaces, '-' or '_' (max 64)")
	ErrUnknownSlot         = errors.New("unknown income slot")
)

var planNamePattern = regexp.MustCompile(`^[A-Za-z0-9 _-]{1,64}$`)

// ValidatePlanName trims name and checks it against the allowed alphabet.
func ValidatePlanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || !planNamePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlanName, name)
	}
	return name, nil
}
