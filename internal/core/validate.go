package core

import (
	"fmt"
	"strings"
)

// ValidateDescription rejects blank descriptions.
func ValidateDescription(desc string) error {
	if strings.TrimSpace(desc) == "" {
		return fmt.Errorf("%w: description required", ErrInvalidTask)
	}
	return nil
}

// ValidateDependencies rejects a task that depends on itself.
func ValidateDependencies(depends []string, taskUUID string) error {
	if taskUUID == "" {
		return nil
	}
	for _, dep := range depends {
		if dep == taskUUID {
			return fmt.Errorf("%w: task cannot depend on itself: %s", ErrInvalidTask, dep)
		}
	}
	return nil
}

func ValidatePriority(p Priority) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, string(p))
	}
	return nil
}
