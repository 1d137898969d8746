package idgen

import (
	"fmt"
	"regexp"
)

var moduleIDPattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ValidateModuleID checks that id is a valid user-provided module ID.
// Rules: lowercase letters, digits, and dashes; must start with a letter and
// end with a letter or digit; max 64 characters.
func ValidateModuleID(id string) error {
	if len(id) > 64 {
		return fmt.Errorf("module id too long (max 64 characters)")
	}
	if !moduleIDPattern.MatchString(id) {
		return fmt.Errorf("module id %q is invalid: must match %s", id, moduleIDPattern.String())
	}
	return nil
}
