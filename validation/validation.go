package validation

import (
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
)

// Rule checks a single named value and returns a descriptive error when the
// value does not satisfy it.
type Rule func(name, value string) error

type Violations struct {
	Errors map[string][]error
}

func (violations *Violations) Add(name string, err error) {
	if violations.Errors == nil {
		violations.Errors = make(map[string][]error)
	}
	violations.Errors[name] = append(violations.Errors[name], err)
}

func (violations Violations) IsEmpty() bool {
	return len(violations.Errors) == 0
}

// Error lists every violation, ordered by name.
func (violations Violations) Error() string {
	names := make([]string, 0, len(violations.Errors))
	for name := range violations.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	var messages []string
	for _, name := range names {
		for _, err := range violations.Errors[name] {
			messages = append(messages, err.Error())
		}
	}
	return strings.Join(messages, "; ")
}

// Validate applies rules to the matching values. Names without a value are
// skipped, so absent settings keep whatever default the caller has.
func Validate(values map[string]string, rules map[string][]Rule) Violations {
	var violations Violations

	for name, nameRules := range rules {
		value, ok := values[name]
		if !ok {
			continue
		}
		for _, rule := range nameRules {
			if err := rule(name, value); err != nil {
				violations.Add(name, err)
				// Later rules usually assume the earlier ones passed.
				break
			}
		}
	}

	return violations
}

// Required rejects empty and whitespace-only values.
func Required() Rule {
	return func(name, value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", name)
		}
		return nil
	}
}

func Integer() Rule {
	return func(name, value string) error {
		if !ValidateInteger(value) {
			return fmt.Errorf("%s must be an integer, got %q", name, value)
		}
		return nil
	}
}

func Min(size int) Rule {
	return func(name, value string) error {
		if !ValidateGreaterThenOrEqual(value, size) {
			return fmt.Errorf("%s must be at least %d, got %q", name, size, value)
		}
		return nil
	}
}

func Max(size int) Rule {
	return func(name, value string) error {
		if !ValidateLesserThenOrEqual(value, size) {
			return fmt.Errorf("%s must be at most %d, got %q", name, size, value)
		}
		return nil
	}
}

func Port() Rule {
	return func(name, value string) error {
		if !ValidatePort(value) {
			return fmt.Errorf("%s must be a port between 1 and 65535, got %q", name, value)
		}
		return nil
	}
}

func Boolean() Rule {
	return func(name, value string) error {
		if !ValidateBoolean(value) {
			return fmt.Errorf("%s must be a boolean, got %q", name, value)
		}
		return nil
	}
}

func IP() Rule {
	return func(name, value string) error {
		if !ValidateIP(value) {
			return fmt.Errorf("%s must be an IP address, got %q", name, value)
		}
		return nil
	}
}

// Numberic operations
func ValidateInteger(value string) bool {
	_, err := strconv.Atoi(value)
	return err == nil
}

func ValidateGreaterThenOrEqual(value string, size int) bool {
	valueAsInt, err := strconv.Atoi(value)
	if err != nil {
		return false
	}

	return valueAsInt >= size
}

func ValidateLesserThenOrEqual(value string, size int) bool {
	valueAsInt, err := strconv.Atoi(value)
	if err != nil {
		return false
	}

	return valueAsInt <= size
}

func ValidatePort(value string) bool {
	return ValidateGreaterThenOrEqual(value, 1) && ValidateLesserThenOrEqual(value, 65535)
}

// Boolean operations
func ValidateBoolean(value string) bool {
	return ValidateTrue(value) || ValidateFalse(value)
}

func ValidateTrue(value string) bool {
	return value == "1" || value == "true"
}

func ValidateFalse(value string) bool {
	return value == "0" || value == "false"
}

// Network operations
func ValidateIP(value string) bool {
	return net.ParseIP(value) != nil
}
