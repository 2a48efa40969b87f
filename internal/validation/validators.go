package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validator checks a single non-nil field value
type Validator interface {
	Validate(value interface{}) error
}

// MinValidator checks numbers against a lower bound and strings against a
// minimum length
type MinValidator struct {
	Min float64
}

// Validate implements the Validator interface
func (v *MinValidator) Validate(value interface{}) error {
	if s, ok := value.(string); ok {
		if float64(utf8.RuneCountInString(s)) < v.Min {
			return fmt.Errorf("must be at least %v characters", v.Min)
		}
		return nil
	}
	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("expected numeric value")
	}
	if n < v.Min {
		return fmt.Errorf("must be at least %v", v.Min)
	}
	return nil
}

// MaxValidator checks numbers against an upper bound and strings against a
// maximum length
type MaxValidator struct {
	Max float64
}

// Validate implements the Validator interface
func (v *MaxValidator) Validate(value interface{}) error {
	if s, ok := value.(string); ok {
		if float64(utf8.RuneCountInString(s)) > v.Max {
			return fmt.Errorf("must be at most %v characters", v.Max)
		}
		return nil
	}
	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("expected numeric value")
	}
	if n > v.Max {
		return fmt.Errorf("must be at most %v", v.Max)
	}
	return nil
}

// StepValidator checks that a number is a multiple of Step
type StepValidator struct {
	Step float64
}

// Validate implements the Validator interface
func (v *StepValidator) Validate(value interface{}) error {
	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("expected numeric value")
	}
	if v.Step <= 0 {
		return nil
	}
	q := n / v.Step
	if diff := q - float64(int64(q)); diff > 1e-9 && diff < 1-1e-9 {
		return fmt.Errorf("must be a multiple of %v", v.Step)
	}
	return nil
}

// LengthValidator checks the exact length of a string or list
type LengthValidator struct {
	Len int
}

// Validate implements the Validator interface
func (v *LengthValidator) Validate(value interface{}) error {
	if s, ok := value.(string); ok {
		if utf8.RuneCountInString(s) != v.Len {
			return fmt.Errorf("must be exactly %d characters", v.Len)
		}
		return nil
	}
	val := reflect.ValueOf(value)
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return fmt.Errorf("length validation requires a string or list value")
	}
	if val.Len() != v.Len {
		return fmt.Errorf("must contain exactly %d items", v.Len)
	}
	return nil
}

// PatternValidator validates string values against a regex pattern
type PatternValidator struct {
	Pattern *regexp.Regexp
}

// Validate implements the Validator interface
func (v *PatternValidator) Validate(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("pattern validation requires string value")
	}

	if !v.Pattern.MatchString(strVal) {
		return fmt.Errorf("does not match required pattern")
	}

	return nil
}

// EmailValidator validates email addresses
type EmailValidator struct{}

// Validate implements the Validator interface
func (v *EmailValidator) Validate(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("email validation requires string value")
	}

	if strings.TrimSpace(strVal) == "" {
		return fmt.Errorf("email address cannot be empty")
	}

	if _, err := mail.ParseAddress(strVal); err != nil {
		return fmt.Errorf("must be a valid email address")
	}

	return nil
}

// URLValidator validates absolute URLs
type URLValidator struct{}

// Validate implements the Validator interface
func (v *URLValidator) Validate(value interface{}) error {
	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("URL validation requires string value")
	}

	parsedURL, err := url.Parse(strVal)
	if err != nil {
		return fmt.Errorf("must be a valid URL")
	}
	if parsedURL.Scheme == "" {
		return fmt.Errorf("URL must include a scheme (http, https, etc.)")
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

// NumberValidator accepts numbers and numeric strings, the way form inputs
// of type number submit them
type NumberValidator struct{}

// Validate implements the Validator interface
func (v *NumberValidator) Validate(value interface{}) error {
	if _, ok := toFloat64(value); ok {
		return nil
	}
	if s, ok := value.(string); ok {
		var f float64
		if _, err := fmt.Sscan(s, &f); err == nil {
			return nil
		}
	}
	return fmt.Errorf("must be a number")
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
