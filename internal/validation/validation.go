package validation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyperengineering/mykrok/internal/archive"
	"github.com/hyperengineering/mykrok/internal/backup"
)

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// Err joins the accumulated errors into one, or returns nil.
func (c *Collector) Err() error {
	if !c.HasErrors() {
		return nil
	}
	msgs := make([]string, len(c.errors))
	for i, e := range c.errors {
		msgs[i] = e.Error()
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(msgs, "; "))
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateEnum returns an error if the value is not in the allowed list.
func ValidateEnum(field, value string, allowed []string) *ValidationError {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")),
	}
}

// ValidateOwner returns an error if the value is not a valid archive owner.
func ValidateOwner(field, value string) *ValidationError {
	if err := archive.ValidateOwner(value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be lowercase alphanumeric with hyphens or underscores",
		}
	}
	return nil
}

// ValidateSessionKey returns an error if the value is not a record key
// (YYYYMMDDTHHMMSS).
func ValidateSessionKey(field, value string) *ValidationError {
	if _, err := archive.ParseSessionKey(value); err != nil {
		return &ValidationError{
			Field:   field,
			Message: "must be a session key (YYYYMMDDTHHMMSS)",
		}
	}
	return nil
}

// ValidateNonNegative returns an error if value is below zero.
func ValidateNonNegative(field string, value int) *ValidationError {
	if value < 0 {
		return &ValidationError{
			Field:   field,
			Message: "must not be negative",
		}
	}
	return nil
}

// dateLayouts are accepted by ParseDate, most specific first.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate parses a date or timestamp argument. Values without a zone are UTC.
func ParseDate(field, value string) (*time.Time, *ValidationError) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, &ValidationError{
		Field:   field,
		Message: "must be a date (YYYY-MM-DD) or RFC 3339 timestamp",
	}
}

// ParseLimit parses an optional non-negative integer argument.
func ParseLimit(field, value string) (int, *ValidationError) {
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: "must be a non-negative integer",
		}
	}
	return n, nil
}

// ValidateWindow returns an error if both bounds are set and after is not
// strictly before before.
func ValidateWindow(after, before *time.Time) *ValidationError {
	if after != nil && before != nil && !after.Before(*before) {
		return &ValidationError{
			Field:   "after",
			Message: "must be earlier than before",
		}
	}
	return nil
}

// ValidateSyncOptions checks caller-supplied sync parameters.
func ValidateSyncOptions(opts backup.SyncOptions) []ValidationError {
	var c Collector
	c.Add(ValidateNonNegative("limit", opts.Limit))
	c.Add(ValidateWindow(opts.After, opts.Before))
	for i, id := range opts.ActivityIDs {
		if id <= 0 {
			c.Add(&ValidationError{
				Field:   fmt.Sprintf("id[%d]", i),
				Message: "must be a positive activity ID",
			})
		}
	}
	return c.Errors()
}

// ValidateSocialOptions checks social refresh parameters.
func ValidateSocialOptions(opts backup.SocialOptions) []ValidationError {
	var c Collector
	if opts.Owner != "" {
		c.Add(ValidateOwner("athlete", opts.Owner))
	}
	c.Add(ValidateNonNegative("limit", opts.Limit))
	c.Add(ValidateWindow(opts.After, opts.Before))
	return c.Errors()
}
