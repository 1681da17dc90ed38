package main

import (
	"strings"
	"time"

	"github.com/hyperengineering/mykrok/internal/validation"
)

// parseWindow converts --after/--before strings into optional bounds.
func parseWindow(after, before string) (*time.Time, *time.Time, error) {
	var c validation.Collector
	a, verr := validation.ParseDate("after", after)
	c.Add(verr)
	b, verr := validation.ParseDate("before", before)
	c.Add(verr)
	if c.HasErrors() {
		return nil, nil, usageFromValidation(c.Errors())
	}
	return a, b, nil
}

// usageFromValidation turns validation failures into a usage error.
func usageFromValidation(errs []validation.ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return usageErrorf("invalid arguments: %s", strings.Join(msgs, "; "))
}
