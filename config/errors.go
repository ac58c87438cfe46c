package config

import (
	"github.com/pkg/errors"
)

// NewValidationError returns an error specifying that there was a problem at the given path.
func NewValidationError(path string, err error) error {
	return errors.Wrapf(err, "error validating %q", path)
}

// NewFieldRequiredError returns an error specifying that a required field is missing or empty.
func NewFieldRequiredError(path, field string) error {
	return NewValidationError(path, errors.Errorf("%q is required", field))
}
