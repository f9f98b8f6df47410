package sauce

import (
	"errors"
	"fmt"
)

// Causes carried by a ConfigurationError. Use errors.Is to test for them.
var (
	// ErrMissingVariable reports a required environment variable that is
	// unset or empty.
	ErrMissingVariable = errors.New("required environment variable is not set")
	// ErrUnknownPlatform reports a SAUCE_OS value that names no Platform.
	ErrUnknownPlatform = errors.New("unknown platform")
	// ErrMalformedEndpoint reports that the Sauce Labs endpoint URL could not
	// be built from the supplied credentials.
	ErrMalformedEndpoint = errors.New("malformed endpoint")
)

// ConfigurationError is returned when the Sauce Labs configuration is
// incomplete or unusable. No network connection is attempted once one has
// been produced.
type ConfigurationError struct {
	// Var is the environment variable at fault, if any.
	Var string
	// Err is the underlying cause.
	Err error
}

func (e *ConfigurationError) Error() string {
	if e.Var == "" {
		return fmt.Sprintf("sauce: invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("sauce: invalid configuration: %s: %v", e.Var, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func missing(name string) error {
	return &ConfigurationError{Var: name, Err: ErrMissingVariable}
}
