package hypernetwork

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrUnsupportedFormat marks a bundle whose format flags request a
	// training-time variant this package does not implement. Callers may
	// recover by continuing without a patch.
	ErrUnsupportedFormat = errors.New("unsupported hypernetwork format")

	// ErrMalformedBundle marks a structurally corrupt bundle. The load must
	// be aborted.
	ErrMalformedBundle = errors.New("malformed hypernetwork bundle")
)

// UnsupportedFormatError reports the flags of a rejected bundle.
type UnsupportedFormatError struct {
	Path  string
	Flags FormatFlags

	// Values renders the stored value of each deviating flag, e.g.
	// {"is_layer_norm": "\"False\""}.
	Values map[string]string
}

// Error implements the error interface.
func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrUnsupportedFormat, e.Path, e.Flags)
}

// Unwrap returns ErrUnsupportedFormat.
func (e *UnsupportedFormatError) Unwrap() error {
	return ErrUnsupportedFormat
}

// MalformedError describes a structural problem found while parsing.
type MalformedError struct {
	Path    string // Source file, if known
	Key     string // Bundle key or layer involved
	Details string
}

// Error implements the error interface.
func (e *MalformedError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s: %s: key %q: %s", ErrMalformedBundle, e.Path, e.Key, e.Details)
	}
	return fmt.Sprintf("%s: %s: %s", ErrMalformedBundle, e.Path, e.Details)
}

// Unwrap returns ErrMalformedBundle.
func (e *MalformedError) Unwrap() error {
	return ErrMalformedBundle
}

func malformed(path, key, format string, args ...any) error {
	return &MalformedError{Path: path, Key: key, Details: fmt.Sprintf(format, args...)}
}
