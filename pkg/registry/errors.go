package registry

import (
	"errors"
	"fmt"
)

// ErrUnsupportedMIME is returned for a response whose media type maps to no
// module kind.
var ErrUnsupportedMIME = errors.New("unsupported module media type")

// LoadError reports the module whose fetch, analysis or resolution failed.
// Importers of a failed module receive the same error.
type LoadError struct {
	URL    string
	Parent string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Parent == "" {
		return fmt.Sprintf("load %s: %v", e.URL, e.Err)
	}

	return fmt.Sprintf("load %s (imported by %s): %v", e.URL, e.Parent, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
