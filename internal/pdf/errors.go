// Package pdf renders composed contract HTML to paginated PDF.
package pdf

import "fmt"

// RenderError represents a failure of the rendering engine or of PDF post-processing.
type RenderError struct {
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("render error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("render error: %s", e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}
