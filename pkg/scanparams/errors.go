package scanparams

import "fmt"

// MissingFieldError reports a required key that was absent from the
// scan-parameter source.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("scan parameters: required field %q is missing", e.Field)
}

// MalformedValueError reports a field whose value could not be parsed
// as the expected type.
type MalformedValueError struct {
	Field string
	Value string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("scan parameters: field %q has malformed value %q", e.Field, e.Value)
}

// OutOfRangeError reports a parsed field that violates a range constraint.
type OutOfRangeError struct {
	Field      string
	Value      float64
	Constraint string
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("scan parameters: field %q = %v violates constraint %s", e.Field, e.Value, e.Constraint)
}

// AngleCountError reports a mismatch between the declared number of images
// and the length of the generated angle sequence. The two are redundant in
// the source format and must agree exactly.
type AngleCountError struct {
	Declared  int
	Generated int
}

func (e *AngleCountError) Error() string {
	return fmt.Sprintf("scan parameters: NumberImages is %d but the angle sequence AngleFirst..AngleLast generates %d angles", e.Declared, e.Generated)
}

// WindowError reports an invalid free-ray calibration window.
type WindowError struct {
	Window FreeRayWindow
	Reason string
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("free-ray window [%d:%d, %d:%d]: %s", e.Window.Row1, e.Window.Row2, e.Window.Col1, e.Window.Col2, e.Reason)
}
