package ingestion

import (
	"errors"
	"fmt"
)

// ErrUnknownMapping is returned when no mapping is registered for the
// requested service name.
var ErrUnknownMapping = errors.New("unknown mapping")

// ConfigError aborts a run before anything is read or written because the
// run cannot be configured.
type ConfigError struct {
	ServiceName string
	Err         error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for service %q: %v", e.ServiceName, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StructuralError aborts a run because the workbook does not have the shape
// the mapping expects: the sheet is missing, the file is not a workbook, or
// the header row lies past the end of the sheet.
type StructuralError struct {
	SheetName string
	Err       error
}

func (e *StructuralError) Error() string {
	if e.SheetName == "" {
		return fmt.Sprintf("structural error: %v", e.Err)
	}
	return fmt.Sprintf("structural error in sheet %q: %v", e.SheetName, e.Err)
}

func (e *StructuralError) Unwrap() error { return e.Err }
