package setAlgebra

import "fmt"

// InsufficientInputsError is returned when an operation is requested with fewer captures than it needs.
type InsufficientInputsError struct {
	Operation Operation
	Inputs    int
	Required  int
}

func (err *InsufficientInputsError) Error() string {
	return fmt.Sprintf("%s needs at least %d captures, got %d", err.Operation, err.Required, err.Inputs)
}
