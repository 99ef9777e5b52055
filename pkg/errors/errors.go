package errors

import "fmt"

// ErrNotFound error type for objects not found
type ErrNotFound struct {
	// ID is the name of the object
	ID string
	// Type of the object which wasn't found
	Type string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%v with Name: %v not found", e.Type, e.ID)
}

// ErrNotSupported is error type when an operation is not supported by a driver
type ErrNotSupported struct {
	Type      string
	Operation interface{}
}

func (e *ErrNotSupported) Error() string {
	return fmt.Sprintf("%v %v is not supported", e.Type, e.Operation)
}

// ErrInvalidPlan is error type when an install plan fails validation
type ErrInvalidPlan struct {
	// Plan is the name of the plan
	Plan string
	// Cause is the validation failure
	Cause string
}

func (e *ErrInvalidPlan) Error() string {
	return fmt.Sprintf("Invalid plan %v: %v", e.Plan, e.Cause)
}
