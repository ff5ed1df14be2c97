package raid

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrUnknownExplosive = errors.New("unknown explosive")
	ErrUnknownStructure = errors.New("unknown structure")
	ErrInvalidQuantity  = errors.New("invalid quantity")
	ErrEmptySelection   = errors.New("empty selection")
	ErrInvalidMode      = errors.New("invalid mode")
	ErrSolverInfeasible = errors.New("solver: infeasible")
	ErrSolverTimeout    = errors.New("solver: timed out")
	ErrSolverFailure    = errors.New("solver: failure")
)

// InputError reports an invalid input along with the offending identifier or value.
type InputError struct {
	Kind  error
	ID    string
	Value any
}

func (e *InputError) Error() string {
	switch {
	case e.ID != "" && e.Value != nil:
		return fmt.Sprintf("%v: %s (%v)", e.Kind, e.ID, e.Value)
	case e.ID != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.ID)
	case e.Value != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Value)
	default:
		return e.Kind.Error()
	}
}

func (e *InputError) Unwrap() error { return e.Kind }

// UnknownExplosive returns an InputError for an explosive id missing from the catalog.
func UnknownExplosive(id string) error {
	return &InputError{Kind: ErrUnknownExplosive, ID: id}
}

// UnknownStructure returns an InputError for a structure id missing from the catalog.
func UnknownStructure(id string) error {
	return &InputError{Kind: ErrUnknownStructure, ID: id}
}

// InvalidQuantity returns an InputError for a bad quantity attached to id.
func InvalidQuantity(id string, value any) error {
	return &InputError{Kind: ErrInvalidQuantity, ID: id, Value: value}
}

// EmptySelection returns an InputError naming the empty field.
func EmptySelection(field string) error {
	return &InputError{Kind: ErrEmptySelection, ID: field}
}

// ErrorKind maps an error to a stable kind string for transports.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownExplosive):
		return "UnknownExplosive"
	case errors.Is(err, ErrUnknownStructure):
		return "UnknownStructure"
	case errors.Is(err, ErrInvalidQuantity):
		return "InvalidQuantity"
	case errors.Is(err, ErrEmptySelection):
		return "EmptySelection"
	case errors.Is(err, ErrInvalidMode):
		return "InvalidMode"
	case errors.Is(err, ErrSolverInfeasible):
		return "SolverInfeasible"
	case errors.Is(err, ErrSolverTimeout):
		return "SolverTimeout"
	case errors.Is(err, ErrSolverFailure):
		return "SolverFailure"
	default:
		return "Internal"
	}
}

// IsInputError reports whether err is a validation error raised before any solve.
func IsInputError(err error) bool {
	return errors.Is(err, ErrUnknownExplosive) ||
		errors.Is(err, ErrUnknownStructure) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrInvalidMode)
}

// OffendingID returns the identifier attached to an InputError, if any.
func OffendingID(err error) string {
	var ie *InputError
	if errors.As(err, &ie) {
		return ie.ID
	}
	return ""
}
