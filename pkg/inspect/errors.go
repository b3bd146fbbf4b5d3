package inspect

import "fmt"

// TypeResolutionError is returned when a type name is not known to the
// catalog.
type TypeResolutionError struct {
	Name string
	Err  error
}

func (e *TypeResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not resolve type %q: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("could not resolve type %q", e.Name)
}

func (e *TypeResolutionError) Unwrap() error { return e.Err }

// MissingFieldError is returned when a field is read from a value whose type
// does not have it.
type MissingFieldError struct {
	Type  string
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("type %s has no field %q", e.Type, e.Field)
}

// MemoryError is returned when the memory reader fails or returns fewer
// bytes than requested.
type MemoryError struct {
	Addr uint64
	Len  int
	Err  error
}

func (e *MemoryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not read %d bytes at %#x: %v", e.Len, e.Addr, e.Err)
	}
	return fmt.Sprintf("could not read %d bytes at %#x: short read", e.Len, e.Addr)
}

func (e *MemoryError) Unwrap() error { return e.Err }
