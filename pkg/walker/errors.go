package walker

import (
	"errors"
	"fmt"

	"github.com/pgdbg/pgdbg/pkg/inspect"
)

// Error is returned by Walk. It records the node being visited when the
// walk failed.
type Error struct {
	Addr uint64
	Type string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("walking %s at %#x: %v", e.Type, e.Addr, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// wrap attaches the location of v to err, once.
func wrap(v *inspect.Value, err error) error {
	var we *Error
	if errors.As(err, &we) {
		return err
	}
	addr := v.Addr()
	if v.Type().IsPointer() {
		if p, perr := v.Pointer(); perr == nil {
			addr = p
		}
	}
	return &Error{Addr: addr, Type: v.Type().String(), Err: err}
}
