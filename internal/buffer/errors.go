package buffer

import "errors"

// Errors returned by buffer operations. Callers match them with errors.Is.
var (
	ErrTypeMismatch        = errors.New("buffer data type does not match requested type")
	ErrOutOfCapacity       = errors.New("requested range exceeds buffer capacity")
	ErrUnsupportedDataType = errors.New("unsupported data type")
	ErrForeignBuffer       = errors.New("buffer does not share storage with this package")
	ErrIndexOutOfRange     = errors.New("element index out of range")
	ErrNilPointer          = errors.New("nil pointer with non-zero capacity")
)
