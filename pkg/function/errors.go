package function

import "errors"

var (
	// ErrMalformed reports a collection or block whose bytes do not follow the format
	ErrMalformed = errors.New("malformed function collection")

	// ErrInvalidOperation reports an operation that cannot be compiled (nil condition, bad operator, ...)
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnsupportedExpression reports condition source that cannot be lowered into the operation set
	ErrUnsupportedExpression = errors.New("unsupported expression")
)
