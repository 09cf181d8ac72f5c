package blackboard

import "errors"

// Compile errors. They block use of the schema and are never recovered automatically.
var (
	ErrCyclicHierarchy    = errors.New("cyclic schema hierarchy")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrInvalidKey         = errors.New("invalid key")
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// Access errors, returned only by the validated (by-name) accessors.
var (
	ErrKeyNotFound      = errors.New("key not found")
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrInvalidEnumWidth = errors.New("invalid enum width")
	ErrDisposed         = errors.New("instance disposed")
)

// IsKeyNotFound returns true if err wraps ErrKeyNotFound.
func IsKeyNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsTypeMismatch returns true if err wraps ErrTypeMismatch.
func IsTypeMismatch(err error) bool {
	return errors.Is(err, ErrTypeMismatch)
}
