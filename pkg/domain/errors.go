package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidDomain wraps every compile failure
	ErrInvalidDomain = errors.New("invalid domain")

	// ErrMalformedBuffer reports bytes that do not follow the domain layout
	ErrMalformedBuffer = errors.New("malformed domain buffer")
)

// ValidationError is one problem found in a declaration.
type ValidationError struct {
	// Path locates the problem, e.g. "layers[1].actions[2].effect"
	Path string
	Err  error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ValidationError) Unwrap() error { return e.Err }

// ValidationErrors is the aggregate returned by Compile when validation fails.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Unwrap exposes every underlying error to errors.Is / errors.As.
func (errs ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(errs)+1)
	out = append(out, ErrInvalidDomain)
	for _, e := range errs {
		out = append(out, e)
	}
	return out
}
