package models

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration   = errors.New("configuration error")
	ErrSourceNotFound  = errors.New("source not found")
	ErrParse           = errors.New("parse error")
	ErrEmbedding       = errors.New("embedding error")
	ErrSearch          = errors.New("search error")
	ErrModelInvocation = errors.New("model invocation error")
)

// EmbeddingError reports the index of the chunk whose embedding failed.
type EmbeddingError struct {
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("%v: chunk %d: %v", ErrEmbedding, e.Index, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }
