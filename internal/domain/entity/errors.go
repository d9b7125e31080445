package entity

import "errors"

// Standard domain errors
var (
	ErrCorpusNotInitialized = errors.New("knowledge corpus not initialized")
	ErrUpstreamUnavailable  = errors.New("upstream service unavailable")
	ErrMalformedEmbedding   = errors.New("malformed embedding vector")
	ErrEmptyCompletion      = errors.New("completion returned no content")
	ErrDuplicateMessage     = errors.New("message already processed")
	ErrInvalidRequest       = errors.New("invalid request parameters")
	ErrErasureFailed        = errors.New("user data erasure failed")
)
