package errors

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrTooMany     = errors.New("too many requests")
	ErrInternal    = errors.New("internal")
	ErrUnavailable = errors.New("ai provider unavailable")
	// ErrEmbedding marks a failed or malformed embedding. Nothing can be
	// cached or retrieved for the query without a vector.
	ErrEmbedding = errors.New("embedding failure")
	// ErrRetrieval marks a storage failure in the semantic cache or the
	// document index. It is distinct from an ordinary miss.
	ErrRetrieval = errors.New("retrieval failure")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsRetrieval(err error) bool {
	return errors.Is(err, ErrRetrieval)
}

func IsEmbedding(err error) bool {
	return errors.Is(err, ErrEmbedding)
}
