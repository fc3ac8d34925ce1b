package domain

import "errors"

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrEmptyContent signals content that is empty or whitespace-only.
	ErrEmptyContent = errors.New("empty content")
	// ErrInvalidUpload signals a malformed or oversized upload.
	ErrInvalidUpload = errors.New("invalid upload")
	// ErrExtraction signals an unparsable PDF or one with zero usable pages.
	ErrExtraction = errors.New("pdf extraction failed")
	// ErrRateLimited signals an upstream rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrChatProvider signals a chat completion provider failure.
	ErrChatProvider = errors.New("chat provider error")
	// ErrStorage signals a vector store insert or query failure.
	ErrStorage = errors.New("storage error")
	// ErrUnknownCapability signals a capability name outside the fixed set.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrInvalidArgument signals a malformed request payload.
	ErrInvalidArgument = errors.New("invalid argument")
)
