package ai

import "errors"

// Analyzer failures. Providers wrap these with detail; the bulk queue records
// any of them as a failed document.
var (
	ErrProviderUnavailable = errors.New("analyzer unavailable")
	ErrInferenceTimeout    = errors.New("analysis timed out")
	ErrInvalidResponse     = errors.New("analyzer returned an unreadable response")
	ErrEmptyContent        = errors.New("document has no content to analyze")
)
