package analysis

import "errors"

// Gateway errors. All of them are reported as {success:false,error}.
var (
	ErrMissingAPIKey     = errors.New("analysis API key is not configured")
	ErrEmptyPrompt       = errors.New("promptText is required")
	ErrPromptTooLarge    = errors.New("promptText is too large")
	ErrUpstreamStatus    = errors.New("analysis service returned an error")
	ErrMalformedResponse = errors.New("analysis service returned an unexpected response")
)
