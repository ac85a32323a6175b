package gemini

// Constants for the Gemini client
const (
	// Default chat model used for augmentation and page recognition
	DefaultModel = "gemini-2.5-flash"

	// Retry budget for transient API failures
	maxRetries = 3
)
