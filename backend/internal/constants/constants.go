package constants

// Service constants
const (
	// ServiceName is reported by the health endpoint
	ServiceName = "people-graph-service"
)

// Query limit defaults, used when a request carries no limit
const (
	DefaultSuggestionLimit       = 10
	DefaultPeopleYouMayKnowLimit = 10
	DefaultAffinityLimit         = 20

	// MaxQueryLimit caps any requested limit
	MaxQueryLimit = 100
)

// HTTP constants
const (
	// RequestIDHeader carries the request id in and out
	RequestIDHeader = "X-Request-ID"
)
