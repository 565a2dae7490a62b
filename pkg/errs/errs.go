// Package errs defines the closed error taxonomy shared by every service in
// the request-serving middle tier. Category, severity, retryability, and
// HTTP status are derived from the Kind, never stored separately, so two
// errors of the same Kind always classify identically.
package errs

import "fmt"

// Kind is a closed enumeration of error classes.
type Kind int

const (
	Validation Kind = iota
	Authentication
	RateLimit
	Network
	Database
	ExternalAPI
	EmbeddingGeneration
	VectorSearch
	DocumentProcessing
	Serialization
	Configuration
	Internal
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "validation"
	case Authentication:
		return "authentication"
	case RateLimit:
		return "rate_limit"
	case Network:
		return "network"
	case Database:
		return "database"
	case ExternalAPI:
		return "external_api"
	case EmbeddingGeneration:
		return "embedding_generation"
	case VectorSearch:
		return "vector_search"
	case DocumentProcessing:
		return "document_processing"
	case Serialization:
		return "serialization"
	case Configuration:
		return "configuration"
	default:
		return "internal"
	}
}

// Severity levels.
type Severity int

const (
	SevWarn Severity = iota
	SevError
	SevCritical
)

func (s Severity) String() string {
	switch s {
	case SevWarn:
		return "warn"
	case SevError:
		return "error"
	default:
		return "critical"
	}
}

// Category returns the taxonomy category for the kind (identical to String
// today, kept distinct because the two are conceptually different axes).
func (k Kind) Category() string { return k.String() }

// Sev returns the severity derived from the kind.
func (k Kind) Sev() Severity {
	switch k {
	case Validation, Authentication:
		return SevWarn
	case Configuration, Internal:
		return SevCritical
	default:
		return SevError
	}
}

// Retryable reports whether operations failing with this kind should be
// retried by the resilience envelope.
func (k Kind) Retryable() bool {
	switch k {
	case RateLimit, Network, Database, ExternalAPI, EmbeddingGeneration, VectorSearch:
		return true
	default:
		return false
	}
}

// StatusCode returns the suggested HTTP status for this kind.
func (k Kind) StatusCode() int {
	switch k {
	case Validation:
		return 400
	case Authentication:
		return 401
	case RateLimit:
		return 429
	case Network, Database:
		return 503
	case ExternalAPI, EmbeddingGeneration, VectorSearch:
		return 502
	default:
		return 500
	}
}

// RetryAfter returns the suggested retry-after duration in seconds, or 0 if
// none applies.
func (k Kind) RetryAfter() int {
	if k == RateLimit {
		return 60
	}
	return 0
}

// Error is the carrier type for a classified failure. Wrapped preserves the
// original error as a suffix rather than discarding it on reclassification.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// New constructs an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap reclassifies err under kind, preserving it as the wrapped cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

func Validationf(format string, args ...any) *Error    { return Newf(Validation, format, args...) }
func Authenticationf(format string, args ...any) *Error { return Newf(Authentication, format, args...) }
func RateLimitf(format string, args ...any) *Error      { return Newf(RateLimit, format, args...) }
func Networkf(format string, args ...any) *Error        { return Newf(Network, format, args...) }
func Databasef(format string, args ...any) *Error       { return Newf(Database, format, args...) }
func ExternalAPIf(format string, args ...any) *Error    { return Newf(ExternalAPI, format, args...) }
func EmbeddingGenerationf(format string, args ...any) *Error {
	return Newf(EmbeddingGeneration, format, args...)
}
func VectorSearchf(format string, args ...any) *Error { return Newf(VectorSearch, format, args...) }
func DocumentProcessingf(format string, args ...any) *Error {
	return Newf(DocumentProcessing, format, args...)
}
func Serializationf(format string, args ...any) *Error { return Newf(Serialization, format, args...) }
func Configurationf(format string, args ...any) *Error { return Newf(Configuration, format, args...) }
func Internalf(format string, args ...any) *Error      { return Newf(Internal, format, args...) }

// As extracts an *Error from err, reporting whether one was found anywhere
// in the chain.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}

// Retryable reports whether err (or any *Error in its chain) is retryable.
// Errors that are not classified at all are treated as non-retryable.
func Retryable(err error) bool {
	e, ok := As(err)
	return ok && e.Kind.Retryable()
}

// View is the boundary projection used for logging and the HTTP surface.
type View struct {
	ErrorCategory string `json:"error_category"`
	Severity      string `json:"severity"`
	Retryable     bool   `json:"retryable"`
	StatusCode    int    `json:"status_code"`
	RetryAfter    int    `json:"retry_after,omitempty"`
}

// ViewOf projects err into its boundary View. Unclassified errors are
// treated as Internal.
func ViewOf(err error) View {
	kind := Internal
	if e, ok := As(err); ok {
		kind = e.Kind
	}
	return View{
		ErrorCategory: kind.Category(),
		Severity:      kind.Sev().String(),
		Retryable:     kind.Retryable(),
		StatusCode:    kind.StatusCode(),
		RetryAfter:    kind.RetryAfter(),
	}
}
