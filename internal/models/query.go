package models

// FailureKind classifies why a query finished without suggestions.
type FailureKind string

const (
	FailureTimeout    FailureKind = "timeout"
	FailureConnection FailureKind = "connection"
	FailureStatus     FailureKind = "status"
	FailureMalformed  FailureKind = "malformed"
	FailureCanceled   FailureKind = "canceled"
)

// QueryResult is the terminal outcome of one suggestion lookup.
// Exactly one of Suggestions (on success) or Failure is meaningful.
type QueryResult struct {
	Query       string        `json:"query"`
	Suggestions []string      `json:"suggestions,omitempty"`
	Failure     *QueryFailure `json:"failure,omitempty"`
	Attempts    int           `json:"attempts"`
}

// QueryFailure records the last error seen before retries ran out.
type QueryFailure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Succeeded reports whether the query produced a usable response.
func (r QueryResult) Succeeded() bool {
	return r.Failure == nil
}
