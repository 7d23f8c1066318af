// Package sync provides the offline sync engine shared by the location
// and mutation schedulers: transport outcome classification and the
// collaborator interfaces the schedulers drive.
package sync

import "time"

// Shared scheduler defaults.
const (
	DefaultBatchSize           = 50
	DefaultTickInterval        = 30 * time.Second
	DefaultPurgeInterval       = 6 * time.Hour
	DefaultMaxMutationAttempts = 5
)

// FailureClass categorizes a transport failure by HTTP status code.
type FailureClass string

const (
	// ClassServerRejection means the payload is permanently invalid (400, 422).
	ClassServerRejection FailureClass = "server_rejection"
	// ClassAuthError means credentials are invalid (401, 403).
	ClassAuthError FailureClass = "authentication_error"
	// ClassRateLimited means the server is throttling us (429).
	ClassRateLimited FailureClass = "rate_limited"
	// ClassServerError means a server-side fault (500-599).
	ClassServerError FailureClass = "server_error"
	// ClassUnknown covers everything else, including connection failures
	// where no response was received.
	ClassUnknown FailureClass = "unknown"
)

// Classify maps an optional HTTP status code to a handling policy.
// A nil status code means the request failed before a response arrived.
func Classify(statusCode *int) FailureClass {
	if statusCode == nil {
		return ClassUnknown
	}
	switch code := *statusCode; {
	case code == 400 || code == 422:
		return ClassServerRejection
	case code == 401 || code == 403:
		return ClassAuthError
	case code == 429:
		return ClassRateLimited
	case code >= 500 && code <= 599:
		return ClassServerError
	default:
		return ClassUnknown
	}
}

// OutcomeKind is the tagged variant consumed by the schedulers' per-item
// dispatch.
type OutcomeKind string

const (
	// OutcomeSuccess: the server stored the record.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeSkipped: the server accepted the request but declined to
	// store the record (distance/time threshold). Terminal, not retried.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeRejected: payload permanently invalid. Terminal, not retried.
	OutcomeRejected OutcomeKind = "rejected"
	// OutcomeAuthFailure: credentials invalid; aborts the whole cycle
	// without marking the item failed.
	OutcomeAuthFailure OutcomeKind = "auth_failure"
	// OutcomeRateLimited: server throttling; aborts the whole cycle
	// without marking the item failed.
	OutcomeRateLimited OutcomeKind = "rate_limited"
	// OutcomeTransient: infrastructure failure; attempt counter is
	// incremented and the item is retried next cycle.
	OutcomeTransient OutcomeKind = "transient"
)

// Outcome is the evaluated result of one transport send.
type Outcome struct {
	Kind     OutcomeKind
	ServerID string // set on success
	Reason   string // set on rejected/skipped
	Detail   string // error text for transient failures
}

// Evaluate turns a transport result and error into an Outcome. The
// transport is opaque; only the status code and skip flag matter.
func Evaluate(res *SendResult, err error) Outcome {
	if err == nil && res != nil && res.Success {
		if res.Skipped {
			reason := res.Message
			if reason == "" {
				reason = "skipped by server (distance/time threshold)"
			}
			return Outcome{Kind: OutcomeSkipped, Reason: reason}
		}
		return Outcome{Kind: OutcomeSuccess, ServerID: res.ServerID}
	}

	var statusCode *int
	detail := "send failed"
	if err != nil {
		detail = err.Error()
	}
	if res != nil {
		statusCode = res.StatusCode
		if res.Message != "" {
			detail = res.Message
		}
	}

	switch Classify(statusCode) {
	case ClassServerRejection:
		return Outcome{Kind: OutcomeRejected, Reason: detail}
	case ClassAuthError:
		return Outcome{Kind: OutcomeAuthFailure, Detail: detail}
	case ClassRateLimited:
		return Outcome{Kind: OutcomeRateLimited, Detail: detail}
	default:
		// ServerError and Unknown share the transient retry path.
		return Outcome{Kind: OutcomeTransient, Detail: detail}
	}
}
