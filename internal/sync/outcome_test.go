// Package sync tests for failure classification and outcome evaluation.
package sync

import (
	"errors"
	"testing"
)

func code(c int) *int { return &c }

// TestClassify tests the status-code-to-policy table.
func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status *int
		want   FailureClass
	}{
		{"400 bad request", code(400), ClassServerRejection},
		{"422 unprocessable", code(422), ClassServerRejection},
		{"401 unauthorized", code(401), ClassAuthError},
		{"403 forbidden", code(403), ClassAuthError},
		{"429 too many requests", code(429), ClassRateLimited},
		{"500 lower bound", code(500), ClassServerError},
		{"503 unavailable", code(503), ClassServerError},
		{"599 upper bound", code(599), ClassServerError},
		{"499 below range", code(499), ClassUnknown},
		{"600 above range", code(600), ClassUnknown},
		{"404 not found", code(404), ClassUnknown},
		{"200 ok", code(200), ClassUnknown},
		{"no response", nil, ClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.status); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.status, got, tt.want)
			}
		})
	}
}

// TestEvaluate tests the outcome variant construction.
func TestEvaluate(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out := Evaluate(&SendResult{Success: true, ServerID: "srv-1"}, nil)
		if out.Kind != OutcomeSuccess || out.ServerID != "srv-1" {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("skipped", func(t *testing.T) {
		out := Evaluate(&SendResult{Success: true, Skipped: true}, nil)
		if out.Kind != OutcomeSkipped {
			t.Errorf("kind = %s, want skipped", out.Kind)
		}
		if out.Reason == "" {
			t.Error("skipped outcome must carry a descriptive reason")
		}
	})

	t.Run("rejection carries reason", func(t *testing.T) {
		out := Evaluate(&SendResult{StatusCode: code(422), Message: "invalid coordinates"}, nil)
		if out.Kind != OutcomeRejected || out.Reason != "invalid coordinates" {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("auth failure", func(t *testing.T) {
		out := Evaluate(&SendResult{StatusCode: code(401)}, nil)
		if out.Kind != OutcomeAuthFailure {
			t.Errorf("kind = %s, want auth_failure", out.Kind)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		out := Evaluate(&SendResult{StatusCode: code(429)}, nil)
		if out.Kind != OutcomeRateLimited {
			t.Errorf("kind = %s, want rate_limited", out.Kind)
		}
	})

	t.Run("server error is transient", func(t *testing.T) {
		out := Evaluate(&SendResult{StatusCode: code(503), Message: "upstream down"}, nil)
		if out.Kind != OutcomeTransient || out.Detail != "upstream down" {
			t.Errorf("outcome = %+v", out)
		}
	})

	t.Run("connection failure is transient", func(t *testing.T) {
		out := Evaluate(nil, errors.New("dial tcp: connection refused"))
		if out.Kind != OutcomeTransient {
			t.Errorf("kind = %s, want transient", out.Kind)
		}
		if out.Detail != "dial tcp: connection refused" {
			t.Errorf("detail = %q", out.Detail)
		}
	})
}
