package sync

import (
	"context"

	"github.com/waymarkapp/core/internal/models"
)

// SendResult is the transport's report for one sent record. The core
// treats the transport as opaque: only the success/skip flags, the
// server-assigned id and the status code matter. Network-level retry and
// timeouts are the transport's own concern.
type SendResult struct {
	Success    bool
	Skipped    bool
	ServerID   string
	StatusCode *int // nil when no response was received
	Message    string
}

// Transport sends queued records to the remote server. Implementations
// must honor ctx cancellation and carry their own request timeouts.
type Transport interface {
	SendLocation(ctx context.Context, loc *models.QueuedLocation) (*SendResult, error)
	SendMutation(ctx context.Context, m *models.PendingMutation) (*SendResult, error)
}
