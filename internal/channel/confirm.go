// Package channel carries amendment decisions back to the originating
// travel agency. Concrete channel clients are registered per channel
// tag; the registry wraps each call in a small bounded retry that is
// independent of the amendment's own state.
package channel

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stayops/ota-bridge/internal/amendment"
)

// Client is one concrete channel integration (an OTA API client).
type Client interface {
	ConfirmAmendment(ctx context.Context, conf amendment.ChannelConfirmation) error
}

// retry settings for confirmation calls. Failures after the last
// attempt are surfaced to the caller, which logs them; the amendment
// decision is never reversed.
const (
	confirmAttempts     = 3
	confirmInitialDelay = 2 * time.Second
)

// Registry dispatches confirmations to the client registered for the
// amendment's channel tag. It implements amendment.ChannelConfirmer.
type Registry struct {
	clients map[string]Client
}

// NewRegistry returns an empty registry. A confirmation for a channel
// with no registered client is logged and dropped; unknown channels
// are an expected condition, not an error.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

// Register installs the client for a channel tag, replacing any
// previous one.
func (r *Registry) Register(channelTag string, c Client) {
	r.clients[channelTag] = c
}

// Confirm delivers the confirmation to the channel's client, retrying
// a bounded number of times with doubling delay. The sleep between
// attempts is cancellable through the context.
func (r *Registry) Confirm(ctx context.Context, conf amendment.ChannelConfirmation) error {
	client, ok := r.clients[conf.Channel]
	if !ok {
		log.Printf("channel: no client registered for %q; confirmation %s dropped", conf.Channel, conf.ConfirmationID)
		return nil
	}
	delay := confirmInitialDelay
	var lastErr error
	for attempt := 0; attempt < confirmAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			delay *= 2
		}
		if lastErr = client.ConfirmAmendment(ctx, conf); lastErr == nil {
			return nil
		}
		log.Printf("channel: confirmation %s attempt %d failed: %v", conf.ConfirmationID, attempt+1, lastErr)
	}
	return fmt.Errorf("channel confirmation %s failed after %d attempts: %w", conf.ConfirmationID, confirmAttempts, lastErr)
}
