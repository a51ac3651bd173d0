package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ZHONGZHENGXIN/investment-workflow-manager-sub003/internal/model"
)

// deliveryTimeout bounds a single channel delivery so one hung endpoint
// cannot stall the evaluator tick indefinitely.
const deliveryTimeout = 10 * time.Second

// Notifier fans a raised alert out to every configured channel. Deliveries
// run concurrently and settle as a batch; a failing channel is logged and
// never blocks the others or the caller.
type Notifier struct {
	channels []Channel
	client   *http.Client
}

// New creates a Notifier for the given channel set.
func New(channels []Channel) *Notifier {
	return &Notifier{
		channels: channels,
		client:   &http.Client{Timeout: deliveryTimeout},
	}
}

// Channels returns the configured channel set.
func (n *Notifier) Channels() []Channel { return n.channels }

// Notify attempts delivery of a to every channel. It returns after all
// deliveries have settled. Errors are logged per channel and never
// propagated.
func (n *Notifier) Notify(ctx context.Context, a *model.Alert) {
	var wg sync.WaitGroup
	for _, ch := range n.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()

			if err := n.deliver(dctx, ch, a); err != nil {
				slog.Error("notify: delivery failed",
					"channel", ch.Name,
					"type", ch.Type,
					"rule", a.RuleID,
					"err", err,
				)
				return
			}
			slog.Debug("notify: delivered", "channel", ch.Name, "alert", a.ID)
		}(ch)
	}
	wg.Wait()
}

// deliver renders the channel-specific payload and sends it.
func (n *Notifier) deliver(ctx context.Context, ch Channel, a *model.Alert) error {
	switch ch.Type {
	case TypeChat:
		return n.sendChat(ctx, ch, a)
	case TypeWebhook:
		return n.sendWebhook(ctx, ch, a)
	case TypeEmail:
		// Email delivery is a placeholder: the rendered notification is
		// logged, not sent.
		slog.Info("notify: email delivery not implemented, logging only",
			"to", ch.EmailTo,
			"from", ch.EmailFrom,
			"subject", emailSubject(a),
			"alert", a.ID,
		)
		return nil
	default:
		return fmt.Errorf("unknown channel type %q", ch.Type)
	}
}

// post sends body as JSON with the given method and extra headers, treating
// any HTTP status >= 400 as a delivery failure.
func (n *Notifier) post(ctx context.Context, method, url string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
