package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const (
	httpTimeout = 3 * time.Second
	queueSize   = 32
)

type payload struct {
	InstanceID string         `json:"instance_id"`
	Event      string         `json:"event"`
	Severity   string         `json:"severity"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  string         `json:"timestamp"`
}

// WebhookNotifier POSTs alerts as JSON to a configured URL from a background
// worker, so raising an alert never blocks the caller on the network.
type WebhookNotifier struct {
	url        string
	instanceID string
	client     *http.Client
	logger     *slog.Logger
	queue      chan payload

	mu     sync.Mutex
	closed bool // set by Shutdown; later alerts are dropped

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebhookNotifier creates a notifier for url. It resolves (or generates)
// the instance ID from the settings store. Returns nil if url is empty.
func NewWebhookNotifier(ctx context.Context, store SettingsStore, url string, logger *slog.Logger) *WebhookNotifier {
	if url == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:        url,
		instanceID: resolveInstanceID(ctx, store),
		client:     &http.Client{Timeout: httpTimeout},
		logger:     logger,
		queue:      make(chan payload, queueSize),
	}
}

// Start begins the background delivery loop. Non-blocking.
func (n *WebhookNotifier) Start() {
	if n == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case p := <-n.queue:
				n.deliver(context.Background(), p)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the loop and delivers anything still queued.
func (n *WebhookNotifier) Shutdown() {
	if n == nil {
		return
	}
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	for {
		select {
		case p := <-n.queue:
			n.deliver(context.Background(), p)
		default:
			n.client.CloseIdleConnections()
			return
		}
	}
}

// Raise queues the alert for delivery. When the queue is full, or the notifier
// has been shut down, the alert is logged and dropped.
func (n *WebhookNotifier) Raise(ctx context.Context, a Alert) {
	if n == nil {
		return
	}
	ts := a.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	p := payload{
		InstanceID: n.instanceID,
		Event:      a.Event,
		Severity:   a.Severity,
		Message:    a.Message,
		Details:    a.Details,
		Timestamp:  ts.UTC().Format(time.RFC3339),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		n.logger.WarnContext(ctx, "alert dropped: notifier shut down", "event", a.Event, "severity", a.Severity)
		return
	}
	select {
	case n.queue <- p:
	default:
		n.logger.ErrorContext(ctx, "alert queue full, dropping alert", "event", a.Event)
	}
}

func (n *WebhookNotifier) deliver(ctx context.Context, p payload) {
	if err := n.post(ctx, p); err != nil {
		n.logger.Error("alert webhook delivery failed", "event", p.Event, "error", err)
	}
}

func (n *WebhookNotifier) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}
