package bundle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RelayAck is the relay service's acknowledgement for one submitted bundle.
type RelayAck struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details string          `json:"details,omitempty"`
}

// RelayClient submits finalized bundles to the downstream relay. Rate
// limiting is the caller's responsibility.
type RelayClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewRelayClient(baseURL string, timeout time.Duration, log *zap.Logger) *RelayClient {
	return &RelayClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// Configured reports whether a relay endpoint is set.
func (c *RelayClient) Configured() bool {
	return c.baseURL != ""
}

func (c *RelayClient) Send(ctx context.Context, b Bundle) (RelayAck, error) {
	if c.baseURL == "" {
		return RelayAck{}, fmt.Errorf("%w: relay endpoint not configured", ErrRelayUnreachable)
	}
	if len(b.Transactions) == 0 {
		return RelayAck{}, fmt.Errorf("%w: bundle is empty", ErrRelayRejected)
	}
	if len(b.Transactions) > MaxTxPerBundle {
		return RelayAck{}, fmt.Errorf("%w: bundle holds %d transactions, cap is %d", ErrRelayRejected, len(b.Transactions), MaxTxPerBundle)
	}
	body, err := json.Marshal(b)
	if err != nil {
		return RelayAck{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bundles/submit", bytes.NewReader(body))
	if err != nil {
		return RelayAck{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return RelayAck{}, fmt.Errorf("%w: %v", ErrRelayUnreachable, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return RelayAck{}, fmt.Errorf("%w: %v", ErrRelayUnreachable, err)
	}
	var ack RelayAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return RelayAck{}, fmt.Errorf("%w: http %d: %s", ErrRelayRejected, resp.StatusCode, strings.TrimSpace(string(payload)))
		}
		return RelayAck{}, fmt.Errorf("%w: %v", ErrRelayRejected, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !ack.Success {
		msg := ack.Error
		if ack.Details != "" {
			msg = msg + ": " + ack.Details
		}
		if msg == "" {
			msg = fmt.Sprintf("http %d", resp.StatusCode)
		}
		return ack, fmt.Errorf("%w: %s", ErrRelayRejected, msg)
	}
	if c.log != nil {
		c.log.Debug("bundle relayed", zap.Int("transactions", len(b.Transactions)))
	}
	return ack, nil
}
