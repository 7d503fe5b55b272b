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

// PrepareRequest describes a trade intent for a set of wallets. Exactly one
// of AmountSol (buys) or SellPercent (sells) is meaningful; AmountsSol
// optionally carries per-wallet spend overrides.
type PrepareRequest struct {
	WalletAddresses []string  `json:"walletAddresses"`
	TokenAddress    string    `json:"tokenAddress"`
	Protocol        string    `json:"protocol"`
	Side            string    `json:"side"`
	AmountSol       float64   `json:"amountSol,omitempty"`
	SellPercent     float64   `json:"sellPercent,omitempty"`
	AmountsSol      []float64 `json:"amountsSol,omitempty"`
	SlippageBps     int       `json:"slippageBps,omitempty"`
	TipLamports     uint64    `json:"tipLamports,omitempty"`
}

// BuilderClient requests unsigned transaction templates from the remote
// bundle builder service.
type BuilderClient struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewBuilderClient(baseURL string, timeout time.Duration, log *zap.Logger) *BuilderClient {
	return &BuilderClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (c *BuilderClient) Prepare(ctx context.Context, req PrepareRequest) ([]Bundle, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: builder endpoint not configured", ErrUpstreamUnavailable)
	}
	if len(req.WalletAddresses) == 0 {
		return nil, fmt.Errorf("%w: wallet address list is empty", ErrUpstreamRejected)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bundles/build", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: http %d: %s", ErrUpstreamRejected, resp.StatusCode, builderMessage(payload))
	}
	bundles, err := decodeBundles(payload)
	if err != nil {
		return nil, err
	}
	if c.log != nil {
		c.log.Debug("builder returned bundles",
			zap.Int("bundles", len(bundles)),
			zap.Int("transactions", TxCount(bundles)),
		)
	}
	return bundles, nil
}

// builderMessage extracts the builder's own error message when it reports a
// logical failure, falling back to the raw body.
func builderMessage(payload []byte) string {
	var failure struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &failure); err == nil {
		if failure.Error != "" {
			return failure.Error
		}
		if failure.Message != "" {
			return failure.Message
		}
	}
	return strings.TrimSpace(string(payload))
}

// decodeBundles normalizes the builder's historical response shapes into a
// bundle list. Accepted shapes, tried in order:
//
//	{"bundles": [{"transactions": [...]}, ...]}
//	{"transactions": [...]}
//	{"data": {"transactions": [...]}}
//	["tx", ...] or [{"transactions": [...]}, ...]
func decodeBundles(payload []byte) ([]Bundle, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformedResponse)
	}

	if trimmed[0] == '[' {
		return decodeBareArray(trimmed)
	}

	var wrapped struct {
		Bundles      []Bundle `json:"bundles"`
		Transactions []string `json:"transactions"`
		Data         *struct {
			Transactions []string `json:"transactions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	switch {
	case len(wrapped.Bundles) > 0:
		return wrapped.Bundles, nil
	case len(wrapped.Transactions) > 0:
		return []Bundle{{Transactions: wrapped.Transactions}}, nil
	case wrapped.Data != nil && len(wrapped.Data.Transactions) > 0:
		return []Bundle{{Transactions: wrapped.Data.Transactions}}, nil
	}
	return nil, fmt.Errorf("%w: no transactions in body", ErrMalformedResponse)
}

func decodeBareArray(trimmed []byte) ([]Bundle, error) {
	var txs []string
	if err := json.Unmarshal(trimmed, &txs); err == nil {
		if len(txs) == 0 {
			return nil, fmt.Errorf("%w: empty transaction array", ErrMalformedResponse)
		}
		return []Bundle{{Transactions: txs}}, nil
	}
	var bundles []Bundle
	if err := json.Unmarshal(trimmed, &bundles); err == nil && len(bundles) > 0 && TxCount(bundles) > 0 {
		return bundles, nil
	}
	return nil, fmt.Errorf("%w: unsupported array shape", ErrMalformedResponse)
}
