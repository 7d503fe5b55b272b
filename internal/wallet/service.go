package wallet

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

// Balance is the per-wallet result of a Check call. Lamports is zero when the
// remote service was unavailable and only local validation ran.
type Balance struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
	Valid    bool   `json:"valid"`
	Local    bool   `json:"-"`
}

// Service queries the external wallet service for balances and key validity,
// falling back to pure local validation when the service is unreachable or
// not configured.
type Service struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

func NewService(baseURL string, timeout time.Duration, log *zap.Logger) *Service {
	return &Service{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

func (s *Service) Check(ctx context.Context, creds []Credential) ([]Balance, error) {
	if s.baseURL == "" {
		return s.localCheck(creds), nil
	}
	balances, err := s.remoteCheck(ctx, creds)
	if err != nil {
		if s.log != nil {
			s.log.Warn("wallet service unavailable, using local validation", zap.Error(err))
		}
		return s.localCheck(creds), nil
	}
	return balances, nil
}

func (s *Service) remoteCheck(ctx context.Context, creds []Credential) ([]Balance, error) {
	payload := struct {
		Addresses []string `json:"addresses"`
	}{Addresses: Addresses(creds)}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/wallets/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	var result struct {
		Balances []Balance `json:"balances"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Balances) == 0 {
		return nil, fmt.Errorf("wallet service returned no balances for %d wallets", len(creds))
	}
	return result.Balances, nil
}

func (s *Service) localCheck(creds []Credential) []Balance {
	balances := make([]Balance, len(creds))
	for i, cred := range creds {
		balances[i] = Balance{
			Address: cred.Address,
			Valid:   ValidateAddress(cred.Address) == nil,
			Local:   true,
		}
	}
	return balances
}
