package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestServiceRemoteCheck(t *testing.T) {
	key := testKey(t)
	addr := key.PublicKey().String()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wallets/check" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Addresses []string `json:"addresses"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Addresses) != 1 || req.Addresses[0] != addr {
			t.Errorf("unexpected addresses: %v", req.Addresses)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"balances": []Balance{{Address: addr, Lamports: 1_500_000_000, Valid: true}},
		})
	}))
	defer server.Close()

	svc := NewService(server.URL, time.Second, zap.NewNop())
	balances, err := svc.Check(context.Background(), []Credential{{Address: addr, Key: key}})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(balances) != 1 || balances[0].Lamports != 1_500_000_000 || !balances[0].Valid {
		t.Fatalf("unexpected balances: %+v", balances)
	}
	if balances[0].Local {
		t.Fatalf("expected remote result")
	}
}

func TestServiceFallsBackToLocal(t *testing.T) {
	key := testKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	server.Close() // force a transport failure

	svc := NewService(server.URL, time.Second, zap.NewNop())
	balances, err := svc.Check(context.Background(), []Credential{{Address: key.PublicKey().String(), Key: key}})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(balances) != 1 || !balances[0].Valid || !balances[0].Local {
		t.Fatalf("expected valid local fallback, got %+v", balances)
	}
	if balances[0].Lamports != 0 {
		t.Fatalf("expected zero balance in local mode, got %d", balances[0].Lamports)
	}
}

func TestServiceUnconfiguredUsesLocal(t *testing.T) {
	key := testKey(t)
	svc := NewService("", time.Second, zap.NewNop())
	balances, err := svc.Check(context.Background(), []Credential{{Address: key.PublicKey().String(), Key: key}})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(balances) != 1 || !balances[0].Local {
		t.Fatalf("expected local validation, got %+v", balances)
	}
}
