package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRelaySend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bundles/submit" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var b Bundle
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			t.Errorf("decode bundle: %v", err)
		}
		if len(b.Transactions) != 2 {
			t.Errorf("got %d transactions, want 2", len(b.Transactions))
		}
		json.NewEncoder(w).Encode(RelayAck{Success: true, Result: json.RawMessage(`"bundle-id-1"`)})
	}))
	defer srv.Close()

	client := NewRelayClient(srv.URL, 5*time.Second, zap.NewNop())
	ack, err := client.Send(context.Background(), Bundle{Transactions: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !ack.Success {
		t.Fatal("ack not successful")
	}
	if string(ack.Result) != `"bundle-id-1"` {
		t.Fatalf("result = %s", ack.Result)
	}
}

func TestRelayRejection(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		substr string
	}{
		{"logical failure", http.StatusOK, `{"success":false,"error":"bundle dropped","details":"leader slot missed"}`, "leader slot missed"},
		{"http failure", http.StatusBadGateway, `{"success":false,"error":"upstream down"}`, "upstream down"},
		{"opaque failure", http.StatusInternalServerError, `boom`, "http 500"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			client := NewRelayClient(srv.URL, 5*time.Second, zap.NewNop())
			_, err := client.Send(context.Background(), Bundle{Transactions: []string{"a"}})
			if !errors.Is(err, ErrRelayRejected) {
				t.Fatalf("got %v, want ErrRelayRejected", err)
			}
			if !strings.Contains(err.Error(), tc.substr) {
				t.Fatalf("error %q does not mention %q", err, tc.substr)
			}
		})
	}
}

func TestRelayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewRelayClient(srv.URL, time.Second, zap.NewNop())
	_, err := client.Send(context.Background(), Bundle{Transactions: []string{"a"}})
	if !errors.Is(err, ErrRelayUnreachable) {
		t.Fatalf("got %v, want ErrRelayUnreachable", err)
	}
}

func TestRelayLocalValidation(t *testing.T) {
	client := NewRelayClient("http://localhost:1", time.Second, zap.NewNop())

	if _, err := client.Send(context.Background(), Bundle{}); !errors.Is(err, ErrRelayRejected) {
		t.Fatalf("empty bundle: got %v, want ErrRelayRejected", err)
	}
	over := Bundle{Transactions: makeTxs(MaxTxPerBundle + 1)}
	if _, err := client.Send(context.Background(), over); !errors.Is(err, ErrRelayRejected) {
		t.Fatalf("oversized bundle: got %v, want ErrRelayRejected", err)
	}

	unset := NewRelayClient("", time.Second, zap.NewNop())
	if unset.Configured() {
		t.Fatal("empty endpoint reported as configured")
	}
	if _, err := unset.Send(context.Background(), Bundle{Transactions: []string{"a"}}); !errors.Is(err, ErrRelayUnreachable) {
		t.Fatalf("unset endpoint: got %v, want ErrRelayUnreachable", err)
	}
}
