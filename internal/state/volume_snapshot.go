package state

import (
	"context"
	"encoding/json"
	"strings"
)

const VolumeSnapshotKey = "volume:last_session"

// VolumeSnapshot is the persisted tail of the most recent volume session, so
// lifetime numbers survive restarts.
type VolumeSnapshot struct {
	SessionID    string  `json:"session_id"`
	TokenAddress string  `json:"token_address"`
	Trades       int     `json:"trades"`
	Successes    int     `json:"successes"`
	Buys         int     `json:"buys"`
	Sells        int     `json:"sells"`
	Failures     int     `json:"failures"`
	VolumeSol    float64 `json:"volume_sol"`
	StartedAtMS  int64   `json:"started_at_ms"`
	UpdatedAtMS  int64   `json:"updated_at_ms"`
}

func LoadVolumeSnapshot(ctx context.Context, store Store) (VolumeSnapshot, bool, error) {
	if store == nil {
		return VolumeSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, VolumeSnapshotKey)
	if err != nil {
		return VolumeSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return VolumeSnapshot{}, false, nil
	}
	var snapshot VolumeSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return VolumeSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveVolumeSnapshot(ctx context.Context, store Store, snapshot VolumeSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, VolumeSnapshotKey, string(payload))
}
