package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"filippo.io/edwards25519"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Credential pairs a wallet address with its signing key. Credentials are
// owned by the caller; nothing in this package persists them.
type Credential struct {
	Address string
	Key     solana.PrivateKey
}

func (c Credential) PublicKey() solana.PublicKey {
	return c.Key.PublicKey()
}

func ParseCredential(address, privateKey string) (Credential, error) {
	key, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKey))
	if err != nil {
		return Credential{}, fmt.Errorf("decode private key: %w", err)
	}
	if len(key) != 64 {
		return Credential{}, fmt.Errorf("unexpected private key length %d", len(key))
	}
	derived := key.PublicKey().String()
	address = strings.TrimSpace(address)
	if address == "" {
		address = derived
	}
	if address != derived {
		return Credential{}, fmt.Errorf("wallet address does not match private key: got %s expected %s", address, derived)
	}
	return Credential{Address: address, Key: key}, nil
}

// ValidateAddress checks that an address is a well-formed ed25519 public key
// without contacting any remote service.
func ValidateAddress(address string) error {
	raw, err := base58.Decode(strings.TrimSpace(address))
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("unexpected address length %d", len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return fmt.Errorf("address is not a valid curve point: %w", err)
	}
	return nil
}

type walletFileEntry struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// LoadPool reads the wallet pool from a JSON file holding an array of
// {address, private_key} entries.
func LoadPool(path string) ([]Credential, error) {
	if path == "" {
		return nil, errors.New("wallet file path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entries []walletFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse wallet file: %w", err)
	}
	if len(entries) == 0 {
		return nil, errors.New("wallet file holds no wallets")
	}
	creds := make([]Credential, 0, len(entries))
	for i, entry := range entries {
		cred, err := ParseCredential(entry.Address, entry.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("wallet %d: %w", i, err)
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Addresses projects the pool onto its address list.
func Addresses(creds []Credential) []string {
	out := make([]string, len(creds))
	for i, c := range creds {
		out[i] = c.Address
	}
	return out
}
