package bundle

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"testing"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"sol-bundler-bot/internal/wallet"
)

func newCred(t *testing.T) wallet.Credential {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return wallet.Credential{Address: key.PublicKey().String(), Key: key}
}

func testBlockhash() solana.Hash {
	var h solana.Hash
	copy(h[:], []byte("unit-test-recent-blockhash-01234"))
	return h
}

// templateFor serializes an unsigned transfer from the credential's wallet,
// matching the blobs the builder service hands back.
func templateFor(t *testing.T, from wallet.Credential, to solana.PublicKey) []byte {
	t.Helper()
	ix := system.NewTransferInstruction(1_000, from.PublicKey(), to).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, testBlockhash(), solana.TransactionPayer(from.PublicKey()))
	if err != nil {
		t.Fatalf("build transaction: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatalf("serialize template: %v", err)
	}
	return raw
}

func decodeSigned(t *testing.T, blob string) *solana.Transaction {
	t.Helper()
	raw, err := base58.Decode(blob)
	if err != nil {
		t.Fatalf("decode signed blob: %v", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		t.Fatalf("parse signed transaction: %v", err)
	}
	return tx
}

func verifySignatures(t *testing.T, tx *solana.Transaction) {
	t.Helper()
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		t.Fatalf("serialize message: %v", err)
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		t.Fatalf("got %d signatures, need %d", len(tx.Signatures), required)
	}
	for i := 0; i < required; i++ {
		pub := tx.Message.AccountKeys[i]
		if !ed25519.Verify(ed25519.PublicKey(pub[:]), msg, tx.Signatures[i][:]) {
			t.Fatalf("signature %d does not verify for %s", i, pub)
		}
	}
}

func TestSignBundleRoundTrip(t *testing.T) {
	alice := newCred(t)
	bob := newCred(t)
	signer, err := NewSigner("", 0, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	in := Bundle{Transactions: []string{
		base64.StdEncoding.EncodeToString(templateFor(t, alice, bob.PublicKey())),
		base64.StdEncoding.EncodeToString(templateFor(t, bob, alice.PublicKey())),
	}}
	out, err := signer.SignBundle(in, []wallet.Credential{alice, bob}, false)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}
	if len(out.Transactions) != 2 {
		t.Fatalf("got %d transactions, want 2", len(out.Transactions))
	}
	for _, blob := range out.Transactions {
		verifySignatures(t, decodeSigned(t, blob))
	}
}

func TestSignBundleBase58Template(t *testing.T) {
	alice := newCred(t)
	bob := newCred(t)
	signer, _ := NewSigner("", 0, zap.NewNop())

	in := Bundle{Transactions: []string{base58.Encode(templateFor(t, alice, bob.PublicKey()))}}
	out, err := signer.SignBundle(in, []wallet.Credential{alice}, false)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}
	verifySignatures(t, decodeSigned(t, out.Transactions[0]))
}

func TestSignBundleUnknownSigner(t *testing.T) {
	alice := newCred(t)
	stranger := newCred(t)
	signer, _ := NewSigner("", 0, zap.NewNop())

	in := Bundle{Transactions: []string{base64.StdEncoding.EncodeToString(templateFor(t, alice, stranger.PublicKey()))}}
	if _, err := signer.SignBundle(in, []wallet.Credential{stranger}, false); !errors.Is(err, ErrSigning) {
		t.Fatalf("got %v, want ErrSigning", err)
	}
}

func TestSignBundleBadTemplates(t *testing.T) {
	signer, _ := NewSigner("", 0, zap.NewNop())
	cred := newCred(t)

	cases := []struct {
		name string
		blob string
	}{
		{"not an encoding", "!!!!"},
		{"base64 garbage", base64.StdEncoding.EncodeToString([]byte("not a transaction"))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := Bundle{Transactions: []string{tc.blob}}
			if _, err := signer.SignBundle(in, []wallet.Credential{cred}, false); !errors.Is(err, ErrSigning) {
				t.Fatalf("got %v, want ErrSigning", err)
			}
		})
	}
}

func TestSignBundleEmptyInput(t *testing.T) {
	signer, _ := NewSigner("", 0, zap.NewNop())
	cred := newCred(t)

	if _, err := signer.SignBundle(Bundle{}, []wallet.Credential{cred}, false); !errors.Is(err, ErrSigning) {
		t.Fatalf("empty bundle: got %v, want ErrSigning", err)
	}
	in := Bundle{Transactions: []string{base64.StdEncoding.EncodeToString(templateFor(t, cred, cred.PublicKey()))}}
	if _, err := signer.SignBundle(in, nil, false); !errors.Is(err, ErrSigning) {
		t.Fatalf("no credentials: got %v, want ErrSigning", err)
	}
}

func TestSignBundleFeeInjection(t *testing.T) {
	alice := newCred(t)
	bob := newCred(t)
	collector := newCred(t)
	signer, err := NewSigner(collector.Address, 30_000_000, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	in := Bundle{Transactions: []string{base64.StdEncoding.EncodeToString(templateFor(t, alice, bob.PublicKey()))}}
	out, err := signer.SignBundle(in, []wallet.Credential{alice, bob}, true)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}
	if len(out.Transactions) != 2 {
		t.Fatalf("got %d transactions, want side-payment plus original", len(out.Transactions))
	}

	feeTx := decodeSigned(t, out.Transactions[0])
	if got := feeTx.Message.AccountKeys[0]; !got.Equals(alice.PublicKey()) {
		t.Fatalf("side-payment payer = %s, want primary wallet %s", got, alice.Address)
	}
	if feeTx.Message.RecentBlockhash != testBlockhash() {
		t.Fatal("side-payment does not reuse the bundle blockhash")
	}
	verifySignatures(t, feeTx)
	verifySignatures(t, decodeSigned(t, out.Transactions[1]))
}

func TestSignBundleNoCollectorNoInjection(t *testing.T) {
	alice := newCred(t)
	signer, _ := NewSigner("", 30_000_000, zap.NewNop())

	in := Bundle{Transactions: []string{base64.StdEncoding.EncodeToString(templateFor(t, alice, alice.PublicKey()))}}
	out, err := signer.SignBundle(in, []wallet.Credential{alice}, true)
	if err != nil {
		t.Fatalf("SignBundle: %v", err)
	}
	if len(out.Transactions) != 1 {
		t.Fatalf("got %d transactions, want 1", len(out.Transactions))
	}
}

func TestNewSignerBadCollector(t *testing.T) {
	if _, err := NewSigner("not-an-address", 1, zap.NewNop()); err == nil {
		t.Fatal("expected error for malformed collector address")
	}
}
