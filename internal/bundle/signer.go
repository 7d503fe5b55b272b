package bundle

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"sol-bundler-bot/internal/wallet"
)

// Signer completes partially signed transaction templates with the owning
// wallets' ed25519 signatures. When configured with a fee collector it can
// prepend a fixed side-payment transfer to a signed bundle.
type Signer struct {
	feeCollector solana.PublicKey
	feeLamports  uint64
	log          *zap.Logger
}

func NewSigner(feeCollector string, feeLamports uint64, log *zap.Logger) (*Signer, error) {
	s := &Signer{feeLamports: feeLamports, log: log}
	if feeCollector != "" {
		pk, err := solana.PublicKeyFromBase58(feeCollector)
		if err != nil {
			return nil, fmt.Errorf("fee collector address: %w", err)
		}
		s.feeCollector = pk
	}
	return s, nil
}

// SignBundle signs every template in the bundle with the matching
// credentials and re-serializes the results base58-encoded. A single failing
// template aborts this bundle (sibling bundles are unaffected). When
// injectFee is set the side-payment is prepended best-effort: its failure is
// logged, never propagated.
func (s *Signer) SignBundle(b Bundle, creds []wallet.Credential, injectFee bool) (Bundle, error) {
	if len(b.Transactions) == 0 {
		return Bundle{}, fmt.Errorf("%w: bundle holds no templates", ErrSigning)
	}
	if len(creds) == 0 {
		return Bundle{}, fmt.Errorf("%w: no credentials supplied", ErrSigning)
	}
	keys := make(map[solana.PublicKey]solana.PrivateKey, len(creds))
	for _, cred := range creds {
		keys[cred.PublicKey()] = cred.Key
	}

	signed := make([]string, 0, len(b.Transactions)+1)
	var feeBlockhash solana.Hash
	haveBlockhash := false
	for i, blob := range b.Transactions {
		raw, err := decodeBlob(blob)
		if err != nil {
			return Bundle{}, fmt.Errorf("%w: template %d: %v", ErrSigning, i, err)
		}
		tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
		if err != nil {
			return Bundle{}, fmt.Errorf("%w: template %d: %v", ErrSigning, i, err)
		}
		if !haveBlockhash {
			feeBlockhash = tx.Message.RecentBlockhash
			haveBlockhash = true
		}
		if err := signTransaction(tx, keys); err != nil {
			return Bundle{}, fmt.Errorf("%w: template %d: %v", ErrSigning, i, err)
		}
		out, err := tx.MarshalBinary()
		if err != nil {
			return Bundle{}, fmt.Errorf("%w: template %d: %v", ErrSigning, i, err)
		}
		signed = append(signed, base58.Encode(out))
	}

	if injectFee && s.feeLamports > 0 && !s.feeCollector.IsZero() && haveBlockhash {
		feeTx, err := s.feeTransfer(creds[0], feeBlockhash)
		if err != nil {
			if s.log != nil {
				s.log.Warn("side-payment injection failed", zap.Error(err))
			}
		} else {
			signed = append([]string{feeTx}, signed...)
		}
	}
	return Bundle{Transactions: signed}, nil
}

// decodeBlob decodes a template blob, trying base64 first and falling back
// to base58.
func decodeBlob(blob string) ([]byte, error) {
	if raw, err := base64.StdEncoding.DecodeString(blob); err == nil {
		return raw, nil
	}
	raw, err := base58.Decode(blob)
	if err != nil {
		return nil, errors.New("blob is neither base64 nor base58")
	}
	return raw, nil
}

// signTransaction fills the signature slots of the message's required-signer
// region for every key we own. Each credential signs at most once; unknown
// signer slots are left untouched for upstream partial signatures.
func signTransaction(tx *solana.Transaction, keys map[solana.PublicKey]solana.PrivateKey) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	numRequired := int(tx.Message.Header.NumRequiredSignatures)
	if numRequired == 0 {
		return errors.New("message declares no required signers")
	}
	if numRequired > len(tx.Message.AccountKeys) {
		return fmt.Errorf("message declares %d signers but lists %d accounts", numRequired, len(tx.Message.AccountKeys))
	}
	if len(tx.Signatures) < numRequired {
		sigs := make([]solana.Signature, numRequired)
		copy(sigs, tx.Signatures)
		tx.Signatures = sigs
	}
	seen := make(map[solana.PublicKey]struct{}, numRequired)
	matched := 0
	for i := 0; i < numRequired; i++ {
		account := tx.Message.AccountKeys[i]
		priv, ok := keys[account]
		if !ok {
			continue
		}
		if _, dup := seen[account]; dup {
			continue
		}
		seen[account] = struct{}{}
		sig, err := priv.Sign(msg)
		if err != nil {
			return err
		}
		tx.Signatures[i] = sig
		matched++
	}
	if matched == 0 {
		return errors.New("no owned credential matches the required signers")
	}
	return nil
}

// feeTransfer builds a fully signed system transfer of the fixed fee from
// the primary wallet to the collector, reusing the bundle's blockhash.
func (s *Signer) feeTransfer(primary wallet.Credential, blockhash solana.Hash) (string, error) {
	from := primary.PublicKey()
	ix := system.NewTransferInstruction(s.feeLamports, from, s.feeCollector).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(from))
	if err != nil {
		return "", err
	}
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", err
	}
	sig, err := primary.Key.Sign(msg)
	if err != nil {
		return "", err
	}
	tx.Signatures = []solana.Signature{sig}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}
