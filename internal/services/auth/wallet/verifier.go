package wallet

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	apperrors "github.com/campfirelabs/campfire/internal/platform/errors"
)

// NonceConsumer validates and consumes single-use nonces.
type NonceConsumer interface {
	CheckAndConsume(ctx context.Context, value string, ownerAddress string, messageExpiry *time.Time) error
}

// Verifier checks signed authentication messages against claimed addresses.
type Verifier struct {
	nonces NonceConsumer
	now    func() time.Time
}

// NewVerifier creates a verifier that consumes nonces through the ledger.
func NewVerifier(nonces NonceConsumer) *Verifier {
	return &Verifier{nonces: nonces, now: time.Now}
}

// Verify checks a signed message and returns the canonical identity.
//
// Order matters: the embedded address and expiry are validated before the
// nonce is consumed, and the nonce is consumed before the signature is
// checked. A consumed nonce stays consumed even when the signature turns
// out to be invalid.
func (v *Verifier) Verify(ctx context.Context, body string, signature string, claimedAddress string) (string, error) {
	if v == nil || v.nonces == nil {
		return "", apperrors.New(apperrors.CodeInternal, "verifier is not configured")
	}

	claimed := strings.TrimSpace(claimedAddress)
	if !common.IsHexAddress(claimed) {
		return "", apperrors.New(apperrors.CodeAuthAddressInvalid, "address is not a valid hex address")
	}

	msg := ParseMessage(body)
	if msg.Address == "" || !strings.EqualFold(msg.Address, claimed) {
		// A message signed for one identity must not be presentable as
		// another's.
		return "", apperrors.New(apperrors.CodeAuthAddressMismatch, "message address does not match the claimed address")
	}

	if msg.Expiration != nil && msg.Expiration.Before(v.now().UTC()) {
		return "", apperrors.New(apperrors.CodeAuthMessageExpired, "signed message has expired")
	}

	if msg.Nonce == "" {
		return "", apperrors.New(apperrors.CodeAuthNonceMissing, "signed message does not carry a nonce")
	}
	identity := strings.ToLower(claimed)
	if err := v.nonces.CheckAndConsume(ctx, msg.Nonce, identity, msg.Expiration); err != nil {
		return "", err
	}

	if err := verifySignature(body, signature, claimed); err != nil {
		return "", err
	}
	return identity, nil
}

// verifySignature recovers the signing key from an EIP-191 personal-sign
// signature and compares the derived address to the claimed one.
func verifySignature(body string, signature string, claimedAddress string) error {
	sig, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "0x"))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAuthSignatureInvalid, "signature is not valid hex", err)
	}
	if len(sig) != crypto.SignatureLength {
		return apperrors.New(apperrors.CodeAuthSignatureInvalid, "signature has an invalid length")
	}

	// Wallets emit V as 27/28; recovery expects 0/1.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	digest := accounts.TextHash([]byte(body))
	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeAuthSignatureInvalid, "signature does not verify", err)
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	if !strings.EqualFold(recovered.Hex(), claimedAddress) {
		return apperrors.New(apperrors.CodeAuthSignatureInvalid, "signature does not verify")
	}
	return nil
}
