package core

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ComputeCommitment computes the blinded bid a bidder submits during the bidding phase.
// This is used by bidders (to seal a bid) and by the auction (to verify a reveal).
//
// Formula: KECCAK256(word(value) + word(fake) + secret)
//
// Each word is 32 bytes big-endian, with fake encoded as 0 or 1. The layout matches
// keccak256(abi.encode(uint256 value, bool fake, bytes32 secret)) so commitments can be
// produced by any Ethereum tooling.
func ComputeCommitment(value *uint256.Int, fake bool, secret Secret) Commitment {
	valueWord := value.Bytes32()

	var fakeWord [32]byte
	if fake {
		fakeWord[31] = 1
	}

	return crypto.Keccak256Hash(valueWord[:], fakeWord[:], secret[:])
}

// VerifyCommitment recomputes the commitment for (value, fake, secret) and reports
// whether it equals the stored one byte for byte. The empty commitment never verifies.
func VerifyCommitment(stored Commitment, value *uint256.Int, fake bool, secret Secret) bool {
	if stored == EmptyCommitment {
		return false
	}
	return ComputeCommitment(value, fake, secret) == stored
}

// NewSecret returns a fresh random salt for sealing a bid.
func NewSecret() (Secret, error) {
	var secret Secret
	if _, err := rand.Read(secret[:]); err != nil {
		return Secret{}, fmt.Errorf("secret generation failed: %w", err)
	}
	return secret, nil
}

// ParseSecret decodes a 0x-prefixed 32-byte hex secret.
func ParseSecret(s string) (Secret, error) {
	b, err := hexToBytes32(s)
	if err != nil {
		return Secret{}, fmt.Errorf("parse secret: %w", err)
	}
	return Secret(b), nil
}

// ParseCommitment decodes a 0x-prefixed 32-byte hex commitment.
func ParseCommitment(s string) (Commitment, error) {
	b, err := hexToBytes32(s)
	if err != nil {
		return Commitment{}, fmt.Errorf("parse commitment: %w", err)
	}
	return Commitment(b), nil
}

func hexToBytes32(s string) ([32]byte, error) {
	var out [32]byte
	raw, err := hexutil.Decode(s)
	if err != nil {
		return out, err
	}
	if len(raw) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}
