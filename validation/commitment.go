package validation

import (
	"fmt"

	"github.com/cloudx-io/sealedbid/auctionapi"
	"github.com/cloudx-io/sealedbid/core"
)

// CommitmentInput describes one sealed bid as the bidder knows it.
type CommitmentInput struct {
	Value    string // decimal amount
	Decimals int32
	Fake     bool
	Secret   string // 0x-prefixed 32-byte hex
}

// ComputeBidCommitment returns the commitment a bidder submits for input.
func ComputeBidCommitment(input CommitmentInput) (core.Commitment, error) {
	value, err := auctionapi.ParseAmount(input.Value, input.Decimals)
	if err != nil {
		return core.Commitment{}, err
	}
	secret, err := core.ParseSecret(input.Secret)
	if err != nil {
		return core.Commitment{}, fmt.Errorf("invalid secret: %w", err)
	}
	return core.ComputeCommitment(value, input.Fake, secret), nil
}

// VerifyBidCommitment reports whether input opens commitment. An empty commitment never
// verifies.
func VerifyBidCommitment(commitment string, input CommitmentInput) (bool, error) {
	stored, err := core.ParseCommitment(commitment)
	if err != nil {
		return false, fmt.Errorf("invalid commitment: %w", err)
	}
	value, err := auctionapi.ParseAmount(input.Value, input.Decimals)
	if err != nil {
		return false, err
	}
	secret, err := core.ParseSecret(input.Secret)
	if err != nil {
		return false, fmt.Errorf("invalid secret: %w", err)
	}
	return core.VerifyCommitment(stored, value, input.Fake, secret), nil
}
