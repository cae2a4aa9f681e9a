package core

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// MaxBids is the number of sealed bids a single account may place in one auction.
// It also bounds the number of openings accepted by Reveal.
const MaxBids = 16

// AccountID identifies a bidder or the beneficiary.
type AccountID = common.Address

// Commitment is the 32-byte blinded bid stored at bid time.
type Commitment = common.Hash

// Secret is the 32-byte salt a bidder mixes into a commitment.
type Secret = common.Hash

// EmptyCommitment marks a slot that was never filled or has already been revealed.
var EmptyCommitment = Commitment{}

var (
	// ErrAmountOverflow aborts an operation whose accounting would exceed 256 bits.
	ErrAmountOverflow = errors.New("amount overflow")

	// ErrPayoutFailed wraps a failure reported by the payout sink.
	ErrPayoutFailed = errors.New("payout failed")

	// ErrInvalidConfig is returned by NewAuction for unusable parameters.
	ErrInvalidConfig = errors.New("invalid auction config")

	// ErrLedgerFull is returned by BidLedger.Place once an account holds MaxBids slots.
	ErrLedgerFull = errors.New("bid ledger full")
)

// Clock supplies the current time. It is sampled once per operation.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// PayoutReason tells the payout sink why value is being moved.
type PayoutReason string

const (
	PayoutRevealRefund PayoutReason = "reveal_refund"
	PayoutWithdrawal   PayoutReason = "withdrawal"
	PayoutSettlement   PayoutReason = "settlement"
)

// Payer moves value out of the auction. A returned error aborts the calling operation
// and leaves auction state untouched.
type Payer interface {
	Pay(ctx context.Context, account AccountID, amount *uint256.Int, reason PayoutReason) error
}

// EventSink receives the auction-ended record at finalization.
type EventSink interface {
	AuctionEnded(ctx context.Context, event AuctionEnded)
}

// Opening discloses the contents of one sealed bid during the reveal phase.
type Opening struct {
	Value  uint256.Int
	Fake   bool
	Secret Secret
}

// HighestBid is the current leading revealed bid.
type HighestBid struct {
	Bidder AccountID
	Amount uint256.Int
}

// AuctionEnded is emitted once when the auction is finalized.
// Winner is nil if no bid was ever accepted.
type AuctionEnded struct {
	Winner      *AccountID
	Amount      uint256.Int
	Beneficiary AccountID
	EndedAt     time.Time
}

// Phase is the auction phase derived from the clock and the ended flag. Each phase
// accepts exactly the operations it names: bids while bidding, reveals while revealing,
// EndAuction once awaiting end.
type Phase int

const (
	PhaseBidding Phase = iota
	// PhaseBiddingClosed is the instant now == BiddingEnd, when bids are closed and the
	// open reveal window has not started.
	PhaseBiddingClosed
	PhaseRevealing
	PhaseAwaitingEnd
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseBidding:
		return "bidding"
	case PhaseBiddingClosed:
		return "bidding_closed"
	case PhaseRevealing:
		return "revealing"
	case PhaseAwaitingEnd:
		return "awaiting_end"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}
