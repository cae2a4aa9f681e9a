package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// Config holds the immutable parameters of one auction.
type Config struct {
	Beneficiary AccountID
	BiddingEnd  time.Time
	RevealEnd   time.Time
}

// NewConfig derives absolute deadlines from a start time: bidding closes biddingTime
// after start and the reveal window closes revealTime after that.
func NewConfig(beneficiary AccountID, start time.Time, biddingTime, revealTime time.Duration) Config {
	biddingEnd := start.Add(biddingTime)
	return Config{
		Beneficiary: beneficiary,
		BiddingEnd:  biddingEnd,
		RevealEnd:   biddingEnd.Add(revealTime),
	}
}

// Validate checks the deadline ordering invariant.
func (c Config) Validate() error {
	if !c.BiddingEnd.Before(c.RevealEnd) {
		return fmt.Errorf("%w: bidding end %s must precede reveal end %s",
			ErrInvalidConfig, c.BiddingEnd.Format(time.RFC3339Nano), c.RevealEnd.Format(time.RFC3339Nano))
	}
	return nil
}

// Accounting is the running value flow of an auction. At every point between operations:
//
//	Deposits == Paid + Forfeited + refund balances + unrevealed deposits + live highest bid
//
// where the live highest bid drops to zero once the auction has ended and paid out.
type Accounting struct {
	Deposits  uint256.Int
	Paid      uint256.Int
	Forfeited uint256.Int
}

// Auction is the sealed-bid auction state machine. It is not safe for concurrent use:
// the host must deliver operations one at a time.
type Auction struct {
	config  Config
	clock   Clock
	payer   Payer
	events  EventSink
	bids    *BidLedger
	refunds *RefundLedger
	highest HighestBid
	ended   bool
	totals  Accounting
}

type noopEventSink struct{}

func (noopEventSink) AuctionEnded(context.Context, AuctionEnded) {}

// NewAuction creates an auction in the bidding phase. A nil clock uses the wall clock and
// a nil event sink drops the auction-ended record. The payer is required.
func NewAuction(config Config, clock Clock, payer Payer, events EventSink) (*Auction, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if payer == nil {
		return nil, fmt.Errorf("%w: payer is nil", ErrInvalidConfig)
	}
	if clock == nil {
		clock = SystemClock
	}
	if events == nil {
		events = noopEventSink{}
	}
	return &Auction{
		config:  config,
		clock:   clock,
		payer:   payer,
		events:  events,
		bids:    NewBidLedger(),
		refunds: NewRefundLedger(),
	}, nil
}

// Config returns the auction parameters.
func (a *Auction) Config() Config { return a.config }

// HighestBid returns the current leading bid.
func (a *Auction) HighestBid() HighestBid { return a.highest }

// Ended reports whether EndAuction has completed.
func (a *Auction) Ended() bool { return a.ended }

// Accounting returns the running value totals.
func (a *Auction) Accounting() Accounting { return a.totals }

// PendingReturn returns the amount the account can withdraw.
func (a *Auction) PendingReturn(account AccountID) uint256.Int {
	return a.refunds.Balance(account)
}

// BidCount returns how many sealed bids the account has placed.
func (a *Auction) BidCount(account AccountID) int {
	count, _ := a.bids.Count(account)
	return count
}

// Bids exposes the bid ledger for read access.
func (a *Auction) Bids() *BidLedger { return a.bids }

// Refunds exposes the refund ledger for read access.
func (a *Auction) Refunds() *RefundLedger { return a.refunds }

// Phase returns the phase at the current clock reading.
func (a *Auction) Phase() Phase {
	return a.phaseAt(a.clock.Now())
}

func (a *Auction) phaseAt(now time.Time) Phase {
	switch {
	case a.ended:
		return PhaseEnded
	case now.Before(a.config.BiddingEnd):
		return PhaseBidding
	case !now.After(a.config.BiddingEnd):
		return PhaseBiddingClosed
	case now.Before(a.config.RevealEnd):
		return PhaseRevealing
	default:
		return PhaseAwaitingEnd
	}
}

// Bid records a sealed bid with its deposit. Returns false, without touching state, if
// bidding has closed, the account already holds MaxBids bids, or the commitment is the
// empty hash (which could never be revealed).
func (a *Auction) Bid(_ context.Context, bidder AccountID, commitment Commitment, deposit *uint256.Int) (bool, error) {
	now := a.clock.Now()
	if !now.Before(a.config.BiddingEnd) {
		return false, nil
	}
	if commitment == EmptyCommitment {
		return false, nil
	}

	var deposits uint256.Int
	if _, overflow := deposits.AddOverflow(&a.totals.Deposits, deposit); overflow {
		return false, fmt.Errorf("%w: total deposits", ErrAmountOverflow)
	}
	if _, err := a.bids.Place(bidder, commitment, deposit); err != nil {
		if errors.Is(err, ErrLedgerFull) {
			return false, nil
		}
		return false, err
	}
	a.totals.Deposits = deposits
	return true, nil
}

// Reveal opens the bidder's sealed bids. declaredCount must equal the number of bids the
// bidder placed and openings must cover at least that many slots, otherwise false is
// returned with no state change. The same applies outside the reveal window, which is
// open at both ends: bidding end < now < reveal end.
//
// For each slot, an opening that reproduces the stored commitment earns back the slot's
// deposit, less the value of a genuine bid that becomes the new highest bid. An opening
// that does not match forfeits the deposit. Every slot processed is consumed either way.
// The accumulated refund is paid before Reveal returns; a failed payout aborts the whole
// call and rolls back every change it made.
func (a *Auction) Reveal(ctx context.Context, bidder AccountID, declaredCount int, openings []Opening) (bool, error) {
	now := a.clock.Now()
	if !now.After(a.config.BiddingEnd) || !now.Before(a.config.RevealEnd) {
		return false, nil
	}
	count, ok := a.bids.Count(bidder)
	if !ok || declaredCount != count || declaredCount > MaxBids || len(openings) < declaredCount {
		return false, nil
	}

	var j journal
	savedTotals := a.totals
	abort := func(err error) (bool, error) {
		j.revert()
		a.totals = savedTotals
		return false, err
	}

	refund := new(uint256.Int)
	for i := 0; i < declaredCount; i++ {
		slot, _ := a.bids.SlotAt(bidder, i)
		if slot.Revealed() {
			continue
		}
		opening := &openings[i]

		if VerifyCommitment(slot.Commitment, &opening.Value, opening.Fake, opening.Secret) {
			if _, overflow := refund.AddOverflow(refund, &slot.Deposit); overflow {
				return abort(fmt.Errorf("%w: reveal refund for %s", ErrAmountOverflow, bidder.Hex()))
			}
			if !opening.Fake && slot.Deposit.Cmp(&opening.Value) >= 0 {
				placed, err := a.placeBid(&j, bidder, &opening.Value)
				if err != nil {
					return abort(err)
				}
				if placed {
					refund.Sub(refund, &opening.Value)
				}
			}
		} else {
			if _, overflow := a.totals.Forfeited.AddOverflow(&a.totals.Forfeited, &slot.Deposit); overflow {
				return abort(fmt.Errorf("%w: forfeited deposits", ErrAmountOverflow))
			}
		}

		index := i
		prev := a.bids.Consume(bidder, index)
		j.append(func() { a.bids.restore(bidder, index, prev) })
	}

	if !refund.IsZero() {
		if err := a.pay(ctx, bidder, refund, PayoutRevealRefund); err != nil {
			return abort(err)
		}
	}
	return true, nil
}

// placeBid makes value the highest bid if it strictly exceeds the current one, crediting
// the displaced bidder with the amount they had locked. Ties keep the incumbent.
func (a *Auction) placeBid(j *journal, bidder AccountID, value *uint256.Int) (bool, error) {
	if value.Cmp(&a.highest.Amount) <= 0 {
		return false, nil
	}

	prevHighest := a.highest
	if !prevHighest.Amount.IsZero() {
		prevBalance := a.refunds.Balance(prevHighest.Bidder)
		if err := a.refunds.Credit(prevHighest.Bidder, &prevHighest.Amount); err != nil {
			return false, err
		}
		j.append(func() { a.refunds.set(prevHighest.Bidder, prevBalance) })
	}

	a.highest = HighestBid{Bidder: bidder, Amount: *value}
	j.append(func() { a.highest = prevHighest })
	return true, nil
}

// Withdraw pays out the account's pending refund balance and returns the amount paid.
// An empty balance is a no-op. The balance is cleared only after the payout succeeds, so
// a failed payout leaves it in place for a later retry.
func (a *Auction) Withdraw(ctx context.Context, account AccountID) (uint256.Int, error) {
	balance := a.refunds.Balance(account)
	if balance.IsZero() {
		return uint256.Int{}, nil
	}
	if err := a.pay(ctx, account, &balance, PayoutWithdrawal); err != nil {
		return uint256.Int{}, err
	}
	a.refunds.Take(account)
	return balance, nil
}

func (a *Auction) pay(ctx context.Context, account AccountID, amount *uint256.Int, reason PayoutReason) error {
	var paid uint256.Int
	if _, overflow := paid.AddOverflow(&a.totals.Paid, amount); overflow {
		return fmt.Errorf("%w: total paid", ErrAmountOverflow)
	}
	if err := a.payer.Pay(ctx, account, amount, reason); err != nil {
		return fmt.Errorf("%w: %s of %s to %s: %w", ErrPayoutFailed, reason, amount.Dec(), account.Hex(), err)
	}
	a.totals.Paid = paid
	return nil
}

// journal collects undo steps for the mutations of a single operation.
type journal []func()

func (j *journal) append(undo func()) {
	*j = append(*j, undo)
}

func (j *journal) revert() {
	for i := len(*j) - 1; i >= 0; i-- {
		(*j)[i]()
	}
	*j = nil
}
