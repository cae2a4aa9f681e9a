package core

import (
	"context"
	"time"

	"github.com/holiman/uint256"
)

// EndAuction finalizes the auction once the reveal window has closed: the highest bid is
// paid to the beneficiary and the auction-ended record is emitted.
//
// Returns false without side effects before the reveal deadline and on every call after
// the first successful one, so the beneficiary is paid exactly once. A failed payout
// returns the error and leaves the auction open for another attempt.
func (a *Auction) EndAuction(ctx context.Context) (bool, error) {
	now := a.clock.Now()
	if now.Before(a.config.RevealEnd) {
		return false, nil
	}
	if a.ended {
		return false, nil
	}

	amount := a.highest.Amount
	if !amount.IsZero() {
		if err := a.pay(ctx, a.config.Beneficiary, &amount, PayoutSettlement); err != nil {
			return false, err
		}
	}
	a.ended = true

	a.events.AuctionEnded(ctx, a.settlementRecord(now))
	return true, nil
}

func (a *Auction) settlementRecord(now time.Time) AuctionEnded {
	record := AuctionEnded{
		Amount:      a.highest.Amount,
		Beneficiary: a.config.Beneficiary,
		EndedAt:     now,
	}
	if !a.highest.Amount.IsZero() {
		winner := a.highest.Bidder
		record.Winner = &winner
	}
	return record
}

// Winner returns the winning account and amount once the auction has ended.
// ok is false while the auction is still open or if nobody placed a valid bid.
func (a *Auction) Winner() (winner AccountID, amount uint256.Int, ok bool) {
	if !a.ended || a.highest.Amount.IsZero() {
		return AccountID{}, uint256.Int{}, false
	}
	return a.highest.Bidder, a.highest.Amount, true
}
