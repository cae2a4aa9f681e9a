package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/assert"
)

var (
	alice       = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol       = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	beneficiary = common.HexToAddress("0x000000000000000000000000000000000000be4e")

	auctionStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

const (
	testBiddingTime = time.Hour
	testRevealTime  = time.Hour
)

// fakeClock is a settable clock for phase tests.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Set(t time.Time) { c.now = t }

type payout struct {
	Account AccountID
	Amount  uint256.Int
	Reason  PayoutReason
}

// recordingPayer records every payout and can be told to fail.
type recordingPayer struct {
	payouts []payout
	failErr error
}

func (p *recordingPayer) Pay(_ context.Context, account AccountID, amount *uint256.Int, reason PayoutReason) error {
	if p.failErr != nil {
		return p.failErr
	}
	p.payouts = append(p.payouts, payout{Account: account, Amount: *amount, Reason: reason})
	return nil
}

func (p *recordingPayer) total() uint256.Int {
	var total uint256.Int
	for _, po := range p.payouts {
		total.Add(&total, &po.Amount)
	}
	return total
}

func (p *recordingPayer) paidTo(account AccountID) uint256.Int {
	var total uint256.Int
	for _, po := range p.payouts {
		if po.Account == account {
			total.Add(&total, &po.Amount)
		}
	}
	return total
}

type recordingEvents struct {
	ended []AuctionEnded
}

func (e *recordingEvents) AuctionEnded(_ context.Context, event AuctionEnded) {
	e.ended = append(e.ended, event)
}

var errSinkDown = errors.New("sink down")

type auctionFixture struct {
	auction *Auction
	clock   *fakeClock
	payer   *recordingPayer
	events  *recordingEvents
}

func newFixture(t *testing.T) *auctionFixture {
	t.Helper()
	f := &auctionFixture{
		clock:  &fakeClock{now: auctionStart},
		payer:  &recordingPayer{},
		events: &recordingEvents{},
	}
	auction, err := NewAuction(NewConfig(beneficiary, auctionStart, testBiddingTime, testRevealTime), f.clock, f.payer, f.events)
	assert.NoError(t, err)
	f.auction = auction
	return f
}

func (f *auctionFixture) duringBidding() { f.clock.Set(auctionStart.Add(testBiddingTime / 2)) }

func (f *auctionFixture) duringReveal() {
	f.clock.Set(auctionStart.Add(testBiddingTime + testRevealTime/2))
}

func (f *auctionFixture) afterReveal() {
	f.clock.Set(auctionStart.Add(testBiddingTime + testRevealTime + time.Second))
}

func amt(v uint64) *uint256.Int { return uint256.NewInt(v) }

func secret(b byte) Secret {
	var s Secret
	for i := range s {
		s[i] = b
	}
	return s
}

// sealBid places a bid and returns its opening.
func (f *auctionFixture) sealBid(t *testing.T, bidder AccountID, value, deposit uint64, fake bool, salt byte) Opening {
	t.Helper()
	opening := Opening{Value: *amt(value), Fake: fake, Secret: secret(salt)}
	ok, err := f.auction.Bid(context.Background(), bidder, ComputeCommitment(&opening.Value, fake, opening.Secret), amt(deposit))
	assert.NoError(t, err)
	assert.True(t, ok)
	return opening
}

// checkConservation asserts that no value was created or lost.
func (f *auctionFixture) checkConservation(t *testing.T) {
	t.Helper()
	totals := f.auction.Accounting()

	refunds, err := f.auction.Refunds().Total()
	assert.NoError(t, err)
	outstanding, err := f.auction.Bids().OutstandingDeposits()
	assert.NoError(t, err)

	var held uint256.Int
	held.Add(&totals.Paid, &totals.Forfeited)
	held.Add(&held, refunds)
	held.Add(&held, outstanding)
	if !f.auction.Ended() {
		live := f.auction.HighestBid().Amount
		held.Add(&held, &live)
	}

	paid := f.payer.total()
	assert.Equal(t, paid, totals.Paid)
	assert.Equal(t, totals.Deposits, held)
}

func isZero(v uint256.Int) bool { return v.IsZero() }
