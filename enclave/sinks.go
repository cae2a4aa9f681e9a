package main

import (
	"context"
	"log"

	"github.com/holiman/uint256"

	"github.com/cloudx-io/sealedbid/core"
	"github.com/cloudx-io/sealedbid/store"
)

// pendingOperation collects what the running operation produced until the host commits
// it together with the auction snapshot.
type pendingOperation struct {
	payouts    []store.PayoutInstruction
	settlement *store.Settlement
}

func (p *pendingOperation) reset() {
	p.payouts = nil
	p.settlement = nil
}

// journalPayer turns every payout into an instruction for the payout journal. The
// instruction is only journaled when the operation commits.
type journalPayer struct {
	pending *pendingOperation
	clock   core.Clock
}

func (p *journalPayer) Pay(ctx context.Context, account core.AccountID, amount *uint256.Int, reason core.PayoutReason) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.pending.payouts = append(p.pending.payouts, store.PayoutInstruction{
		Account:  account,
		Amount:   *amount,
		Reason:   reason,
		IssuedAt: p.clock.Now().UTC(),
	})
	return nil
}

// settlementSink builds the settlement record, attaching a settlement attestation when
// an attester is configured. It runs inside EndAuction, so it must not take the host
// lock.
type settlementSink struct {
	host *AuctionHost
}

func (s *settlementSink) AuctionEnded(_ context.Context, event core.AuctionEnded) {
	h := s.host
	settlement := store.NewSettlement(h.auctionID, event)

	winner := "none"
	if event.Winner != nil {
		winner = event.Winner.Hex()
	}
	log.Printf("INFO: Auction %s ended: winner=%s amount=%s beneficiary=%s",
		h.auctionID, winner, event.Amount.Dec(), event.Beneficiary.Hex())

	if h.attester != nil {
		userData := settlementUserData(settlement, h.auction.Config())
		attestation, err := GenerateSettlementAttestation(h.attester, userData)
		if err != nil {
			log.Printf("ERROR: Settlement attestation failed for auction %s: %v", h.auctionID, err)
		} else {
			settlement.Attestation = attestation
		}
	}

	h.pending.settlement = &settlement
}
