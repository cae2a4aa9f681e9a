package core

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
)

// amountWord is a 32-byte big-endian amount as stored in snapshots.
type amountWord [32]byte

func toWord(v *uint256.Int) amountWord { return amountWord(v.Bytes32()) }

func (w amountWord) amount() uint256.Int {
	var v uint256.Int
	v.SetBytes32(w[:])
	return v
}

// SnapshotSlot is the persisted form of a BidSlot.
type SnapshotSlot struct {
	Commitment [32]byte   `cbor:"1,keyasint"`
	Deposit    amountWord `cbor:"2,keyasint"`
}

// SnapshotBidder is the persisted form of a BidderRecord. Only filled slots are stored.
type SnapshotBidder struct {
	Account [20]byte       `cbor:"1,keyasint"`
	Slots   []SnapshotSlot `cbor:"2,keyasint"`
}

// SnapshotRefund is one refund ledger entry.
type SnapshotRefund struct {
	Account [20]byte   `cbor:"1,keyasint"`
	Amount  amountWord `cbor:"2,keyasint"`
}

// Snapshot is the complete persisted state of an auction.
type Snapshot struct {
	Beneficiary   [20]byte         `cbor:"1,keyasint"`
	BiddingEnd    int64            `cbor:"2,keyasint"`
	RevealEnd     int64            `cbor:"3,keyasint"`
	HighestBidder [20]byte         `cbor:"4,keyasint"`
	HighestAmount amountWord       `cbor:"5,keyasint"`
	Ended         bool             `cbor:"6,keyasint"`
	Bidders       []SnapshotBidder `cbor:"7,keyasint"`
	Refunds       []SnapshotRefund `cbor:"8,keyasint"`
	Deposits      amountWord       `cbor:"9,keyasint"`
	Paid          amountWord       `cbor:"10,keyasint"`
	Forfeited     amountWord       `cbor:"11,keyasint"`
}

// Snapshot captures the auction state. Accounts are ordered so equal states encode equally.
func (a *Auction) Snapshot() Snapshot {
	snap := Snapshot{
		Beneficiary:   a.config.Beneficiary,
		BiddingEnd:    a.config.BiddingEnd.UnixNano(),
		RevealEnd:     a.config.RevealEnd.UnixNano(),
		HighestBidder: a.highest.Bidder,
		HighestAmount: toWord(&a.highest.Amount),
		Ended:         a.ended,
		Deposits:      toWord(&a.totals.Deposits),
		Paid:          toWord(&a.totals.Paid),
		Forfeited:     toWord(&a.totals.Forfeited),
	}

	for _, account := range a.bids.Accounts() {
		record, _ := a.bids.Record(account)
		bidder := SnapshotBidder{Account: account, Slots: make([]SnapshotSlot, 0, record.Count)}
		for i := 0; i < record.Count; i++ {
			slot := record.Slots[i]
			bidder.Slots = append(bidder.Slots, SnapshotSlot{
				Commitment: slot.Commitment,
				Deposit:    toWord(&slot.Deposit),
			})
		}
		snap.Bidders = append(snap.Bidders, bidder)
	}

	for _, account := range a.refunds.Accounts() {
		balance := a.refunds.Balance(account)
		snap.Refunds = append(snap.Refunds, SnapshotRefund{Account: account, Amount: toWord(&balance)})
	}
	return snap
}

// RestoreAuction rebuilds an auction from a snapshot.
func RestoreAuction(snap Snapshot, clock Clock, payer Payer, events EventSink) (*Auction, error) {
	config := Config{
		Beneficiary: snap.Beneficiary,
		BiddingEnd:  time.Unix(0, snap.BiddingEnd),
		RevealEnd:   time.Unix(0, snap.RevealEnd),
	}
	auction, err := NewAuction(config, clock, payer, events)
	if err != nil {
		return nil, err
	}

	for _, bidder := range snap.Bidders {
		if len(bidder.Slots) > MaxBids {
			return nil, fmt.Errorf("restore %s: %d slots exceeds max %d", AccountID(bidder.Account).Hex(), len(bidder.Slots), MaxBids)
		}
		var record BidderRecord
		for i, slot := range bidder.Slots {
			record.Slots[i] = BidSlot{Commitment: slot.Commitment, Deposit: slot.Deposit.amount()}
		}
		record.Count = len(bidder.Slots)
		auction.bids.putRecord(bidder.Account, record)
	}
	for _, refund := range snap.Refunds {
		auction.refunds.set(refund.Account, refund.Amount.amount())
	}

	auction.highest = HighestBid{Bidder: snap.HighestBidder, Amount: snap.HighestAmount.amount()}
	auction.ended = snap.Ended
	auction.totals = Accounting{
		Deposits:  snap.Deposits.amount(),
		Paid:      snap.Paid.amount(),
		Forfeited: snap.Forfeited.amount(),
	}
	return auction, nil
}

// MarshalSnapshot encodes a snapshot as canonical CBOR.
func MarshalSnapshot(snap Snapshot) ([]byte, error) {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("snapshot encoder: %w", err)
	}
	data, err := mode.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a CBOR snapshot.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}
