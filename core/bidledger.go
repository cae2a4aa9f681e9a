package core

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/holiman/uint256"
)

// BidSlot holds one sealed bid and the deposit locked against it.
type BidSlot struct {
	Commitment Commitment
	Deposit    uint256.Int
}

// Revealed reports whether the slot no longer carries a commitment.
func (s BidSlot) Revealed() bool {
	return s.Commitment == EmptyCommitment
}

// BidderRecord is the fixed-capacity list of an account's sealed bids.
// Slots are filled left to right; Count is the number filled so far.
type BidderRecord struct {
	Slots [MaxBids]BidSlot
	Count int
}

// Full reports whether the record has no free slot left.
func (r *BidderRecord) Full() bool {
	return r.Count >= MaxBids
}

// BidLedger stores sealed bids per account. It knows nothing about phases or refunds.
type BidLedger struct {
	records map[AccountID]*BidderRecord
}

// NewBidLedger creates an empty ledger.
func NewBidLedger() *BidLedger {
	return &BidLedger{records: make(map[AccountID]*BidderRecord)}
}

// Place appends a slot to the account's record, creating the record on first use.
// Returns the index of the new slot, or ErrLedgerFull once MaxBids slots are used.
func (l *BidLedger) Place(account AccountID, commitment Commitment, deposit *uint256.Int) (int, error) {
	record, ok := l.records[account]
	if ok && record.Full() {
		return 0, fmt.Errorf("%w: account %s holds %d bids", ErrLedgerFull, account.Hex(), record.Count)
	}
	if !ok {
		record = &BidderRecord{}
		l.records[account] = record
	}

	index := record.Count
	record.Slots[index] = BidSlot{Commitment: commitment, Deposit: *deposit}
	record.Count++
	return index, nil
}

// SlotAt returns the slot at index. ok is false for unknown accounts or unfilled indices.
func (l *BidLedger) SlotAt(account AccountID, index int) (slot BidSlot, ok bool) {
	record, exists := l.records[account]
	if !exists || index < 0 || index >= record.Count {
		return BidSlot{}, false
	}
	return record.Slots[index], true
}

// Consume clears the slot's commitment so it can never be revealed again.
// Consuming an already consumed slot is a no-op. The previous commitment is returned.
func (l *BidLedger) Consume(account AccountID, index int) Commitment {
	record, exists := l.records[account]
	if !exists || index < 0 || index >= record.Count {
		return EmptyCommitment
	}
	prev := record.Slots[index].Commitment
	record.Slots[index].Commitment = EmptyCommitment
	return prev
}

// restore puts a commitment back into a slot. Used to roll back an aborted reveal.
func (l *BidLedger) restore(account AccountID, index int, commitment Commitment) {
	if record, exists := l.records[account]; exists && index < record.Count {
		record.Slots[index].Commitment = commitment
	}
}

// Count returns the number of slots the account has filled. ok is false if the account
// never placed a bid.
func (l *BidLedger) Count(account AccountID) (count int, ok bool) {
	record, exists := l.records[account]
	if !exists {
		return 0, false
	}
	return record.Count, true
}

// OutstandingDeposits sums the deposits of all slots that still carry a commitment.
func (l *BidLedger) OutstandingDeposits() (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, record := range l.records {
		for i := 0; i < record.Count; i++ {
			slot := &record.Slots[i]
			if slot.Revealed() {
				continue
			}
			if _, overflow := total.AddOverflow(total, &slot.Deposit); overflow {
				return nil, ErrAmountOverflow
			}
		}
	}
	return total, nil
}

// Accounts lists every account with a record, ordered by address bytes.
func (l *BidLedger) Accounts() []AccountID {
	accounts := make([]AccountID, 0, len(l.records))
	for account := range l.records {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})
	return accounts
}

// Record returns a copy of the account's record.
func (l *BidLedger) Record(account AccountID) (BidderRecord, bool) {
	record, exists := l.records[account]
	if !exists {
		return BidderRecord{}, false
	}
	return *record, true
}

func (l *BidLedger) putRecord(account AccountID, record BidderRecord) {
	l.records[account] = &record
}
