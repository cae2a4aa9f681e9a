package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
		"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/cloudx-io/sealedbid/core"
)

// PayoutInstruction is one journaled transfer out of the auction. The journal is the
// host's record of value owed to accounts; an external settlement process executes it.
type PayoutInstruction struct {
	Seq      uint64
	ID       string
	Account  common.Address
	Amount   uint256.Int
	Reason   core.PayoutReason
	IssuedAt time.Time
}

type payoutRecord struct {
	ID       string   `cbor:"1,keyasint"`
	Account  [20]byte `cbor:"2,keyasint"`
	Amount   [32]byte `cbor:"3,keyasint"`
	Reason   string   `cbor:"4,keyasint"`
	IssuedAt int64    `cbor:"5,keyasint"`
}

func encodePayout(p PayoutInstruction) ([]byte, error) {
	data, err := cbor.Marshal(payoutRecord{
		ID:       p.ID,
		Account:  p.Account,
		Amount:   p.Amount.Bytes32(),
		Reason:   string(p.Reason),
		IssuedAt: p.IssuedAt.UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode payout: %w", err)
	}
	return data, nil
}

// Payouts returns journaled instructions with sequence >= from, in order.
func (s *Store) Payouts(ctx context.Context, from uint64) ([]PayoutInstruction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	iter := s.db.NewIterator(util.BytesPrefix([]byte(payoutKeyPrefix)), nil)
	defer iter.Release()

	payouts := make([]PayoutInstruction, 0)
	for ok := iter.Seek(payoutKey(from)); ok; ok = iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		seq := binary.BigEndian.Uint64(iter.Key()[len(payoutKeyPrefix):])
		var rec payoutRecord
		if err := cbor.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode payout %d: %w", seq, err)
		}
		p := PayoutInstruction{
			Seq:      seq,
			ID:       rec.ID,
			Account:  rec.Account,
			Reason:   core.PayoutReason(rec.Reason),
			IssuedAt: time.Unix(0, rec.IssuedAt).UTC(),
		}
		p.Amount.SetBytes32(rec.Amount[:])
		payouts = append(payouts, p)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate payouts: %w", err)
	}
	return payouts, nil
}

// LastPayoutSeq returns the sequence number of the newest instruction, or 0.
func (s *Store) LastPayoutSeq() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, ErrClosed
	}
	return s.lastPayoutSeq()
}

func (s *Store) lastPayoutSeq() (uint64, error) {
	raw, err := s.db.Get([]byte(payoutSeqKey), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, fmt.Errorf("load payout sequence: %w", err)
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt payout sequence: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

func payoutKey(seq uint64) []byte {
	return append([]byte(payoutKeyPrefix), encodeSeq(seq)...)
}

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}
