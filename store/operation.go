package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/cloudx-io/sealedbid/core"
)

// Operation is everything one auction operation changed: the resulting snapshot, the
// payouts it issued and, for the settling operation, the settlement record.
type Operation struct {
	Snapshot   core.Snapshot
	Payouts    []PayoutInstruction
	Settlement *Settlement
}

// CommitOperation writes op in a single LevelDB batch, so a payout is never journaled
// without the snapshot that no longer owes it. Payouts are assigned consecutive sequence
// numbers (and an ID and issue time where unset) and returned as stored.
func (s *Store) CommitOperation(op Operation) ([]PayoutInstruction, error) {
	snapshot, err := core.MarshalSnapshot(op.Snapshot)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, ErrClosed
	}

	batch := new(leveldb.Batch)
	batch.Put([]byte(snapshotKey), snapshot)

	journaled := make([]PayoutInstruction, 0, len(op.Payouts))
	if len(op.Payouts) > 0 {
		seq, err := s.lastPayoutSeq()
		if err != nil {
			return nil, err
		}
		for _, p := range op.Payouts {
			seq++
			p.Seq = seq
			if p.ID == "" {
				p.ID = uuid.NewString()
			}
			if p.IssuedAt.IsZero() {
				p.IssuedAt = time.Now().UTC()
			}
			data, err := encodePayout(p)
			if err != nil {
				return nil, err
			}
			batch.Put(payoutKey(p.Seq), data)
			journaled = append(journaled, p)
		}
		batch.Put([]byte(payoutSeqKey), encodeSeq(seq))
	}

	if op.Settlement != nil {
		data, err := encodeSettlement(*op.Settlement)
		if err != nil {
			return nil, err
		}
		batch.Put([]byte(settlementKey), data)
	}

	if err := s.db.Write(batch, nil); err != nil {
		return nil, fmt.Errorf("commit operation: %w", err)
	}
	return journaled, nil
}
