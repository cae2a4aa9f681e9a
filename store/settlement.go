package store

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"

	"github.com/cloudx-io/sealedbid/core"
)

// Settlement is the persisted auction-ended event plus the attestation produced for it.
type Settlement struct {
	AuctionID   string
	Winner      *common.Address
	Amount      uint256.Int
	Beneficiary common.Address
	EndedAt     time.Time
	Attestation []byte
}

type settlementRecord struct {
	AuctionID   string   `cbor:"1,keyasint"`
	HasWinner   bool     `cbor:"2,keyasint"`
	Winner      [20]byte `cbor:"3,keyasint"`
	Amount      [32]byte `cbor:"4,keyasint"`
	Beneficiary [20]byte `cbor:"5,keyasint"`
	EndedAt     int64    `cbor:"6,keyasint"`
	Attestation []byte   `cbor:"7,keyasint,omitempty"`
}

// NewSettlement builds the persisted form of an auction-ended event.
func NewSettlement(auctionID string, event core.AuctionEnded) Settlement {
	return Settlement{
		AuctionID:   auctionID,
		Winner:      event.Winner,
		Amount:      event.Amount,
		Beneficiary: event.Beneficiary,
		EndedAt:     event.EndedAt,
	}
}

func encodeSettlement(settlement Settlement) ([]byte, error) {
	rec := settlementRecord{
		AuctionID:   settlement.AuctionID,
		Amount:      settlement.Amount.Bytes32(),
		Beneficiary: settlement.Beneficiary,
		EndedAt:     settlement.EndedAt.UnixNano(),
		Attestation: settlement.Attestation,
	}
	if settlement.Winner != nil {
		rec.HasWinner = true
		rec.Winner = *settlement.Winner
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode settlement: %w", err)
	}
	return data, nil
}

// LoadSettlement returns the stored settlement. ok is false until the auction has ended.
func (s *Store) LoadSettlement() (Settlement, bool, error) {
	data, ok, err := s.get(settlementKey, "load settlement")
	if err != nil || !ok {
		return Settlement{}, ok, err
	}

	var rec settlementRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Settlement{}, false, fmt.Errorf("decode settlement: %w", err)
	}

	settlement := Settlement{
		AuctionID:   rec.AuctionID,
		Beneficiary: rec.Beneficiary,
		EndedAt:     time.Unix(0, rec.EndedAt).UTC(),
		Attestation: rec.Attestation,
	}
	settlement.Amount.SetBytes32(rec.Amount[:])
	if rec.HasWinner {
		winner := common.Address(rec.Winner)
		settlement.Winner = &winner
	}
	return settlement, true, nil
}
