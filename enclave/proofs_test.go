package main

import (
	"fmt"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/sealedbid/core"
	"github.com/cloudx-io/sealedbid/store"
)

func TestGenerateSettlementAttestation(t *testing.T) {
	winner := bob
	settlement := store.NewSettlement("auction-7", core.AuctionEnded{
		Winner:      &winner,
		Amount:      *uint256.NewInt(15000),
		Beneficiary: beneficiary,
		EndedAt:     auctionStart.Add(3 * time.Hour),
	})
	config := core.NewConfig(beneficiary, auctionStart, time.Hour, time.Hour)

	var seen enclave.AttestationOptions
	mock := CreateMockEnclave(t)
	inner := mock.AttestFunc
	mock.AttestFunc = func(options enclave.AttestationOptions) ([]byte, error) {
		seen = options
		return inner(options)
	}

	coseBytes, err := GenerateSettlementAttestation(mock, settlementUserData(settlement, config))
	assert.NoError(t, err)
	check.Equal(t, 64, len(seen.Nonce))

	doc := parseSettlementAttestation(t, coseBytes)
	check.Equal(t, "auction-7", doc.UserData.AuctionID)
	check.Equal(t, bob.Hex(), doc.UserData.Winner)
	check.Equal(t, "15000", doc.UserData.Amount)
	check.True(t, doc.UserData.BiddingEnd.Equal(auctionStart.Add(time.Hour)))
	check.True(t, doc.UserData.EndedAt.Equal(auctionStart.Add(3*time.Hour)))
	check.Equal(t, string(seen.Nonce), doc.Nonce)
}

func TestSettlementUserData_NoWinner(t *testing.T) {
	settlement := store.NewSettlement("auction-8", core.AuctionEnded{Beneficiary: beneficiary, EndedAt: auctionStart})
	userData := settlementUserData(settlement, core.NewConfig(beneficiary, auctionStart, time.Hour, time.Hour))
	check.Equal(t, "", userData.Winner)
	check.Equal(t, "0", userData.Amount)
}

func TestGenerateSettlementAttestation_Errors(t *testing.T) {
	_, err := GenerateSettlementAttestation(nil, settlementUserData(store.Settlement{}, core.Config{}))
	check.Error(t, err)

	failing := &MockEnclaveHandle{AttestFunc: func(enclave.AttestationOptions) ([]byte, error) {
		return nil, fmt.Errorf("device busy")
	}}
	_, err = GenerateSettlementAttestation(failing, settlementUserData(store.Settlement{}, core.Config{}))
	check.Error(t, err)

	unconfigured := &MockEnclaveHandle{}
	_, err = GenerateSettlementAttestation(unconfigured, settlementUserData(store.Settlement{}, core.Config{}))
	check.Error(t, err)
}
