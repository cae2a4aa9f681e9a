package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"

	"github.com/cloudx-io/sealedbid/auctionapi"
	"github.com/cloudx-io/sealedbid/core"
	"github.com/cloudx-io/sealedbid/store"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// settlementUserData converts a stored settlement into the document embedded in its
// attestation. Amounts are base-unit integers so verifiers need no decimals setting.
func settlementUserData(settlement store.Settlement, config core.Config) auctionapi.SettlementUserData {
	userData := auctionapi.SettlementUserData{
		AuctionID:   settlement.AuctionID,
		Beneficiary: settlement.Beneficiary.Hex(),
		Amount:      settlement.Amount.Dec(),
		BiddingEnd:  config.BiddingEnd.UTC(),
		RevealEnd:   config.RevealEnd.UTC(),
		EndedAt:     settlement.EndedAt.UTC(),
	}
	if settlement.Winner != nil {
		userData.Winner = settlement.Winner.Hex()
	}
	return userData
}

// GenerateSettlementAttestation asks the NSM to sign the settlement user data.
func GenerateSettlementAttestation(attester EnclaveAttester, userData auctionapi.SettlementUserData) (auctionapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement user data: %w", err)
	}

	randomNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(randomNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM settlement attestation failed: %v", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Printf("INFO: Settlement attestation generated: %d bytes", len(attestationCBOR))
	return auctionapi.AttestationCOSE(attestationCBOR), nil
}

func generateNonce() (string, error) {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("entropy generation failed: %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
