package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/cloudx-io/sealedbid/auctionapi"
)

// SettlementValidationInput contains all inputs needed for settlement attestation validation
type SettlementValidationInput struct {
	AttestationCOSEBase64 auctionapi.AttestationCOSEBase64 // From the host's status response
	PCRConfigPath         string                           // Empty = DefaultPCRConfigPath()
	AuctionID             string                           // Empty = not checked
	Winner                string                           // Hex account; empty = no winner expected
	Amount                string                           // Winning amount in base units
	Beneficiary           string                           // Hex account; empty = not checked
}

// ValidateSettlementAttestation validates an attested auction settlement and verifies:
// - Auction ID matches
// - Winner matches (or that there was none)
// - Winning amount matches
// - Beneficiary matches
//
// Returns:
//   - SettlementValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateSettlementAttestation(input *SettlementValidationInput) (*SettlementValidationResult, error) {
	anchors, err := loadTrustAnchors(input.PCRConfigPath)
	if err != nil {
		return nil, err
	}
	return validateSettlement(input, anchors)
}

func validateSettlement(input *SettlementValidationInput, anchors trustAnchors) (*SettlementValidationResult, error) {
	baseResult, err := validateCommonAttestation(input.AttestationCOSEBase64, anchors)
	if err != nil {
		return nil, err
	}

	settlement, err := parseSettlementAttestationFromCOSE(input.AttestationCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attestation from attestation_cose_base64: %w", err)
	}

	result := &SettlementValidationResult{
		BaseValidationResult: *baseResult,
	}

	if settlement.UserData == nil {
		result.ValidationDetails = append(result.ValidationDetails, "Attestation user data missing")
		return result, nil
	}
	userData := settlement.UserData

	result.AuctionIDValid = validateAuctionID(input, userData, result)
	result.WinnerValid = validateWinner(input, userData, result)
	result.AmountValid = validateAmount(input, userData, result)
	result.BeneficiaryValid = validateBeneficiary(input, userData, result)

	return result, nil
}

func validateAuctionID(input *SettlementValidationInput, userData *auctionapi.SettlementUserData, result *SettlementValidationResult) bool {
	if input.AuctionID == "" {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID not checked (attested: %s)", userData.AuctionID))
		return true
	}
	if input.AuctionID == userData.AuctionID {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID validation passed: %s", userData.AuctionID))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID mismatch: expected %s, attestation has %s", input.AuctionID, userData.AuctionID))
	return false
}

func validateWinner(input *SettlementValidationInput, userData *auctionapi.SettlementUserData, result *SettlementValidationResult) bool {
	if input.Winner == "" {
		if userData.Winner == "" {
			result.ValidationDetails = append(result.ValidationDetails, "Winner validation passed: no winner expected and no winner in attestation")
			return true
		}
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner mismatch: expected no winner, attestation has %s", userData.Winner))
		return false
	}

	if sameAccount(input.Winner, userData.Winner) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner validation passed: %s", userData.Winner))
		return true
	}
	if userData.Winner == "" {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner mismatch: expected %s, attestation has no winner", input.Winner))
		return false
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner mismatch: expected %s, attestation has %s", input.Winner, userData.Winner))
	return false
}

func validateAmount(input *SettlementValidationInput, userData *auctionapi.SettlementUserData, result *SettlementValidationResult) bool {
	expected := input.Amount
	if expected == "" {
		expected = "0"
	}
	want, err := uint256.FromDecimal(expected)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Invalid expected amount %q: %v", input.Amount, err))
		return false
	}
	got, err := uint256.FromDecimal(userData.Amount)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Invalid attested amount %q: %v", userData.Amount, err))
		return false
	}

	if want.Eq(got) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Amount validation passed: %s", got.Dec()))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Amount mismatch: expected %s, attestation has %s", want.Dec(), got.Dec()))
	return false
}

func validateBeneficiary(input *SettlementValidationInput, userData *auctionapi.SettlementUserData, result *SettlementValidationResult) bool {
	if input.Beneficiary == "" {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Beneficiary not checked (attested: %s)", userData.Beneficiary))
		return true
	}
	if sameAccount(input.Beneficiary, userData.Beneficiary) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Beneficiary validation passed: %s", userData.Beneficiary))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Beneficiary mismatch: expected %s, attestation has %s", input.Beneficiary, userData.Beneficiary))
	return false
}

// sameAccount compares two hex accounts ignoring checksum case.
func sameAccount(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// parseSettlementAttestationFromCOSE parses a SettlementAttestationDoc from base64-encoded COSE bytes
func parseSettlementAttestationFromCOSE(attestationCOSEB64 auctionapi.AttestationCOSEBase64) (*auctionapi.SettlementAttestationDoc, error) {
	coseBytes, err := attestationCOSEB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	attestationDoc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}

	doc := &auctionapi.SettlementAttestationDoc{AttestationDoc: attestationDoc}
	if len(userDataBytes) == 0 {
		return doc, nil
	}

	var userData auctionapi.SettlementUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}
	doc.UserData = &userData
	return doc, nil
}
