package validation

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/sealedbid/auctionapi"
)

const (
	testWinner      = "0x00000000000000000000000000000000000000B0"
	testBeneficiary = "0x00000000000000000000000000000000000000bb"
)

func testUserData() auctionapi.SettlementUserData {
	return auctionapi.SettlementUserData{
		AuctionID:   "auction-1",
		Beneficiary: testBeneficiary,
		Winner:      testWinner,
		Amount:      "15000",
		BiddingEnd:  time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC),
		RevealEnd:   time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC),
		EndedAt:     attestedAt,
	}
}

func TestValidateSettlement_Valid(t *testing.T) {
	pki := newTestPKI(t)
	input := &SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, testUserData(), attestedAt),
		AuctionID:             "auction-1",
		Winner:                "0x00000000000000000000000000000000000000b0", // case-insensitive
		Amount:                "15000",
		Beneficiary:           testBeneficiary,
	}

	result, err := validateSettlement(input, pki.anchors())
	assert.NoError(t, err)
	check.True(t, result.PCRsValid)
	check.True(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.True(t, result.AuctionIDValid)
	check.True(t, result.WinnerValid)
	check.True(t, result.AmountValid)
	check.True(t, result.BeneficiaryValid)
	check.True(t, result.IsValid())
	check.True(t, len(result.ValidationDetails) > 0)
}

func TestValidateSettlement_Mismatches(t *testing.T) {
	pki := newTestPKI(t)
	attestation := pki.attest(t, testUserData(), attestedAt)

	tests := []struct {
		name  string
		input SettlementValidationInput
		check func(*SettlementValidationResult) bool
	}{
		{"wrong auction", SettlementValidationInput{AuctionID: "auction-2", Winner: testWinner, Amount: "15000"},
			func(r *SettlementValidationResult) bool { return !r.AuctionIDValid }},
		{"wrong winner", SettlementValidationInput{Winner: testBeneficiary, Amount: "15000"},
			func(r *SettlementValidationResult) bool { return !r.WinnerValid }},
		{"expected no winner", SettlementValidationInput{Amount: "15000"},
			func(r *SettlementValidationResult) bool { return !r.WinnerValid }},
		{"wrong amount", SettlementValidationInput{Winner: testWinner, Amount: "14999"},
			func(r *SettlementValidationResult) bool { return !r.AmountValid }},
		{"unparseable amount", SettlementValidationInput{Winner: testWinner, Amount: "1.5"},
			func(r *SettlementValidationResult) bool { return !r.AmountValid }},
		{"wrong beneficiary", SettlementValidationInput{Winner: testWinner, Amount: "15000", Beneficiary: testWinner},
			func(r *SettlementValidationResult) bool { return !r.BeneficiaryValid }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			input.AttestationCOSEBase64 = attestation
			result, err := validateSettlement(&input, pki.anchors())
			assert.NoError(t, err)
			check.True(t, result.SignatureValid)
			check.True(t, tt.check(result))
			check.False(t, result.IsValid())
		})
	}
}

func TestValidateSettlement_NoWinner(t *testing.T) {
	pki := newTestPKI(t)
	userData := testUserData()
	userData.Winner = ""
	userData.Amount = "0"

	result, err := validateSettlement(&SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, userData, attestedAt),
	}, pki.anchors())
	assert.NoError(t, err)
	check.True(t, result.WinnerValid)
	check.True(t, result.AmountValid)
	check.True(t, result.IsValid())

	// Expecting a winner that does not exist fails
	result, err = validateSettlement(&SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, userData, attestedAt),
		Winner:                testWinner,
	}, pki.anchors())
	assert.NoError(t, err)
	check.False(t, result.WinnerValid)
}

func TestValidateSettlement_MissingUserData(t *testing.T) {
	pki := newTestPKI(t)

	result, err := validateSettlement(&SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, nil, attestedAt),
	}, pki.anchors())
	assert.NoError(t, err)
	check.True(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlement_UntrustedMeasurements(t *testing.T) {
	pki := newTestPKI(t)
	anchors := pki.anchors()
	anchors.pcrSets = anchors.pcrSets[:1]

	result, err := validateSettlement(&SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, testUserData(), attestedAt),
		Winner:                testWinner,
		Amount:                "15000",
	}, anchors)
	assert.NoError(t, err)
	check.False(t, result.PCRsValid)
	check.True(t, result.WinnerValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlement_CertificateExpiredAtAttestation(t *testing.T) {
	pki := newTestPKI(t)

	// Signed after the signing certificate expired
	result, err := validateSettlement(&SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, testUserData(), attestedAt.Add(6*time.Hour)),
		Winner:                testWinner,
		Amount:                "15000",
	}, pki.anchors())
	assert.NoError(t, err)
	check.False(t, result.CertificateValid)
	check.True(t, result.SignatureValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlement_UntrustedRoot(t *testing.T) {
	pki := newTestPKI(t)
	other := newTestPKI(t)

	result, err := validateSettlement(&SettlementValidationInput{
		AttestationCOSEBase64: pki.attest(t, testUserData(), attestedAt),
		Winner:                testWinner,
		Amount:                "15000",
	}, other.anchors())
	assert.NoError(t, err)
	check.False(t, result.CertificateValid)
	check.False(t, result.IsValid())
}

func TestValidateSettlement_Malformed(t *testing.T) {
	pki := newTestPKI(t)

	_, err := validateSettlement(&SettlementValidationInput{AttestationCOSEBase64: "!!!"}, pki.anchors())
	check.Error(t, err)

	notCOSE := auctionapi.AttestationCOSE([]byte{0x01, 0x02}).EncodeBase64()
	_, err = validateSettlement(&SettlementValidationInput{AttestationCOSEBase64: notCOSE}, pki.anchors())
	check.Error(t, err)
}

func TestVerifyCOSESignature_Tampered(t *testing.T) {
	pki := newTestPKI(t)
	attestation := pki.attest(t, testUserData(), attestedAt)
	check.NoError(t, VerifyCOSESignature(attestation, pki.leafB64()))

	// A different key cannot have produced the signature
	other := newTestPKI(t)
	check.Error(t, VerifyCOSESignature(attestation, other.leafB64()))

	raw, err := attestation.Decode()
	assert.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	check.Error(t, VerifyCOSESignature(raw.EncodeBase64(), pki.leafB64()))

	check.Error(t, VerifyCOSESignature(attestation, base64.StdEncoding.EncodeToString([]byte("not a cert"))))
}

func TestValidateSettlementAttestation_PCRConfig(t *testing.T) {
	pki := newTestPKI(t)
	attestation := pki.attest(t, testUserData(), attestedAt)

	_, err := ValidateSettlementAttestation(&SettlementValidationInput{
		AttestationCOSEBase64: attestation,
		PCRConfigPath:         filepath.Join(t.TempDir(), "missing.json"),
	})
	check.Error(t, err)

	path := filepath.Join(t.TempDir(), "pcrs.json")
	assert.NoError(t, os.WriteFile(path, []byte(`{"pcr_sets":[{"pcr0":"001122","pcr1":"3344","pcr2":"55","commit_hash":"abc123"}]}`), 0o600))

	// Measurements match but the test root is not the AWS Nitro root
	result, err := ValidateSettlementAttestation(&SettlementValidationInput{
		AttestationCOSEBase64: attestation,
		PCRConfigPath:         path,
		Winner:                testWinner,
		Amount:                "15000",
	})
	assert.NoError(t, err)
	check.True(t, result.PCRsValid)
	check.False(t, result.CertificateValid)
	check.False(t, result.IsValid())
}

func TestDefaultPCRConfigPath(t *testing.T) {
	t.Setenv(PCRConfigEnv, "")
	check.Equal(t, "pcrs.json", DefaultPCRConfigPath())

	t.Setenv(PCRConfigEnv, "/etc/sealedbid/pcrs.json")
	check.Equal(t, "/etc/sealedbid/pcrs.json", DefaultPCRConfigPath())
}

func TestLoadPCRsFromFile(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.json")
	assert.NoError(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))
	_, err := LoadPCRsFromFile(empty)
	check.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	assert.NoError(t, os.WriteFile(invalid, []byte(`{`), 0o600))
	_, err = LoadPCRsFromFile(invalid)
	check.Error(t, err)

	notHex := filepath.Join(dir, "nothex.json")
	assert.NoError(t, os.WriteFile(notHex, []byte(`{"pcr_sets":[{"pcr0":"zz","pcr1":"00","pcr2":"00"}]}`), 0o600))
	_, err = LoadPCRsFromFile(notHex)
	check.Error(t, err)

	prefixed := filepath.Join(dir, "prefixed.json")
	assert.NoError(t, os.WriteFile(prefixed, []byte(`{"pcr_sets":[{"pcr0":"0x00AA","pcr1":"BB","pcr2":"cc"}]}`), 0o600))
	sets, err := LoadPCRsFromFile(prefixed)
	assert.NoError(t, err)
	check.Equal(t, PCRSet{PCR0: "00aa", PCR1: "bb", PCR2: "cc"}, sets[0])

	match, index := ValidatePCRs(auctionapi.PCRs{ImageFileHash: "001122", KernelHash: "3344", ApplicationHash: "55"}, testPCRSets())
	check.True(t, match)
	check.Equal(t, 1, index)

	match, index = ValidatePCRs(auctionapi.PCRs{ImageFileHash: "FF", KernelHash: "ff", ApplicationHash: "Ff"}, testPCRSets())
	check.True(t, match)
	check.Equal(t, 0, index)

	match, index = ValidatePCRs(auctionapi.PCRs{ImageFileHash: "001122"}, testPCRSets())
	check.False(t, match)
	check.Equal(t, -1, index)
}
