package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/cloudx-io/sealedbid/auctionapi"
	"github.com/cloudx-io/sealedbid/validation"
)

// plainTextHandler is a simple slog handler that writes plain text to stdout
// without timestamps or log levels - appropriate for CLI output
type plainTextHandler struct{}

func (*plainTextHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func (*plainTextHandler) Handle(_ context.Context, r slog.Record) error {
	_, err := fmt.Fprintln(os.Stdout, r.Message)
	return err
}

func (h *plainTextHandler) WithAttrs(_ []slog.Attr) slog.Handler {
	return h
}

func (h *plainTextHandler) WithGroup(_ string) slog.Handler {
	return h
}

var logger = slog.New(&plainTextHandler{})

func main() {
	var (
		statusPath   = flag.String("status", "", "Path to status response JSON file")
		attestation  = flag.String("attestation", "", "Encoded attestation (instead of --status)")
		encoding     = flag.String("encoding", "base64", "Attestation encoding: base64, url or gzip")
		pcrPath      = flag.String("pcrs", "", "Path to known PCR sets JSON (default: $SEALEDBID_PCRS or pcrs.json)")
		auctionID    = flag.String("auction-id", "", "Expected auction ID")
		winner       = flag.String("winner", "", "Expected winning account (omit to expect no winner)")
		amount       = flag.String("amount", "0", "Expected winning amount in base units")
		beneficiary  = flag.String("beneficiary", "", "Expected beneficiary account")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help || (*statusPath == "" && *attestation == "") {
		showUsage()
		if !*help {
			os.Exit(1)
		}
		os.Exit(0)
	}

	encoded := *attestation
	if *statusPath != "" {
		status, err := readStatusResponse(*statusPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading status response: %v\n", err)
			os.Exit(2)
		}
		encoded, err = statusAttestation(status, auctionapi.AttestationEncoding(*encoding))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading status response: %v\n", err)
			os.Exit(2)
		}

		// Fall back to the values the host reported when no expectation was given
		if *auctionID == "" {
			*auctionID = status.AuctionID
		}
		if *beneficiary == "" {
			*beneficiary = status.Beneficiary
		}
	}

	coseBytes, err := auctionapi.DecodeAttestation(encoded, auctionapi.AttestationEncoding(*encoding))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding attestation: %v\n", err)
		os.Exit(2)
	}

	result, err := validation.ValidateSettlementAttestation(&validation.SettlementValidationInput{
		AttestationCOSEBase64: coseBytes.EncodeBase64(),
		PCRConfigPath:         *pcrPath,
		AuctionID:             *auctionID,
		Winner:                *winner,
		Amount:                *amount,
		Beneficiary:           *beneficiary,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		if err := outputJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
			os.Exit(2)
		}
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	logger.Info("Sealed-Bid Settlement Validator")
	logger.Info("")
	logger.Info("Validates the attested settlement of a sealed-bid auction.")
	logger.Info("")
	logger.Info("Usage:")
	logger.Info("  settlement-validator --status <path> [options]")
	logger.Info("  settlement-validator --attestation <encoded> --encoding <base64|url|gzip> [options]")
	logger.Info("")
	logger.Info("Input Flags (one required):")
	logger.Info("  --status <path>                   Path to status response JSON file")
	logger.Info("  --attestation <encoded>           Encoded attestation, e.g. from a settlement notification")
	logger.Info("")
	logger.Info("Optional Flags:")
	logger.Info("  --encoding <base64|url|gzip>      Attestation encoding (default: base64)")
	logger.Info("  --pcrs <path>                     Known PCR sets (default: $SEALEDBID_PCRS or pcrs.json)")
	logger.Info("  --auction-id <id>                 Expected auction ID (default: from status)")
	logger.Info("  --winner <0x...>                  Expected winner (omit to expect no winner)")
	logger.Info("  --amount <units>                  Expected winning amount in base units (default: 0)")
	logger.Info("  --beneficiary <0x...>             Expected beneficiary (default: from status)")
	logger.Info("  --format <text|json>              Output format (default: text)")
	logger.Info("  --help                            Show this help message")
	logger.Info("")
	logger.Info("Examples:")
	logger.Info("  settlement-validator --status status.json --winner 0xB0... --amount 15000")
	logger.Info("  settlement-validator --status status.json --encoding gzip --winner 0xB0... --amount 15000")
	logger.Info("")
	logger.Info("Exit Codes:")
	logger.Info("  0 - Validation passed")
	logger.Info("  1 - Validation failed")
	logger.Info("  2 - Invalid input or runtime error")
}

func readStatusResponse(path string) (*auctionapi.StatusResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var status auctionapi.StatusResponse
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &status, nil
}

// statusAttestation picks the attestation field of a status response matching encoding.
func statusAttestation(status *auctionapi.StatusResponse, encoding auctionapi.AttestationEncoding) (string, error) {
	var encoded, field string
	switch encoding {
	case auctionapi.EncodingBase64:
		encoded, field = status.AttestationCOSEBase64.String(), "attestation_cose_base64"
	case auctionapi.EncodingGzip:
		encoded, field = status.AttestationGzip.String(), "attestation_gzip"
	default:
		return "", fmt.Errorf("status responses carry base64 or gzip attestations, not %q", encoding)
	}
	if encoded == "" {
		return "", fmt.Errorf("missing %s field in status response (has the auction ended?)", field)
	}
	return encoded, nil
}

func outputText(result *validation.SettlementValidationResult) {
	logger.Info("Sealed-Bid Settlement Validator")
	logger.Info("===============================")
	logger.Info("")

	logger.Info("Validation Details:")
	logger.Info("-------------------")
	for _, detail := range result.ValidationDetails {
		logger.Info("  " + detail)
	}

	logger.Info("")
	logger.Info("Summary:")
	logger.Info(fmt.Sprintf("  PCRs Valid:        %v", result.PCRsValid))
	logger.Info(fmt.Sprintf("  Certificate Valid: %v", result.CertificateValid))
	logger.Info(fmt.Sprintf("  Signature Valid:   %v", result.SignatureValid))
	logger.Info(fmt.Sprintf("  Auction ID Valid:  %v", result.AuctionIDValid))
	logger.Info(fmt.Sprintf("  Winner Valid:      %v", result.WinnerValid))
	logger.Info(fmt.Sprintf("  Amount Valid:      %v", result.AmountValid))
	logger.Info(fmt.Sprintf("  Beneficiary Valid: %v", result.BeneficiaryValid))

	logger.Info("")
	logger.Info("===============================")
	if result.IsValid() {
		logger.Info("VALIDATION: ✓ PASSED")
	} else {
		logger.Info("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.SettlementValidationResult) error {
	output := map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"auction_id_valid":  result.AuctionIDValid,
		"winner_valid":      result.WinnerValid,
		"amount_valid":      result.AmountValid,
		"beneficiary_valid": result.BeneficiaryValid,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	logger.Info(string(data))
	return nil
}
