package validation

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/sealedbid/auctionapi"
)

// PCRConfigEnv names the environment variable that overrides the PCR configuration path.
const PCRConfigEnv = "SEALEDBID_PCRS"

// DefaultPCRConfigPath returns $SEALEDBID_PCRS, or pcrs.json in the working directory.
// Known PCR sets are produced per enclave image build and are not shipped with the source.
func DefaultPCRConfigPath() string {
	if path := strings.TrimSpace(os.Getenv(PCRConfigEnv)); path != "" {
		return path
	}
	return "pcrs.json"
}

// LoadPCRsFromFile loads known PCR sets from a JSON file
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var config PCRConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}

	if len(config.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets found in config file")
	}

	for i := range config.PCRSets {
		set := &config.PCRSets[i]
		for name, value := range map[string]*string{"pcr0": &set.PCR0, "pcr1": &set.PCR1, "pcr2": &set.PCR2} {
			normalized, err := normalizePCR(*value)
			if err != nil {
				return nil, fmt.Errorf("PCR set #%d: %s: %w", i, name, err)
			}
			*value = normalized
		}
	}

	return config.PCRSets, nil
}

// normalizePCR lowercases a hex measurement and strips an optional 0x prefix.
func normalizePCR(value string) (string, error) {
	value = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if value == "" {
		return "", fmt.Errorf("empty measurement")
	}
	if _, err := hex.DecodeString(value); err != nil {
		return "", fmt.Errorf("invalid hex measurement: %w", err)
	}
	return value, nil
}

// ValidatePCRs checks if PCRs match any known valid set
// Returns: (match bool, matched set index)
// If no match, returns (false, -1)
func ValidatePCRs(pcrs auctionapi.PCRs, knownSets []PCRSet) (bool, int) {
	image := strings.ToLower(pcrs.ImageFileHash)
	kernel := strings.ToLower(pcrs.KernelHash)
	application := strings.ToLower(pcrs.ApplicationHash)

	for i, knownSet := range knownSets {
		if image == knownSet.PCR0 && kernel == knownSet.PCR1 && application == knownSet.PCR2 {
			return true, i
		}
	}
	return false, -1
}
