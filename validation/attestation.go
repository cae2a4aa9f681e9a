package validation

import (
	"crypto/x509"
	"fmt"

	"github.com/cloudx-io/sealedbid/auctionapi"
)

// trustAnchors are the measurements and root certificates an attestation is checked against.
type trustAnchors struct {
	pcrSets []PCRSet
	roots   *x509.CertPool
}

// loadTrustAnchors reads the PCR sets at pcrPath (DefaultPCRConfigPath if empty) and
// pairs them with the AWS Nitro root.
func loadTrustAnchors(pcrPath string) (trustAnchors, error) {
	if pcrPath == "" {
		pcrPath = DefaultPCRConfigPath()
	}
	pcrSets, err := LoadPCRsFromFile(pcrPath)
	if err != nil {
		return trustAnchors{}, fmt.Errorf("failed to load PCR configuration: %w", err)
	}
	roots, err := awsNitroRoots()
	if err != nil {
		return trustAnchors{}, err
	}
	return trustAnchors{pcrSets: pcrSets, roots: roots}, nil
}

// validateCommonAttestation performs validation common to all attestation types:
// PCRs, certificate chain at the attestation timestamp, and COSE signature.
func validateCommonAttestation(attestationCOSEBase64 auctionapi.AttestationCOSEBase64, anchors trustAnchors) (*BaseValidationResult, error) {
	coseBytes, err := attestationCOSEBase64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	attestationDoc, _, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, fmt.Errorf("parse attestation document: %w", err)
	}

	result := &BaseValidationResult{
		ValidationDetails: []string{},
	}

	pcrMatch, matchedSet := ValidatePCRs(attestationDoc.PCRs, anchors.pcrSets)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR0: %s (no match)", attestationDoc.PCRs.ImageFileHash))
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR1: %s (no match)", attestationDoc.PCRs.KernelHash))
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("PCR2: %s (no match)", attestationDoc.PCRs.ApplicationHash))
	} else {
		result.ValidationDetails = append(result.ValidationDetails, "PCR measurements valid")
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Matched PCR set: #%d (commit: %s)",
			matchedSet, anchors.pcrSets[matchedSet].CommitHash))
	}

	switch {
	case attestationDoc.Certificate == "":
		result.ValidationDetails = append(result.ValidationDetails, "Missing certificate")
	case len(attestationDoc.CABundle) == 0:
		result.ValidationDetails = append(result.ValidationDetails, "Missing CA bundle")
	default:
		err = verifyCertificateChain(attestationDoc.Certificate, attestationDoc.CABundle, attestationDoc.Timestamp, anchors.roots)
		if err != nil {
			result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Certificate chain validation failed: %v", err))
		} else {
			result.CertificateValid = true
			result.ValidationDetails = append(result.ValidationDetails, "Certificate chain verified")
		}
	}

	if err := VerifyCOSESignature(attestationCOSEBase64, attestationDoc.Certificate); err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("COSE signature verification failed: %v", err))
	} else {
		result.SignatureValid = true
		result.ValidationDetails = append(result.ValidationDetails, "COSE signature verified")
	}

	return result, nil
}
