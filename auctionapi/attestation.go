package auctionapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudx-io/sealedbid/auctionapi/parsing"
)

// AttestationCOSE is a raw COSE_Sign1 attestation as returned by the Nitro Security Module.
type AttestationCOSE []byte

// AttestationEncoding names one of the text forms an attestation travels in.
type AttestationEncoding string

const (
	EncodingBase64 AttestationEncoding = "base64" // status response attestation_cose_base64
	EncodingURL    AttestationEncoding = "url"
	EncodingGzip   AttestationEncoding = "gzip" // status response attestation_gzip
)

// AttestationCOSEBase64 is standard base64 of an AttestationCOSE, used in JSON responses.
type AttestationCOSEBase64 string

// AttestationCOSEURLBase64 is unpadded URL-safe base64 of an AttestationCOSE.
type AttestationCOSEURLBase64 string

// AttestationCOSEGzip is gzip-compressed COSE bytes in unpadded URL-safe base64,
// compact enough for settlement notification URLs.
type AttestationCOSEGzip string

// EncodeBase64 encodes the raw bytes with standard base64.
func (a AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(a))
}

// EncodeURLSafe encodes the raw bytes with unpadded URL-safe base64.
func (a AttestationCOSE) EncodeURLSafe() AttestationCOSEURLBase64 {
	return AttestationCOSEURLBase64(base64.RawURLEncoding.EncodeToString(a))
}

// CompressGzip gzips the raw bytes and encodes them URL-safe.
func (a AttestationCOSE) CompressGzip() (AttestationCOSEGzip, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(a); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return AttestationCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// Encode renders the attestation in the given text form.
func (a AttestationCOSE) Encode(encoding AttestationEncoding) (string, error) {
	switch encoding {
	case EncodingBase64:
		return a.EncodeBase64().String(), nil
	case EncodingURL:
		return a.EncodeURLSafe().String(), nil
	case EncodingGzip:
		compressed, err := a.CompressGzip()
		return compressed.String(), err
	default:
		return "", fmt.Errorf("unknown attestation encoding %q", encoding)
	}
}

// DecodeAttestation returns the raw COSE bytes of an attestation in the given text form.
func DecodeAttestation(encoded string, encoding AttestationEncoding) (AttestationCOSE, error) {
	switch encoding {
	case EncodingBase64:
		return AttestationCOSEBase64(encoded).Decode()
	case EncodingURL:
		return AttestationCOSEURLBase64(encoded).Decode()
	case EncodingGzip:
		return AttestationCOSEGzip(encoded).Decompress()
	default:
		return nil, fmt.Errorf("unknown attestation encoding %q", encoding)
	}
}

// ParseAttestationDoc decodes the Nitro attestation document carried by the COSE payload.
// Returns the structured document and the raw user data bytes.
func (a AttestationCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	raw, err := parsing.DecodeNitroDocument(a)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	doc := AttestationDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   parsing.FormatPCR(raw.PCRs[0]),
			KernelHash:      parsing.FormatPCR(raw.PCRs[1]),
			ApplicationHash: parsing.FormatPCR(raw.PCRs[2]),
			IAMRoleHash:     parsing.FormatPCR(raw.PCRs[3]),
			InstanceIDHash:  parsing.FormatPCR(raw.PCRs[4]),
			SigningCertHash: parsing.FormatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    parsing.EncodeCertificateBundle(raw.CABundle),
		PublicKey:   base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:       string(raw.Nonce),
	}
	return doc, raw.UserData, nil
}

// Decode returns the raw COSE bytes.
func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	raw, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return AttestationCOSE(raw), nil
}

func (b AttestationCOSEBase64) String() string { return string(b) }

// Decode returns the raw COSE bytes, restoring any stripped padding.
func (u AttestationCOSEURLBase64) Decode() (AttestationCOSE, error) {
	s := strings.TrimRight(string(u), "=")
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return AttestationCOSE(raw), nil
}

func (u AttestationCOSEURLBase64) String() string { return string(u) }

// Decompress reverses CompressGzip.
func (g AttestationCOSEGzip) Decompress() (AttestationCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(string(g))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}

	reader, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gzip data: %w", err)
	}
	return AttestationCOSE(raw), nil
}

func (g AttestationCOSEGzip) String() string { return string(g) }
