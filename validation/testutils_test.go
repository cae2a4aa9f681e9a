package validation

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/veraison/go-cose"

	"github.com/cloudx-io/sealedbid/auctionapi"
)

var (
	testPCR0 = []byte{0x00, 0x11, 0x22}
	testPCR1 = []byte{0x33, 0x44}
	testPCR2 = []byte{0x55}

	attestedAt = time.Date(2026, 1, 1, 14, 0, 0, 0, time.UTC)
)

func testPCRSets() []PCRSet {
	return []PCRSet{
		{PCR0: "ff", PCR1: "ff", PCR2: "ff", CommitHash: "old"},
		{PCR0: "001122", PCR1: "3344", PCR2: "55", CommitHash: "abc123"},
	}
}

// testPKI is a throwaway P-384 root and a short-lived signing certificate, standing in
// for the AWS Nitro root and an enclave's signing certificate.
type testPKI struct {
	rootDER []byte
	leafDER []byte
	leafKey *ecdsa.PrivateKey
	roots   *x509.CertPool
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	rootKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test.nitro-enclaves"},
		NotBefore:             time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		NotAfter:              time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTemplate, rootTemplate, &rootKey.PublicKey, rootKey)
	assert.NoError(t, err)
	root, err := x509.ParseCertificate(rootDER)
	assert.NoError(t, err)

	leafKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	assert.NoError(t, err)
	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "i-0abc-enc0123"},
		NotBefore:    time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		NotAfter:     time.Date(2026, 1, 1, 15, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	leafDER, err := x509.CreateCertificate(rand.Reader, leafTemplate, root, &leafKey.PublicKey, rootKey)
	assert.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(root)
	return &testPKI{rootDER: rootDER, leafDER: leafDER, leafKey: leafKey, roots: roots}
}

func (p *testPKI) anchors() trustAnchors {
	return trustAnchors{pcrSets: testPCRSets(), roots: p.roots}
}

// attest signs a Nitro-style attestation document carrying userData as an untagged
// COSE_Sign1 message.
func (p *testPKI) attest(t *testing.T, userData any, timestamp time.Time) auctionapi.AttestationCOSEBase64 {
	t.Helper()

	var userDataBytes []byte
	if userData != nil {
		var err error
		userDataBytes, err = json.Marshal(userData)
		assert.NoError(t, err)
	}

	payload, err := cbor.Marshal(map[string]any{
		"module_id":   "i-0abc-enc0123",
		"digest":      "SHA384",
		"timestamp":   uint64(timestamp.UnixMilli()),
		"pcrs":        map[uint64][]byte{0: testPCR0, 1: testPCR1, 2: testPCR2},
		"certificate": p.leafDER,
		"cabundle":    [][]byte{p.rootDER},
		"user_data":   userDataBytes,
		"nonce":       []byte("nonce"),
	})
	assert.NoError(t, err)

	protected := []byte{0xa1, 0x01, 0x38, 0x22} // {1: -35} (ES384)
	toBeSigned, err := sigStructure(protected, payload)
	assert.NoError(t, err)

	signer, err := cose.NewSigner(cose.AlgorithmES384, p.leafKey)
	assert.NoError(t, err)
	signature, err := signer.Sign(rand.Reader, toBeSigned)
	assert.NoError(t, err)

	raw, err := cbor.Marshal([]any{protected, map[any]any{}, payload, signature})
	assert.NoError(t, err)
	return auctionapi.AttestationCOSE(raw).EncodeBase64()
}

func (p *testPKI) leafB64() string {
	return base64.StdEncoding.EncodeToString(p.leafDER)
}
