package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"
	"github.com/peterldowns/testy/assert"

	"github.com/cloudx-io/sealedbid/auctionapi"
	"github.com/cloudx-io/sealedbid/core"
	"github.com/cloudx-io/sealedbid/store"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// mustDecodeHex is a helper function to decode hex strings to actual hash bytes for testing
func mustDecodeHex(t *testing.T, hexStr string) []byte {
	t.Helper()
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		panic(fmt.Sprintf("invalid hex string: %s", hexStr))
	}
	return bytes
}

// CreateMockEnclave creates a mock enclave handle for testing with realistic attestation data
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1767276000000),
				"pcrs": map[uint64][]byte{
					0: mustDecodeHex(t, "3b4cef27e672fdbcc808960a88ddfe7329dd2e367b6850c9a8d910315f0b47e4224d6db361b75e010c87691d86ca9c57"),
					1: mustDecodeHex(t, "4b4d5b3661b3efc12920900c80e126e4ce783c522de6c02a2a5bf7af3a2b9327b86776f188e4be1c1c404a129dbda493"),
					2: mustDecodeHex(t, "2bdd28c1d85bb3872da3617a29a6bfeb50c65750c995f92e7dac6b5f2c4c72e0f9976bdee62a0b25864d10dffb535e11"),
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte{},
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}

			// AWS Nitro 4-element array format: [header, metadata, nested_doc, signature]
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}

// parseSettlementAttestation decodes a settlement attestation and its user data.
func parseSettlementAttestation(t *testing.T, coseBytes auctionapi.AttestationCOSE) *auctionapi.SettlementAttestationDoc {
	t.Helper()

	attestationDoc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	assert.NoError(t, err)

	var userData auctionapi.SettlementUserData
	assert.NoError(t, json.Unmarshal(userDataBytes, &userData))

	return &auctionapi.SettlementAttestationDoc{
		AttestationDoc: attestationDoc,
		UserData:       &userData,
	}
}

var (
	alice       = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob         = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	beneficiary = common.HexToAddress("0x00000000000000000000000000000000000000bb")

	auctionStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func testAuctionConfig() AuctionConfig {
	return AuctionConfig{
		Beneficiary:    beneficiary.Hex(),
		BiddingTime:    Duration{time.Hour},
		RevealTime:     Duration{time.Hour},
		AmountDecimals: 2,
	}
}

type hostFixture struct {
	host  *AuctionHost
	store *store.Store
	clock *testClock
}

func newHostFixture(t *testing.T, attester EnclaveAttester) *hostFixture {
	t.Helper()
	st, err := store.OpenMemory()
	assert.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	clock := &testClock{now: auctionStart}
	host, err := NewAuctionHost(testAuctionConfig(), st, clock, attester, newHostMetrics())
	assert.NoError(t, err)
	return &hostFixture{host: host, store: st, clock: clock}
}

func (f *hostFixture) duringReveal() { f.clock.set(auctionStart.Add(90 * time.Minute)) }
func (f *hostFixture) afterReveal()  { f.clock.set(auctionStart.Add(3 * time.Hour)) }

// sealedBid is one bid a test places and later opens.
type sealedBid struct {
	value   string // decimal, 2 places
	deposit string
	fake    bool
	secret  core.Secret
}

func (b sealedBid) commitment(t *testing.T) string {
	t.Helper()
	value, err := auctionapi.ParseAmount(b.value, 2)
	assert.NoError(t, err)
	return core.ComputeCommitment(value, b.fake, b.secret).Hex()
}

func secretFor(b byte) core.Secret {
	var s core.Secret
	s[31] = b
	return s
}

func (f *hostFixture) placeBids(t *testing.T, bidder common.Address, bids ...sealedBid) {
	t.Helper()
	for _, bid := range bids {
		resp := f.host.Bid(testContext(t), auctionapi.BidRequest{
			BaseRequest: auctionapi.BaseRequest{Type: auctionapi.RequestTypeBid, Caller: bidder.Hex()},
			Commitment:  bid.commitment(t),
			Deposit:     bid.deposit,
		})
		assert.True(t, resp.Success)
		assert.True(t, resp.Accepted)
	}
}

func revealRequest(bidder common.Address, bids ...sealedBid) auctionapi.RevealRequest {
	req := auctionapi.RevealRequest{
		BaseRequest:   auctionapi.BaseRequest{Type: auctionapi.RequestTypeReveal, Caller: bidder.Hex()},
		DeclaredCount: len(bids),
	}
	for _, bid := range bids {
		req.Values = append(req.Values, bid.value)
		req.Fakes = append(req.Fakes, bid.fake)
		req.Secrets = append(req.Secrets, bid.secret.Hex())
	}
	return req
}

func units(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}

// testContext stands in for testing.T.Context (Go 1.24+): it returns a
// context that is canceled when the test finishes.
func testContext(t testing.TB) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
