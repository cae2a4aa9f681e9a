package auctionapi

import (
	"fmt"
	"time"
)

// Request types understood by the auction host.
const (
	RequestTypePing       = "ping"
	RequestTypeBid        = "bid"
	RequestTypeReveal     = "reveal"
	RequestTypeWithdraw   = "withdraw"
	RequestTypeEndAuction = "end_auction"
	RequestTypeStatus     = "status"
)

// Response types returned by the auction host.
const (
	ResponseTypePong      = "pong"
	ResponseTypeOperation = "operation_response"
	ResponseTypeStatus    = "status_response"
	ResponseTypeError     = "error"
)

// BaseRequest carries the fields shared by every request. Caller is the hex account the
// host has authenticated for this call.
type BaseRequest struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Caller    string `json:"caller,omitempty"`
}

// BidRequest places a sealed bid. Deposit is a decimal amount string.
type BidRequest struct {
	BaseRequest
	Commitment string `json:"commitment"` // 0x-prefixed 32-byte hex
	Deposit    string `json:"deposit"`
}

// RevealRequest opens the caller's sealed bids. Values, Fakes and Secrets are parallel
// arrays indexed by bid slot; at most MaxBids entries each.
type RevealRequest struct {
	BaseRequest
	DeclaredCount int      `json:"declared_count"`
	Values        []string `json:"values"`
	Fakes         []bool   `json:"fakes"`
	Secrets       []string `json:"secrets"`
}

// Validate checks that the parallel arrays line up.
func (r *RevealRequest) Validate() error {
	if r.DeclaredCount < 0 {
		return fmt.Errorf("negative declared_count %d", r.DeclaredCount)
	}
	if len(r.Values) != len(r.Fakes) || len(r.Values) != len(r.Secrets) {
		return fmt.Errorf("values, fakes and secrets must have equal length (got %d, %d, %d)",
			len(r.Values), len(r.Fakes), len(r.Secrets))
	}
	return nil
}

// WithdrawRequest pays out the caller's pending refunds.
type WithdrawRequest struct {
	BaseRequest
}

// EndAuctionRequest finalizes the auction.
type EndAuctionRequest struct {
	BaseRequest
}

// StatusRequest reads the auction state, including the caller's own position.
type StatusRequest struct {
	BaseRequest
}

// OperationResponse is returned for bid, reveal, withdraw and end_auction.
// Accepted mirrors the boolean result of the operation; Success is false only when the
// host could not execute it at all.
type OperationResponse struct {
	Type           string `json:"type"`
	RequestID      string `json:"request_id,omitempty"`
	Operation      string `json:"operation"`
	Success        bool   `json:"success"`
	Accepted       bool   `json:"accepted"`
	Message        string `json:"message,omitempty"`
	Paid           string `json:"paid,omitempty"`
	ProcessingTime int64  `json:"processing_time_ms"`
}

// HighestBid is the wire form of the leading bid.
type HighestBid struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

// StatusResponse describes the auction as seen at request time.
type StatusResponse struct {
	Type                  string                `json:"type"`
	RequestID             string                `json:"request_id,omitempty"`
	AuctionID             string                `json:"auction_id"`
	Phase                 string                `json:"phase"`
	Beneficiary           string                `json:"beneficiary"`
	BiddingEnd            time.Time             `json:"bidding_end"`
	RevealEnd             time.Time             `json:"reveal_end"`
	HighestBid            HighestBid            `json:"highest_bid"`
	Ended                 bool                  `json:"ended"`
	CallerBidCount        int                   `json:"caller_bid_count"`
	CallerPendingReturn   string                `json:"caller_pending_return"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
	AttestationGzip       AttestationCOSEGzip   `json:"attestation_gzip,omitempty"`
}

// ErrorResponse reports a request that could not be decoded or dispatched.
type ErrorResponse struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
}

// PongResponse answers a ping.
type PongResponse struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc represents the base structured attestation data from AWS Nitro Enclaves
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// SettlementAttestationDoc is an attestation over the final auction outcome.
type SettlementAttestationDoc struct {
	AttestationDoc
	UserData *SettlementUserData `json:"user_data"`
}

// SettlementUserData is the settlement record embedded in the attestation user data.
// Winner is empty when nobody placed a valid bid. Amounts are base-unit integers.
type SettlementUserData struct {
	AuctionID   string    `json:"auction_id"`
	Beneficiary string    `json:"beneficiary"`
	Winner      string    `json:"winner,omitempty"`
	Amount      string    `json:"amount"`
	BiddingEnd  time.Time `json:"bidding_end"`
	RevealEnd   time.Time `json:"reveal_end"`
	EndedAt     time.Time `json:"ended_at"`
}
