package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/cloudx-io/sealedbid/auctionapi"
	"github.com/cloudx-io/sealedbid/core"
	"github.com/cloudx-io/sealedbid/store"
)

// AuctionHost owns the single auction served by this process. All core operations run
// under mu, one at a time. An accepted operation's snapshot, payouts and settlement are
// committed in one store batch before the response is returned; if the commit fails the
// auction is restored to the last committed snapshot.
type AuctionHost struct {
	mu        sync.Mutex
	auctionID string
	decimals  int32
	auction   *core.Auction
	committed core.Snapshot
	pending   pendingOperation
	payer     *journalPayer
	events    *settlementSink
	store     *store.Store
	clock     core.Clock
	attester  EnclaveAttester
	metrics   *hostMetrics
}

// NewAuctionHost restores the auction persisted in st, or starts a new one from cfg if
// the store is empty. A nil attester disables settlement attestation.
func NewAuctionHost(cfg AuctionConfig, st *store.Store, clock core.Clock, attester EnclaveAttester, metrics *hostMetrics) (*AuctionHost, error) {
	if clock == nil {
		clock = core.SystemClock
	}
	h := &AuctionHost{
		decimals: cfg.AmountDecimals,
		store:    st,
		clock:    clock,
		attester: attester,
		metrics:  metrics,
	}
	h.payer = &journalPayer{pending: &h.pending, clock: clock}
	h.events = &settlementSink{host: h}

	auctionID, found, err := st.AuctionID()
	if err != nil {
		return nil, err
	}
	if !found {
		auctionID = uuid.NewString()
		if err := st.PutAuctionID(auctionID); err != nil {
			return nil, err
		}
	}
	h.auctionID = auctionID

	snap, found, err := st.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if found {
		h.auction, err = core.RestoreAuction(snap, clock, h.payer, h.events)
		if err != nil {
			return nil, fmt.Errorf("failed to restore auction %s: %w", auctionID, err)
		}
		h.committed = snap
		log.Printf("INFO: Restored auction %s (phase=%s)", auctionID, h.auction.Phase())
		return h, nil
	}

	config := core.NewConfig(cfg.BeneficiaryAddress(), clock.Now(), cfg.BiddingTime.Duration, cfg.RevealTime.Duration)
	h.auction, err = core.NewAuction(config, clock, h.payer, h.events)
	if err != nil {
		return nil, err
	}
	h.committed = h.auction.Snapshot()
	if _, err := st.CommitOperation(store.Operation{Snapshot: h.committed}); err != nil {
		return nil, err
	}
	log.Printf("INFO: Started auction %s: bidding until %s, reveal until %s",
		auctionID, config.BiddingEnd.UTC().Format(time.RFC3339), config.RevealEnd.UTC().Format(time.RFC3339))
	return h, nil
}

// AuctionID returns the identifier embedded in settlement attestations.
func (h *AuctionHost) AuctionID() string { return h.auctionID }

// Bid handles a bid request.
func (h *AuctionHost) Bid(ctx context.Context, req auctionapi.BidRequest) auctionapi.OperationResponse {
	return h.run(auctionapi.RequestTypeBid, req.RequestID, func() (bool, string, error) {
		caller, err := parseCaller(req.Caller)
		if err != nil {
			return false, "", err
		}
		commitment, err := core.ParseCommitment(req.Commitment)
		if err != nil {
			return false, "", fmt.Errorf("invalid commitment: %w", err)
		}
		deposit, err := auctionapi.ParseAmount(req.Deposit, h.decimals)
		if err != nil {
			return false, "", err
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		accepted, err := h.auction.Bid(ctx, caller, commitment, deposit)
		if err = h.finish(accepted, err); err != nil {
			return false, "", err
		}
		if accepted {
			log.Printf("INFO: Bid %d placed by %s", h.auction.BidCount(caller), caller.Hex())
		}
		return accepted, "", nil
	})
}

// Reveal handles a reveal request.
func (h *AuctionHost) Reveal(ctx context.Context, req auctionapi.RevealRequest) auctionapi.OperationResponse {
	return h.run(auctionapi.RequestTypeReveal, req.RequestID, func() (bool, string, error) {
		caller, err := parseCaller(req.Caller)
		if err != nil {
			return false, "", err
		}
		openings, err := h.parseOpenings(req)
		if err != nil {
			return false, "", err
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		accepted, err := h.auction.Reveal(ctx, caller, req.DeclaredCount, openings)
		if err = h.finish(accepted, err); err != nil {
			return false, "", err
		}
		if accepted {
			highest := h.auction.HighestBid()
			log.Printf("INFO: %s revealed %d bids, highest bid now %s by %s",
				caller.Hex(), req.DeclaredCount, highest.Amount.Dec(), highest.Bidder.Hex())
		}
		return accepted, "", nil
	})
}

// Withdraw handles a withdraw request.
func (h *AuctionHost) Withdraw(ctx context.Context, req auctionapi.WithdrawRequest) auctionapi.OperationResponse {
	return h.run(auctionapi.RequestTypeWithdraw, req.RequestID, func() (bool, string, error) {
		caller, err := parseCaller(req.Caller)
		if err != nil {
			return false, "", err
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		paid, err := h.auction.Withdraw(ctx, caller)
		if err = h.finish(!paid.IsZero(), err); err != nil {
			return false, "", err
		}
		if paid.IsZero() {
			return false, "", nil
		}
		log.Printf("INFO: Withdrawal of %s to %s", paid.Dec(), caller.Hex())
		return true, auctionapi.FormatAmount(&paid, h.decimals), nil
	})
}

// EndAuction handles an end_auction request.
func (h *AuctionHost) EndAuction(ctx context.Context, req auctionapi.EndAuctionRequest) auctionapi.OperationResponse {
	return h.run(auctionapi.RequestTypeEndAuction, req.RequestID, func() (bool, string, error) {
		h.mu.Lock()
		defer h.mu.Unlock()
		ended, err := h.auction.EndAuction(ctx)
		if err = h.finish(ended, err); err != nil {
			return false, "", err
		}
		return ended, "", nil
	})
}

// Status reports the auction as seen by the caller. The caller may be empty.
func (h *AuctionHost) Status(req auctionapi.StatusRequest) (auctionapi.StatusResponse, error) {
	started := time.Now()
	var caller common.Address
	if req.Caller != "" {
		parsed, err := parseCaller(req.Caller)
		if err != nil {
			h.metrics.observeRequest(auctionapi.RequestTypeStatus, outcomeError, started)
			return auctionapi.StatusResponse{}, err
		}
		caller = parsed
	}

	h.mu.Lock()
	config := h.auction.Config()
	highest := h.auction.HighestBid()
	pending := h.auction.PendingReturn(caller)
	resp := auctionapi.StatusResponse{
		Type:        auctionapi.ResponseTypeStatus,
		RequestID:   req.RequestID,
		AuctionID:   h.auctionID,
		Phase:       h.auction.Phase().String(),
		Beneficiary: config.Beneficiary.Hex(),
		BiddingEnd:  config.BiddingEnd.UTC(),
		RevealEnd:   config.RevealEnd.UTC(),
		HighestBid: auctionapi.HighestBid{
			Bidder: highest.Bidder.Hex(),
			Amount: auctionapi.FormatAmount(&highest.Amount, h.decimals),
		},
		Ended:               h.auction.Ended(),
		CallerBidCount:      h.auction.BidCount(caller),
		CallerPendingReturn: auctionapi.FormatAmount(&pending, h.decimals),
	}
	ended := h.auction.Ended()
	h.mu.Unlock()

	if ended {
		settlement, found, err := h.store.LoadSettlement()
		if err != nil {
			h.metrics.observeRequest(auctionapi.RequestTypeStatus, outcomeError, started)
			return auctionapi.StatusResponse{}, err
		}
		if found && len(settlement.Attestation) > 0 {
			attestation := auctionapi.AttestationCOSE(settlement.Attestation)
			resp.AttestationCOSEBase64 = attestation.EncodeBase64()
			resp.AttestationGzip, err = attestation.CompressGzip()
			if err != nil {
				h.metrics.observeRequest(auctionapi.RequestTypeStatus, outcomeError, started)
				return auctionapi.StatusResponse{}, err
			}
		}
	}
	h.metrics.observeRequest(auctionapi.RequestTypeStatus, outcomeAccepted, started)
	return resp, nil
}

// run executes op and shapes its result into an OperationResponse. op returns whether
// the operation was accepted, the amount paid (if any) and an aborting error.
func (h *AuctionHost) run(requestType, requestID string, op func() (bool, string, error)) auctionapi.OperationResponse {
	started := time.Now()
	accepted, paid, err := op()

	resp := auctionapi.OperationResponse{
		Type:           auctionapi.ResponseTypeOperation,
		RequestID:      requestID,
		Operation:      requestType,
		Success:        err == nil,
		Accepted:       accepted,
		Paid:           paid,
		ProcessingTime: time.Since(started).Milliseconds(),
	}

	outcome := outcomeRejected
	switch {
	case err != nil:
		outcome = outcomeError
		resp.Message = err.Error()
		log.Printf("ERROR: %s failed: %v", requestType, err)
	case accepted:
		outcome = outcomeAccepted
	}
	h.metrics.observeRequest(requestType, outcome, started)
	return resp
}

// finish commits an accepted operation or discards what a rejected or aborted one left
// pending. Callers hold mu.
func (h *AuctionHost) finish(accepted bool, err error) error {
	if err != nil || !accepted {
		h.pending.reset()
		return err
	}
	return h.commit()
}

// commit writes the snapshot, payouts and settlement of the operation that just ran in
// one batch. On failure nothing is journaled and the in-memory auction goes back to the
// last committed snapshot. Callers hold mu.
func (h *AuctionHost) commit() error {
	defer h.pending.reset()

	snap := h.auction.Snapshot()
	journaled, err := h.store.CommitOperation(store.Operation{
		Snapshot:   snap,
		Payouts:    h.pending.payouts,
		Settlement: h.pending.settlement,
	})
	if err != nil {
		restored, restoreErr := core.RestoreAuction(h.committed, h.clock, h.payer, h.events)
		if restoreErr != nil {
			log.Printf("ERROR: Failed to roll back auction %s: %v", h.auctionID, restoreErr)
			return fmt.Errorf("state not persisted and rollback failed: %w", errors.Join(err, restoreErr))
		}
		h.auction = restored
		return fmt.Errorf("operation rolled back, state not persisted: %w", err)
	}

	h.committed = snap
	for _, p := range journaled {
		h.metrics.observePayout(p.Reason, &p.Amount)
		log.Printf("INFO: Payout #%d (%s) journaled: %s to %s", p.Seq, p.Reason, p.Amount.Dec(), p.Account.Hex())
	}
	return nil
}

func (h *AuctionHost) parseOpenings(req auctionapi.RevealRequest) ([]core.Opening, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if len(req.Values) > core.MaxBids {
		return nil, fmt.Errorf("at most %d openings per reveal, got %d", core.MaxBids, len(req.Values))
	}

	openings := make([]core.Opening, len(req.Values))
	for i := range req.Values {
		value, err := auctionapi.ParseAmount(req.Values[i], h.decimals)
		if err != nil {
			return nil, fmt.Errorf("opening %d: %w", i, err)
		}
		secret, err := core.ParseSecret(req.Secrets[i])
		if err != nil {
			return nil, fmt.Errorf("opening %d: invalid secret: %w", i, err)
		}
		openings[i] = core.Opening{Value: *value, Fake: req.Fakes[i], Secret: secret}
	}
	return openings, nil
}

func parseCaller(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid caller %q", s)
	}
	return common.HexToAddress(s), nil
}
