package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/sealedbid/auctionapi"
	"github.com/cloudx-io/sealedbid/store"
)

const requestReadTimeout = 30 * time.Second

// AuctionServer accepts one JSON request per connection and dispatches it to the host.
type AuctionServer struct {
	config  Config
	host    *AuctionHost
	metrics *hostMetrics
}

func NewAuctionServer(config Config, host *AuctionHost, metrics *hostMetrics) *AuctionServer {
	return &AuctionServer{config: config, host: host, metrics: metrics}
}

func (s *AuctionServer) listen() (net.Listener, error) {
	switch s.config.Listen.Network {
	case networkVsock:
		listener, err := vsock.Listen(s.config.Listen.VsockPort, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create vsock listener: %w", err)
		}
		log.Printf("INFO: Auction host listening on vsock port %d", s.config.Listen.VsockPort)
		return listener, nil
	case networkTCP:
		listener, err := net.Listen("tcp", s.config.Listen.TCPAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create tcp listener: %w", err)
		}
		log.Printf("INFO: Auction host listening on tcp %s", listener.Addr())
		return listener, nil
	default:
		return nil, fmt.Errorf("unsupported network %q", s.config.Listen.Network)
	}
}

// Start listens on the configured transport and serves until ctx is cancelled.
func (s *AuctionServer) Start(ctx context.Context) error {
	listener, err := s.listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, listener)
}

// Serve runs the accept loop on listener with a bounded worker pool. Connections that
// arrive while every worker is busy are closed immediately. Serve closes listener and
// returns nil once ctx is cancelled.
func (s *AuctionServer) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	semaphore := make(chan struct{}, s.config.MaxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.config.MaxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("ERROR: Failed to accept connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(ctx, c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *AuctionServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(requestReadTimeout))

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, conn); err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(ctx, buf.Bytes())

	if err := json.NewEncoder(conn).Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// dispatch decodes one request and returns the response to encode.
func (s *AuctionServer) dispatch(ctx context.Context, raw []byte) any {
	var base auctionapi.BaseRequest
	if err := json.Unmarshal(raw, &base); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return errorResponse("", fmt.Sprintf("Failed to decode request: %v", err))
	}

	log.Printf("INFO: Received request type: %s", base.Type)

	switch base.Type {
	case auctionapi.RequestTypePing:
		return auctionapi.PongResponse{
			Type:      auctionapi.ResponseTypePong,
			Message:   "auction host is healthy",
			Timestamp: time.Now().Unix(),
		}

	case auctionapi.RequestTypeBid:
		var req auctionapi.BidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(base, err)
		}
		return s.host.Bid(ctx, req)

	case auctionapi.RequestTypeReveal:
		var req auctionapi.RevealRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(base, err)
		}
		return s.host.Reveal(ctx, req)

	case auctionapi.RequestTypeWithdraw:
		var req auctionapi.WithdrawRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(base, err)
		}
		return s.host.Withdraw(ctx, req)

	case auctionapi.RequestTypeEndAuction:
		var req auctionapi.EndAuctionRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(base, err)
		}
		return s.host.EndAuction(ctx, req)

	case auctionapi.RequestTypeStatus:
		var req auctionapi.StatusRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeError(base, err)
		}
		resp, err := s.host.Status(req)
		if err != nil {
			return errorResponse(base.RequestID, fmt.Sprintf("Status failed: %v", err))
		}
		return resp

	default:
		return errorResponse(base.RequestID, fmt.Sprintf("Unknown request type: %s", base.Type))
	}
}

func decodeError(base auctionapi.BaseRequest, err error) auctionapi.ErrorResponse {
	log.Printf("ERROR: Failed to decode %s request: %v", base.Type, err)
	return errorResponse(base.RequestID, fmt.Sprintf("Failed to decode %s request: %v", base.Type, err))
}

func errorResponse(requestID, message string) auctionapi.ErrorResponse {
	return auctionapi.ErrorResponse{Type: auctionapi.ResponseTypeError, RequestID: requestID, Message: message}
}

func serveMetrics(ctx context.Context, addr string, metrics *hostMetrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("INFO: Serving metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("ERROR: Metrics server stopped: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return err
	}

	logFile := setupLogging(cfg.LogFile)
	defer logFile.Close()

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Printf("ERROR: Failed to close store: %v", err)
		}
	}()

	var attester EnclaveAttester
	if cfg.Auction.AttestationEnabled {
		attester, err = getEnclaveAttester()
		if err != nil {
			log.Printf("WARNING: %v (settlement attestation disabled)", err)
			attester = nil
		}
	}

	metrics := newHostMetrics()
	if cfg.Metrics != "" {
		go serveMetrics(ctx, cfg.Metrics, metrics)
	}

	host, err := NewAuctionHost(cfg.Auction, st, nil, attester, metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize auction host: %w", err)
	}

	return NewAuctionServer(cfg, host, metrics).Start(ctx)
}

func main() {
	configPath := flag.String("config", "auction.toml", "Path to host config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}
