// Package web exposes the wallet's function surface over a local HTTP
// API, plus a server-sent-events stream of confirmed submissions.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/lumeris/lumeris/internal/domain"
	"github.com/lumeris/lumeris/internal/services/orchestrator"
	"github.com/lumeris/lumeris/internal/storage/submissions"
)

const journalPollInterval = 2 * time.Second

// walletAPI is the slice of the wallet facade the server needs.
type walletAPI interface {
	GetSnapshot() domain.AccountSnapshot
	Refresh(ctx context.Context) error
	SendPayment(ctx context.Context, params orchestrator.PaymentParams) (orchestrator.Receipt, error)
	AddTrustline(ctx context.Context, asset domain.Asset, limit *decimal.Decimal) (orchestrator.Receipt, error)
	RemoveTrustline(ctx context.Context, asset domain.Asset) (orchestrator.Receipt, error)
	JoinLiquidityPool(ctx context.Context, params orchestrator.PoolJoinParams) (orchestrator.Receipt, error)
}

type journalReader interface {
	RecordsAfter(index uint64) ([]submissions.IndexedRecord, error)
}

// Server serves the wallet API on a local address.
type Server struct {
	Addr    string
	Wallet  walletAPI
	Journal journalReader
	Logger  *zap.Logger
}

// NewServer creates a wallet API server.
func NewServer(addr string, wallet walletAPI, journal journalReader, logger *zap.Logger) *Server {
	return &Server{Addr: addr, Wallet: wallet, Journal: journal, Logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)
	mux.HandleFunc("POST /refresh", s.handleRefresh)
	mux.HandleFunc("POST /payments", s.handlePayment)
	mux.HandleFunc("POST /trustlines", s.handleAddTrustline)
	mux.HandleFunc("DELETE /trustlines", s.handleRemoveTrustline)
	mux.HandleFunc("POST /pool-deposits", s.handlePoolDeposit)
	mux.HandleFunc("GET /submissions/stream", s.handleSubmissionStream)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Wallet.GetSnapshot())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.Wallet.Refresh(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Wallet.GetSnapshot())
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var params orchestrator.PaymentParams
	if !decodeBody(w, r, &params) {
		return
	}
	receipt, err := s.Wallet.SendPayment(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type trustlineRequest struct {
	Asset domain.Asset     `json:"asset"`
	Limit *decimal.Decimal `json:"limit,omitempty"`
}

func (s *Server) handleAddTrustline(w http.ResponseWriter, r *http.Request) {
	var req trustlineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := s.Wallet.AddTrustline(r.Context(), req.Asset, req.Limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleRemoveTrustline(w http.ResponseWriter, r *http.Request) {
	var req trustlineRequest
	if !decodeBody(w, r, &req) {
		return
	}
	receipt, err := s.Wallet.RemoveTrustline(r.Context(), req.Asset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handlePoolDeposit(w http.ResponseWriter, r *http.Request) {
	var params orchestrator.PoolJoinParams
	if !decodeBody(w, r, &params) {
		return
	}
	receipt, err := s.Wallet.JoinLiquidityPool(r.Context(), params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleSubmissionStream(w http.ResponseWriter, r *http.Request) {
	if s.Journal == nil {
		http.Error(w, "submission journal not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(journalPollInterval)
	defer pollTicker.Stop()

	lastIndex := uint64(0)
	sendRecords := func() error {
		records, err := s.Journal.RecordsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Record)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", record.Index, payload); err != nil {
				return err
			}
			lastIndex = record.Index
		}
		if len(records) > 0 {
			flusher.Flush()
		}
		return nil
	}

	if err := sendRecords(); err != nil {
		s.Logger.Warn("submission stream send failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-pollTicker.C:
			if err := sendRecords(); err != nil {
				s.Logger.Warn("submission stream send failed", zap.Error(err))
				return
			}
		}
	}
}

// writeError maps the domain error taxonomy onto HTTP status codes and
// surfaces the underlying reason verbatim.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var validationErr *domain.ValidationError
	var authErr *domain.AuthError
	var fetchErr *domain.FetchError
	var submissionErr *domain.SubmissionError
	var slippageErr *domain.SlippageExceededError

	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &authErr):
		status = http.StatusUnauthorized
	case errors.As(err, &slippageErr):
		status = http.StatusConflict
	case errors.As(err, &submissionErr):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &fetchErr):
		status = http.StatusBadGateway
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "malformed request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
