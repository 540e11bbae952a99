// Package service exposes the campaign lifecycle over HTTP: create,
// inspect, check eligibility, fetch proofs, claim. Handlers are thin;
// all protocol rules live in the packages behind them.
package service

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/shadowdrop/shadowdrop-go/pkg/claim"
	"github.com/shadowdrop/shadowdrop-go/pkg/eligibility"
	"github.com/shadowdrop/shadowdrop-go/pkg/ledger"
	"github.com/shadowdrop/shadowdrop-go/pkg/prover"
	"github.com/shadowdrop/shadowdrop-go/pkg/store"
)

// Server handles HTTP requests for campaign creation and claiming.
type Server struct {
	store        store.ICampaignStore
	ledger       ledger.ILedger
	orchestrator *eligibility.Orchestrator
	processor    *claim.Processor
	logger       *zap.Logger
	httpServer   *http.Server
}

// NewServer wires the HTTP server to its collaborators.
func NewServer(st store.ICampaignStore, lg ledger.ILedger, pr prover.IProver, logger *zap.Logger, port int) *Server {
	orchestrator := eligibility.NewOrchestrator(st, lg, pr, logger)

	s := &Server{
		store:        st,
		ledger:       lg,
		orchestrator: orchestrator,
		processor:    claim.NewProcessor(st, lg, orchestrator, logger),
		logger:       logger,
	}

	mux := http.NewServeMux()

	// Campaign lifecycle
	mux.HandleFunc("/campaigns/create", s.handleCreateCampaign)
	mux.HandleFunc("/campaigns/info", s.handleCampaignInfo)
	mux.HandleFunc("/campaigns/list", s.handleListCampaigns)
	mux.HandleFunc("/campaigns/close", s.handleCloseCampaign)

	// Eligibility and proofs
	mux.HandleFunc("/eligibility/check", s.handleCheckEligibility)
	mux.HandleFunc("/eligibility/campaigns", s.handleEligibleCampaigns)
	mux.HandleFunc("/proofs/generate", s.handleGenerateProof)

	// Claim submission
	mux.HandleFunc("/claims/token", s.handleClaimToken)
	mux.HandleFunc("/claims/anonymous", s.handleClaimAnonymous)

	// Health endpoint for startup probes
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	go func() {
		s.logger.Sugar().Infow("Starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing).
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}

// Processor exposes the claim processor (for testing the clock).
func (s *Server) Processor() *claim.Processor {
	return s.processor
}
