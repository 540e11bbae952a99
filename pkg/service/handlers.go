package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shadowdrop/shadowdrop-go/pkg/claim"
	"github.com/shadowdrop/shadowdrop-go/pkg/commitment"
	"github.com/shadowdrop/shadowdrop-go/pkg/derivation"
	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// CreateCampaignRequest is the creation payload. Funding defaults to
// the sum of the allocations when zero.
type CreateCampaignRequest struct {
	Authority string                `json:"authority"`
	Nonce     string                `json:"nonce,omitempty"`
	Name      string                `json:"name"`
	Token     types.Token           `json:"token"`
	Vesting   types.VestingSchedule `json:"vesting"`
	Funding   uint64                `json:"funding,omitempty"`
	Entries   []commitment.Entry    `json:"entries"`
}

// CreateCampaignResponse returns the public summary. The recipient
// secrets stay in the store; they are never part of any response.
type CreateCampaignResponse struct {
	Campaign types.CampaignInfo `json:"campaign"`
}

// ClaimRequest identifies one claim attempt.
type ClaimRequest struct {
	CampaignID types.Hash `json:"campaignId"`
	Wallet     string     `json:"wallet"`
}

// CloseCampaignRequest asks to close a campaign and reclaim the vault.
type CloseCampaignRequest struct {
	CampaignID types.Hash `json:"campaignId"`
	Authority  string     `json:"authority"`
}

// CloseCampaignResponse reports the returned balance.
type CloseCampaignResponse struct {
	Returned uint64 `json:"returned"`
}

// handleCreateCampaign builds the commitment, persists the artifact
// and registers the campaign on the ledger.
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Authority == "" {
		http.Error(w, "authority is required", http.StatusBadRequest)
		return
	}
	if len(req.Entries) == 0 {
		http.Error(w, "entries is required", http.StatusBadRequest)
		return
	}
	if err := req.Vesting.Validate(); err != nil {
		s.writeError(w, err)
		return
	}

	nonce := req.Nonce
	if nonce == "" {
		// 32 hex chars, exactly the nonce length limit.
		nonce = strings.ReplaceAll(uuid.NewString(), "-", "")
	}

	campaignID, err := derivation.CampaignID(req.Authority, nonce)
	if err != nil {
		s.writeError(w, err)
		return
	}
	vaultID, err := derivation.VaultID(req.Authority, nonce)
	if err != nil {
		s.writeError(w, err)
		return
	}

	artifact, err := commitment.Build(req.Entries, rand.Reader)
	if err != nil {
		s.writeError(w, err)
		return
	}

	campaign := &types.Campaign{
		ID:          campaignID,
		Nonce:       nonce,
		Name:        req.Name,
		Authority:   req.Authority,
		MerkleRoot:  artifact.Root,
		TotalAmount: artifact.TotalAmount(),
		Token:       req.Token,
		Vesting:     req.Vesting,
		VaultID:     vaultID,
		CreatedAt:   time.Now().UTC(),
		Recipients:  artifact.Recipients,
	}

	funding := req.Funding
	if funding == 0 {
		funding = campaign.TotalAmount
	}

	// Ledger first: if registration fails nothing is persisted locally
	// and the nonce stays reusable. The store is create-only, so the
	// opposite order would strand the nonce on any ledger failure.
	if err := s.ledger.CreateCampaign(r.Context(), campaign, funding); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.store.PutCampaign(campaign); err != nil {
		s.logger.Sugar().Errorw("Campaign registered on ledger but artifact not stored",
			"campaign", campaignID.Hex(), "error", err)
		s.writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign created",
		"campaign", campaignID.Hex(), "authority", req.Authority,
		"recipients", len(campaign.Recipients), "total", campaign.TotalAmount)

	s.writeJSON(w, http.StatusCreated, CreateCampaignResponse{Campaign: campaign.Info()})
}

// handleCampaignInfo returns the recipient-free summary of one
// campaign, merged with the live on-ledger counters.
func (s *Server) handleCampaignInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := s.campaignIDParam(w, r)
	if !ok {
		return
	}

	campaign, err := s.store.GetCampaign(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if campaign == nil {
		http.Error(w, "Campaign not found", http.StatusNotFound)
		return
	}

	info := campaign.Info()
	if state, err := s.ledger.GetCampaignState(r.Context(), id); err == nil {
		info.ClaimedCount = int(state.TotalClaims)
	}
	s.writeJSON(w, http.StatusOK, info)
}

// handleListCampaigns lists campaign summaries, optionally filtered by
// ?authority=.
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var campaigns []*types.Campaign
	var err error
	if authority := r.URL.Query().Get("authority"); authority != "" {
		campaigns, err = s.store.ListCampaignsByAuthority(authority)
	} else {
		campaigns, err = s.store.ListCampaigns()
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	infos := make([]types.CampaignInfo, 0, len(campaigns))
	for _, campaign := range campaigns {
		infos = append(infos, campaign.Info())
	}
	s.writeJSON(w, http.StatusOK, infos)
}

// handleCloseCampaign deactivates a campaign and returns the remaining
// vault balance to the authority.
func (s *Server) handleCloseCampaign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CloseCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	returned, err := s.ledger.CloseCampaign(r.Context(), req.CampaignID, req.Authority)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.logger.Sugar().Infow("Campaign closed",
		"campaign", req.CampaignID.Hex(), "returned", returned)

	s.writeJSON(w, http.StatusOK, CloseCampaignResponse{Returned: returned})
}

// handleCheckEligibility answers ?campaignId=&wallet=.
func (s *Server) handleCheckEligibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := s.campaignIDParam(w, r)
	if !ok {
		return
	}
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		http.Error(w, "wallet is required", http.StatusBadRequest)
		return
	}

	check, err := s.orchestrator.CheckEligibility(r.Context(), id, wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, check)
}

// handleEligibleCampaigns lists campaigns a wallet can still claim in.
func (s *Server) handleEligibleCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		http.Error(w, "wallet is required", http.StatusBadRequest)
		return
	}

	eligible, err := s.orchestrator.ListEligibleCampaigns(r.Context(), wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, eligible)
}

// handleGenerateProof runs the proof flow and returns the validated
// proof for out-of-band submission.
func (s *Server) handleGenerateProof(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	proof, err := s.orchestrator.RequestProof(r.Context(), req.CampaignID, req.Wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, proof)
}

// handleClaimToken runs the non-anonymous claim path end to end.
func (s *Server) handleClaimToken(w http.ResponseWriter, r *http.Request) {
	s.handleClaim(w, r, s.processor.ClaimToken)
}

// handleClaimAnonymous runs the proof-carrying claim path end to end.
func (s *Server) handleClaimAnonymous(w http.ResponseWriter, r *http.Request) {
	s.handleClaim(w, r, s.processor.ClaimAnonymous)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request,
	submit func(ctx context.Context, id types.Hash, wallet string) (*claim.Result, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.Wallet == "" {
		http.Error(w, "wallet is required", http.StatusBadRequest)
		return
	}

	result, err := submit(r.Context(), req.CampaignID, req.Wallet)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// handleHealth checks the store so orchestrators can fail fast.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.HealthCheck(); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) campaignIDParam(w http.ResponseWriter, r *http.Request) (types.Hash, bool) {
	raw := r.URL.Query().Get("campaignId")
	if raw == "" {
		http.Error(w, "campaignId is required", http.StatusBadRequest)
		return types.Hash{}, false
	}
	id, err := types.HashFromHex(raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid campaignId: %v", err), http.StatusBadRequest)
		return types.Hash{}, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Sugar().Errorw("Failed to encode response", "error", err)
	}
}

// writeError maps the error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, types.ErrInvalidInput), errors.Is(err, types.ErrHashDomain):
		status = http.StatusBadRequest
	case errors.Is(err, types.ErrCampaignNotFound), errors.Is(err, types.ErrNotEligible):
		status = http.StatusNotFound
	case errors.Is(err, types.ErrAlreadyClaimed), errors.Is(err, types.ErrCampaignExists),
		errors.Is(err, types.ErrVaultUnderfunded), errors.Is(err, types.ErrNothingVested):
		status = http.StatusConflict
	case errors.Is(err, types.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, types.ErrProofServiceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, types.ErrMalformedProof):
		status = http.StatusBadGateway
	default:
		var rejected *types.LedgerRejectedError
		if errors.As(err, &rejected) {
			if rejected.Retryable {
				status = http.StatusServiceUnavailable
			} else {
				status = http.StatusConflict
			}
		}
	}
	http.Error(w, err.Error(), status)
}
