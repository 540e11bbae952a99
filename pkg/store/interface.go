// Package store is the off-chain side of a campaign: the recipient
// list with its secrets and paths, which must outlive the process but
// never reach the ledger. All implementations are safe for concurrent
// use; the claim flow reads and marks recipients from request handlers
// running in parallel.
package store

import (
	"time"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// ICampaignStore persists campaigns and their recipient sets.
//
// Campaign records are create-once: PutCampaign must reject an id that
// already exists, because replacing a stored artifact would swap the
// secrets out from under an already-published merkle root. The only
// mutation after creation is MarkClaimed on individual recipients.
type ICampaignStore interface {
	// PutCampaign stores a new campaign. Returns
	// types.ErrCampaignExists if the id is already present.
	PutCampaign(campaign *types.Campaign) error

	// GetCampaign retrieves a campaign by id, recipients included.
	// Returns nil if the campaign doesn't exist, error only on storage
	// failure.
	GetCampaign(id types.Hash) (*types.Campaign, error)

	// ListCampaigns returns every stored campaign, sorted by creation
	// time ascending. Returns an empty slice if none exist.
	ListCampaigns() ([]*types.Campaign, error)

	// ListCampaignsByAuthority returns the campaigns created by one
	// authority wallet, sorted by creation time ascending.
	ListCampaignsByAuthority(authority string) ([]*types.Campaign, error)

	// MarkClaimed flags one recipient leaf as claimed. Idempotent on an
	// already-claimed leaf. Returns types.ErrCampaignNotFound for an
	// unknown campaign and types.ErrInvalidInput for an out-of-range
	// leaf index.
	MarkClaimed(campaignID types.Hash, leafIndex int, at time.Time) error

	// Close cleanly shuts down the store. Idempotent.
	Close() error

	// HealthCheck verifies the store is operational. Called during
	// server startup to fail fast.
	HealthCheck() error
}
