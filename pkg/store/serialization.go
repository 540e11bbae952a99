package store

import (
	"encoding/json"
	"fmt"

	"github.com/shadowdrop/shadowdrop-go/pkg/types"
)

// MarshalCampaign serializes a campaign to JSON bytes. Hash fields
// carry their own hex JSON encoding, so stored records stay readable
// with standard tooling — except for the recipient secrets, which the
// durable backends run through a Sealer before the bytes hit disk.
func MarshalCampaign(c *types.Campaign) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("cannot marshal nil Campaign")
	}

	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Campaign to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalCampaign deserializes a campaign from JSON bytes.
func UnmarshalCampaign(data []byte) (*types.Campaign, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var c types.Campaign
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Campaign: %w", err)
	}

	return &c, nil
}
