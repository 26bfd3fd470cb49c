// Package ledger defines the capability the lifecycle coordinator needs from
// the external ledger, independent of the network behind it.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// StatusCode is a ledger-side lifecycle status. Several local statuses share
// one code.
type StatusCode string

const (
	StatusCollected     StatusCode = "collected"
	StatusReceived      StatusCode = "received"
	StatusReuseApproved StatusCode = "reuse-approved"
	StatusArtApproved   StatusCode = "art-approved"
	StatusArtListed     StatusCode = "art-listed"
	StatusRecycled      StatusCode = "recycled"
	StatusSold          StatusCode = "sold"
)

// Attributes describe a panel at registration
type Attributes struct {
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Location string `json:"location"`
	Note     string `json:"note"`
}

// MintReceipt is returned by a token mint
type MintReceipt struct {
	TxID    string `json:"tx_id"`
	TokenID string `json:"token_id"`
}

// MaterialQuantity is one line of a material mint batch
type MaterialQuantity struct {
	Kind     string          `json:"kind"`
	Quantity decimal.Decimal `json:"quantity"`
}

// MaterialBatch mints every material recovered from one panel in one call
type MaterialBatch struct {
	ExternalID string             `json:"external_id"`
	Owner      string             `json:"owner"`
	Materials  []MaterialQuantity `json:"materials"`
}

// Entity is the ledger-observed state of a registered panel
type Entity struct {
	ExternalID string     `json:"external_id"`
	Brand      string     `json:"brand,omitempty"`
	Model      string     `json:"model,omitempty"`
	Status     StatusCode `json:"status"`
	Location   string     `json:"location,omitempty"`
	TokenID    string     `json:"token_id,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasToken reports whether the entity carries a minted token. Ledgers that
// use numeric ids report "0" for none.
func (e *Entity) HasToken() bool {
	return e != nil && e.TokenID != "" && e.TokenID != "0"
}

// HistoryEntry is one status change recorded on the ledger
type HistoryEntry struct {
	TxID      string     `json:"tx_id"`
	Status    StatusCode `json:"status"`
	Location  string     `json:"location,omitempty"`
	Note      string     `json:"note,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Gateway is the narrow ledger capability consumed by the coordinator. Writes
// fail with ErrUnavailable when no ledger is configured and with an error
// matching ErrCallFailed otherwise. Reads never fail; they return nil or an
// empty slice instead.
type Gateway interface {
	IsAvailable() bool

	Register(ctx context.Context, externalID string, attrs Attributes) (string, error)
	UpdateStatus(ctx context.Context, externalID string, status StatusCode, location, note string) (string, error)
	// MintToken checks the ledger entity first and returns its existing
	// token instead of minting a second one.
	MintToken(ctx context.Context, externalID, metadataURI, owner string) (MintReceipt, error)
	MintMaterials(ctx context.Context, batch MaterialBatch) (string, error)
	Transfer(ctx context.Context, tokenID, to string) (string, error)

	GetEntity(ctx context.Context, externalID string) *Entity
	GetHistory(ctx context.Context, externalID string) []HistoryEntry
}

// Disabled is the gateway used when no ledger is configured
type Disabled struct{}

var _ Gateway = Disabled{}

func (Disabled) IsAvailable() bool { return false }

func (Disabled) Register(context.Context, string, Attributes) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) UpdateStatus(context.Context, string, StatusCode, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) MintToken(context.Context, string, string, string) (MintReceipt, error) {
	return MintReceipt{}, ErrUnavailable
}

func (Disabled) MintMaterials(context.Context, MaterialBatch) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) Transfer(context.Context, string, string) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) GetEntity(context.Context, string) *Entity { return nil }

func (Disabled) GetHistory(context.Context, string) []HistoryEntry { return []HistoryEntry{} }
