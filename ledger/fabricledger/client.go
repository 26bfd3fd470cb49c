// Package fabricledger implements the ledger gateway over a Hyperledger Fabric
// panel chaincode.
package fabricledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
)

// Chaincode functions
const (
	FnRegisterPanel     = "RegisterPanel"
	FnUpdatePanelStatus = "UpdatePanelStatus"
	FnMintPanelToken    = "MintPanelToken"
	FnMintMaterials     = "MintMaterials"
	FnTransferToken     = "TransferToken"
	FnGetPanel          = "GetPanel"
	FnGetPanelHistory   = "GetPanelHistory"
)

// Invoker runs chaincode functions. Submit returns once the transaction is
// committed.
type Invoker interface {
	Submit(name string, args ...string) (result []byte, txID string, err error)
	Evaluate(name string, args ...string) ([]byte, error)
}

// Client implements ledger.Gateway over an Invoker
type Client struct {
	invoker Invoker
	timeout time.Duration
	log     *logger.Logger
}

var _ ledger.Gateway = (*Client)(nil)

// New creates a client. A nil invoker yields an unavailable gateway.
func New(invoker Invoker, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{invoker: invoker, timeout: timeout, log: log.With("ledger", "fabric")}
}

func (c *Client) IsAvailable() bool { return c.invoker != nil }

func (c *Client) Register(ctx context.Context, externalID string, attrs ledger.Attributes) (string, error) {
	_, txID, err := c.submit(ctx, FnRegisterPanel, externalID, attrs.Brand, attrs.Model, attrs.Location, attrs.Note)
	return txID, err
}

func (c *Client) UpdateStatus(ctx context.Context, externalID string, status ledger.StatusCode, location, note string) (string, error) {
	_, txID, err := c.submit(ctx, FnUpdatePanelStatus, externalID, string(status), location, note)
	return txID, err
}

func (c *Client) MintToken(ctx context.Context, externalID, metadataURI, owner string) (ledger.MintReceipt, error) {
	if entity := c.GetEntity(ctx, externalID); entity.HasToken() {
		c.log.Debug("entity already minted, skipping", "external_id", externalID, "token_id", entity.TokenID)
		return ledger.MintReceipt{TokenID: entity.TokenID}, nil
	}

	result, txID, err := c.submit(ctx, FnMintPanelToken, externalID, metadataURI, owner)
	if err != nil {
		return ledger.MintReceipt{}, err
	}
	var minted struct {
		TokenID string `json:"token_id"`
	}
	if err := json.Unmarshal(result, &minted); err != nil || minted.TokenID == "" {
		return ledger.MintReceipt{}, ledger.CallFailed(FnMintPanelToken, errors.New("response carries no token_id"))
	}
	return ledger.MintReceipt{TxID: txID, TokenID: minted.TokenID}, nil
}

func (c *Client) MintMaterials(ctx context.Context, batch ledger.MaterialBatch) (string, error) {
	materials, err := json.Marshal(batch.Materials)
	if err != nil {
		return "", ledger.CallFailed(FnMintMaterials, err)
	}
	_, txID, err := c.submit(ctx, FnMintMaterials, batch.ExternalID, batch.Owner, string(materials))
	return txID, err
}

func (c *Client) Transfer(ctx context.Context, tokenID, to string) (string, error) {
	_, txID, err := c.submit(ctx, FnTransferToken, tokenID, to)
	return txID, err
}

func (c *Client) GetEntity(ctx context.Context, externalID string) *ledger.Entity {
	raw, err := c.evaluate(ctx, FnGetPanel, externalID)
	if err != nil || len(raw) == 0 {
		return nil
	}
	var entity ledger.Entity
	if err := json.Unmarshal(raw, &entity); err != nil {
		c.log.Warn("undecodable ledger entity", "external_id", externalID, "err", err)
		return nil
	}
	return &entity
}

func (c *Client) GetHistory(ctx context.Context, externalID string) []ledger.HistoryEntry {
	raw, err := c.evaluate(ctx, FnGetPanelHistory, externalID)
	if err != nil || len(raw) == 0 {
		return []ledger.HistoryEntry{}
	}
	var entries []ledger.HistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil || entries == nil {
		return []ledger.HistoryEntry{}
	}
	return entries
}

type submitResult struct {
	result []byte
	txID   string
	err    error
}

// submit runs a chaincode transaction bounded by ctx and the client timeout
func (c *Client) submit(ctx context.Context, name string, args ...string) ([]byte, string, error) {
	if c.invoker == nil {
		return nil, "", ledger.ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan submitResult, 1)
	go func() {
		result, txID, err := c.invoker.Submit(name, args...)
		done <- submitResult{result, txID, err}
	}()

	select {
	case <-ctx.Done():
		return nil, "", fmt.Errorf("%s: %w", name, ledger.ErrTimeout)
	case out := <-done:
		if out.err != nil {
			return nil, out.txID, ledger.CallFailed(name, out.err)
		}
		c.log.Debug("ledger tx committed", "fn", name, "tx_id", out.txID)
		return out.result, out.txID, nil
	}
}

func (c *Client) evaluate(ctx context.Context, name string, args ...string) ([]byte, error) {
	if c.invoker == nil {
		return nil, ledger.ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan submitResult, 1)
	go func() {
		result, err := c.invoker.Evaluate(name, args...)
		done <- submitResult{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ledger.ErrTimeout
	case out := <-done:
		if out.err != nil {
			c.log.Debug("ledger evaluate failed", "fn", name, "err", out.err)
		}
		return out.result, out.err
	}
}
