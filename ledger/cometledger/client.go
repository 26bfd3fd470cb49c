// Package cometledger implements the ledger gateway over a CometBFT chain
// whose application accepts JSON transaction envelopes.
package cometledger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmthttp "github.com/cometbft/cometbft/rpc/client/http"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/google/uuid"
)

// ABCI query paths served by the panel application
const (
	PathEntity  = "/entity"
	PathHistory = "/history"
)

// Transaction envelope ops
const (
	OpRegister      = "register"
	OpUpdateStatus  = "update_status"
	OpMintToken     = "mint_token"
	OpMintMaterials = "mint_materials"
	OpTransfer      = "transfer"
)

// RPC is the subset of the CometBFT RPC client used by the gateway
type RPC interface {
	BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error)
	ABCIQuery(ctx context.Context, path string, data cmtbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error)
}

// Envelope is the JSON transaction delivered to the chain
type Envelope struct {
	Op          string                    `json:"op"`
	ExternalID  string                    `json:"external_id,omitempty"`
	Brand       string                    `json:"brand,omitempty"`
	Model       string                    `json:"model,omitempty"`
	Location    string                    `json:"location,omitempty"`
	Note        string                    `json:"note,omitempty"`
	Status      ledger.StatusCode         `json:"status,omitempty"`
	MetadataURI string                    `json:"metadata_uri,omitempty"`
	Owner       string                    `json:"owner,omitempty"`
	TokenID     string                    `json:"token_id,omitempty"`
	To          string                    `json:"to,omitempty"`
	Materials   []ledger.MaterialQuantity `json:"materials,omitempty"`
	// Nonce keeps identical calls from colliding in the mempool cache
	Nonce     string    `json:"nonce"`
	Timestamp time.Time `json:"timestamp"`
}

// Client talks to a CometBFT node over RPC
type Client struct {
	rpc     RPC
	timeout time.Duration
	log     *logger.Logger
}

var _ ledger.Gateway = (*Client)(nil)

// Dial creates a client for the RPC endpoint, e.g. "http://localhost:26657".
func Dial(endpoint string, timeout time.Duration, log *logger.Logger) (*Client, error) {
	httpClient, err := cmthttp.NewWithClient(endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create CometBFT client: %w", err)
	}
	httpClient.SetLogger(log.Comet())
	return New(httpClient, timeout, log), nil
}

// New wraps an existing RPC client
func New(rpc RPC, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{rpc: rpc, timeout: timeout, log: log.With("ledger", "comet")}
}

func (c *Client) IsAvailable() bool { return c.rpc != nil }

func (c *Client) Register(ctx context.Context, externalID string, attrs ledger.Attributes) (string, error) {
	res, err := c.broadcast(ctx, Envelope{
		Op:         OpRegister,
		ExternalID: externalID,
		Brand:      attrs.Brand,
		Model:      attrs.Model,
		Location:   attrs.Location,
		Note:       attrs.Note,
	})
	if err != nil {
		return "", err
	}
	return txHash(res), nil
}

func (c *Client) UpdateStatus(ctx context.Context, externalID string, status ledger.StatusCode, location, note string) (string, error) {
	res, err := c.broadcast(ctx, Envelope{
		Op:         OpUpdateStatus,
		ExternalID: externalID,
		Status:     status,
		Location:   location,
		Note:       note,
	})
	if err != nil {
		return "", err
	}
	return txHash(res), nil
}

func (c *Client) MintToken(ctx context.Context, externalID, metadataURI, owner string) (ledger.MintReceipt, error) {
	if entity := c.GetEntity(ctx, externalID); entity.HasToken() {
		c.log.Debug("entity already minted, skipping", "external_id", externalID, "token_id", entity.TokenID)
		return ledger.MintReceipt{TokenID: entity.TokenID}, nil
	}

	res, err := c.broadcast(ctx, Envelope{
		Op:          OpMintToken,
		ExternalID:  externalID,
		MetadataURI: metadataURI,
		Owner:       owner,
	})
	if err != nil {
		return ledger.MintReceipt{}, err
	}

	tokenID := eventAttribute(res, "token_id")
	if tokenID == "" {
		return ledger.MintReceipt{}, ledger.CallFailed(OpMintToken, errors.New("receipt carries no token_id"))
	}
	return ledger.MintReceipt{TxID: txHash(res), TokenID: tokenID}, nil
}

func (c *Client) MintMaterials(ctx context.Context, batch ledger.MaterialBatch) (string, error) {
	res, err := c.broadcast(ctx, Envelope{
		Op:         OpMintMaterials,
		ExternalID: batch.ExternalID,
		Owner:      batch.Owner,
		Materials:  batch.Materials,
	})
	if err != nil {
		return "", err
	}
	return txHash(res), nil
}

func (c *Client) Transfer(ctx context.Context, tokenID, to string) (string, error) {
	res, err := c.broadcast(ctx, Envelope{Op: OpTransfer, TokenID: tokenID, To: to})
	if err != nil {
		return "", err
	}
	return txHash(res), nil
}

func (c *Client) GetEntity(ctx context.Context, externalID string) *ledger.Entity {
	value, ok := c.query(ctx, PathEntity, externalID)
	if !ok || len(value) == 0 {
		return nil
	}
	var entity ledger.Entity
	if err := json.Unmarshal(value, &entity); err != nil {
		c.log.Warn("undecodable ledger entity", "external_id", externalID, "err", err)
		return nil
	}
	return &entity
}

func (c *Client) GetHistory(ctx context.Context, externalID string) []ledger.HistoryEntry {
	entries := []ledger.HistoryEntry{}
	value, ok := c.query(ctx, PathHistory, externalID)
	if !ok || len(value) == 0 {
		return entries
	}
	if err := json.Unmarshal(value, &entries); err != nil {
		c.log.Warn("undecodable ledger history", "external_id", externalID, "err", err)
		return []ledger.HistoryEntry{}
	}
	if entries == nil {
		return []ledger.HistoryEntry{}
	}
	return entries
}

// broadcast delivers env and waits for its commit, bounded by the client
// timeout
func (c *Client) broadcast(ctx context.Context, env Envelope) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
	if c.rpc == nil {
		return nil, ledger.ErrUnavailable
	}

	env.Nonce = uuid.New().String()
	env.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, ledger.CallFailed(env.Op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type outcome struct {
		result *cmtrpctypes.ResultBroadcastTxCommit
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := c.rpc.BroadcastTxCommit(ctx, cmttypes.Tx(payload))
		done <- outcome{result, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", env.Op, ledger.ErrTimeout)
	case out := <-done:
		if out.err != nil {
			if errors.Is(out.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%s: %w", env.Op, ledger.ErrTimeout)
			}
			return nil, ledger.CallFailed(env.Op, out.err)
		}
		if out.result.CheckTx.Code != 0 {
			return nil, ledger.Rejected(env.Op, out.result.CheckTx.Code, out.result.CheckTx.Log)
		}
		if out.result.TxResult.Code != 0 {
			return nil, ledger.Rejected(env.Op, out.result.TxResult.Code, out.result.TxResult.Log)
		}
		c.log.Debug("ledger tx committed", "op", env.Op, "tx_hash", txHash(out.result), "height", out.result.Height)
		return out.result, nil
	}
}

func (c *Client) query(ctx context.Context, path, key string) ([]byte, bool) {
	if c.rpc == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.rpc.ABCIQuery(ctx, path, cmtbytes.HexBytes(key))
	if err != nil {
		c.log.Warn("ledger query failed", "path", path, "key", key, "err", err)
		return nil, false
	}
	if res.Response.Code != 0 {
		return nil, false
	}
	return res.Response.Value, true
}

func txHash(res *cmtrpctypes.ResultBroadcastTxCommit) string {
	return hex.EncodeToString(res.Hash)
}

func eventAttribute(res *cmtrpctypes.ResultBroadcastTxCommit, key string) string {
	for _, event := range res.TxResult.Events {
		for _, attr := range event.Attributes {
			if attr.Key == key {
				return attr.Value
			}
		}
	}
	return ""
}
