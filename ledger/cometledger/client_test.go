package cometledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtbytes "github.com/cometbft/cometbft/libs/bytes"
	cmtrpctypes "github.com/cometbft/cometbft/rpc/core/types"
	cmttypes "github.com/cometbft/cometbft/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRPC struct {
	mu        sync.Mutex
	envelopes []Envelope
	entities  map[string]ledger.Entity
	history   map[string][]ledger.HistoryEntry

	checkCode uint32
	err       error
	block     bool
	tokenSeq  int
}

func newFakeRPC() *fakeRPC {
	return &fakeRPC{entities: map[string]ledger.Entity{}, history: map[string][]ledger.HistoryEntry{}}
}

func (f *fakeRPC) BroadcastTxCommit(ctx context.Context, tx cmttypes.Tx) (*cmtrpctypes.ResultBroadcastTxCommit, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}

	var env Envelope
	if err := json.Unmarshal(tx, &env); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.envelopes = append(f.envelopes, env)

	res := &cmtrpctypes.ResultBroadcastTxCommit{
		CheckTx: abcitypes.CheckTxResponse{Code: f.checkCode, Log: "rejected"},
		Hash:    tx.Hash(),
		Height:  int64(len(f.envelopes)),
	}
	if env.Op == OpMintToken {
		f.tokenSeq++
		res.TxResult = abcitypes.ExecTxResult{
			Events: []abcitypes.Event{{
				Type: "panel_minted",
				Attributes: []abcitypes.EventAttribute{
					{Key: "external_id", Value: env.ExternalID},
					{Key: "token_id", Value: string(rune('0' + f.tokenSeq))},
				},
			}},
		}
	}
	return res, nil
}

func (f *fakeRPC) ABCIQuery(_ context.Context, path string, data cmtbytes.HexBytes) (*cmtrpctypes.ResultABCIQuery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var value interface{}
	switch path {
	case PathEntity:
		entity, ok := f.entities[string(data)]
		if !ok {
			return &cmtrpctypes.ResultABCIQuery{Response: abcitypes.QueryResponse{Code: 1, Log: "not found"}}, nil
		}
		value = entity
	case PathHistory:
		value = f.history[string(data)]
	default:
		return nil, errors.New("unknown path")
	}
	raw, _ := json.Marshal(value)
	return &cmtrpctypes.ResultABCIQuery{Response: abcitypes.QueryResponse{Value: raw}}, nil
}

func TestRegisterBroadcastsEnvelope(t *testing.T) {
	rpc := newFakeRPC()
	c := New(rpc, time.Second, logger.NewNop())

	txID, err := c.Register(context.Background(), "NFC-1", ledger.Attributes{Brand: "Sunpower", Model: "X22", Location: "Depot A"})
	require.NoError(t, err)
	assert.Len(t, txID, 64)

	require.Len(t, rpc.envelopes, 1)
	env := rpc.envelopes[0]
	assert.Equal(t, OpRegister, env.Op)
	assert.Equal(t, "NFC-1", env.ExternalID)
	assert.Equal(t, "Sunpower", env.Brand)
	assert.NotEmpty(t, env.Nonce)
}

func TestMintTokenReadsTokenEvent(t *testing.T) {
	rpc := newFakeRPC()
	c := New(rpc, time.Second, logger.NewNop())

	receipt, err := c.MintToken(context.Background(), "NFC-2", "https://meta/panels/1.json", "0xcustodian")
	require.NoError(t, err)
	assert.Equal(t, "1", receipt.TokenID)
	assert.NotEmpty(t, receipt.TxID)
}

func TestMintTokenAdoptsExistingToken(t *testing.T) {
	rpc := newFakeRPC()
	rpc.entities["NFC-3"] = ledger.Entity{ExternalID: "NFC-3", TokenID: "42"}
	c := New(rpc, time.Second, logger.NewNop())

	receipt, err := c.MintToken(context.Background(), "NFC-3", "uri", "0xowner")
	require.NoError(t, err)
	assert.Equal(t, "42", receipt.TokenID)
	assert.Empty(t, rpc.envelopes, "mint must not be broadcast")
}

func TestRejectedTransaction(t *testing.T) {
	rpc := newFakeRPC()
	rpc.checkCode = 5
	c := New(rpc, time.Second, logger.NewNop())

	_, err := c.UpdateStatus(context.Background(), "NFC-4", ledger.StatusReceived, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrCallFailed)
}

func TestNetworkError(t *testing.T) {
	rpc := newFakeRPC()
	rpc.err = errors.New("connection refused")
	c := New(rpc, time.Second, logger.NewNop())

	_, err := c.Transfer(context.Background(), "42", "0xbuyer")
	assert.ErrorIs(t, err, ledger.ErrCallFailed)
	assert.ErrorContains(t, err, "connection refused")
}

func TestTimeoutIsCallFailure(t *testing.T) {
	rpc := newFakeRPC()
	rpc.block = true
	c := New(rpc, 20*time.Millisecond, logger.NewNop())

	_, err := c.MintMaterials(context.Background(), ledger.MaterialBatch{ExternalID: "NFC-5"})
	assert.ErrorIs(t, err, ledger.ErrTimeout)
	assert.ErrorIs(t, err, ledger.ErrCallFailed)
}

func TestReadsDegradeGracefully(t *testing.T) {
	rpc := newFakeRPC()
	rpc.history["NFC-6"] = []ledger.HistoryEntry{{TxID: "aa", Status: ledger.StatusCollected}}
	c := New(rpc, time.Second, logger.NewNop())

	assert.Nil(t, c.GetEntity(context.Background(), "missing"))
	assert.Len(t, c.GetHistory(context.Background(), "NFC-6"), 1)
	assert.NotNil(t, c.GetHistory(context.Background(), "missing"))

	unconfigured := New(nil, time.Second, logger.NewNop())
	assert.False(t, unconfigured.IsAvailable())
	_, err := unconfigured.Register(context.Background(), "NFC-7", ledger.Attributes{})
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}
