package fabricledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/logger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

type fakeInvoker struct {
	mu       sync.Mutex
	calls    []call
	panels   map[string]ledger.Entity
	failWith error
	delay    time.Duration
}

func newFakeInvoker() *fakeInvoker {
	return &fakeInvoker{panels: map[string]ledger.Entity{}}
}

func (f *fakeInvoker) Submit(name string, args ...string) ([]byte, string, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name, args})
	if f.failWith != nil {
		return nil, "", f.failWith
	}
	txID := fmt.Sprintf("tx-%d", len(f.calls))
	if name == FnMintPanelToken {
		return []byte(`{"token_id":"7"}`), txID, nil
	}
	return nil, txID, nil
}

func (f *fakeInvoker) Evaluate(name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch name {
	case FnGetPanel:
		panel, ok := f.panels[args[0]]
		if !ok {
			return nil, errors.New("panel does not exist")
		}
		return json.Marshal(panel)
	case FnGetPanelHistory:
		return []byte(`[{"tx_id":"tx-1","status":"collected"}]`), nil
	}
	return nil, errors.New("unknown function")
}

func (f *fakeInvoker) submitted(name string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func TestRegisterAndUpdate(t *testing.T) {
	inv := newFakeInvoker()
	c := New(inv, time.Second, logger.NewNop())
	ctx := context.Background()

	txID, err := c.Register(ctx, "NFC-1", ledger.Attributes{Brand: "LG", Model: "Neon", Location: "Yard 3"})
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txID)

	_, err = c.UpdateStatus(ctx, "NFC-1", ledger.StatusReceived, "Warehouse", "")
	require.NoError(t, err)

	reg := inv.submitted(FnRegisterPanel)
	require.Len(t, reg, 1)
	assert.Equal(t, []string{"NFC-1", "LG", "Neon", "Yard 3", ""}, reg[0].args)

	upd := inv.submitted(FnUpdatePanelStatus)
	require.Len(t, upd, 1)
	assert.Equal(t, "received", upd[0].args[1])
}

func TestMintTokenChecksExistingEntity(t *testing.T) {
	inv := newFakeInvoker()
	inv.panels["NFC-2"] = ledger.Entity{ExternalID: "NFC-2", TokenID: "42"}
	c := New(inv, time.Second, logger.NewNop())

	receipt, err := c.MintToken(context.Background(), "NFC-2", "uri", "0xowner")
	require.NoError(t, err)
	assert.Equal(t, "42", receipt.TokenID)
	assert.Empty(t, inv.submitted(FnMintPanelToken))

	receipt, err = c.MintToken(context.Background(), "NFC-3", "uri", "0xowner")
	require.NoError(t, err)
	assert.Equal(t, "7", receipt.TokenID)
	assert.Len(t, inv.submitted(FnMintPanelToken), 1)
}

func TestMintMaterialsSendsOneBatch(t *testing.T) {
	inv := newFakeInvoker()
	c := New(inv, time.Second, logger.NewNop())

	_, err := c.MintMaterials(context.Background(), ledger.MaterialBatch{
		ExternalID: "NFC-4",
		Owner:      "0xcustodian",
		Materials: []ledger.MaterialQuantity{
			{Kind: "aluminum", Quantity: decimal.NewFromInt(7)},
			{Kind: "glass", Quantity: decimal.NewFromInt(8)},
		},
	})
	require.NoError(t, err)

	calls := inv.submitted(FnMintMaterials)
	require.Len(t, calls, 1)
	var materials []ledger.MaterialQuantity
	require.NoError(t, json.Unmarshal([]byte(calls[0].args[2]), &materials))
	assert.Len(t, materials, 2)
}

func TestSubmitErrors(t *testing.T) {
	inv := newFakeInvoker()
	inv.failWith = errors.New("endorsement failure")
	c := New(inv, time.Second, logger.NewNop())

	_, err := c.Transfer(context.Background(), "42", "0xbuyer")
	assert.ErrorIs(t, err, ledger.ErrCallFailed)

	slow := newFakeInvoker()
	slow.delay = 200 * time.Millisecond
	c = New(slow, 10*time.Millisecond, logger.NewNop())
	_, err = c.Transfer(context.Background(), "42", "0xbuyer")
	assert.ErrorIs(t, err, ledger.ErrTimeout)
}

func TestReads(t *testing.T) {
	inv := newFakeInvoker()
	c := New(inv, time.Second, logger.NewNop())

	assert.Nil(t, c.GetEntity(context.Background(), "missing"))
	history := c.GetHistory(context.Background(), "NFC-5")
	require.Len(t, history, 1)
	assert.Equal(t, ledger.StatusCollected, history[0].Status)

	off := New(nil, time.Second, logger.NewNop())
	assert.False(t, off.IsAvailable())
	assert.Empty(t, off.GetHistory(context.Background(), "NFC-5"))
	_, err := off.Register(context.Background(), "NFC-5", ledger.Attributes{})
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}
