package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ahmadzakiakmal/panelchain/ledger/ledgertest"
	"github.com/ahmadzakiakmal/panelchain/lifecycle"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertSaleInvariant checks that every completed order matches a sold panel
// and every failed order an available one.
func assertSaleInvariant(t *testing.T, h *harness, assetID string) {
	t.Helper()
	orders, err := h.repo.Query(context.Background()).ListPanelOrders(assetID)
	require.NoError(t, err)
	asset := h.reload(t, assetID)

	completed := 0
	for _, o := range orders {
		switch o.Status {
		case models.OrderCompleted:
			completed++
			assert.False(t, asset.Available, "completed order %s on available panel", o.ID)
		case models.OrderFailed:
			require.NotNil(t, o.FailureReason)
		case models.OrderPending:
			t.Fatalf("order %s left pending", o.ID)
		}
	}
	assert.Equal(t, completed == 1, !asset.Available)
	assert.LessOrEqual(t, completed, 1)
}

func TestSellPanelTransfersToken(t *testing.T) {
	h := newHarness(t)
	asset := h.listed(t, "NFC-SELL")
	require.True(t, h.reload(t, asset.ID).HasToken())

	order, err := h.coord.SellPanel(context.Background(), asset.ID, "0xbuyer")
	require.NoError(t, err)
	h.coord.Wait()

	assert.Equal(t, models.OrderCompleted, order.Status)
	require.NotNil(t, order.TransferTxHash)
	assert.NotNil(t, order.CompletedAt)

	sold := h.reload(t, asset.ID)
	assert.Equal(t, models.StatusReused, sold.Status)
	assert.False(t, sold.Available)
	require.NotNil(t, sold.BuyerWallet)
	assert.Equal(t, "0xbuyer", *sold.BuyerWallet)
	assert.NotNil(t, sold.SoldAt)
	assert.Equal(t, "0xbuyer", h.ledger.Owner(*sold.TokenID))
	assert.Equal(t, 1, h.ledger.Calls(ledgertest.OpMintToken))
	assertSaleInvariant(t, h, asset.ID)
}

func TestSellPanelTransferFailureKeepsPanelListed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	asset := h.listed(t, "NFC-FAIL")
	h.ledger.FailOn(ledgertest.OpTransfer, errors.New("out of gas"))

	_, err := h.coord.SellPanel(ctx, asset.ID, "0xbuyer")
	assertKind(t, err, lifecycle.KindSaleTransferFailed)
	assert.True(t, errors.Is(err, lifecycle.ErrSaleTransferFailed))

	kept := h.reload(t, asset.ID)
	assert.Equal(t, models.StatusListedForSale, kept.Status)
	assert.True(t, kept.Available)
	assert.Nil(t, kept.BuyerWallet)
	assertSaleInvariant(t, h, asset.ID)

	h.ledger.FailOn(ledgertest.OpTransfer, nil)
	order, err := h.coord.SellPanel(ctx, asset.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assertSaleInvariant(t, h, asset.ID)

	_, err = h.coord.SellPanel(ctx, asset.ID, "0xother")
	assertKind(t, err, lifecycle.KindAlreadyProcessed)
	assertSaleInvariant(t, h, asset.ID)
}

func TestSellPanelMintsMissingToken(t *testing.T) {
	h := newHarness(t)
	h.ledger.FailOn(ledgertest.OpMintToken, errors.New("mint paused"))
	asset := h.listed(t, "NFC-NOTOKEN")
	require.False(t, h.reload(t, asset.ID).HasToken())
	h.ledger.FailOn(ledgertest.OpMintToken, nil)

	order, err := h.coord.SellPanel(context.Background(), asset.ID, "0xbuyer")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)

	sold := h.reload(t, asset.ID)
	require.True(t, sold.HasToken())
	assert.Equal(t, "0xbuyer", h.ledger.Owner(*sold.TokenID))
}

func TestSellPanelRejectsUnlistedAndMissingWallet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	asset := h.inspected(t, "NFC-EARLYSALE", models.OutcomeReuse)

	_, err := h.coord.SellPanel(ctx, asset.ID, "")
	assertKind(t, err, lifecycle.KindValidation)

	_, err = h.coord.SellPanel(ctx, asset.ID, "0xbuyer")
	assertKind(t, err, lifecycle.KindInvalidTransition)
	assert.Zero(t, h.ledger.Calls(ledgertest.OpTransfer))
}

func TestSellArt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	asset := h.inspected(t, "NFC-ARTSALE", models.OutcomeArt)
	piece, err := h.coord.PublishArt(ctx, lifecycle.ArtInput{AssetID: asset.ID, ArtistID: "artist-1", Title: "Reflections"})
	require.NoError(t, err)
	h.coord.Wait()

	h.ledger.FailOn(ledgertest.OpTransfer, errors.New("rejected"))
	_, err = h.coord.SellArt(ctx, piece.ID, "0xcollector")
	assertKind(t, err, lifecycle.KindSaleTransferFailed)

	stored, err := h.repo.Query(ctx).GetArtPiece(piece.ID)
	require.NoError(t, err)
	assert.True(t, stored.Available)
	assert.Nil(t, stored.SoldAt)

	h.ledger.FailOn(ledgertest.OpTransfer, nil)
	order, err := h.coord.SellArt(ctx, piece.ID, "0xcollector")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)

	stored, err = h.repo.Query(ctx).GetArtPiece(piece.ID)
	require.NoError(t, err)
	assert.False(t, stored.Available)
	require.NotNil(t, stored.BuyerWallet)
	assert.Equal(t, "0xcollector", *stored.BuyerWallet)
	assert.Equal(t, "0xcollector", h.ledger.Owner(*stored.TokenID))

	_, err = h.coord.SellArt(ctx, piece.ID, "0xlate")
	assertKind(t, err, lifecycle.KindConflict)

	_, err = h.coord.SellArt(ctx, "ART-missing", "0xlate")
	assertKind(t, err, lifecycle.KindNotFound)
}

func TestSellMaterial(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	asset := h.inspected(t, "NFC-MAT", models.OutcomeRecycle)
	_, err := h.coord.ProcessRecycle(ctx, lifecycle.RecycleInput{AssetID: asset.ID})
	require.NoError(t, err)

	order, err := h.coord.SellMaterial(ctx, models.MaterialAluminum, decimal.NewFromInt(5), "0xsmelter")
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
	assert.Equal(t, "2", h.stock(t, models.MaterialAluminum).String())

	_, err = h.coord.SellMaterial(ctx, models.MaterialAluminum, decimal.NewFromInt(3), "0xsmelter")
	assertKind(t, err, lifecycle.KindInsufficientStock)
	assert.Equal(t, "2", h.stock(t, models.MaterialAluminum).String())

	_, err = h.coord.SellMaterial(ctx, "plutonium", decimal.NewFromInt(1), "0xsmelter")
	assertKind(t, err, lifecycle.KindValidation)
	_, err = h.coord.SellMaterial(ctx, models.MaterialGlass, decimal.Zero, "0xsmelter")
	assertKind(t, err, lifecycle.KindValidation)
}

func TestSellMaterialRejectsQuantityBelowStorageScale(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	asset := h.inspected(t, "NFC-DUST", models.OutcomeRecycle)
	_, err := h.coord.ProcessRecycle(ctx, lifecycle.RecycleInput{AssetID: asset.ID})
	require.NoError(t, err)

	_, err = h.coord.SellMaterial(ctx, models.MaterialCopper, decimal.RequireFromString("0.00001"), "0xsmelter")
	assertKind(t, err, lifecycle.KindValidation)
	assert.Equal(t, "2", h.stock(t, models.MaterialCopper).String())
}

func TestSellMaterialConcurrentNeverOversells(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	asset := h.inspected(t, "NFC-RUSH", models.OutcomeRecycle)
	_, err := h.coord.ProcessRecycle(ctx, lifecycle.RecycleInput{AssetID: asset.ID})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		sold      int
		shortfall int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.coord.SellMaterial(ctx, models.MaterialGlass, decimal.NewFromInt(1), "0xsmelter")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case lifecycle.IsKind(err, lifecycle.KindInsufficientStock):
				shortfall++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, sold)
	assert.Equal(t, 2, shortfall)
	assert.True(t, h.stock(t, models.MaterialGlass).IsZero())
}
