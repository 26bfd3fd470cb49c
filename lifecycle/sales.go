package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/panelchain/repository"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
)

// SellPanel sells a listed panel to wallet. The panel is first reserved
// together with a pending order; the ledger transfer then decides the outcome.
// A failed transfer fails the order, releases the panel and returns
// SaleTransferFailed. With no ledger reachable the sale completes locally and
// the transfer is journaled for reconciliation.
func (c *Coordinator) SellPanel(ctx context.Context, assetID, wallet string) (*models.PanelOrder, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, validation(OpSellPanel, "buyer wallet is required")
	}

	order := &models.PanelOrder{
		ID:          repository.NewID(repository.PrefixOrder),
		AssetID:     assetID,
		BuyerWallet: wallet,
		Status:      models.OrderPending,
	}
	if _, err := c.mutate(ctx, OpSellPanel, assetID, wallet, func(asset *models.Asset) (*change, error) {
		if _, err := check(OpSellPanel, asset); err != nil {
			return nil, err
		}
		if !asset.Available {
			return nil, newError(KindConflict, OpSellPanel, asset.ID, asset.Status, "panel is reserved by another sale")
		}
		return &change{
			to:     asset.Status,
			fields: map[string]interface{}{"available": false},
			apply: func(tx *repository.Tx, _ *models.Asset) error {
				return tx.CreatePanelOrder(order)
			},
		}, nil
	}); err != nil {
		return nil, err
	}

	if !c.gateway.IsAvailable() {
		return c.completePanelSale(ctx, order, "", true)
	}

	txID, err := c.transferPanel(ctx, assetID, wallet)
	if err != nil {
		c.log.Error("panel transfer failed, releasing panel",
			"asset_id", assetID, "order_id", order.ID, "buyer_wallet", wallet, "err", err)
		return nil, c.failPanelSale(ctx, order, err)
	}
	return c.completePanelSale(ctx, order, txID, false)
}

func (c *Coordinator) transferPanel(ctx context.Context, assetID, wallet string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.dispatcherBudget())
	defer cancel()

	tok, err := c.guard.EnsurePanelToken(callCtx, assetID, c.panelMetadataURI(assetID), c.custodian)
	if err != nil {
		return "", err
	}
	return c.gateway.Transfer(callCtx, tok.TokenID, wallet)
}

func (c *Coordinator) dispatcherBudget() time.Duration { return c.dispatcher.budget }

func (c *Coordinator) failPanelSale(ctx context.Context, order *models.PanelOrder, cause error) error {
	err := c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		asset, err := tx.GetAsset(order.AssetID)
		if err != nil {
			return err
		}
		if err := tx.UpdateAsset(asset.ID, asset.Version, map[string]interface{}{"available": true}); err != nil {
			return err
		}
		return tx.FinishPanelOrder(order.ID, models.OrderFailed, "", cause.Error())
	})
	if err != nil {
		c.log.Error("failed to release panel after transfer failure", "asset_id", order.AssetID, "order_id", order.ID, "err", err)
		return &Error{Kind: KindInternal, Op: OpSellPanel, AssetID: order.AssetID, Message: "transfer failed and release did not commit", Cause: err}
	}
	return &Error{Kind: KindSaleTransferFailed, Op: OpSellPanel, AssetID: order.AssetID, Message: "token transfer failed", Cause: cause}
}

func (c *Coordinator) completePanelSale(ctx context.Context, order *models.PanelOrder, txID string, deferred bool) (*models.PanelOrder, error) {
	sold := c.now()
	res, err := c.mutate(ctx, OpSellPanel, order.AssetID, order.BuyerWallet, func(asset *models.Asset) (*change, error) {
		if asset.Status != models.StatusListedForSale {
			return nil, newError(KindConflict, OpSellPanel, asset.ID, asset.Status, "panel changed during sale")
		}
		return &change{
			to: models.StatusReused,
			fields: map[string]interface{}{
				"available":    false,
				"buyer_wallet": order.BuyerWallet,
				"sold_at":      sold,
			},
			apply: func(tx *repository.Tx, _ *models.Asset) error {
				return tx.FinishPanelOrder(order.ID, models.OrderCompleted, txID, "")
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	steps := []*Step{c.statusStep(*res.asset, res.prev, "sold")}
	if deferred {
		steps = append(steps, &Step{
			Op: OpTransfer,
			Run: func(ctx context.Context) error {
				_, err := c.transferPanel(ctx, order.AssetID, order.BuyerWallet)
				return err
			},
		})
	}
	c.sync(ctx, res.asset, steps...)

	out, err := c.repo.Query(ctx).GetPanelOrder(order.ID)
	if err != nil {
		return nil, storeErr(OpSellPanel, order.AssetID, err)
	}
	return out, nil
}

// SellArt sells an available art piece. It follows the coupling rules of
// SellPanel: the order completes only together with a successful transfer.
func (c *Coordinator) SellArt(ctx context.Context, artID, wallet string) (*models.ArtOrder, error) {
	wallet = strings.TrimSpace(wallet)
	if wallet == "" {
		return nil, validation(OpSellArt, "buyer wallet is required")
	}

	piece, err := c.getArtPiece(ctx, artID)
	if err != nil {
		return nil, err
	}
	order := &models.ArtOrder{
		ID:          repository.NewID(repository.PrefixOrder),
		ArtPieceID:  artID,
		BuyerWallet: wallet,
		Status:      models.OrderPending,
	}

	err = c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		if err := tx.SetArtAvailability(artID, true, false, nil); err != nil {
			if errors.Is(err, repository.ErrStale) {
				return newError(KindConflict, OpSellArt, piece.AssetID, "", "art piece is not available")
			}
			return err
		}
		return tx.CreateArtOrder(order)
	})
	if err != nil {
		return nil, storeErr(OpSellArt, piece.AssetID, err)
	}

	if !c.gateway.IsAvailable() {
		return c.completeArtSale(ctx, piece, order, "", true)
	}

	txID, err := c.transferArt(ctx, piece, wallet)
	if err != nil {
		c.log.Error("art transfer failed, releasing art piece",
			"art_id", artID, "asset_id", piece.AssetID, "order_id", order.ID, "buyer_wallet", wallet, "err", err)
		return nil, c.failArtSale(ctx, piece, order, err)
	}
	return c.completeArtSale(ctx, piece, order, txID, false)
}

func (c *Coordinator) getArtPiece(ctx context.Context, artID string) (*models.ArtPiece, error) {
	piece, err := c.repo.Query(ctx).GetArtPiece(artID)
	if err != nil {
		return nil, storeErr(OpSellArt, artID, err)
	}
	return piece, nil
}

func (c *Coordinator) transferArt(ctx context.Context, piece *models.ArtPiece, wallet string) (string, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.dispatcherBudget())
	defer cancel()

	tok, err := c.guard.EnsureArtToken(callCtx, piece.ID, piece.MetadataURI, c.custodian)
	if err != nil {
		return "", err
	}
	return c.gateway.Transfer(callCtx, tok.TokenID, wallet)
}

func (c *Coordinator) failArtSale(ctx context.Context, piece *models.ArtPiece, order *models.ArtOrder, cause error) error {
	err := c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		if err := tx.SetArtAvailability(piece.ID, false, true, nil); err != nil {
			return err
		}
		return tx.FinishArtOrder(order.ID, models.OrderFailed, "", cause.Error())
	})
	if err != nil {
		c.log.Error("failed to release art piece after transfer failure", "art_id", piece.ID, "order_id", order.ID, "err", err)
		return &Error{Kind: KindInternal, Op: OpSellArt, AssetID: piece.AssetID, Message: "transfer failed and release did not commit", Cause: err}
	}
	return &Error{Kind: KindSaleTransferFailed, Op: OpSellArt, AssetID: piece.AssetID, Message: "token transfer failed", Cause: cause}
}

func (c *Coordinator) completeArtSale(ctx context.Context, piece *models.ArtPiece, order *models.ArtOrder, txID string, deferred bool) (*models.ArtOrder, error) {
	err := c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		if err := tx.SetArtAvailability(piece.ID, false, false, map[string]interface{}{
			"buyer_wallet": order.BuyerWallet,
			"sold_at":      c.now(),
		}); err != nil {
			return err
		}
		return tx.FinishArtOrder(order.ID, models.OrderCompleted, txID, "")
	})
	if err != nil {
		return nil, storeErr(OpSellArt, piece.AssetID, err)
	}

	if deferred {
		asset, err := c.GetAsset(ctx, piece.AssetID)
		if err != nil {
			return nil, err
		}
		c.sync(ctx, asset, &Step{
			Op: OpTransfer,
			Run: func(ctx context.Context) error {
				_, err := c.transferArt(ctx, piece, order.BuyerWallet)
				return err
			},
		})
	}

	out, err := c.repo.Query(ctx).GetArtOrder(order.ID)
	if err != nil {
		return nil, storeErr(OpSellArt, piece.AssetID, err)
	}
	return out, nil
}

// SellMaterial sells qty of a recovered material. The stock decrement and the
// completed order commit together; a shortfall fails with InsufficientStock
// and leaves the stock untouched.
func (c *Coordinator) SellMaterial(ctx context.Context, kind models.MaterialKind, qty decimal.Decimal, wallet string) (*models.MaterialOrder, error) {
	wallet = strings.TrimSpace(wallet)
	qty = qty.Round(quantityScale)
	switch {
	case !kind.Valid():
		return nil, validation(OpSellMaterial, "unknown material "+string(kind))
	case !qty.IsPositive():
		return nil, validation(OpSellMaterial, "quantity must be positive")
	case wallet == "":
		return nil, validation(OpSellMaterial, "buyer wallet is required")
	}

	completed := c.now()
	order := &models.MaterialOrder{
		ID:          repository.NewID(repository.PrefixOrder),
		Kind:        kind,
		Quantity:    qty,
		BuyerWallet: wallet,
		Status:      models.OrderCompleted,
		CompletedAt: &completed,
	}
	err := c.repo.RunTransaction(ctx, func(tx *repository.Tx) error {
		if err := tx.ReserveStock(kind, qty); err != nil {
			return err
		}
		return tx.CreateMaterialOrder(order)
	})
	if err != nil {
		return nil, storeErr(OpSellMaterial, "", err)
	}
	c.log.Info("material sold", "kind", kind, "quantity", qty.String(), "order_id", order.ID)
	return order, nil
}
