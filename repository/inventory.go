package repository

import (
	"time"

	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IncrementStock adds qty to the available bucket of kind, creating the row
// at zero first if it does not exist yet.
func (t *Tx) IncrementStock(kind models.MaterialKind, qty decimal.Decimal) error {
	seed := models.MaterialStock{Kind: kind, Available: decimal.Zero, Reserved: decimal.Zero}
	if err := t.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return translate(err, "failed to seed stock "+string(kind))
	}

	res := t.db.Model(&models.MaterialStock{}).
		Where("kind = ?", kind).
		Update("available", gorm.Expr("available + ?", qty))
	if res.Error != nil {
		return translate(res.Error, "failed to increment stock "+string(kind))
	}
	return nil
}

// ReserveStock moves qty from available to reserved. The decrement is
// conditional, so concurrent reservations can never drive available below
// zero; a shortfall fails with ErrInsufficient.
func (t *Tx) ReserveStock(kind models.MaterialKind, qty decimal.Decimal) error {
	res := t.db.Model(&models.MaterialStock{}).
		Where("kind = ? AND available >= ?", kind, qty).
		Updates(map[string]interface{}{
			"available": gorm.Expr("available - ?", qty),
			"reserved":  gorm.Expr("reserved + ?", qty),
		})
	if res.Error != nil {
		return translate(res.Error, "failed to reserve stock "+string(kind))
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{Code: "INSUFFICIENT", Message: "not enough stock", Detail: string(kind), Err: ErrInsufficient}
	}
	return nil
}

// GetStock returns the stock row of kind
func (t *Tx) GetStock(kind models.MaterialKind) (*models.MaterialStock, error) {
	var stock models.MaterialStock
	if err := t.db.Where("kind = ?", kind).First(&stock).Error; err != nil {
		return nil, translate(err, "failed to load stock "+string(kind))
	}
	return &stock, nil
}

// ListStock returns every stock row ordered by kind
func (t *Tx) ListStock() ([]models.MaterialStock, error) {
	var out []models.MaterialStock
	if err := t.db.Order("kind").Find(&out).Error; err != nil {
		return nil, translate(err, "failed to list stock")
	}
	return out, nil
}

// CreateArtPiece inserts the art piece derived from an asset. A second piece
// for the same asset fails with ErrDuplicate.
func (t *Tx) CreateArtPiece(piece *models.ArtPiece) error {
	if err := t.db.Create(piece).Error; err != nil {
		return translate(err, "failed to create art piece")
	}
	return nil
}

// GetArtPiece loads an art piece by id
func (t *Tx) GetArtPiece(id string) (*models.ArtPiece, error) {
	var piece models.ArtPiece
	if err := t.db.Where("art_id = ?", id).First(&piece).Error; err != nil {
		return nil, translate(err, "failed to load art piece "+id)
	}
	return &piece, nil
}

// SetArtAvailability flips the available flag only if it currently equals
// from. A lost race fails with ErrStale.
func (t *Tx) SetArtAvailability(id string, from, to bool, extra map[string]interface{}) error {
	updates := map[string]interface{}{"available": to}
	for k, v := range extra {
		updates[k] = v
	}
	res := t.db.Model(&models.ArtPiece{}).
		Where("art_id = ? AND available = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "failed to update art piece "+id)
	}
	if res.RowsAffected == 0 {
		return stale("art piece availability changed", id)
	}
	return nil
}

// SetArtToken stores the minted token id of an art piece once
func (t *Tx) SetArtToken(id, tokenID string) error {
	res := t.db.Model(&models.ArtPiece{}).
		Where("art_id = ? AND token_id IS NULL", id).
		Update("token_id", tokenID)
	if res.Error != nil {
		return translate(res.Error, "failed to store token for art piece "+id)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	piece, err := t.GetArtPiece(id)
	if err != nil {
		return err
	}
	if piece.TokenID != nil && *piece.TokenID == tokenID {
		return nil
	}
	return &RepositoryError{Code: "DUPLICATE", Message: "art piece already carries a token", Detail: id, Err: ErrDuplicate}
}

// CreatePanelOrder inserts a panel order
func (t *Tx) CreatePanelOrder(order *models.PanelOrder) error {
	if err := t.db.Create(order).Error; err != nil {
		return translate(err, "failed to create panel order")
	}
	return nil
}

// CreateArtOrder inserts an art order
func (t *Tx) CreateArtOrder(order *models.ArtOrder) error {
	if err := t.db.Create(order).Error; err != nil {
		return translate(err, "failed to create art order")
	}
	return nil
}

// CreateMaterialOrder inserts a material order
func (t *Tx) CreateMaterialOrder(order *models.MaterialOrder) error {
	if err := t.db.Create(order).Error; err != nil {
		return translate(err, "failed to create material order")
	}
	return nil
}

// FinishPanelOrder moves a pending panel order to its final status
func (t *Tx) FinishPanelOrder(id string, status models.OrderStatus, txHash, reason string) error {
	return t.finishOrder(&models.PanelOrder{}, id, status, txHash, reason)
}

// FinishArtOrder moves a pending art order to its final status
func (t *Tx) FinishArtOrder(id string, status models.OrderStatus, txHash, reason string) error {
	return t.finishOrder(&models.ArtOrder{}, id, status, txHash, reason)
}

func (t *Tx) finishOrder(model interface{}, id string, status models.OrderStatus, txHash, reason string) error {
	updates := map[string]interface{}{"status": status}
	if status == models.OrderCompleted {
		updates["completed_at"] = time.Now().UTC()
	}
	if txHash != "" {
		updates["transfer_tx_hash"] = txHash
	}
	if reason != "" {
		updates["failure_reason"] = reason
	}
	res := t.db.Model(model).
		Where("order_id = ? AND status = ?", id, models.OrderPending).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "failed to finish order "+id)
	}
	if res.RowsAffected == 0 {
		return stale("order is no longer pending", id)
	}
	return nil
}

// GetPanelOrder loads a panel order
func (t *Tx) GetPanelOrder(id string) (*models.PanelOrder, error) {
	var order models.PanelOrder
	if err := t.db.Where("order_id = ?", id).First(&order).Error; err != nil {
		return nil, translate(err, "failed to load panel order "+id)
	}
	return &order, nil
}

// GetArtOrder loads an art order
func (t *Tx) GetArtOrder(id string) (*models.ArtOrder, error) {
	var order models.ArtOrder
	if err := t.db.Where("order_id = ?", id).First(&order).Error; err != nil {
		return nil, translate(err, "failed to load art order "+id)
	}
	return &order, nil
}

// ListPanelOrders returns every order placed for an asset
func (t *Tx) ListPanelOrders(assetID string) ([]models.PanelOrder, error) {
	var out []models.PanelOrder
	if err := t.db.Where("asset_id = ?", assetID).Order("created_at").Find(&out).Error; err != nil {
		return nil, translate(err, "failed to list panel orders")
	}
	return out, nil
}
