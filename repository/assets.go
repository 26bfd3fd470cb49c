package repository

import (
	"time"

	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"gorm.io/gorm"
)

func (t *Tx) assetQuery() *gorm.DB {
	return t.db.Preload("Inspection").Preload("RecycleRecord").Preload("ArtPiece")
}

// GetAsset loads an asset with its inspection, recycle record and art piece
func (t *Tx) GetAsset(id string) (*models.Asset, error) {
	var asset models.Asset
	if err := t.assetQuery().Where("asset_id = ?", id).First(&asset).Error; err != nil {
		return nil, translate(err, "failed to load asset "+id)
	}
	return &asset, nil
}

// GetAssetByExternalID loads an asset by its ledger key
func (t *Tx) GetAssetByExternalID(externalID string) (*models.Asset, error) {
	var asset models.Asset
	if err := t.assetQuery().Where("external_id = ?", externalID).First(&asset).Error; err != nil {
		return nil, translate(err, "failed to load asset by external id "+externalID)
	}
	return &asset, nil
}

// FindAssetByTag locates an asset by NFC tag or QR code. Empty values are
// ignored; an asset matching either one is returned.
func (t *Tx) FindAssetByTag(nfcTag, qrCode string) (*models.Asset, error) {
	q := t.assetQuery()
	switch {
	case nfcTag != "" && qrCode != "":
		q = q.Where("nfc_tag = ? OR qr_code = ?", nfcTag, qrCode)
	case nfcTag != "":
		q = q.Where("nfc_tag = ?", nfcTag)
	case qrCode != "":
		q = q.Where("qr_code = ?", qrCode)
	default:
		return nil, &RepositoryError{Code: "NOT_FOUND", Message: "no tag or code given", Err: ErrNotFound}
	}

	var asset models.Asset
	if err := q.Order("created_at").First(&asset).Error; err != nil {
		return nil, translate(err, "failed to find asset by tag")
	}
	return &asset, nil
}

// CreateAsset inserts a new asset at version 0
func (t *Tx) CreateAsset(asset *models.Asset) error {
	asset.Version = 0
	if err := t.db.Omit("Inspection", "RecycleRecord", "ArtPiece").Create(asset).Error; err != nil {
		return translate(err, "failed to create asset")
	}
	return nil
}

// UpdateAsset applies fields only if the stored version still equals version,
// bumping it by one. A concurrent writer makes it fail with ErrStale.
func (t *Tx) UpdateAsset(id string, version int, fields map[string]interface{}) error {
	updates := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["version"] = gorm.Expr("version + 1")

	res := t.db.Model(&models.Asset{}).
		Where("asset_id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "failed to update asset "+id)
	}
	if res.RowsAffected == 0 {
		return stale("asset update lost", id)
	}
	return nil
}

// SetAssetToken stores a minted token id. The column is written once; a
// second call with the same id is a no-op and a different id fails with
// ErrDuplicate.
func (t *Tx) SetAssetToken(id, tokenID, txHash string) error {
	updates := map[string]interface{}{"token_id": tokenID}
	if txHash != "" {
		updates["ledger_tx_hash"] = txHash
	}
	res := t.db.Model(&models.Asset{}).
		Where("asset_id = ? AND token_id IS NULL", id).
		Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "failed to store token for asset "+id)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	asset, err := t.GetAsset(id)
	if err != nil {
		return err
	}
	if asset.TokenID != nil && *asset.TokenID == tokenID {
		return nil
	}
	return &RepositoryError{Code: "DUPLICATE", Message: "asset already carries a token", Detail: id, Err: ErrDuplicate}
}

// MarkLedgerSynced records a ledger receipt for the asset. Empty values leave
// their column untouched. registered marks the first registration; its
// timestamp is never overwritten.
func (t *Tx) MarkLedgerSynced(id, txHash, ledgerStatus string, registered bool) error {
	updates := map[string]interface{}{}
	if txHash != "" {
		updates["ledger_tx_hash"] = txHash
	}
	if ledgerStatus != "" {
		updates["ledger_status"] = ledgerStatus
	}
	if registered {
		updates["registered_at"] = gorm.Expr("COALESCE(registered_at, ?)", time.Now().UTC())
	}
	if len(updates) == 0 {
		return nil
	}
	res := t.db.Model(&models.Asset{}).Where("asset_id = ?", id).Updates(updates)
	if res.Error != nil {
		return translate(res.Error, "failed to mark asset synced "+id)
	}
	if res.RowsAffected == 0 {
		return &RepositoryError{Code: "NOT_FOUND", Message: "asset not found", Detail: id, Err: ErrNotFound}
	}
	return nil
}

// RecordTransition appends an audit row
func (t *Tx) RecordTransition(tr *models.StatusTransition) error {
	if err := t.db.Create(tr).Error; err != nil {
		return translate(err, "failed to record transition")
	}
	return nil
}

// ListTransitions returns the audit trail of an asset, oldest first
func (t *Tx) ListTransitions(assetID string) ([]models.StatusTransition, error) {
	var out []models.StatusTransition
	if err := t.db.Where("asset_id = ?", assetID).Order("transition_id").Find(&out).Error; err != nil {
		return nil, translate(err, "failed to list transitions")
	}
	return out, nil
}

// CreateCollectionRequest inserts a pickup request
func (t *Tx) CreateCollectionRequest(req *models.CollectionRequest) error {
	if err := t.db.Create(req).Error; err != nil {
		return translate(err, "failed to create collection request")
	}
	return nil
}

// CreateInspection inserts the inspection of an asset. A second inspection of
// the same asset fails with ErrDuplicate.
func (t *Tx) CreateInspection(ins *models.Inspection) error {
	if err := t.db.Create(ins).Error; err != nil {
		return translate(err, "failed to create inspection")
	}
	return nil
}

// CreateRecycleRecord inserts the recycle record of an asset. A second record
// for the same asset fails with ErrDuplicate.
func (t *Tx) CreateRecycleRecord(rec *models.RecycleRecord) error {
	if err := t.db.Create(rec).Error; err != nil {
		return translate(err, "failed to create recycle record")
	}
	return nil
}

// SetRecycleMintTx stores the batched material mint receipt once
func (t *Tx) SetRecycleMintTx(recycleID, txHash string) error {
	res := t.db.Model(&models.RecycleRecord{}).
		Where("recycle_id = ? AND mint_tx_hash IS NULL", recycleID).
		Update("mint_tx_hash", txHash)
	if res.Error != nil {
		return translate(res.Error, "failed to store material mint receipt")
	}
	return nil
}

// CountAssetsByTag counts assets carrying an NFC tag
func (t *Tx) CountAssetsByTag(nfcTag string) (int64, error) {
	var n int64
	if err := t.db.Model(&models.Asset{}).Where("nfc_tag = ?", nfcTag).Count(&n).Error; err != nil {
		return 0, translate(err, "failed to count assets")
	}
	return n, nil
}
