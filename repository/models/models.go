package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Asset represents one recovered solar panel moving through the pipeline
type Asset struct {
	ID         string      `gorm:"column:asset_id;primaryKey;type:varchar(50)" json:"asset_id"`
	ExternalID string      `gorm:"column:external_id;type:varchar(100);uniqueIndex;not null" json:"external_id"` // ledger key, fixed at creation
	NFCTag     *string     `gorm:"column:nfc_tag;type:varchar(100);uniqueIndex" json:"nfc_tag,omitempty"`
	QRCode     *string     `gorm:"column:qr_code;type:varchar(100);uniqueIndex" json:"qr_code,omitempty"`
	Status     AssetStatus `gorm:"column:status;type:varchar(32);not null;index" json:"status"`
	Version    int         `gorm:"column:version;not null;default:0" json:"version"`

	Brand     string `gorm:"column:brand;type:varchar(100)" json:"brand"`
	ModelName string `gorm:"column:model;type:varchar(100)" json:"model"`
	Location  string `gorm:"column:location;type:varchar(255)" json:"location"`
	Note      string `gorm:"column:note;type:text" json:"note"`

	// Technical attributes, nil until measured
	MeasuredPowerW   *float64 `gorm:"column:measured_power_w" json:"measured_power_w,omitempty"`
	MeasuredVoltageV *float64 `gorm:"column:measured_voltage_v" json:"measured_voltage_v,omitempty"`
	HealthPercentage *float64 `gorm:"column:health_percentage" json:"health_percentage,omitempty"`
	LengthMM         *float64 `gorm:"column:length_mm" json:"length_mm,omitempty"`
	WidthMM          *float64 `gorm:"column:width_mm" json:"width_mm,omitempty"`
	DepthMM          *float64 `gorm:"column:depth_mm" json:"depth_mm,omitempty"`

	InspectorID         *string    `gorm:"column:inspector_id;type:varchar(50)" json:"inspector_id,omitempty"`
	InspectionStartedAt *time.Time `gorm:"column:inspection_started_at" json:"inspection_started_at,omitempty"`

	Available   bool       `gorm:"column:available;default:false" json:"available"`
	BuyerWallet *string    `gorm:"column:buyer_wallet;type:varchar(100)" json:"buyer_wallet,omitempty"`
	SoldAt      *time.Time `gorm:"column:sold_at" json:"sold_at,omitempty"`

	CollectionRequestID *string `gorm:"column:collection_request_id;type:varchar(50);index" json:"collection_request_id,omitempty"`

	// Ledger linkage, written only after a confirmed ledger receipt
	TokenID      *string    `gorm:"column:token_id;type:varchar(100)" json:"token_id,omitempty"`
	LedgerTxHash *string    `gorm:"column:ledger_tx_hash;type:varchar(130)" json:"ledger_tx_hash,omitempty"`
	LedgerStatus *string    `gorm:"column:ledger_status;type:varchar(32)" json:"ledger_status,omitempty"`
	RegisteredAt *time.Time `gorm:"column:registered_at" json:"registered_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	// Relationships
	Inspection    *Inspection    `gorm:"foreignKey:AssetID;references:ID" json:"inspection,omitempty"`
	RecycleRecord *RecycleRecord `gorm:"foreignKey:AssetID;references:ID" json:"recycle_record,omitempty"`
	ArtPiece      *ArtPiece      `gorm:"foreignKey:AssetID;references:ID" json:"art_piece,omitempty"`
}

// HasToken reports whether a ledger token id is stored for the asset.
func (a *Asset) HasToken() bool {
	return a.TokenID != nil && *a.TokenID != ""
}

// CollectionRequest is the pickup request an asset originated from
type CollectionRequest struct {
	ID            string    `gorm:"column:request_id;primaryKey;type:varchar(50)" json:"request_id"`
	RequesterID   string    `gorm:"column:requester_id;type:varchar(50);not null" json:"requester_id"`
	PickupAddress string    `gorm:"column:pickup_address;type:varchar(255)" json:"pickup_address"`
	Notes         string    `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// Inspection is the single, immutable triage record of an asset
type Inspection struct {
	ID               string         `gorm:"column:inspection_id;primaryKey;type:varchar(50)" json:"inspection_id"`
	AssetID          string         `gorm:"column:asset_id;type:varchar(50);uniqueIndex;not null" json:"asset_id"`
	InspectorID      string         `gorm:"column:inspector_id;type:varchar(50);not null" json:"inspector_id"`
	Outcome          Outcome        `gorm:"column:outcome;type:varchar(16);not null" json:"outcome"`
	HealthPercentage *float64       `gorm:"column:health_percentage" json:"health_percentage,omitempty"`
	MeasuredPowerW   *float64       `gorm:"column:measured_power_w" json:"measured_power_w,omitempty"`
	MeasuredVoltageV *float64       `gorm:"column:measured_voltage_v" json:"measured_voltage_v,omitempty"`
	Defects          datatypes.JSON `gorm:"column:defects" json:"defects"` // JSON array of defect labels
	Notes            string         `gorm:"column:notes;type:text" json:"notes"`
	CreatedAt        time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// RecycleRecord holds the material decomposition of a recycled asset
type RecycleRecord struct {
	ID            string          `gorm:"column:recycle_id;primaryKey;type:varchar(50)" json:"recycle_id"`
	AssetID       string          `gorm:"column:asset_id;type:varchar(50);uniqueIndex;not null" json:"asset_id"`
	OperatorID    string          `gorm:"column:operator_id;type:varchar(50)" json:"operator_id"`
	InputWeightKg decimal.Decimal `gorm:"column:input_weight_kg;type:decimal(20,4);not null" json:"input_weight_kg"`
	AluminumKg    decimal.Decimal `gorm:"column:aluminum_kg;type:decimal(20,4);not null" json:"aluminum_kg"`
	GlassKg       decimal.Decimal `gorm:"column:glass_kg;type:decimal(20,4);not null" json:"glass_kg"`
	SiliconKg     decimal.Decimal `gorm:"column:silicon_kg;type:decimal(20,4);not null" json:"silicon_kg"`
	CopperKg      decimal.Decimal `gorm:"column:copper_kg;type:decimal(20,4);not null" json:"copper_kg"`
	MintTxHash    *string         `gorm:"column:mint_tx_hash;type:varchar(130)" json:"mint_tx_hash,omitempty"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

// MaterialStock is the shared stock row of one material kind
type MaterialStock struct {
	Kind      MaterialKind    `gorm:"column:kind;primaryKey;type:varchar(32)" json:"kind"`
	Available decimal.Decimal `gorm:"column:available;type:decimal(20,4);not null;default:0" json:"available"`
	Reserved  decimal.Decimal `gorm:"column:reserved;type:decimal(20,4);not null;default:0" json:"reserved"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// ArtPiece is an artwork derived from an asset
type ArtPiece struct {
	ID          string     `gorm:"column:art_id;primaryKey;type:varchar(50)" json:"art_id"`
	AssetID     string     `gorm:"column:asset_id;type:varchar(50);uniqueIndex;not null" json:"asset_id"`
	ArtistID    string     `gorm:"column:artist_id;type:varchar(50)" json:"artist_id"`
	Title       string     `gorm:"column:title;type:varchar(255);not null" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	MetadataURI string     `gorm:"column:metadata_uri;type:varchar(255)" json:"metadata_uri"`
	Available   bool       `gorm:"column:available;default:true" json:"available"`
	TokenID     *string    `gorm:"column:token_id;type:varchar(100)" json:"token_id,omitempty"`
	BuyerWallet *string    `gorm:"column:buyer_wallet;type:varchar(100)" json:"buyer_wallet,omitempty"`
	SoldAt      *time.Time `gorm:"column:sold_at" json:"sold_at,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// HasToken reports whether a ledger token id is stored for the art piece.
func (p *ArtPiece) HasToken() bool {
	return p.TokenID != nil && *p.TokenID != ""
}

// PanelOrder records a sale attempt of a refurbished panel
type PanelOrder struct {
	ID             string      `gorm:"column:order_id;primaryKey;type:varchar(50)" json:"order_id"`
	AssetID        string      `gorm:"column:asset_id;type:varchar(50);index;not null" json:"asset_id"`
	BuyerWallet    string      `gorm:"column:buyer_wallet;type:varchar(100);not null" json:"buyer_wallet"`
	Status         OrderStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	TransferTxHash *string     `gorm:"column:transfer_tx_hash;type:varchar(130)" json:"transfer_tx_hash,omitempty"`
	FailureReason  *string     `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	CompletedAt    *time.Time  `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// ArtOrder records a sale attempt of an art piece
type ArtOrder struct {
	ID             string      `gorm:"column:order_id;primaryKey;type:varchar(50)" json:"order_id"`
	ArtPieceID     string      `gorm:"column:art_id;type:varchar(50);index;not null" json:"art_id"`
	BuyerWallet    string      `gorm:"column:buyer_wallet;type:varchar(100);not null" json:"buyer_wallet"`
	Status         OrderStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	TransferTxHash *string     `gorm:"column:transfer_tx_hash;type:varchar(130)" json:"transfer_tx_hash,omitempty"`
	FailureReason  *string     `gorm:"column:failure_reason;type:text" json:"failure_reason,omitempty"`
	CreatedAt      time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	CompletedAt    *time.Time  `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// MaterialOrder records a sale of recovered material
type MaterialOrder struct {
	ID          string          `gorm:"column:order_id;primaryKey;type:varchar(50)" json:"order_id"`
	Kind        MaterialKind    `gorm:"column:kind;type:varchar(32);index;not null" json:"kind"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:decimal(20,4);not null" json:"quantity"`
	BuyerWallet string          `gorm:"column:buyer_wallet;type:varchar(100);not null" json:"buyer_wallet"`
	Status      OrderStatus     `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	CompletedAt *time.Time      `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

// StatusTransition is the audit trail entry of an applied status change
type StatusTransition struct {
	ID         uint        `gorm:"column:transition_id;primaryKey;autoIncrement" json:"transition_id"`
	AssetID    string      `gorm:"column:asset_id;type:varchar(50);index;not null" json:"asset_id"`
	Op         string      `gorm:"column:op;type:varchar(50);not null" json:"op"`
	FromStatus AssetStatus `gorm:"column:from_status;type:varchar(32)" json:"from_status"`
	ToStatus   AssetStatus `gorm:"column:to_status;type:varchar(32);not null" json:"to_status"`
	ActorID    string      `gorm:"column:actor_id;type:varchar(50)" json:"actor_id"`
	CreatedAt  time.Time   `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
