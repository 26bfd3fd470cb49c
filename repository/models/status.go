package models

// AssetStatus is the lifecycle state of a tracked panel.
type AssetStatus string

const (
	StatusPendingCollection AssetStatus = "PENDING_COLLECTION"
	StatusInTransit         AssetStatus = "IN_TRANSIT"
	StatusWarehouseReceived AssetStatus = "WAREHOUSE_RECEIVED"
	StatusInspecting        AssetStatus = "INSPECTING"
	StatusInspected         AssetStatus = "INSPECTED"
	StatusReadyForReuse     AssetStatus = "READY_FOR_REUSE"
	StatusArtCandidate      AssetStatus = "ART_CANDIDATE"
	StatusRefurbishing      AssetStatus = "REFURBISHING"
	StatusListedForSale     AssetStatus = "LISTED_FOR_SALE"
	StatusReused            AssetStatus = "REUSED"
	StatusRecycled          AssetStatus = "RECYCLED"
	StatusArtListedForSale  AssetStatus = "ART_LISTED_FOR_SALE"
)

// AllAssetStatuses lists every lifecycle state in pipeline order. It is an
// array so its length is a compile-time constant.
var AllAssetStatuses = [...]AssetStatus{
	StatusPendingCollection,
	StatusInTransit,
	StatusWarehouseReceived,
	StatusInspecting,
	StatusInspected,
	StatusReadyForReuse,
	StatusArtCandidate,
	StatusRefurbishing,
	StatusListedForSale,
	StatusReused,
	StatusRecycled,
	StatusArtListedForSale,
}

// Valid reports whether s is one of the known lifecycle states.
func (s AssetStatus) Valid() bool {
	for _, known := range AllAssetStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further pipeline transition leaves s.
func (s AssetStatus) Terminal() bool {
	switch s {
	case StatusRecycled, StatusReused, StatusArtListedForSale:
		return true
	}
	return false
}

// Outcome is the triage classification assigned during inspection.
type Outcome string

const (
	OutcomeReuse   Outcome = "REUSE"
	OutcomeRecycle Outcome = "RECYCLE"
	OutcomeArt     Outcome = "ART"
)

// Outcomes is the fixed triage order used by the round-robin sequencer.
var Outcomes = [...]Outcome{OutcomeReuse, OutcomeRecycle, OutcomeArt}

// Valid reports whether o is a known triage outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeReuse, OutcomeRecycle, OutcomeArt:
		return true
	}
	return false
}

// MaterialKind names a recovered raw material.
type MaterialKind string

const (
	MaterialAluminum MaterialKind = "aluminum"
	MaterialGlass    MaterialKind = "glass"
	MaterialSilicon  MaterialKind = "silicon"
	MaterialCopper   MaterialKind = "copper"
)

// MaterialKinds lists the materials produced by recycling, in table order.
var MaterialKinds = [...]MaterialKind{MaterialAluminum, MaterialGlass, MaterialSilicon, MaterialCopper}

// Valid reports whether k is a known material.
func (k MaterialKind) Valid() bool {
	for _, known := range MaterialKinds {
		if k == known {
			return true
		}
	}
	return false
}

// OrderStatus tracks a sale attempt.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderFailed    OrderStatus = "FAILED"
)
