package lifecycle

import (
	"fmt"

	"github.com/ahmadzakiakmal/panelchain/ledger"
	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
)

// Material shares of a panel's weight, in percent
const (
	aluminumPercent = 35
	glassPercent    = 40
	siliconPercent  = 15
	copperPercent   = 10
)

// Both conversions fail to compile unless the shares sum to exactly 100.
const (
	_ = uint(aluminumPercent + glassPercent + siliconPercent + copperPercent - 100)
	_ = uint(100 - aluminumPercent - glassPercent - siliconPercent - copperPercent)
)

// quantityScale matches the decimal(20,4) storage columns
const quantityScale = 4

var materialShares = [...]struct {
	kind    models.MaterialKind
	percent int64
}{
	{models.MaterialAluminum, aluminumPercent},
	{models.MaterialGlass, glassPercent},
	{models.MaterialSilicon, siliconPercent},
	{models.MaterialCopper, copperPercent},
}

// DefaultNominalWeightKg is used when neither the caller nor the
// configuration supplies a panel weight.
var DefaultNominalWeightKg = decimal.NewFromInt(20)

// MaterialQuantity is one line of a decomposition
type MaterialQuantity struct {
	Kind     models.MaterialKind
	Quantity decimal.Decimal
}

// Breakdown is the material decomposition of one panel. Its quantities sum
// to Weight exactly.
type Breakdown struct {
	Weight     decimal.Decimal
	Quantities []MaterialQuantity
}

// Of returns the quantity of kind
func (b Breakdown) Of(kind models.MaterialKind) decimal.Decimal {
	for _, q := range b.Quantities {
		if q.Kind == kind {
			return q.Quantity
		}
	}
	return decimal.Zero
}

// Total sums every quantity
func (b Breakdown) Total() decimal.Decimal {
	total := decimal.Zero
	for _, q := range b.Quantities {
		total = total.Add(q.Quantity)
	}
	return total
}

// Decompose splits weight across the material table. The weight is rounded
// to storage precision first and the last material takes the rounding
// remainder, so the parts always add up to the rounded weight.
func Decompose(weight decimal.Decimal) (Breakdown, error) {
	weight = weight.Round(quantityScale)
	if !weight.IsPositive() {
		return Breakdown{}, fmt.Errorf("recycle weight must be positive, got %s", weight)
	}

	hundred := decimal.NewFromInt(100)
	out := Breakdown{Weight: weight, Quantities: make([]MaterialQuantity, 0, len(materialShares))}
	assigned := decimal.Zero
	for i, share := range materialShares {
		var qty decimal.Decimal
		if i == len(materialShares)-1 {
			qty = weight.Sub(assigned)
		} else {
			qty = weight.Mul(decimal.NewFromInt(share.percent)).Div(hundred).RoundDown(quantityScale)
		}
		assigned = assigned.Add(qty)
		out.Quantities = append(out.Quantities, MaterialQuantity{Kind: share.kind, Quantity: qty})
	}
	return out, nil
}

// record fills the quantity columns of a recycle record
func (b Breakdown) record(rec *models.RecycleRecord) {
	rec.InputWeightKg = b.Weight
	rec.AluminumKg = b.Of(models.MaterialAluminum)
	rec.GlassKg = b.Of(models.MaterialGlass)
	rec.SiliconKg = b.Of(models.MaterialSilicon)
	rec.CopperKg = b.Of(models.MaterialCopper)
}

// breakdownOf rebuilds the decomposition stored on a recycle record
func breakdownOf(rec *models.RecycleRecord) Breakdown {
	return Breakdown{
		Weight: rec.InputWeightKg,
		Quantities: []MaterialQuantity{
			{models.MaterialAluminum, rec.AluminumKg},
			{models.MaterialGlass, rec.GlassKg},
			{models.MaterialSilicon, rec.SiliconKg},
			{models.MaterialCopper, rec.CopperKg},
		},
	}
}

// batch turns the decomposition into one ledger mint call
func (b Breakdown) batch(externalID, owner string) ledger.MaterialBatch {
	items := make([]ledger.MaterialQuantity, 0, len(b.Quantities))
	for _, q := range b.Quantities {
		items = append(items, ledger.MaterialQuantity{Kind: string(q.Kind), Quantity: q.Quantity})
	}
	return ledger.MaterialBatch{ExternalID: externalID, Owner: owner, Materials: items}
}
