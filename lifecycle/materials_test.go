package lifecycle

import (
	"testing"

	"github.com/ahmadzakiakmal/panelchain/repository/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecomposeNominalWeight(t *testing.T) {
	b, err := Decompose(DefaultNominalWeightKg)
	require.NoError(t, err)

	assert.Equal(t, "7", b.Of(models.MaterialAluminum).String())
	assert.Equal(t, "8", b.Of(models.MaterialGlass).String())
	assert.Equal(t, "3", b.Of(models.MaterialSilicon).String())
	assert.Equal(t, "2", b.Of(models.MaterialCopper).String())
}

func TestDecomposeConservesWeight(t *testing.T) {
	for _, w := range []string{"20", "0.0001", "1", "13.3333", "18.75", "999999.9999", "0.0003"} {
		weight := decimal.RequireFromString(w)
		b, err := Decompose(weight)
		require.NoError(t, err, w)

		require.Len(t, b.Quantities, 4)
		assert.True(t, b.Total().Equal(weight), "weight %s decomposed to %s", w, b.Total())
		for _, q := range b.Quantities {
			assert.False(t, q.Quantity.IsNegative(), "%s negative for %s", q.Kind, w)
		}
	}
}

func TestDecomposeRejectsNonPositive(t *testing.T) {
	for _, w := range []string{"0", "-1", "0.00001"} {
		_, err := Decompose(decimal.RequireFromString(w))
		assert.Error(t, err, w)
	}
}

func TestBreakdownRoundTripsThroughRecord(t *testing.T) {
	b, err := Decompose(decimal.RequireFromString("21.5"))
	require.NoError(t, err)

	var rec models.RecycleRecord
	b.record(&rec)
	back := breakdownOf(&rec)

	assert.True(t, back.Weight.Equal(b.Weight))
	for _, q := range b.Quantities {
		assert.True(t, back.Of(q.Kind).Equal(q.Quantity), q.Kind)
	}

	batch := b.batch("NFC-7", "0xcustodian")
	assert.Equal(t, "NFC-7", batch.ExternalID)
	assert.Len(t, batch.Materials, 4)
}
