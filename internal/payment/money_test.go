package payment

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		rupees string
		want   int64
	}{
		{"1215", 121500},
		{"810.00", 81000},
		{"153.3333", 15333},
		{"99.995", 10000},
		{"0.005", 1},
		{"0.004", 0},
		{"-12.345", -1235},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ToMinorUnits(decimal.RequireFromString(tc.rupees)), tc.rupees)
	}
}

func TestToMinorUnits_FloatNoise(t *testing.T) {
	// 0.1 + 0.2 is not 0.3 in binary floating point.
	assert.Equal(t, int64(30), ToMinorUnits(decimal.NewFromFloat(0.1+0.2)))
	assert.Equal(t, int64(114), ToMinorUnits(decimal.NewFromFloat(1.1399999999)))
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1215.50").Equal(FromMinorUnits(121550)))
}
