package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestRoundFiat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "exact cents untouched", in: "10.25", want: "10.25"},
		{name: "half cent rounds up", in: "10.255", want: "10.26"},
		{name: "below half cent rounds down", in: "10.2549", want: "10.25"},
		{name: "negative half rounds away from zero", in: "-10.255", want: "-10.26"},
		{name: "long tail", in: "4.07385", want: "4.07"},
		{name: "whole number gains cent scale", in: "50000", want: "50000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundFiat(d(t, tt.in))
			assert.Equal(t, tt.want, got.StringFixed(FiatScale))
			assert.True(t, d(t, tt.want).Equal(got))
		})
	}
}

func TestTruncateQuantity(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "within scale untouched", in: "0.1", want: "0.1"},
		{name: "ninth digit dropped, never rounded", in: "0.123456789", want: "0.12345678"},
		{name: "all nines truncate down", in: "0.999999999", want: "0.99999999"},
		{name: "negative truncates toward zero", in: "-0.123456789", want: "-0.12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateQuantity(d(t, tt.in))
			assert.True(t, d(t, tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestRoundPrice(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "within scale untouched", in: "50000.12345678", want: "50000.12345678"},
		{name: "ninth digit at five rounds up", in: "0.123456785", want: "0.12345679"},
		{name: "ninth digit below five rounds down", in: "0.123456784", want: "0.12345678"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoundPrice(d(t, tt.in))
			assert.True(t, d(t, tt.want).Equal(got), "got %s", got)
		})
	}
}

func TestWeightedAveragePrice(t *testing.T) {
	tests := []struct {
		name     string
		oldQty   string
		oldAvg   string
		newQty   string
		newPrice string
		want     string
	}{
		{
			name:   "equal lots average evenly",
			oldQty: "0.05", oldAvg: "50000", newQty: "0.05", newPrice: "60000",
			want: "55000",
		},
		{
			name:   "larger old lot dominates",
			oldQty: "0.3", oldAvg: "100", newQty: "0.1", newPrice: "200",
			want: "125",
		},
		{
			name:   "repeating fraction rounds at eight places",
			oldQty: "1", oldAvg: "100", newQty: "2", newPrice: "101",
			// (100 + 202) / 3 = 100.666666...
			want: "100.66666667",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedAveragePrice(d(t, tt.oldQty), d(t, tt.oldAvg), d(t, tt.newQty), d(t, tt.newPrice))
			assert.True(t, d(t, tt.want).Equal(got), "got %s", got)
		})
	}
}
