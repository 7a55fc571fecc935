package article

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"almacen/internal/core/id"
)

func TestDetectSupplier(t *testing.T) {
	direct := id.New()
	legacy := id.New()
	first := id.New()
	preferred := id.New()
	t0 := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		article Article
		links   []SupplierLink
		want    *id.ID
	}{
		{
			name:    "preferred link wins over earlier link",
			article: Article{SupplierID: &direct},
			links: []SupplierLink{
				{SupplierID: first, LinkedAt: t0},
				{SupplierID: preferred, Preferred: true, LinkedAt: t0.Add(time.Hour)},
			},
			want: &preferred,
		},
		{
			name:    "first linked supplier by link time",
			article: Article{SupplierID: &direct},
			links: []SupplierLink{
				{SupplierID: preferred, LinkedAt: t0.Add(time.Hour)},
				{SupplierID: first, LinkedAt: t0},
			},
			want: &first,
		},
		{
			name:    "direct supplier without links",
			article: Article{SupplierID: &direct, LegacySupplierID: &legacy},
			want:    &direct,
		},
		{
			name:    "legacy tool supplier as last resort",
			article: Article{LegacySupplierID: &legacy},
			want:    &legacy,
		},
		{
			name:    "no supplier",
			article: Article{},
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectSupplier(&tt.article, tt.links)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestThresholdFallbacks(t *testing.T) {
	a := Article{}
	assert.Equal(t, "10", a.MinStock().String())
	assert.Equal(t, "30", a.MaxStock().String())

	a.StockMinimo = decimal.NewNullDecimal(decimal.NewFromInt(4))
	assert.Equal(t, "12", a.MaxStock().String())

	a.StockMaximo = decimal.NewNullDecimal(decimal.NewFromInt(50))
	assert.Equal(t, "50", a.MaxStock().String())
}

func TestValidate(t *testing.T) {
	a := Article{Code: "TOR-8", Name: "Tornillo 8mm", StockMaximo: decimal.NewNullDecimal(decimal.NewFromInt(5))}
	assert.Error(t, a.Validate(), "maximum below default minimum")

	a.StockMaximo = decimal.NullDecimal{}
	assert.NoError(t, a.Validate())
}
