package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"almacen/internal/core/entity"
	"almacen/internal/core/id"
)

type mockDocument struct {
	entity.Document
	State    string          `db:"state"`
	Quantity decimal.Decimal `db:"quantity"`
	Lines    []string        `db:"-"`
	internal string
}

func TestColumns_WalksEmbeddedHeader(t *testing.T) {
	cols := Columns[mockDocument]()

	assert.Equal(t, []string{
		"id", "number", "version", "created_at", "created_by", "updated_at", "updated_by",
		"state", "quantity",
	}, cols)
	assert.Equal(t, cols, Columns[*mockDocument](), "pointer types share metadata")
}

func TestValues_FollowColumnOrder(t *testing.T) {
	now := time.Now().UTC()
	doc := &mockDocument{
		Document: entity.Document{ID: id.New(), Number: "SC-140326-0930-01", Version: 3, CreatedAt: now},
		State:    "pendiente",
		Quantity: decimal.NewFromInt(45),
		internal: "ignored",
	}

	vals := Values(doc, []string{"state", "number", "missing", "version"})

	assert.Equal(t, []any{"pendiente", "SC-140326-0930-01", nil, 3}, vals)

	m := ColumnMap(*doc)
	assert.Equal(t, doc.ID, m["id"])
	assert.Equal(t, now, m["created_at"])
	assert.NotContains(t, m, "lines")
}

func TestWithout(t *testing.T) {
	assert.Equal(t, []string{"b"}, without([]string{"a", "b", "c"}, "a", "c"))
}
