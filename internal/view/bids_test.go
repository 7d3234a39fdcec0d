package view

import (
	"testing"
	"time"

	"merchant-admin/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBidListEditor_Rows(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	e := NewBidListEditor([]models.Bid{
		{ID: "b1", CarTitle: "Volvo 240", Amount: decimal.RequireFromString("1500.5"), Created: created},
		{ID: "b2", CarTitle: "Saab 900", Amount: decimal.NewFromInt(900)},
	}, nil, nil)

	rows := e.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, BidRow{ID: "b1", CarTitle: "Volvo 240", Amount: "1500.50", Created: "2024-03-01 09:30"}, rows[0])
	assert.Equal(t, "900.00", rows[1].Amount)
	assert.Empty(t, rows[1].Created)
}

func TestBidListEditor_Add(t *testing.T) {
	var added []models.Bid
	e := NewBidListEditor(nil, func(b models.Bid) { added = append(added, b) }, nil)
	e.newID = func() string { return "fixed-id" }
	e.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	bid, err := e.Add(models.NewBidRequest{CarTitle: "Golf", Amount: decimal.NewFromInt(2500)})
	require.NoError(t, err)

	assert.Equal(t, "fixed-id", bid.ID)
	assert.Equal(t, "Golf", bid.CarTitle)
	assert.True(t, bid.Amount.Equal(decimal.NewFromInt(2500)))
	assert.Equal(t, []models.Bid{bid}, added)
}

func TestBidListEditor_AddRejectsInvalid(t *testing.T) {
	calls := 0
	e := NewBidListEditor(nil, func(models.Bid) { calls++ }, nil)

	_, err := e.Add(models.NewBidRequest{CarTitle: "", Amount: decimal.NewFromInt(10)})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = e.Add(models.NewBidRequest{CarTitle: "Golf", Amount: decimal.Zero})
	assert.ErrorIs(t, err, models.ErrValidation)

	assert.Zero(t, calls)
}

func TestBidListEditor_Remove(t *testing.T) {
	x := models.Bid{ID: "X", CarTitle: "x", Amount: decimal.NewFromInt(1)}
	y := models.Bid{ID: "Y", CarTitle: "y", Amount: decimal.NewFromInt(2)}

	var removed []models.Bid
	e := NewBidListEditor([]models.Bid{x, y}, nil, func(b models.Bid) { removed = append(removed, b) })

	require.NoError(t, e.Remove("X"))
	assert.Equal(t, []models.Bid{x}, removed)

	assert.ErrorIs(t, e.Remove("nope"), ErrBidNotFound)
	assert.Len(t, removed, 1)
}
