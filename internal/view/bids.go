package view

import (
	"errors"
	"time"

	"merchant-admin/internal/models"

	"github.com/google/uuid"
)

var ErrBidNotFound = errors.New("bid not found")

// BidRow is one rendered line of the bids table.
type BidRow struct {
	ID       string
	CarTitle string
	Amount   string
	Created  string
}

// BidListEditor renders a bid sequence and forwards add/remove intents.
// It never changes the sequence itself.
type BidListEditor struct {
	bids     []models.Bid
	onAdd    func(models.Bid)
	onRemove func(models.Bid)

	newID func() string
	now   func() time.Time
}

func NewBidListEditor(bids []models.Bid, onAdd, onRemove func(models.Bid)) *BidListEditor {
	return &BidListEditor{
		bids:     bids,
		onAdd:    onAdd,
		onRemove: onRemove,
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *BidListEditor) Rows() []BidRow {
	rows := make([]BidRow, 0, len(e.bids))
	for _, b := range e.bids {
		row := BidRow{
			ID:       b.ID,
			CarTitle: b.CarTitle,
			Amount:   b.Amount.StringFixed(2),
		}
		if !b.Created.IsZero() {
			row.Created = b.Created.Format("2006-01-02 15:04")
		}
		rows = append(rows, row)
	}
	return rows
}

// Add builds a new bid from req and hands it to the add callback.
func (e *BidListEditor) Add(req models.NewBidRequest) (models.Bid, error) {
	if err := models.Validate(req); err != nil {
		return models.Bid{}, err
	}

	bid := models.Bid{
		ID:       e.newID(),
		CarTitle: req.CarTitle,
		Amount:   req.Amount,
		Created:  e.now(),
	}
	if e.onAdd != nil {
		e.onAdd(bid)
	}
	return bid, nil
}

// Remove hands the bid with bidID to the remove callback.
func (e *BidListEditor) Remove(bidID string) error {
	for _, b := range e.bids {
		if b.ID == bidID {
			if e.onRemove != nil {
				e.onRemove(b)
			}
			return nil
		}
	}
	return ErrBidNotFound
}
