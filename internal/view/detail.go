// Package view turns store snapshots into renderable models and user
// intents into store dispatches for the merchant admin screens.
package view

import (
	"context"
	"errors"
	"sync"

	"merchant-admin/internal/models"
	"merchant-admin/internal/store"

	"github.com/rs/zerolog"
)

// ListPath is where the detail view sends the user after a delete.
const ListPath = "/page/0"

var ErrMerchantNotLoaded = errors.New("merchant not loaded")

// Store is the part of the record store the detail view talks to.
type Store interface {
	Fetch(id string) <-chan error
	Edit(id string, patch models.MerchantPatch) <-chan error
	Delete(id string) <-chan error
	Snapshot() *store.Snapshot
}

type Navigator interface {
	Navigate(path string)
}

type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

type State int

const (
	StateLoading State = iota
	StateReady
	StateNotFound
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateNotFound:
		return "not_found"
	case StateFailed:
		return "failed"
	default:
		return "loading"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DetailModel is everything the detail screen renders.
type DetailModel struct {
	MerchantID  string           `json:"merchantId"`
	State       State            `json:"state"`
	Merchant    *models.Merchant `json:"merchant,omitempty"`
	DisplayName string           `json:"displayName,omitempty"`
	Busy        bool             `json:"busy"`
	Error       string           `json:"error,omitempty"`
}

// ProjectDetail derives the detail model for merchantID from snap. An
// absent record is Loading until a fetch has concluded otherwise.
func ProjectDetail(snap *store.Snapshot, merchantID string) DetailModel {
	vm := DetailModel{
		MerchantID: merchantID,
		Busy:       snap.IsLoading(merchantID),
	}
	if err := snap.Err(merchantID); err != nil {
		vm.Error = err.Error()
	}

	m, ok := snap.Merchant(merchantID)
	if ok {
		vm.State = StateReady
		vm.Merchant = m
		vm.DisplayName = m.DisplayName()
		return vm
	}

	switch snap.Status(merchantID) {
	case store.StatusNotFound:
		vm.State = StateNotFound
	case store.StatusFailed:
		vm.State = StateFailed
	default:
		vm.State = StateLoading
	}
	return vm
}

// Detail is one mounted merchant detail view.
type Detail struct {
	store  Store
	nav    Navigator
	logger zerolog.Logger

	mu         sync.Mutex
	merchantID string
}

func NewDetail(s Store, nav Navigator, logger zerolog.Logger) *Detail {
	return &Detail{
		store:  s,
		nav:    nav,
		logger: logger,
	}
}

// Route binds the view to merchantID and fetches it when the identifier
// changed. It returns nil when the identifier is unchanged.
func (d *Detail) Route(merchantID string) <-chan error {
	d.mu.Lock()
	if merchantID == d.merchantID {
		d.mu.Unlock()
		return nil
	}
	d.merchantID = merchantID
	d.mu.Unlock()

	d.logger.Debug().Str("merchant_id", merchantID).Msg("Detail view routed")
	return d.store.Fetch(merchantID)
}

func (d *Detail) MerchantID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.merchantID
}

func (d *Detail) Model() DetailModel {
	return ProjectDetail(d.store.Snapshot(), d.MerchantID())
}

func (d *Detail) ChangeEmail(email string) <-chan error {
	return d.edit(func(*models.Merchant) models.MerchantPatch {
		return models.MerchantPatch{Email: &email}
	})
}

func (d *Detail) ChangePhone(phone string) <-chan error {
	return d.edit(func(*models.Merchant) models.MerchantPatch {
		return models.MerchantPatch{Phone: &phone}
	})
}

func (d *Detail) ChangeAvatar(avatarURL string) <-chan error {
	return d.edit(func(*models.Merchant) models.MerchantPatch {
		return models.MerchantPatch{AvatarURL: &avatarURL}
	})
}

func (d *Detail) ChangeName(name string) <-chan error {
	first, last := SplitName(name)
	return d.edit(func(*models.Merchant) models.MerchantPatch {
		return models.MerchantPatch{Firstname: &first, Lastname: &last}
	})
}

// SetPremium dispatches the new checked state of the premium checkbox.
func (d *Detail) SetPremium(checked bool) <-chan error {
	return d.edit(func(*models.Merchant) models.MerchantPatch {
		return models.MerchantPatch{HasPremium: &checked}
	})
}

func (d *Detail) RemoveBid(bid models.Bid) <-chan error {
	return d.edit(func(m *models.Merchant) models.MerchantPatch {
		remaining := make([]models.Bid, 0, len(m.Bids))
		for _, b := range m.Bids {
			if b.ID != bid.ID {
				remaining = append(remaining, b)
			}
		}
		return models.MerchantPatch{Bids: remaining}
	})
}

func (d *Detail) AddBid(bid models.Bid) <-chan error {
	return d.edit(func(m *models.Merchant) models.MerchantPatch {
		bids := make([]models.Bid, 0, len(m.Bids)+1)
		bids = append(bids, m.Bids...)
		bids = append(bids, bid)
		return models.MerchantPatch{Bids: bids}
	})
}

// Delete removes the merchant and then navigates to the list whatever the
// outcome. The outcome is returned once known or when ctx ends.
func (d *Detail) Delete(ctx context.Context) error {
	id := d.MerchantID()
	result := d.store.Delete(id)

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	if err != nil {
		d.logger.Warn().Err(err).Str("merchant_id", id).Msg("Merchant delete failed")
	}
	d.nav.Navigate(ListPath)
	return err
}

func (d *Detail) edit(build func(m *models.Merchant) models.MerchantPatch) <-chan error {
	id := d.MerchantID()
	m, ok := d.store.Snapshot().Merchant(id)
	if !ok {
		return failed(ErrMerchantNotLoaded)
	}
	return d.store.Edit(id, build(m))
}

func failed(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}
