// Package store holds the process-wide merchant state. All mutations go
// through a single command loop; readers only ever see immutable snapshots.
package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"merchant-admin/internal/metrics"
	"merchant-admin/internal/models"
	"merchant-admin/internal/services"

	"github.com/rs/zerolog"
)

var (
	ErrClosed    = errors.New("store closed")
	ErrNotLoaded = errors.New("merchant not loaded")
)

// Backend is the persistence collaborator the store resolves operations against.
type Backend interface {
	GetMerchantByID(ctx context.Context, id string) (*models.Merchant, error)
	UpdateMerchant(ctx context.Context, id string, patch models.MerchantPatch) (*models.Merchant, error)
	DeleteMerchant(ctx context.Context, id string) error
}

type opKind int

const (
	opFetch opKind = iota
	opEdit
	opDelete
)

func (k opKind) String() string {
	switch k {
	case opEdit:
		return "edit"
	case opDelete:
		return "delete"
	default:
		return "fetch"
	}
}

type command struct {
	kind     opKind
	finished bool
	// overlaps marks a fetch started while a mutation of the same id was
	// in flight; its read may predate that mutation's commit.
	overlaps bool
	id       string
	patch    models.MerchantPatch
	gen      uint64
	merchant *models.Merchant
	err      error
	elapsed  time.Duration
	reply    chan error
}

type Store struct {
	backend Backend
	logger  zerolog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan command
	done   chan struct{}
	closed sync.Once
	wg     sync.WaitGroup

	// closeMu guards closing against submit enqueueing after the drain.
	closeMu  sync.RWMutex
	stopping bool

	snap atomic.Pointer[Snapshot]

	subMu      sync.Mutex
	subs       map[int]chan uint64
	nextSub    int
	subsClosed bool

	// owned by the run goroutine
	entries  map[string]Entry
	gen      map[string]uint64
	mutStart map[string]uint64
	applied  map[string]uint64
	mutating map[string]int
	lastMut  map[string]uint64
	version  uint64
}

// New starts a store over backend. opTimeout bounds every backend call.
func New(backend Backend, opTimeout time.Duration, logger zerolog.Logger, m *metrics.Metrics) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:  backend,
		logger:   logger.With().Str("component", "store").Logger(),
		metrics:  m,
		timeout:  opTimeout,
		ctx:      ctx,
		cancel:   cancel,
		cmds:     make(chan command, 64),
		done:     make(chan struct{}),
		subs:     make(map[int]chan uint64),
		entries:  make(map[string]Entry),
		gen:      make(map[string]uint64),
		mutStart: make(map[string]uint64),
		applied:  make(map[string]uint64),
		mutating: make(map[string]int),
		lastMut:  make(map[string]uint64),
	}
	s.snap.Store(emptySnapshot)

	s.wg.Add(1)
	go s.run()
	return s
}

// Snapshot returns the current state. It never returns nil.
func (s *Store) Snapshot() *Snapshot {
	return s.snap.Load()
}

// Fetch loads or refreshes one merchant. The returned channel yields the
// outcome once; callers may ignore it.
func (s *Store) Fetch(id string) <-chan error {
	return s.submit(command{kind: opFetch, id: id})
}

// Edit merges patch into the merchant and persists it. Editing a merchant
// that has not been loaded fails with ErrNotLoaded.
func (s *Store) Edit(id string, patch models.MerchantPatch) <-chan error {
	return s.submit(command{kind: opEdit, id: id, patch: patch})
}

// Delete removes the merchant from the backend and the store.
func (s *Store) Delete(id string) <-chan error {
	return s.submit(command{kind: opDelete, id: id})
}

// Subscribe returns a channel that receives the latest snapshot version
// after every change. Notifications are coalesced for slow readers.
func (s *Store) Subscribe() (<-chan uint64, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan uint64, 1)
	if s.subsClosed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if _, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(ch)
			}
		})
	}
}

// Close stops the command loop and cancels in-flight backend calls.
func (s *Store) Close() {
	s.closed.Do(func() {
		close(s.done)

		s.closeMu.Lock()
		s.stopping = true
		s.closeMu.Unlock()

		s.cancel()
		s.wg.Wait()

	drain:
		for {
			select {
			case c := <-s.cmds:
				c.reply <- ErrClosed
			default:
				break drain
			}
		}

		s.subMu.Lock()
		s.subsClosed = true
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.subMu.Unlock()
	})
}

func (s *Store) submit(c command) <-chan error {
	c.reply = make(chan error, 1)

	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.stopping {
		c.reply <- ErrClosed
		return c.reply
	}

	select {
	case <-s.done:
		c.reply <- ErrClosed
	default:
		select {
		case s.cmds <- c:
		case <-s.done:
			c.reply <- ErrClosed
		}
	}
	return c.reply
}

func (s *Store) run() {
	defer s.wg.Done()
	for {
		select {
		case c := <-s.cmds:
			if c.finished {
				s.finish(c)
			} else {
				s.start(c)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Store) start(c command) {
	e := s.entries[c.id]

	if c.kind == opEdit && e.Merchant == nil {
		s.logger.Warn().Str("merchant_id", c.id).Msg("Edit rejected, merchant not loaded")
		s.metrics.StoreOps.WithLabelValues(c.kind.String(), "rejected").Inc()
		c.reply <- ErrNotLoaded
		return
	}

	s.gen[c.id]++
	g := s.gen[c.id]
	if c.kind == opFetch {
		c.overlaps = s.mutating[c.id] > 0
	} else {
		s.mutStart[c.id] = g
		s.mutating[c.id]++
	}

	e.Pending++
	if c.kind == opFetch && e.Merchant == nil {
		e.Status = StatusLoading
		e.Err = nil
	}
	s.entries[c.id] = e
	s.publish()

	s.logger.Debug().Str("merchant_id", c.id).Str("op", c.kind.String()).Uint64("gen", g).Msg("Operation started")

	s.wg.Add(1)
	go s.execute(c, g)
}

func (s *Store) execute(c command, g uint64) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	started := time.Now()
	switch c.kind {
	case opFetch:
		c.merchant, c.err = s.backend.GetMerchantByID(ctx, c.id)
	case opEdit:
		c.merchant, c.err = s.backend.UpdateMerchant(ctx, c.id, c.patch)
	case opDelete:
		c.err = s.backend.DeleteMerchant(ctx, c.id)
	}
	c.elapsed = time.Since(started)
	c.gen = g
	c.finished = true

	select {
	case <-s.done:
		c.reply <- ErrClosed
		return
	default:
	}

	select {
	case s.cmds <- c:
	case <-s.done:
		c.reply <- ErrClosed
	}
}

func (s *Store) finish(c command) {
	e := s.entries[c.id]
	if e.Pending > 0 {
		e.Pending--
	}

	if c.kind != opFetch && s.mutating[c.id] > 0 {
		s.mutating[c.id]--
	}

	notFound := errors.Is(c.err, services.ErrMerchantNotFound)
	outcome := "ok"

	switch c.kind {
	case opFetch:
		if c.overlaps || c.gen < s.mutStart[c.id] || c.gen < s.applied[c.id] {
			outcome = "stale"
			if e.Merchant == nil && e.Status == StatusLoading && e.Pending == 0 {
				e.Status = StatusNotLoaded
			}
			break
		}
		s.applied[c.id] = c.gen
		switch {
		case c.err == nil:
			e.Merchant, e.Status, e.Err = c.merchant, StatusLoaded, nil
		case notFound:
			e.Merchant, e.Status, e.Err = nil, StatusNotFound, c.err
		default:
			e.Err = c.err
			if e.Merchant == nil {
				e.Status = StatusFailed
			}
		}

	case opEdit:
		switch {
		case c.err == nil && c.gen < s.lastMut[c.id]:
			outcome = "stale"
		case c.err == nil:
			s.lastMut[c.id] = c.gen
			if c.gen > s.applied[c.id] {
				s.applied[c.id] = c.gen
			}
			e.Merchant, e.Status, e.Err = c.merchant, StatusLoaded, nil
		case notFound:
			e.Merchant, e.Status, e.Err = nil, StatusNotFound, c.err
		default:
			e.Err = c.err
		}

	case opDelete:
		switch {
		case c.err == nil, notFound:
			if c.gen > s.lastMut[c.id] {
				s.lastMut[c.id] = c.gen
			}
			e.Merchant, e.Status, e.Err = nil, StatusNotFound, nil
		default:
			e.Err = c.err
		}
	}

	if c.err != nil && outcome == "ok" {
		outcome = "error"
		if notFound {
			outcome = "not_found"
		}
	}

	s.entries[c.id] = e
	s.publish()

	s.metrics.StoreOps.WithLabelValues(c.kind.String(), outcome).Inc()
	s.metrics.StoreOpDuration.WithLabelValues(c.kind.String()).Observe(c.elapsed.Seconds())

	ev := s.logger.Debug()
	if outcome == "error" {
		ev = s.logger.Warn().Err(c.err)
	}
	ev.Str("merchant_id", c.id).
		Str("op", c.kind.String()).
		Str("outcome", outcome).
		Dur("duration", c.elapsed).
		Msg("Operation finished")

	c.reply <- c.err
}

// publish swaps in a fresh snapshot and notifies subscribers.
func (s *Store) publish() {
	s.version++
	snap := NewSnapshot(s.version, s.entries)
	s.snap.Store(snap)
	s.metrics.StoreEntries.Set(float64(snap.Len()))

	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- s.version:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s.version:
			default:
			}
		}
	}
}
