package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"merchant-admin/internal/metrics"
	"merchant-admin/internal/middleware"
	"merchant-admin/internal/models"
	"merchant-admin/internal/view"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	liveWriteTimeout   = 10 * time.Second
	livePongTimeout    = 60 * time.Second
	livePingPeriod     = 54 * time.Second
	liveMaxMessageSize = 64 * 1024
	liveDeleteTimeout  = 30 * time.Second
)

// LiveStore is a view.Store that can also announce new versions.
type LiveStore interface {
	view.Store
	Subscribe() (<-chan uint64, func())
}

// ClientMessage is one intent sent by a live session client.
type ClientMessage struct {
	Type     string          `json:"type"`
	ID       string          `json:"id,omitempty"`
	Value    string          `json:"value,omitempty"`
	Checked  bool            `json:"checked,omitempty"`
	CarTitle string          `json:"carTitle,omitempty"`
	Amount   decimal.Decimal `json:"amount"`
}

// ServerMessage is pushed to live session clients.
type ServerMessage struct {
	Type    string            `json:"type"`
	Model   *view.DetailModel `json:"model,omitempty"`
	Path    string            `json:"path,omitempty"`
	Error   string            `json:"error,omitempty"`
	Message string            `json:"message,omitempty"`
}

// LiveHandler serves detail views over a websocket. Each connection is one
// mounted view that follows store changes.
type LiveHandler struct {
	store    LiveStore
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewLiveHandler(s LiveStore, m *metrics.Metrics, logger zerolog.Logger) *LiveHandler {
	return &LiveHandler{
		store: s,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		metrics: m,
		logger:  logger.With().Str("component", "live").Logger(),
	}
}

type liveSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	detail  *view.Detail
	canEdit bool
	logger  zerolog.Logger

	lastMu sync.Mutex
	last   []byte
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.metrics.LiveSessions.Inc()
	defer h.metrics.LiveSessions.Dec()

	role, _ := middleware.GetOperatorRole(r)
	s := &liveSession{
		conn:    conn,
		canEdit: role == string(models.RoleAdmin),
		logger:  h.logger.With().Str("request_id", middleware.GetRequestID(r)).Logger(),
	}
	s.detail = view.NewDetail(h.store, view.NavigatorFunc(func(path string) {
		s.send(ServerMessage{Type: "navigate", Path: path})
	}), s.logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	versions, unsubscribe := h.store.Subscribe()
	defer unsubscribe()
	go s.push(ctx, versions)

	s.logger.Debug().Msg("Live session opened")
	s.read(ctx)
	s.logger.Debug().Msg("Live session closed")
}

// push sends the projected model whenever it changed and keeps the
// connection alive with pings.
func (s *liveSession) push(ctx context.Context, versions <-chan uint64) {
	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-versions:
			if !ok {
				return
			}
			s.sendModel(false)
		case <-ping.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *liveSession) read(ctx context.Context) {
	s.conn.SetReadLimit(liveMaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(livePongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(livePongTimeout))
	})

	for {
		var msg ClientMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn().Err(err).Msg("Live session read failed")
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(livePongTimeout))
		s.handle(ctx, msg)
	}
}

func (s *liveSession) handle(ctx context.Context, msg ClientMessage) {
	if msg.Type == "open" {
		if msg.ID == "" {
			s.sendError("invalid_message", "open requires an id")
			return
		}
		s.detail.Route(msg.ID)
		s.sendModel(true)
		return
	}

	if s.detail.MerchantID() == "" {
		s.sendError("not_open", "open a merchant first")
		return
	}
	if !s.canEdit {
		s.sendError("forbidden", "Insufficient permissions")
		return
	}
	if model := s.detail.Model(); model.Busy {
		s.sendError("field_disabled", view.ErrFieldDisabled.Error())
		return
	}

	switch msg.Type {
	case "email":
		s.watch(s.detail.ChangeEmail(msg.Value))
	case "phone":
		s.watch(s.detail.ChangePhone(msg.Value))
	case "avatarUrl":
		s.watch(s.detail.ChangeAvatar(msg.Value))
	case "name":
		s.watch(s.detail.ChangeName(msg.Value))
	case "premium":
		s.watch(s.detail.SetPremium(msg.Checked))
	case "addBid":
		s.addBid(msg)
	case "removeBid":
		s.removeBid(msg.ID)
	case "delete":
		go func() {
			dctx, cancel := context.WithTimeout(ctx, liveDeleteTimeout)
			defer cancel()
			if err := s.detail.Delete(dctx); err != nil {
				s.sendStoreError(err)
			}
		}()
	default:
		s.sendError("invalid_message", "unknown message type "+msg.Type)
	}
}

func (s *liveSession) addBid(msg ClientMessage) {
	m := s.detail.Model().Merchant
	if m == nil {
		s.sendStoreError(view.ErrMerchantNotLoaded)
		return
	}

	editor := view.NewBidListEditor(m.Bids, func(b models.Bid) { s.watch(s.detail.AddBid(b)) }, nil)
	if _, err := editor.Add(models.NewBidRequest{CarTitle: msg.CarTitle, Amount: msg.Amount}); err != nil {
		s.sendStoreError(err)
	}
}

func (s *liveSession) removeBid(bidID string) {
	m := s.detail.Model().Merchant
	if m == nil {
		s.sendStoreError(view.ErrMerchantNotLoaded)
		return
	}

	editor := view.NewBidListEditor(m.Bids, nil, func(b models.Bid) { s.watch(s.detail.RemoveBid(b)) })
	if err := editor.Remove(bidID); err != nil {
		s.sendStoreError(err)
	}
}

// watch reports a failed operation to the client once it resolves.
func (s *liveSession) watch(result <-chan error) {
	if result == nil {
		return
	}
	go func() {
		if err := <-result; err != nil {
			s.sendStoreError(err)
		}
	}()
}

// sendModel pushes the current model. Unless forced, an unchanged model
// is not sent again. Models go out in the order they were projected.
func (s *liveSession) sendModel(force bool) {
	if s.detail.MerchantID() == "" {
		return
	}

	s.lastMu.Lock()
	defer s.lastMu.Unlock()

	model := s.detail.Model()
	payload, err := json.Marshal(ServerMessage{Type: "model", Model: &model})
	if err != nil {
		s.logger.Error().Err(err).Msg("Encoding live model failed")
		return
	}
	if !force && string(payload) == string(s.last) {
		return
	}
	s.last = payload
	s.write(payload)
}

func (s *liveSession) sendStoreError(err error) {
	_, code := storeErrorStatus(err)
	s.sendError(code, err.Error())
}

func (s *liveSession) sendError(code, message string) {
	s.send(ServerMessage{Type: "error", Error: code, Message: message})
}

func (s *liveSession) send(msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Encoding live message failed")
		return
	}
	s.write(payload)
}

func (s *liveSession) write(payload []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.logger.Debug().Err(err).Msg("Live session write failed")
	}
}
