package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"merchant-admin/internal/metrics"
	"merchant-admin/internal/middleware"
	"merchant-admin/internal/view"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func dialLive(t *testing.T, role string) (*websocket.Conn, *memBackend) {
	t.Helper()

	backend := newMemBackend(sampleMerchant())
	s := newTestStore(t, backend)
	live := NewLiveHandler(s, metrics.NewNop(), zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.OperatorRoleKey, role)
		live.ServeHTTP(w, r.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, backend
}

// readUntil reads server messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg
		}
	}
}

func readyModel(msg ServerMessage) bool {
	return msg.Type == "model" && msg.Model.State == view.StateReady && !msg.Model.Busy
}

func TestLiveHandler_OpenPushesModel(t *testing.T) {
	conn, _ := dialLive(t, "viewer")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "open", ID: "m1"}))
	msg := readUntil(t, conn, readyModel)

	require.NotNil(t, msg.Model.Merchant)
	require.Equal(t, "Ada Lovelace", msg.Model.DisplayName)
}

func TestLiveHandler_EditsFlowBack(t *testing.T) {
	conn, backend := dialLive(t, "admin")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "open", ID: "m1"}))
	readUntil(t, conn, readyModel)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "email", Value: "ada@engine.io"}))
	msg := readUntil(t, conn, func(m ServerMessage) bool {
		return readyModel(m) && m.Model.Merchant.Email == "ada@engine.io"
	})
	require.Equal(t, "ada@engine.io", msg.Model.Merchant.Email)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "removeBid", ID: "b1"}))
	readUntil(t, conn, func(m ServerMessage) bool {
		return readyModel(m) && len(m.Model.Merchant.Bids) == 1
	})

	stored, _ := backend.merchant("m1")
	require.Equal(t, "ada@engine.io", stored.Email)
	require.Equal(t, "b2", stored.Bids[0].ID)
}

func TestLiveHandler_DeleteNavigates(t *testing.T) {
	conn, backend := dialLive(t, "admin")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "open", ID: "m1"}))
	readUntil(t, conn, readyModel)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "delete"}))
	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "navigate" })
	require.Equal(t, view.ListPath, msg.Path)

	_, ok := backend.merchant("m1")
	require.False(t, ok)
}

func TestLiveHandler_ViewerCannotEdit(t *testing.T) {
	conn, backend := dialLive(t, "viewer")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "open", ID: "m1"}))
	readUntil(t, conn, readyModel)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "phone", Value: "1"}))
	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "error" })
	require.Equal(t, "forbidden", msg.Error)

	stored, _ := backend.merchant("m1")
	require.Equal(t, "+44 20 0000", stored.Phone)
}

func TestLiveHandler_RequiresOpen(t *testing.T) {
	conn, _ := dialLive(t, "admin")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "premium", Checked: true}))
	msg := readUntil(t, conn, func(m ServerMessage) bool { return m.Type == "error" })
	require.Equal(t, "not_open", msg.Error)
}
