package telegramrepo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestNotifier(srv *httptest.Server) *httpNotifier {
	return &httpNotifier{
		token:   "test-token",
		chatID:  "-100123",
		baseURL: srv.URL,
		client:  srv.Client(),
	}
}

func TestSend_OK(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	n := newTestNotifier(srv)
	require.NoError(t, n.Send(context.Background(), "hello"))

	require.Equal(t, "/bottest-token/sendMessage", gotPath)
	require.Equal(t, "-100123", gotBody["chat_id"])
	require.Equal(t, "hello", gotBody["text"])
}

func TestSend_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := newTestNotifier(srv).Send(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "sendMessage failed")
}

func TestSend_APIRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "description": "chat not found"})
	}))
	defer srv.Close()

	err := newTestNotifier(srv).Send(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")
}

func TestNoop_DropsMessage(t *testing.T) {
	require.NoError(t, NewNoop().Send(context.Background(), "hello"))
}
