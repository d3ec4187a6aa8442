package notifier

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramSendText(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/botT0K/sendMessage", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chat-1", body["chat_id"])
		assert.Equal(t, "hello", body["text"])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := newTelegram(srv.URL, "T0K", "chat-1")
	require.NoError(t, tg.SendText("hello"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestTelegramReportsClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := newTelegram(srv.URL, "T", "C").SendText("x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	assert.Error(t, NewTelegram("", "").SendText("x"))
}

func TestLedgerPendingRender(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := LedgerPending("C1", "RELIANCE", "BUY", 10, "OID-1", errors.New("database is locked"), at).RenderMarkdown()

	assert.True(t, strings.HasPrefix(msg, "⚠️ Ledger write pending"))
	assert.Contains(t, msg, "- client: C1")
	assert.Contains(t, msg, "- BUY 10 RELIANCE")
	assert.Contains(t, msg, "- database is locked")
	assert.Contains(t, msg, "at 2024-03-01 10:00:00 UTC")
}

func TestNoop(t *testing.T) {
	var n TextNotifier = Noop{}
	assert.NoError(t, n.SendText("ignored"))
}
