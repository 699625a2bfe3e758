package queues

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifier(t *testing.T) {
	var got telegramMessage
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	notifier := NewTelegramNotifier(server.URL+"/", "secret-token", "-100", server.Client())

	err := notifier.Notify(t.Context(), Notification{Role: "OP_MANAGER", Recipient: "42", Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "/botsecret-token/sendMessage", path)
	assert.Equal(t, telegramMessage{ChatID: "42", Text: "hello"}, got)

	err = notifier.Notify(t.Context(), Notification{Role: "RISK", Message: "fallback"})
	require.NoError(t, err)
	assert.Equal(t, "-100", got.ChatID)
}

func TestTelegramNotifier_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	notifier := NewTelegramNotifier(server.URL, "token", "", server.Client())

	err := notifier.Notify(t.Context(), Notification{Role: "RISK", Message: "m"})
	assert.ErrorIs(t, err, ErrNoChatID)

	err = notifier.Notify(t.Context(), Notification{Role: "RISK", Recipient: "1", Message: "m"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestRedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	notifier := NewRedisNotifier(client, "")
	assert.Equal(t, "dealflow:notifications:RISK", notifier.Channel("RISK"))

	sub := client.Subscribe(t.Context(), notifier.Channel("RISK"))
	defer sub.Close()

	_, err := sub.Receive(t.Context())
	require.NoError(t, err)

	err = notifier.Notify(t.Context(), Notification{DealID: "deal-1", Role: "RISK", Message: "review"})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var got Notification
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "deal-1", got.DealID)
		assert.Equal(t, "review", got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not published")
	}
}

func TestRedisNotifier_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	mr.Close()

	err := NewRedisNotifier(client, "test:").Notify(t.Context(), Notification{Role: "RISK"})
	assert.Error(t, err)
}

func TestParseRecipients(t *testing.T) {
	directory, err := ParseRecipients([]string{"RISK=1", " RISK = 2 ", "SUPPORT=3"})
	require.NoError(t, err)

	assert.Equal(t, []Recipient{
		{Role: "RISK", Address: "1"},
		{Role: "RISK", Address: "2"},
		{Role: "FINANCE"},
	}, directory.Resolve([]string{"RISK", "FINANCE"}))

	_, err = ParseRecipients([]string{"RISK"})
	assert.Error(t, err)

	_, err = ParseRecipients([]string{"=1"})
	assert.Error(t, err)
}

func TestDispatcher_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewDispatcher(server.Client()).Dispatch(t.Context(), server.URL, "", map[string]any{"a": 1})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}
