package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "cronloop/pkg/logx"
)

func TestNewRequiresToken(t *testing.T) {
	_, err := New(Config{Token: "  "}, logx.Nop())
	assert.Error(t, err)
}

func TestSendText(t *testing.T) {
	var (
		gotPath string
		gotForm url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotForm = parseBody(t, r.Header.Get("Content-Type"), body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":11,"date":0,"chat":{"id":-100,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	a, err := New(Config{Token: "123:abc", URL: srv.URL}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, a.SendText(context.Background(), -100, 5, "hello"))

	assert.Equal(t, "/bot123:abc/sendMessage", gotPath)
	assert.Equal(t, "-100", gotForm.Get("chat_id"))
	assert.Equal(t, "hello", gotForm.Get("text"))
	assert.Equal(t, "5", gotForm.Get("message_thread_id"))
}

func TestSendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`)
	}))
	defer srv.Close()

	a, err := New(Config{Token: "123:abc", URL: srv.URL}, logx.Nop())
	require.NoError(t, err)
	err = a.SendText(context.Background(), 1, 0, "hello")
	assert.Error(t, err)
}

func TestSendTextCanceled(t *testing.T) {
	a, err := New(Config{Token: "123:abc", URL: "http://127.0.0.1:1"}, logx.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.SendText(ctx, 1, 0, "x"), context.Canceled)
}

// parseBody accepts both JSON and form encoded API calls.
func parseBody(t *testing.T, contentType string, body []byte) url.Values {
	t.Helper()
	out := url.Values{}
	if strings.HasPrefix(contentType, "application/json") {
		var m map[string]any
		require.NoError(t, json.Unmarshal(body, &m))
		for k, v := range m {
			if s, ok := v.(string); ok {
				out.Set(k, s)
			}
		}
		return out
	}
	vals, err := url.ParseQuery(string(body))
	require.NoError(t, err)
	return vals
}
