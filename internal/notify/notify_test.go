package notify_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ghostrelay/controlplane/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlackNotifier_PostsToWebhook(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	n := notify.New(srv.URL, "#alerts", "ghostrelay")
	err := n.Notify(context.Background(), "critical", "ghost runner unreachable")
	require.NoError(t, err)
	assert.Contains(t, gotBody, "ghost runner unreachable")
}

func TestSlackNotifier_EmptyWebhookIsNoop(t *testing.T) {
	n := notify.New("", "#alerts", "ghostrelay")
	err := n.Notify(context.Background(), "info", "anything")
	assert.NoError(t, err)
}

func TestSlackNotifier_PropagatesPostError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := notify.New(srv.URL, "#alerts", "ghostrelay")
	err := n.Notify(context.Background(), "critical", "boom")
	assert.Error(t, err)
}

func TestNoopNotifier_NeverErrors(t *testing.T) {
	var n notify.Notifier = notify.NoopNotifier{}
	assert.NoError(t, n.Notify(context.Background(), "info", "anything"))
}
