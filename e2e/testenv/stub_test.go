package testenv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/gti/penpot-e2e/internal/mailbox"
	"github.com/gti/penpot-e2e/internal/mailstub"
)

func startStubServer(t *testing.T, token string) (*mailstub.Store, *httptest.Server) {
	t.Helper()
	store := mailstub.NewStore()
	srv := httptest.NewServer(mailstub.NewServer(store, token, zaptest.NewLogger(t)))
	t.Cleanup(srv.Close)
	return store, srv
}

func TestStubClientDeliverAndReset(t *testing.T) {
	ctx := context.Background()
	store, srv := startStubServer(t, "secret")
	client := NewStubClient(srv.URL+"/", "secret")

	id, err := client.Deliver(ctx, mailstub.DeliverRequest{
		To:      []string{"qa+stub@example.com"},
		Subject: "Invitation to join QA",
		Text:    "Join us: https://design.penpot.test/#/auth/verify-token?token=t1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, []string{id}, store.List(mailstub.LabelInbox, "qa+stub@example.com"))

	require.NoError(t, client.Reset(ctx))
	assert.Empty(t, store.List(mailstub.LabelInbox, "qa+stub@example.com"))
}

func TestStubClientErrors(t *testing.T) {
	ctx := context.Background()
	_, srv := startStubServer(t, "secret")

	_, err := NewStubClient(srv.URL, "secret").Deliver(ctx, mailstub.DeliverRequest{
		To:   []string{"not-an-address"},
		Text: "hello",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")

	err = NewStubClient(srv.URL, "wrong").Reset(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestStubRoundTripThroughPoller(t *testing.T) {
	ctx := context.Background()
	_, srv := startStubServer(t, "secret")
	client := NewStubClient(srv.URL, "secret")

	provider, err := mailbox.NewGmailProvider(ctx, mailbox.GmailConfig{
		Endpoint:    srv.URL,
		StaticToken: "secret",
	})
	require.NoError(t, err)

	addr := mailbox.NewAlias("qa", "example.com")
	_, err = client.Deliver(ctx, mailstub.DeliverRequest{
		To:   []string{addr},
		Text: "Hello!\n\nhttps://design.penpot.test/#/auth/verify-token?token=rt\n",
	})
	require.NoError(t, err)

	poller := mailbox.NewPoller(provider, mailbox.WithLogger(zaptest.NewLogger(t)))
	msg, err := poller.WaitForMessage(ctx, addr, mailbox.First(mailbox.ToRecipient(addr)), 5*time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	links, err := mailbox.ExtractActionLinks(msg, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://design.penpot.test/#/auth/verify-token?token=rt", links.URL())
	assert.Equal(t, "Hello!", links.RemainingText)
}

func TestWaitForService(t *testing.T) {
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	_, srv := startStubServer(t, "")
	assert.NoError(t, waitForService(ctx, srv.URL, time.Second, log))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)
	assert.Error(t, waitForService(ctx, down.URL, 300*time.Millisecond, log))
}
