package mailstub

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/gmail/v1"
)

func do(t *testing.T, e *echo.Echo, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func newTestServer(t *testing.T, token string) (*echo.Echo, *Store) {
	store := NewStore()
	return NewServer(store, token, zaptest.NewLogger(t)), store
}

func TestDeliverAndList(t *testing.T) {
	e, _ := newTestServer(t, "")

	rec := do(t, e, http.MethodPost, "/stub/messages", "",
		`{"to":["qa+a@example.com"],"subject":"Invitation","text":"hi https://x.test/a"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var delivered DeliverResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &delivered))
	require.NotEmpty(t, delivered.ID)

	rec = do(t, e, http.MethodPost, "/stub/messages", "",
		`{"to":["qa+b@example.com"],"text":"other","labels":["SPAM"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, e, http.MethodGet, "/gmail/v1/users/me/messages?q=to:QA%2Ba@example.com&labelIds=INBOX", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list gmail.ListMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Messages, 1)
	assert.Equal(t, delivered.ID, list.Messages[0].Id)

	rec = do(t, e, http.MethodGet, "/gmail/v1/users/me/messages?q=to:qa%2Ba@example.com&labelIds=SPAM", "", "")
	list = gmail.ListMessagesResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Messages)
}

func TestGetMessageFullFormat(t *testing.T) {
	e, store := newTestServer(t, "")
	at := time.Date(2024, time.May, 6, 9, 30, 0, 0, time.UTC)
	id := store.Deliver(DeliverRequest{
		To:         []string{"qa+a@example.com"},
		From:       "no-reply@penpot.test",
		Subject:    "Invitation",
		Text:       "plain",
		HTML:       "<p>html</p>",
		ReceivedAt: &at,
	})

	rec := do(t, e, http.MethodGet, "/gmail/v1/users/me/messages/"+id, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"internalDate":"1714987800000"`)

	var msg gmail.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.Equal(t, []string{LabelInbox}, msg.LabelIds)
	assert.Equal(t, "multipart/alternative", msg.Payload.MimeType)
	require.Len(t, msg.Payload.Parts, 2)

	text, err := base64.URLEncoding.DecodeString(msg.Payload.Parts[0].Body.Data)
	require.NoError(t, err)
	assert.Equal(t, "plain", string(text))
}

func TestGetMessageNotFound(t *testing.T) {
	e, _ := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/gmail/v1/users/me/messages/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"NOT_FOUND"`)
}

func TestDeliverValidation(t *testing.T) {
	e, _ := newTestServer(t, "")

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed", body: `{"to":`},
		{name: "no recipient", body: `{"text":"x"}`},
		{name: "bad recipient", body: `{"to":["not-an-address"],"text":"x"}`},
		{name: "no body", body: `{"to":["qa@example.com"]}`},
		{name: "unknown label", body: `{"to":["qa@example.com"],"text":"x","labels":["TRASH"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodPost, "/stub/messages", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestListPagination(t *testing.T) {
	e, store := newTestServer(t, "")
	base := time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)
	for i := range 3 {
		at := base.Add(time.Duration(i) * time.Minute)
		store.Deliver(DeliverRequest{To: []string{"qa@example.com"}, Text: "x", ReceivedAt: &at})
	}

	rec := do(t, e, http.MethodGet, "/gmail/v1/users/me/messages?maxResults=2", "", "")
	var page gmail.ListMessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Messages, 2)
	assert.Equal(t, "2", page.NextPageToken)

	rec = do(t, e, http.MethodGet, "/gmail/v1/users/me/messages?maxResults=2&pageToken=2", "", "")
	page = gmail.ListMessagesResponse{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Messages, 1)
	assert.Empty(t, page.NextPageToken)

	rec = do(t, e, http.MethodGet, "/gmail/v1/users/me/messages?maxResults=0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListNewestFirst(t *testing.T) {
	store := NewStore()
	early := time.Date(2024, time.May, 6, 9, 0, 0, 0, time.UTC)
	late := early.Add(time.Minute)
	first := store.Deliver(DeliverRequest{To: []string{"qa@example.com"}, Text: "x", ReceivedAt: &early})
	second := store.Deliver(DeliverRequest{To: []string{"qa@example.com"}, Text: "y", ReceivedAt: &late})

	assert.Equal(t, []string{second, first}, store.List(LabelInbox, "qa@example.com"))
}

func TestReset(t *testing.T) {
	e, store := newTestServer(t, "")
	store.Deliver(DeliverRequest{To: []string{"qa@example.com"}, Text: "x"})

	rec := do(t, e, http.MethodDelete, "/stub/messages", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.List("", ""))
}

func TestBearerAuth(t *testing.T) {
	e, _ := newTestServer(t, "s3cret")

	tests := []struct {
		name   string
		target string
		token  string
		want   int
	}{
		{name: "health is open", target: "/healthz", want: http.StatusOK},
		{name: "missing token", target: "/gmail/v1/users/me/messages", want: http.StatusUnauthorized},
		{name: "wrong token", target: "/gmail/v1/users/me/messages", token: "nope", want: http.StatusUnauthorized},
		{name: "valid token", target: "/gmail/v1/users/me/messages", token: "s3cret", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, e, http.MethodGet, tt.target, tt.token, "")
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSwaggerDoc(t *testing.T) {
	e, _ := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/api/doc/doc.json", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Mailbox Stub API")
	assert.Contains(t, rec.Body.String(), "/stub/messages")
}

func TestRecipientFromQuery(t *testing.T) {
	assert.Equal(t, "qa+x@example.com", recipientFromQuery("to:qa+x@example.com"))
	assert.Equal(t, "qa@example.com", recipientFromQuery(`in:inbox TO:"qa@example.com"`))
	assert.Equal(t, "", recipientFromQuery("subject:hello"))
}
