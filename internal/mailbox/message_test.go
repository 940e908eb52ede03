package mailbox

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func b64url(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestMessageFromGmailMultipart(t *testing.T) {
	gm := &gmail.Message{
		Id:           "18f0",
		ThreadId:     "18f0",
		LabelIds:     []string{"INBOX", "UNREAD"},
		InternalDate: 1714987800000,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Penpot <no-reply@penpot.app>"},
				{Name: "To", Value: "QA <qa+t1@example.com>, other@example.com"},
				{Name: "Subject", Value: "Invitation to join QA"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64url("<p>ignored</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("Join us?\r\nhttps://design.penpot.test/#/x\r\n")}},
			},
		},
	}

	msg, err := messageFromGmail(gm)
	require.NoError(t, err)

	assert.Equal(t, "18f0", msg.ID)
	assert.Equal(t, "Penpot <no-reply@penpot.app>", msg.From)
	assert.Equal(t, []string{"qa+t1@example.com", "other@example.com"}, msg.To)
	assert.Equal(t, "Invitation to join QA", msg.Subject)
	assert.Equal(t, "Join us?\nhttps://design.penpot.test/#/x\n", msg.Body)
	assert.Equal(t, time.Date(2024, time.May, 6, 9, 30, 0, 0, time.UTC), msg.ReceivedAt)
	assert.True(t, msg.HasLabel("inbox"))
	assert.True(t, msg.AddressedTo("QA+T1@example.com"))
}

func TestMessageFromGmailNestedHTMLOnly(t *testing.T) {
	html := `<html><head><style>p{}</style></head><body>
<p>Hello!</p>
<p>QA Bot has invited you.</p>
<a href="https://design.penpot.test/#/auth/verify-token?token=t">Accept invite</a>
<a href="https://penpot.app">https://penpot.app</a>
</body></html>`
	gm := &gmail.Message{
		Id: "h1",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{{
				MimeType: "multipart/related",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: base64.URLEncoding.EncodeToString([]byte(html))}},
				},
			}},
		},
	}

	msg, err := messageFromGmail(gm)
	require.NoError(t, err)

	assert.Contains(t, msg.Body, "Hello!")
	assert.Contains(t, msg.Body, "QA Bot has invited you.")
	assert.NotContains(t, msg.Body, "p{}")
	assert.Equal(t, []string{"https://design.penpot.test/#/auth/verify-token?token=t", "https://penpot.app"}, FindURLs(msg.Body))
}

func TestMessageFromGmailBadEncoding(t *testing.T) {
	gm := &gmail.Message{
		Id: "bad",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: "!!not base64!!"},
		},
	}

	_, err := messageFromGmail(gm)
	assert.Error(t, err)
}

func TestDecodeBase64Alphabets(t *testing.T) {
	raw := "subject?>>~ token=a+b/c"

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		got, err := DecodeBase64(enc.EncodeToString([]byte(raw)))
		require.NoError(t, err)
		assert.Equal(t, raw, string(got))
	}

	wrapped := base64.StdEncoding.EncodeToString([]byte(raw))
	got, err := DecodeBase64(wrapped[:8] + "\r\n" + wrapped[8:])
	require.NoError(t, err)
	assert.Equal(t, raw, string(got))
}
