// Package mailstub is an in-memory mailbox that answers the subset of the
// Gmail REST API the mailbox poller uses. Tests deliver mail to it directly.
package mailstub

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/gmail/v1"
)

// Labels a delivered message may carry.
const (
	LabelInbox = "INBOX"
	LabelSpam  = "SPAM"
)

type storedMessage struct {
	id         string
	labels     []string
	from       string
	to         []string
	subject    string
	text       string
	html       string
	receivedAt time.Time
}

// Store holds delivered messages. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	messages []*storedMessage
	nextID   int
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{now: time.Now}
}

// Deliver adds a message and returns its id.
func (s *Store) Deliver(req DeliverRequest) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	m := &storedMessage{
		id:         fmt.Sprintf("%016x", s.nextID),
		labels:     req.Labels,
		from:       req.From,
		to:         req.To,
		subject:    req.Subject,
		text:       req.Text,
		html:       req.HTML,
		receivedAt: s.now().UTC(),
	}
	if len(m.labels) == 0 {
		m.labels = []string{LabelInbox}
	}
	if req.ReceivedAt != nil {
		m.receivedAt = req.ReceivedAt.UTC()
	}
	s.messages = append(s.messages, m)
	return m.id
}

// Reset drops every message.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// List returns the ids of messages carrying label and addressed to recipient,
// newest first. Empty label or recipient match everything.
func (s *Store) List(label, recipient string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found []*storedMessage
	for _, m := range s.messages {
		if label != "" && !contains(m.labels, label) {
			continue
		}
		if recipient != "" && !contains(m.to, recipient) {
			continue
		}
		found = append(found, m)
	}

	sort.SliceStable(found, func(i, j int) bool {
		return found[i].receivedAt.After(found[j].receivedAt)
	})

	ids := make([]string, len(found))
	for i, m := range found {
		ids[i] = m.id
	}
	return ids
}

// Get returns the message in Gmail's "full" format.
func (s *Store) Get(id string) (*gmail.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.id == id {
			return m.toGmail(), true
		}
	}
	return nil, false
}

func (m *storedMessage) toGmail() *gmail.Message {
	headers := []*gmail.MessagePartHeader{
		{Name: "From", Value: m.from},
		{Name: "To", Value: strings.Join(m.to, ", ")},
		{Name: "Subject", Value: m.subject},
		{Name: "Date", Value: m.receivedAt.Format(time.RFC1123Z)},
	}

	payload := &gmail.MessagePart{Headers: headers}
	switch {
	case m.text != "" && m.html != "":
		payload.MimeType = "multipart/alternative"
		payload.Parts = []*gmail.MessagePart{
			textPart("text/plain", m.text),
			textPart("text/html", m.html),
		}
	case m.html != "":
		payload.MimeType = "text/html"
		payload.Body = body(m.html)
	default:
		payload.MimeType = "text/plain"
		payload.Body = body(m.text)
	}

	snippet := m.text
	if len(snippet) > 100 {
		snippet = snippet[:100]
	}

	return &gmail.Message{
		Id:           m.id,
		ThreadId:     m.id,
		LabelIds:     m.labels,
		InternalDate: m.receivedAt.UnixMilli(),
		Snippet:      snippet,
		Payload:      payload,
	}
}

func textPart(mimeType, content string) *gmail.MessagePart {
	return &gmail.MessagePart{MimeType: mimeType, Body: body(content)}
}

func body(content string) *gmail.MessagePartBody {
	return &gmail.MessagePartBody{
		Data: base64.URLEncoding.EncodeToString([]byte(content)),
		Size: int64(len(content)),
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(v, want) {
			return true
		}
	}
	return false
}
