package mailbox

import (
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/net/html"
	"google.golang.org/api/gmail/v1"
)

// Provider labels searched by default. Transactional mail is regularly filed as spam.
const (
	LabelInbox = "INBOX"
	LabelSpam  = "SPAM"
)

// Message is a fetched mail message. It is never modified after fetching.
type Message struct {
	ID         string
	ThreadID   string
	Labels     []string
	From       string
	To         []string
	Subject    string
	ReceivedAt time.Time

	// Body is the decoded text content: the first text/plain part, or the
	// first text/html part reduced to text when no plain part exists.
	Body string
}

// HasLabel reports whether the message carries label.
func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// AddressedTo reports whether addr is one of the message recipients.
func (m *Message) AddressedTo(addr string) bool {
	for _, to := range m.To {
		if strings.EqualFold(to, addr) {
			return true
		}
	}
	return false
}

// messageFromGmail converts a full-format Gmail message.
func messageFromGmail(gm *gmail.Message) (*Message, error) {
	msg := &Message{
		ID:         gm.Id,
		ThreadID:   gm.ThreadId,
		Labels:     gm.LabelIds,
		ReceivedAt: time.UnixMilli(gm.InternalDate).UTC(),
	}
	if gm.Payload == nil {
		return msg, nil
	}

	for _, h := range gm.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "subject":
			msg.Subject = h.Value
		case "to", "delivered-to":
			msg.To = appendAddresses(msg.To, h.Value)
		}
	}

	body, err := bodyText(gm.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode body of message %s: %w", gm.Id, err)
	}
	msg.Body = body

	return msg, nil
}

func appendAddresses(dst []string, header string) []string {
	list, err := mail.ParseAddressList(header)
	if err != nil {
		// Not RFC 5322, keep the raw comma separated values.
		for _, a := range strings.Split(header, ",") {
			if a = strings.TrimSpace(a); a != "" {
				dst = appendUnique(dst, a)
			}
		}
		return dst
	}
	for _, a := range list {
		dst = appendUnique(dst, a.Address)
	}
	return dst
}

func appendUnique(dst []string, addr string) []string {
	for _, existing := range dst {
		if strings.EqualFold(existing, addr) {
			return dst
		}
	}
	return append(dst, addr)
}

// bodyText walks the MIME tree depth-first.
func bodyText(root *gmail.MessagePart) (string, error) {
	plain := findPart(root, "text/plain")
	if plain != nil {
		return decodePart(plain)
	}

	htmlPart := findPart(root, "text/html")
	if htmlPart != nil {
		raw, err := decodePart(htmlPart)
		if err != nil {
			return "", err
		}
		return htmlToText(raw), nil
	}

	// Single-part message with an unusual content type.
	if root.Body != nil && root.Body.Data != "" {
		return decodePart(root)
	}
	return "", nil
}

func findPart(p *gmail.MessagePart, mimeType string) *gmail.MessagePart {
	if p == nil {
		return nil
	}
	if strings.EqualFold(p.MimeType, mimeType) && p.Body != nil && p.Body.Data != "" {
		return p
	}
	for _, child := range p.Parts {
		if found := findPart(child, mimeType); found != nil {
			return found
		}
	}
	return nil
}

func decodePart(p *gmail.MessagePart) (string, error) {
	data, err := DecodeBase64(p.Body.Data)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

// DecodeBase64 accepts URL-safe or standard alphabets, padded or not, as
// providers disagree on which one a message part uses.
func DecodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	encodings := []*base64.Encoding{
		base64.URLEncoding,
		base64.RawURLEncoding,
		base64.StdEncoding,
		base64.RawStdEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("failed to decode base64 body: %w", lastErr)
}

// htmlToText keeps text nodes and inlines anchor targets so links survive the conversion.
func htmlToText(raw string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(raw))
	skip := 0
	href, anchorStart := "", 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(collapseBlankLines(b.String()))
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				skip++
			case "br", "p", "div", "tr", "li":
				b.WriteString("\n")
			case "a":
				href, anchorStart = "", b.Len()
				for hasAttr {
					var key, val []byte
					key, val, hasAttr = z.TagAttr()
					if string(key) == "href" && strings.HasPrefix(string(val), "http") {
						href = string(val)
					}
				}
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "head":
				if skip > 0 {
					skip--
				}
			case "a":
				if href != "" && !strings.Contains(b.String()[anchorStart:], href) {
					b.WriteString(" " + href + " ")
				}
				href = ""
			case "p", "div":
				b.WriteString("\n")
			}
		}
	}
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l == "" && len(out) > 0 && out[len(out)-1] == "" {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
