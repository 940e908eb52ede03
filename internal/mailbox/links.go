package mailbox

import (
	"fmt"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// ActionLinks is what a test needs from an action email: the links to follow
// and the remaining text to compare against a known template.
type ActionLinks struct {
	URLs          []string
	RemainingText string
}

// URL returns the first link.
func (a ActionLinks) URL() string {
	if len(a.URLs) == 0 {
		return ""
	}
	return a.URLs[0]
}

// ExtractActionLinks returns the first linkCount URLs of msg's body, in order,
// plus the body with those URLs removed and surrounding whitespace trimmed.
// A simple invite carries one link; a request-access notification carries two
// (dashboard first, then the requested resource).
func ExtractActionLinks(msg *Message, linkCount int) (ActionLinks, error) {
	if linkCount < 1 {
		return ActionLinks{}, fmt.Errorf("link count must be at least 1, got %d", linkCount)
	}

	found := FindURLs(msg.Body)
	if len(found) < linkCount {
		return ActionLinks{}, &LinkNotFoundError{MessageID: msg.ID, Want: linkCount, Found: len(found)}
	}

	urls := found[:linkCount:linkCount]
	rest := msg.Body
	for _, u := range urls {
		rest = strings.Replace(rest, u, "", 1)
	}

	return ActionLinks{
		URLs:          urls,
		RemainingText: strings.TrimSpace(rest),
	}, nil
}

// FindURLs returns every http(s) URL in text with trailing sentence punctuation dropped.
func FindURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	urls := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, `.,;:!?"'>)]}`)
		if len(m) > len("https://") {
			urls = append(urls, m)
		}
	}
	return urls
}
