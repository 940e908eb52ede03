package helpers

import (
	"regexp"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gti/penpot-e2e/internal/billing"
	"github.com/gti/penpot-e2e/internal/mailbox"
)

var actionURLPattern = regexp.MustCompile(`^https?://\S+$`)

// Assert wraps testify/assert with the checks the scenarios repeat. Failures
// are reported but do not stop the test; use require for fatal checks.
//
//	a := NewAssert(t)
//	a.ActionURL(links.URL())
//	a.TemplateText(want, links.RemainingText)
type Assert struct {
	t assert.TestingT
}

func NewAssert(t assert.TestingT) *Assert {
	return &Assert{t: t}
}

// ActionURL asserts that u is a single http(s) URL without whitespace.
func (a *Assert) ActionURL(u string, msgAndArgs ...any) bool {
	return assert.Regexp(a.t, actionURLPattern, u, msgAndArgs...)
}

// ActionURLOn asserts that u is an action URL pointing at the instance under test.
func (a *Assert) ActionURLOn(baseURL, u string, msgAndArgs ...any) bool {
	if !a.ActionURL(u, msgAndArgs...) {
		return false
	}
	return assert.True(a.t, strings.HasPrefix(u, strings.TrimRight(baseURL, "/")+"/"),
		append([]any{"%s is not under %s", u, baseURL}, msgAndArgs...)...)
}

// LinkCount asserts how many links were taken out of an action email.
func (a *Assert) LinkCount(links mailbox.ActionLinks, n int, msgAndArgs ...any) bool {
	return assert.Len(a.t, links.URLs, n, msgAndArgs...)
}

// TemplateText asserts that an email's text, with links removed, equals the
// expected template. Line endings, trailing spaces and the blank lines left
// where links were removed are ignored.
func (a *Assert) TemplateText(want, got string, msgAndArgs ...any) bool {
	return assert.Equal(a.t, normalizeText(want), normalizeText(got), msgAndArgs...)
}

// SubscriptionStatus asserts the status of a subscription.
func (a *Assert) SubscriptionStatus(want billing.SubscriptionStatus, sub *billing.Subscription, msgAndArgs ...any) bool {
	if !assert.NotNil(a.t, sub, msgAndArgs...) {
		return false
	}
	return assert.Equal(a.t, want, sub.Status, msgAndArgs...)
}

// SameSecond asserts two instants agree to the second, the provider's resolution.
func (a *Assert) SameSecond(want, got time.Time, msgAndArgs ...any) bool {
	return assert.WithinDuration(a.t, want, got, time.Second, msgAndArgs...)
}

// Equal asserts that expected and actual are equal.
func (a *Assert) Equal(expected, actual any, msgAndArgs ...any) bool {
	return assert.Equal(a.t, expected, actual, msgAndArgs...)
}

// NoError asserts that err is nil.
func (a *Assert) NoError(err error, msgAndArgs ...any) bool {
	return assert.NoError(a.t, err, msgAndArgs...)
}

func normalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	blank := false
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, l)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
