package mailbox

import "strings"

// Filter decides whether a single message is relevant.
type Filter func(*Message) bool

// Matcher picks the wanted message out of the current result set, which is
// ordered oldest first. It reports false when the set has no match yet.
type Matcher func(msgs []*Message) (*Message, bool)

// ToRecipient keeps messages addressed to addr.
func ToRecipient(addr string) Filter {
	return func(m *Message) bool { return m.AddressedTo(addr) }
}

// BodyContains keeps messages whose body contains marker.
func BodyContains(marker string) Filter {
	return func(m *Message) bool { return strings.Contains(m.Body, marker) }
}

// BodyLacks keeps messages whose body does not contain marker. Use it to tell
// a plain invite apart from a request-access notification sent to the same address.
func BodyLacks(marker string) Filter {
	return func(m *Message) bool { return !strings.Contains(m.Body, marker) }
}

// SubjectContains keeps messages whose subject contains s, ignoring case.
func SubjectContains(s string) Filter {
	return func(m *Message) bool {
		return strings.Contains(strings.ToLower(m.Subject), strings.ToLower(s))
	}
}

// InLabel keeps messages carrying label.
func InLabel(label string) Filter {
	return func(m *Message) bool { return m.HasLabel(label) }
}

func matching(msgs []*Message, filters []Filter) []*Message {
	out := make([]*Message, 0, len(msgs))
next:
	for _, m := range msgs {
		for _, f := range filters {
			if !f(m) {
				continue next
			}
		}
		out = append(out, m)
	}
	return out
}

// First matches the oldest message passing every filter.
func First(filters ...Filter) Matcher {
	return Nth(1, filters...)
}

// Nth matches the n-th oldest message (1-based) passing every filter.
func Nth(n int, filters ...Filter) Matcher {
	return func(msgs []*Message) (*Message, bool) {
		if n < 1 {
			return nil, false
		}
		found := matching(msgs, filters)
		if len(found) < n {
			return nil, false
		}
		return found[n-1], true
	}
}

// Newest matches the most recent message passing every filter.
func Newest(filters ...Filter) Matcher {
	return func(msgs []*Message) (*Message, bool) {
		found := matching(msgs, filters)
		if len(found) == 0 {
			return nil, false
		}
		return found[len(found)-1], true
	}
}

// CountAtLeast matches once at least n messages pass every filter, returning the newest.
// Callers record the count before triggering mail and wait for count+1.
func CountAtLeast(n int, filters ...Filter) Matcher {
	return func(msgs []*Message) (*Message, bool) {
		found := matching(msgs, filters)
		if len(found) == 0 || len(found) < n {
			return nil, false
		}
		return found[len(found)-1], true
	}
}
