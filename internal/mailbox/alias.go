package mailbox

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewAlias returns a subaddress user+<random tag>@domain. Mail to it lands in the
// user's mailbox, and the tag keeps each test's messages apart from every other test's.
func NewAlias(user, domain string) string {
	tag := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("%s+%s@%s", user, tag, domain)
}

// BaseAddress strips a +tag from addr: "qa+x1@example.com" becomes "qa@example.com".
func BaseAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return addr
	}
	if base, _, tagged := strings.Cut(local, "+"); tagged {
		local = base
	}
	return local + "@" + domain
}
