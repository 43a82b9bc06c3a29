package session

import (
	cryptorand "crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	tabNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9\-]`)

	entropyMu   sync.Mutex
	ulidEntropy = ulid.Monotonic(cryptorand.Reader, 0)
)

// GenerateTabID returns a unique, sortable tab id prefixed with a sanitized
// form of base.
func GenerateTabID(base string) string {
	base = strings.TrimSpace(base)
	base = strings.ToLower(strings.ReplaceAll(base, " ", "-"))
	base = tabNameSanitizer.ReplaceAllString(base, "-")
	base = strings.Trim(base, "-")
	if base == "" {
		base = "tab"
	}

	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
	entropyMu.Unlock()
	return fmt.Sprintf("%s-%s", base, strings.ToLower(id))
}
