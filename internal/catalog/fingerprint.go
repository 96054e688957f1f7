package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/jjckrbbt/labcatalog/internal/processing"
)

// fieldSeparator is the ASCII unit separator. It cannot appear in a
// normalized cell value, so joined identity fields never collide.
const fieldSeparator = "\x1f"

// Fingerprint returns the identity key of a normalized row as lowercase hex
// SHA-256. Only the service name, sub vertical, test name (trimmed and
// lower-cased), method and unit take part; every other field may change
// without changing identity.
func Fingerprint(row processing.NormalizedRow) string {
	parts := []string{
		row.ServiceName,
		deref(row.SubVertical),
		strings.ToLower(strings.TrimSpace(row.TestName)),
		deref(row.Method),
		deref(row.Unit),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, fieldSeparator)))
	return hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
