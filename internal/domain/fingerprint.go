package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint derives the deduplication key for a job. Only the identity
// tuple (date, school, position) participates: two postings that share all
// three are the same job as far as notification state is concerned, even if
// times or teacher differ between scrapes.
//
// The key is a 128-bit sha256 prefix: collision odds stay negligible and the
// hex form fits in a Telegram callback-data payload (64-byte limit) with the
// action tag prepended.
func Fingerprint(j Job) string {
	key := strings.ToLower(j.Date + "-" + j.School + "-" + j.Position)
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:16])
}
