package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

const periodLayout = "2006-01-02"

// Period is the dedup window an alert raised at t belongs to: the UTC day.
func Period(t time.Time) string {
	return t.UTC().Format(periodLayout)
}

// Fingerprint identifies one finding of one check for one tenant within a period.
func Fingerprint(tenantID, platform, checkID, period string) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{tenantID, platform, checkID, period}, "|")))
	return hex.EncodeToString(sum[:])
}
