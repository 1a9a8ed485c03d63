// Package reference produces the caller-generated identifiers the counterpart
// network uses for tracing and idempotency matching: the systems trace audit
// number (STAN), the retrieval reference number (RRN) and the correlation id.
//
// All three are generated exactly once per logical submit attempt and reused
// verbatim across any retry of the same logical transaction, so a legitimate
// retry is matched by the network instead of moving money twice.
package reference

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	traceMin = 100000
	traceMax = 999999
)

// NewTraceNumber returns a 6-digit trace number uniformly distributed over
// [100000, 999999]. Uniqueness inside a short window relies on randomness,
// not global sequencing.
func NewTraceNumber() int {
	n, err := rand.Int(rand.Reader, big.NewInt(traceMax-traceMin+1))
	if err != nil {
		// crypto/rand only fails when the platform source is broken; fall
		// back to a time-derived value inside the same range.
		return traceMin + int(time.Now().UnixNano()%(traceMax-traceMin+1))
	}
	return traceMin + int(n.Int64())
}

// NewRetrievalReference returns the fixed 12-digit retrieval reference number
// for a trace number: last digit of year, day of year, hour of day, then the
// 6-digit trace number.
func NewRetrievalReference(now time.Time, trace int) string {
	yearLastDigit := now.Year() % 10
	return fmt.Sprintf("%d%03d%02d%06d", yearLastDigit, now.YearDay(), now.Hour(), trace)
}

// NewCorrelationID returns an opaque identifier of at most 23 characters,
// unique per outbound request, used by the nested-envelope dialect for
// request deduplication and tracing.
func NewCorrelationID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return id[:23]
}
