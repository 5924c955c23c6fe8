package certificate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FallbackCode is used when an area has no code in the catalog any more.
const FallbackCode = "MPA"

// ValidityYears is how long a certificate stays valid after issue.
const ValidityYears = 10

var ErrInvalidID = errors.New("invalid certificate id")

var idPattern = regexp.MustCompile(`^([A-Z]{2,6})-(\d{4})-(\d{6,})$`)

// ID is the structured certificate identifier CODE-YEAR-SEQUENCE.
// The sequence comes from a single store-wide counter, so IDs are unique
// across areas and years; the code and year are for humans.
type ID struct {
	Code     string
	Year     int
	Sequence int64
}

// String renders the ID, e.g. "CPU-2026-000042".
func (id ID) String() string {
	return fmt.Sprintf("%s-%04d-%06d", id.Code, id.Year, id.Sequence)
}

// NewID builds the identifier for a certificate issued at t.
func NewID(code string, t time.Time, seq int64) ID {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		code = FallbackCode
	}
	return ID{Code: code, Year: t.UTC().Year(), Sequence: seq}
}

// FormatID is shorthand for NewID(code, time.Date(year, ...), seq).String().
func FormatID(code string, year int, seq int64) string {
	return NewID(code, time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC), seq).String()
}

// ParseID parses "CODE-YEAR-SEQUENCE".
func ParseID(s string) (ID, error) {
	m := idPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	year, _ := strconv.Atoi(m[2])
	seq, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil || seq <= 0 {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID{Code: m[1], Year: year, Sequence: seq}, nil
}

// ExpiresAt returns the expiry date of a certificate issued at issued.
func ExpiresAt(issued time.Time) time.Time {
	return issued.AddDate(ValidityYears, 0, 0)
}
