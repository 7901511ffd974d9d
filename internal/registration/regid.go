package registration

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultIDPrefix is used when no registration id prefix is configured.
const DefaultIDPrefix = "BGHSA"

// ErrInvalidRegistrationID is returned for ids not matching PREFIX-YYYY-NNNNN.
var ErrInvalidRegistrationID = errors.New("invalid registration id")

// IDFormat formats and parses registration ids such as BGHSA-2010-00042.
type IDFormat struct {
	prefix string
	re     *regexp.Regexp
}

// NewIDFormat builds the format for prefix, falling back to DefaultIDPrefix.
func NewIDFormat(prefix string) *IDFormat {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &IDFormat{
		prefix: prefix,
		re:     regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `-(\d{4})-(\d{5})$`),
	}
}

// Prefix returns the configured prefix.
func (f *IDFormat) Prefix() string { return f.prefix }

// Format renders year and sequence as a registration id.
func (f *IDFormat) Format(year, seq int) (string, error) {
	if year < 1000 || year > 9999 {
		return "", fmt.Errorf("%w: year %d out of range", ErrInvalidRegistrationID, year)
	}
	if seq < 0 || seq > 99999 {
		return "", fmt.Errorf("%w: sequence %d out of range", ErrInvalidRegistrationID, seq)
	}
	return fmt.Sprintf("%s-%04d-%05d", f.prefix, year, seq), nil
}

// Valid reports whether id is a well formed registration id.
func (f *IDFormat) Valid(id string) bool {
	return f.re.MatchString(id)
}

// Parse extracts the year and sequence number from id.
func (f *IDFormat) Parse(id string) (year, seq int, err error) {
	m := f.re.FindStringSubmatch(id)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidRegistrationID, id)
	}
	year, _ = strconv.Atoi(m[1])
	seq, _ = strconv.Atoi(m[2])
	return year, seq, nil
}
