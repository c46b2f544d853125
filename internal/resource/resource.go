// Package resource defines the identifiers, ranges, templates and fetch
// outcomes shared by the queue, store, fetcher and runner packages.
package resource

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MaxRangeLen is the largest number of identifiers a single run accepts.
// The queue holds the whole range in memory.
const MaxRangeLen = 10_000_000

// Placeholder is substituted with the decimal identifier when a Template is expanded.
const Placeholder = "{id}"

var (
	ErrInvalidRange        = errors.New("invalid identifier range")
	ErrMissingPlaceholder  = errors.New("template must contain " + Placeholder)
	ErrNonPositiveIdentity = errors.New("identifier must be positive")
)

// ID identifies one fetchable, storable resource.
type ID int64

func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Validate reports whether the identifier is usable.
func (id ID) Validate() error {
	if id < 1 {
		return fmt.Errorf("%w: %d", ErrNonPositiveIdentity, id)
	}
	return nil
}

// Range is a closed identifier range [Start, End]. A range with End < Start is empty.
type Range struct {
	Start ID `json:"start" yaml:"start"`
	End   ID `json:"end" yaml:"end"`
}

// Empty reports whether the range contains no identifiers.
func (r Range) Empty() bool {
	return r.End < r.Start
}

// Len returns the number of identifiers in the range.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return int(r.End-r.Start) + 1
}

// IDs returns every identifier in the range in ascending order.
func (r Range) IDs() []ID {
	n := r.Len()
	if n == 0 {
		return nil
	}
	ids := make([]ID, n)
	for i := range ids {
		ids[i] = r.Start + ID(i)
	}
	return ids
}

// Validate checks that the range is well formed. Start must be >= 1 and End
// must be >= 0; End < Start is allowed and denotes the empty range. A range
// may span at most MaxRangeLen identifiers.
func (r Range) Validate() error {
	if r.Start < 1 {
		return fmt.Errorf("%w: start must be >= 1, got %d", ErrInvalidRange, r.Start)
	}
	if r.End < 0 {
		return fmt.Errorf("%w: end must be >= 0, got %d", ErrInvalidRange, r.End)
	}
	if r.TooLarge() {
		return fmt.Errorf("%w: %s spans more than %d identifiers", ErrInvalidRange, r, MaxRangeLen)
	}
	return nil
}

// TooLarge reports whether the range spans more than MaxRangeLen identifiers.
func (r Range) TooLarge() bool {
	if r.Empty() || r.Start < 1 {
		return false
	}
	// Start >= 1 keeps End-Start from overflowing.
	return r.End-r.Start >= MaxRangeLen
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// Template maps an identifier to a location string, e.g. a URL or storage key.
type Template string

// Expand substitutes every placeholder with id.
func (t Template) Expand(id ID) string {
	return strings.ReplaceAll(string(t), Placeholder, id.String())
}

// Validate reports whether the template can produce identifier-specific values.
func (t Template) Validate() error {
	if strings.TrimSpace(string(t)) == "" {
		return errors.New("template cannot be empty")
	}
	if !strings.Contains(string(t), Placeholder) {
		return fmt.Errorf("%w: %q", ErrMissingPlaceholder, string(t))
	}
	return nil
}

// ValidateURL reports whether the template expands to an absolute http(s) URL.
func (t Template) ValidateURL() error {
	if err := t.Validate(); err != nil {
		return err
	}
	u, err := url.Parse(t.Expand(1))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("must include a host")
	}
	return nil
}
