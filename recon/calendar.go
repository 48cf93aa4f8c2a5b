package recon

import (
	"fmt"
	"strings"
)

// =============================================================================
// CALENDAR - Ordered period labels
// =============================================================================

// Calendar is the ordered list of period labels a report uses. Lookups are
// case-insensitive and accept aliases (abbreviations, localized names).
type Calendar struct {
	labels []string
	index  map[string]int
}

// MonthNames are the canonical labels of the default calendar.
var MonthNames = []string{
	"January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December",
}

// NewCalendar creates a calendar from canonical labels. Each label is also
// reachable through its aliases: aliases[i] lists extra names for labels[i].
func NewCalendar(labels []string, aliases ...[]string) (*Calendar, error) {
	if len(labels) == 0 {
		return nil, fmt.Errorf("%w: calendar has no periods", ErrInvalidConfig)
	}
	c := &Calendar{
		labels: append([]string(nil), labels...),
		index:  make(map[string]int, len(labels)*3),
	}
	for i, l := range labels {
		if err := c.add(l, i); err != nil {
			return nil, err
		}
	}
	for _, set := range aliases {
		for i, a := range set {
			if i >= len(labels) || a == "" {
				continue
			}
			if err := c.add(a, i); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (c *Calendar) add(name string, idx int) error {
	key := strings.ToLower(strings.TrimSpace(name))
	if prev, ok := c.index[key]; ok && prev != idx {
		return fmt.Errorf("%w: period name %q maps to both %q and %q",
			ErrInvalidConfig, name, c.labels[prev], c.labels[idx])
	}
	c.index[key] = idx
	return nil
}

// DefaultCalendar is the 12-month calendar. It accepts "March", "mar" and
// "3月" for the same period.
func DefaultCalendar() *Calendar {
	short := make([]string, len(MonthNames))
	cjk := make([]string, len(MonthNames))
	for i, m := range MonthNames {
		short[i] = m[:3]
		cjk[i] = fmt.Sprintf("%d月", i+1)
	}
	c, err := NewCalendar(MonthNames, short, cjk)
	if err != nil {
		panic(err) // static input
	}
	return c
}

func (c *Calendar) Len() int { return len(c.labels) }

// Labels returns a copy of the canonical labels in order.
func (c *Calendar) Labels() []string { return append([]string(nil), c.labels...) }

// Index returns the position of a label, or -1 and false when unknown.
func (c *Calendar) Index(label string) (int, bool) {
	idx, ok := c.index[strings.ToLower(strings.TrimSpace(label))]
	if !ok {
		return -1, false
	}
	return idx, true
}

// Normalize maps any accepted name to its canonical label.
func (c *Calendar) Normalize(label string) (string, bool) {
	idx, ok := c.Index(label)
	if !ok {
		return "", false
	}
	return c.labels[idx], true
}
