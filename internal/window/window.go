// Package window decides the "changed since" lower bound for a backup run.
package window

import (
	"fmt"
	"time"

	"git.home.luguber.info/inful/tabbackup/internal/foundation/errors"
)

// Layout is the wire format of the change window in REST filter expressions.
const Layout = "2006-01-02T15:04:05Z"

// DefaultHours is the incremental window when none is given.
const DefaultHours = 1

// Epoch is the sentinel lower bound that includes every artifact ever created.
var Epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Mode selects between a full load and an incremental window.
type Mode struct {
	full  bool
	hours int
}

// FullLoad returns the mode that backs up everything regardless of update time.
func FullLoad() Mode { return Mode{full: true} }

// Incremental returns the mode covering the last hours hours.
func Incremental(hours int) Mode { return Mode{hours: hours} }

// IsFull reports whether m is a full load.
func (m Mode) IsFull() bool { return m.full }

// Hours returns the incremental window length; zero for a full load.
func (m Mode) Hours() int {
	if m.full {
		return 0
	}
	return m.hours
}

// Validate rejects non-positive incremental windows.
func (m Mode) Validate() error {
	if !m.full && m.hours <= 0 {
		return errors.ConfigError("incremental window must be a positive number of hours").
			WithContext("hours", m.hours).
			Build()
	}
	return nil
}

func (m Mode) String() string {
	if m.full {
		return "full-load"
	}
	return fmt.Sprintf("incremental(%dh)", m.hours)
}

// Compute returns the inclusive lower bound on artifact update time. A destination
// that did not exist before this run is treated as a full load.
func Compute(m Mode, destinationExists bool, now time.Time) time.Time {
	if !destinationExists || m.full {
		return Epoch
	}
	return now.UTC().Add(-time.Duration(m.hours) * time.Hour).Truncate(time.Second)
}

// Format renders t as the filter literal, e.g. 2000-01-01T00:00:00Z.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

// Filter renders the REST filter expression selecting artifacts updated at or after t.
func Filter(t time.Time) string {
	return "updatedAt:gte:" + Format(t)
}
