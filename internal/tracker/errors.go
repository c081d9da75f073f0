package tracker

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput is returned for malformed bar series. The check is
// aborted and the prior state is left untouched.
var ErrInvalidInput = errors.New("invalid input")

// ErrDataGap matches any *DataGapError via errors.Is.
var ErrDataGap = errors.New("data gap")

// DataGapError reports a hole or an ordering problem between two adjacent
// bars. It is informational: the check still runs over whatever was given.
type DataGapError struct {
	Prev    time.Time
	Next    time.Time
	Missing time.Duration
	Reason  string
}

func (e *DataGapError) Error() string {
	if e.Missing > 0 {
		return fmt.Sprintf("data gap: %s between %s and %s", e.Missing, e.Prev.Format(time.RFC3339), e.Next.Format(time.RFC3339))
	}
	return fmt.Sprintf("data gap: %s (%s -> %s)", e.Reason, e.Prev.Format(time.RFC3339), e.Next.Format(time.RFC3339))
}

func (e *DataGapError) Is(target error) bool { return target == ErrDataGap }
