package calculator

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ExtremaSentinel/internal/model"
)

// ErrNoBars is returned when a calculation is given an empty series.
var ErrNoBars = errors.New("no bars provided")

// Extreme is a price together with the time of the bar that produced it.
type Extreme struct {
	Price decimal.Decimal
	Time  time.Time
}

// SessionRange scans bars and returns the highest high and the lowest low.
// On ties the earliest bar wins.
func SessionRange(bars []model.Bar) (high, low Extreme, err error) {
	if len(bars) == 0 {
		return Extreme{}, Extreme{}, ErrNoBars
	}
	high = Extreme{Price: bars[0].High, Time: bars[0].Time}
	low = Extreme{Price: bars[0].Low, Time: bars[0].Time}
	for _, b := range bars[1:] {
		if b.High.GreaterThan(high.Price) {
			high = Extreme{Price: b.High, Time: b.Time}
		}
		if b.Low.LessThan(low.Price) {
			low = Extreme{Price: b.Low, Time: b.Time}
		}
	}
	return high, low, nil
}

// TrailingRange returns the range of every bar except the last one, plus the
// last bar itself. It requires at least two bars.
func TrailingRange(bars []model.Bar) (high, low Extreme, last model.Bar, err error) {
	if len(bars) < 2 {
		return Extreme{}, Extreme{}, model.Bar{}, errors.New("need at least 2 bars for a trailing range")
	}
	high, low, err = SessionRange(bars[:len(bars)-1])
	if err != nil {
		return Extreme{}, Extreme{}, model.Bar{}, err
	}
	return high, low, bars[len(bars)-1], nil
}
