package utils

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWindow = errors.New("utils: invalid time window")

// TimeWindow selects acquisitions whose day of year falls in [Lo, Hi],
// bounds inclusive. Wrap-around windows are not supported; a season
// spanning a year boundary is configured as two windows instead.
type TimeWindow struct {
	Lo int `yaml:"lo"`
	Hi int `yaml:"hi"`
}

// Validate fails with ErrInvalidWindow unless 1 <= Lo <= Hi <= 366.
func (w TimeWindow) Validate() error {
	if w.Lo < 1 || w.Hi > 366 || w.Lo > w.Hi {
		return fmt.Errorf("day-of-year window [%d, %d]: %w", w.Lo, w.Hi, ErrInvalidWindow)
	}
	return nil
}

// Contains reports whether t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	doy := t.YearDay()
	return doy >= w.Lo && doy <= w.Hi
}

func (w TimeWindow) String() string {
	return fmt.Sprintf("doy[%d,%d]", w.Lo, w.Hi)
}
