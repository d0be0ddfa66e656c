package fines

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var ErrNoRate = errors.New("no fine rate for date")

type Rate struct {
	Effective time.Time
	Amount    int
}

// Table is ordered newest effective date first.
type Table []Rate

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

// Default is the CPR-law fine schedule in DKK.
var Default = NewTable(
	Rate{date(2024, time.January, 1), 945},
	Rate{date(2023, time.January, 1), 900},
	Rate{date(2022, time.January, 1), 570},
	Rate{date(2021, time.January, 1), 560},
	Rate{date(2020, time.January, 1), 550},
	Rate{date(1900, time.January, 1), 500},
)

func NewTable(rates ...Rate) Table {
	t := make(Table, len(rates))
	copy(t, rates)
	sort.SliceStable(t, func(i, j int) bool { return t[i].Effective.After(t[j].Effective) })
	return t
}

// RateAt returns the amount of the newest rate that is effective on the
// calendar day of d.
func (t Table) RateAt(d time.Time) (int, error) {
	day := date(d.Year(), d.Month(), d.Day())
	for _, r := range t {
		if !day.Before(r.Effective) {
			return r.Amount, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrNoRate, day.Format("2006-01-02"))
}

// FineDate is the day a move registration becomes late: six days after
// the move.
func FineDate(move time.Time) time.Time {
	return move.AddDate(0, 0, 6)
}
