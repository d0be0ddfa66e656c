package fines

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRateAt(t *testing.T) {
	cases := []struct {
		day  time.Time
		want int
	}{
		{date(2024, time.March, 3), 945},
		{date(2024, time.January, 1), 945},
		{date(2023, time.December, 31), 900},
		{date(2022, time.June, 1), 570},
		{date(2020, time.January, 1), 550},
		{date(2019, time.December, 31), 500},
		{time.Date(2024, time.January, 1, 0, 30, 0, 0, time.FixedZone("CET", 3600)), 945},
	}
	for _, c := range cases {
		got, err := Default.RateAt(c.day)
		require.NoError(t, err, c.day)
		assert.Equal(t, c.want, got, c.day)
	}
}

func TestRateAtBeforeAllEntries(t *testing.T) {
	_, err := Default.RateAt(date(1899, time.December, 31))
	assert.ErrorIs(t, err, ErrNoRate)

	_, err = Table(nil).RateAt(time.Now())
	assert.ErrorIs(t, err, ErrNoRate)
}

func TestNewTableSortsDescending(t *testing.T) {
	tbl := NewTable(
		Rate{date(2010, time.January, 1), 1},
		Rate{date(2020, time.January, 1), 2},
		Rate{date(2015, time.January, 1), 3},
	)
	got, err := tbl.RateAt(date(2016, time.February, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.True(t, tbl[0].Effective.Equal(date(2020, time.January, 1)))
}

func TestFineDate(t *testing.T) {
	assert.Equal(t, date(2024, time.January, 2), FineDate(date(2023, time.December, 27)))
}
