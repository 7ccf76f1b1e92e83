package processor

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(TimeLayout, s)
	require.NoError(t, err)
	return v
}

// hourly 两个站点交替、逐小时的观测
func hourly(t *testing.T, hours int) *Dataset {
	base := mustTime(t, "2016-12-31 20:00:00")
	rows := make([]obs, 0, hours*2)
	for h := 0; h < hours; h++ {
		dt := base.Add(time.Duration(h) * time.Hour).Format(TimeLayout)
		rows = append(rows,
			obs{dt: dt, station: "A", pm25: fmt.Sprint(h)},
			obs{dt: dt, station: "B", pm25: fmt.Sprint(100 + h)},
		)
	}
	return newTestDataset(t, rows...)
}

func TestFilterCorrectness(t *testing.T) {
	ds := hourly(t, 10)
	c := Criteria{
		Range: DateRange{
			Start: mustTime(t, "2016-12-31 22:00:00"),
			End:   mustTime(t, "2017-01-01 02:00:00"),
		},
		Station:    "A",
		Parameters: []string{"PM2.5"},
	}

	res := NewFilterEngine(ds).Filter(c)
	require.NoError(t, res.Fallback)

	// 输出中每条记录都满足条件
	times := res.Dataset.Times()
	for i, st := range res.Dataset.Frame().Col(StationCol).Records() {
		assert.Equal(t, "A", st)
		assert.False(t, times[i].Before(c.Range.Start))
		assert.False(t, times[i].After(c.Range.End))
	}

	// 原数据中满足条件的记录都恰好出现一次
	expected := 0
	allTimes := ds.Times()
	for i, st := range ds.Frame().Col(StationCol).Records() {
		if st == "A" && !allTimes[i].Before(c.Range.Start) && !allTimes[i].After(c.Range.End) {
			expected++
		}
	}
	assert.Equal(t, 5, expected)
	assert.Equal(t, expected, res.Count())
}

func TestFilterPreservesOrder(t *testing.T) {
	ds := hourly(t, 8)
	res := NewFilterEngine(ds).Filter(Criteria{Station: "B", Parameters: []string{"PM2.5"}})

	values := res.Dataset.Frame().Col("PM2.5").Float()
	require.Len(t, values, 8)
	for i := 1; i < len(values); i++ {
		assert.Less(t, values[i-1], values[i])
	}
}

func TestFilterRangeFallback(t *testing.T) {
	ds := hourly(t, 6)
	engine := NewFilterEngine(ds)
	lo, hi := ds.Bounds()

	cases := map[string]DateRange{
		"start after end": {Start: mustTime(t, "2017-01-01 01:00:00"), End: mustTime(t, "2016-12-31 21:00:00")},
		"only start":      {Start: mustTime(t, "2016-12-31 22:00:00")},
		"only end":        {End: mustTime(t, "2016-12-31 22:00:00")},
	}
	for name, rng := range cases {
		t.Run(name, func(t *testing.T) {
			res := engine.Filter(Criteria{Range: rng, Station: "A", Parameters: []string{"PM2.5"}})

			var rangeErr *InvalidRangeError
			require.True(t, errors.As(res.Fallback, &rangeErr))
			assert.Equal(t, lo, res.Range.Start)
			assert.Equal(t, hi, res.Range.End)
			assert.Equal(t, 6, res.Count())
		})
	}
}

func TestFilterFullRangeWhenUnset(t *testing.T) {
	res := NewFilterEngine(fourRecords(t)).Filter(Criteria{Station: "A", Parameters: []string{"PM2.5"}})
	assert.NoError(t, res.Fallback)
	assert.Equal(t, 2, res.Count())
}

func TestFilterEmptyResult(t *testing.T) {
	ds := fourRecords(t)
	res := NewFilterEngine(ds).Filter(Criteria{Station: "Z", Parameters: []string{"PM2.5"}})
	require.Equal(t, 0, res.Count())

	means, err := NewAggregationEngine(res.Dataset).RangeMean("PM2.5", "PM10")
	require.NoError(t, err)
	assert.True(t, isNaN(means["PM2.5"]))
	assert.True(t, isNaN(means["PM10"]))

	series, err := res.Dataset.TimeSeries("PM2.5")
	require.NoError(t, err)
	assert.Empty(t, series[0].Points)
}

func TestYearSubset(t *testing.T) {
	ds := hourly(t, 6)
	assert.Equal(t, 8, ds.YearSubset(2016).Nrow())
	assert.Equal(t, 4, ds.YearSubset(2017).Nrow())
	assert.Equal(t, 0, ds.YearSubset(2018).Nrow())
}

func TestValidateParameters(t *testing.T) {
	assert.NoError(t, Criteria{Parameters: []string{"PM2.5", "CO"}}.ValidateParameters())
	assert.ErrorIs(t, Criteria{}.ValidateParameters(), ErrNoParameters)
	assert.ErrorIs(t, Criteria{Parameters: []string{"TEMP"}}.ValidateParameters(), ErrUnknownParameter)
}
