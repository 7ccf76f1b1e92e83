package dashboard

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benylaode/Analisi-Udara/src/processor"
	"github.com/Benylaode/Analisi-Udara/src/storage"
)

const header = "datetime,station,PM2.5,PM10,SO2,NO2,CO,O3,TEMP,PRES,DEWP,RAIN,WSPM,Rata-Rata Kualitas Udarah"

func load(t *testing.T, lines ...string) *processor.Dataset {
	t.Helper()
	var records [][]string
	for _, l := range append([]string{header}, lines...) {
		records = append(records, strings.Split(l, ","))
	}
	ds, err := processor.FromRecords(records)
	require.NoError(t, err)
	return ds
}

func sample(t *testing.T) *processor.Dataset {
	return load(t,
		"2016-03-01 00:00:00,Dongsi,10,20,3,40,500,60,1,1010,-5,0,2,10",
		"2016-03-01 00:00:00,Wanliu,30,50,4,41,600,61,2,1011,-4,0,3,30",
		"2016-03-01 01:00:00,Dongsi,12,25,5,43,650,58,3,1009,-3,0,1,12",
		"2017-03-01 00:00:00,Dongsi,20,40,6,42,700,62,4,1012,-2,0,4,20",
		"2017-03-01 00:00:00,Wanliu,50,80,7,44,800,64,5,1013,-1,0.5,5,50",
	)
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.Parse(processor.TimeLayout, s)
	require.NoError(t, err)
	return v
}

func TestNewDefaults(t *testing.T) {
	d := New(sample(t), nil)

	c := d.Criteria()
	assert.Equal(t, "Dongsi", c.Station)
	assert.Equal(t, []string{"PM2.5"}, c.Parameters)
	assert.Equal(t, 3, d.FilteredCount())
	assert.Equal(t, []string{"Dongsi", "Wanliu"}, d.Stations())
}

func TestSetFilter(t *testing.T) {
	d := New(sample(t), nil)

	rng := processor.DateRange{Start: mustTime(t, "2016-01-01 00:00:00"), End: mustTime(t, "2016-12-31 23:00:00")}
	require.NoError(t, d.SetFilter(rng, "Wanliu", []string{"PM2.5", "PM10"}))
	assert.Equal(t, 1, d.FilteredCount())

	// 站点为空时取第一个站点
	require.NoError(t, d.SetFilter(processor.DateRange{}, "", []string{"CO"}))
	assert.Equal(t, "Dongsi", d.Criteria().Station)
	assert.Equal(t, 3, d.FilteredCount())

	assert.ErrorIs(t, d.SetFilter(rng, "Wanliu", nil), processor.ErrNoParameters)
	assert.ErrorIs(t, d.SetFilter(rng, "Wanliu", []string{"RAIN"}), processor.ErrUnknownParameter)
	// 不合法的参数不改变当前条件
	assert.Equal(t, []string{"CO"}, d.Criteria().Parameters)
}

func TestSetFilterInvalidRangeFallsBack(t *testing.T) {
	d := New(sample(t), nil)

	rng := processor.DateRange{Start: mustTime(t, "2017-01-01 00:00:00"), End: mustTime(t, "2016-01-01 00:00:00")}
	require.NoError(t, d.SetFilter(rng, "Dongsi", []string{"PM2.5"}))
	assert.Equal(t, 3, d.FilteredCount())

	v := d.Recompute()
	var rangeErr *processor.InvalidRangeError
	require.True(t, errors.As(v.RangeFallback, &rangeErr))
	assert.Equal(t, "2016-03-01 00:00:00", v.Range.Start.Format(processor.TimeLayout))
	assert.Equal(t, "2017-03-01 00:00:00", v.Range.End.Format(processor.TimeLayout))
}

func TestQueries(t *testing.T) {
	d := New(sample(t), nil)
	require.NoError(t, d.SetFilter(processor.DateRange{}, "Dongsi", []string{"PM2.5", "PM10"}))

	series, err := d.TimeSeries()
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, "PM2.5", series[0].Field)
	assert.Len(t, series[0].Points, 3)

	table, err := d.GroupedAverages(processor.GroupByStation)
	require.NoError(t, err)
	v, _ := table.Get("Wanliu", "PM2.5")
	assert.InDelta(t, 40.0, v, 1e-9)

	means, err := d.RangeAverages()
	require.NoError(t, err)
	assert.InDelta(t, 14.0, means["PM2.5"], 1e-9)

	m, err := d.CorrelationMatrix()
	require.NoError(t, err)
	assert.Equal(t, processor.CorrelationFields([]string{"PM2.5", "PM10"}), m.Fields)
	assert.Equal(t, 3, m.Samples)

	station, err := d.WorstStation(2016)
	require.NoError(t, err)
	assert.Equal(t, "Wanliu", station)

	year, err := d.WorstYear(0)
	require.NoError(t, err)
	assert.Equal(t, 2017, year)

	_, err = d.WorstYear(processor.CompletenessThreshold)
	var emptyErr *processor.EmptyCandidateSetError
	assert.True(t, errors.As(err, &emptyErr))
}

func TestRecomputeMarksUnavailableMetrics(t *testing.T) {
	logger := storage.Nop()
	d := New(sample(t), logger, WithView(ViewYear))

	v := d.Recompute()
	assert.Equal(t, ViewYear, v.Mode)
	assert.Equal(t, 3, v.Count)
	require.True(t, v.Averages.Available())
	assert.Equal(t, []string{"2016", "2017"}, v.Averages.Value.Keys())
	assert.True(t, v.TimeSeries.Available())
	assert.True(t, v.Correlation.Available())

	// 默认阈值下没有年份达标，但其他指标不受影响
	assert.False(t, v.WorstYear.Available())
	require.True(t, v.WorstStation.Available())
	assert.Equal(t, 2017, v.WorstStationYear)
	assert.Equal(t, "Wanliu", v.WorstStation.Value)
}

func TestRecomputeWithOptions(t *testing.T) {
	d := New(sample(t), nil,
		WithView(ViewRange),
		WithCompletenessThreshold(2),
		WithWorstStationYear(2016),
		WithCorrelationTarget("PM2.5"),
	)

	v := d.Recompute()
	require.True(t, v.RangeAverages.Available())
	assert.InDelta(t, 14.0, v.RangeAverages.Value["PM2.5"], 1e-9)

	require.True(t, v.WorstYear.Available())
	assert.Equal(t, 2017, v.WorstYear.Value)
	assert.Equal(t, "Wanliu", v.WorstStation.Value)
	assert.True(t, v.Strongest.Available())
	assert.NotEmpty(t, v.Strongest.Value)
}

func TestRecomputeEmptyFilter(t *testing.T) {
	d := New(sample(t), nil, WithView(ViewRange))
	require.NoError(t, d.SetFilter(processor.DateRange{}, "Nowhere", []string{"PM2.5"}))

	v := d.Recompute()
	assert.Equal(t, 0, v.Count)
	require.True(t, v.RangeAverages.Available())
	assert.True(t, math.IsNaN(v.RangeAverages.Value["PM2.5"]))
	// 没有完整行，无法求最强相关字段
	assert.False(t, v.Strongest.Available())
}

func TestCompositeColumnMissing(t *testing.T) {
	d := New(sample(t), nil, WithCompositeColumn("AQI"))

	v := d.Recompute()
	var schemaErr *processor.SchemaError
	require.True(t, errors.As(v.WorstYear.Err, &schemaErr))
	assert.Equal(t, "AQI", schemaErr.Column)
	assert.False(t, v.WorstStation.Available())
	assert.True(t, v.Averages.Available())
}

func TestReload(t *testing.T) {
	d := New(sample(t), nil)
	require.NoError(t, d.SetFilter(processor.DateRange{}, "Wanliu", []string{"PM2.5"}))
	assert.Equal(t, 2, d.FilteredCount())

	d.Reload(load(t,
		"2018-01-01 00:00:00,Wanliu,1,1,1,1,1,1,1,1,1,1,1,1",
		"2018-01-01 01:00:00,Wanliu,2,1,1,1,1,1,1,1,1,1,1,1",
		"2018-01-01 02:00:00,Wanliu,3,1,1,1,1,1,1,1,1,1,1,1",
	))
	assert.Equal(t, "Wanliu", d.Criteria().Station)
	assert.Equal(t, 3, d.FilteredCount())
}

func TestSetView(t *testing.T) {
	d := New(sample(t), nil)
	assert.Equal(t, ViewStation, d.Recompute().Mode)

	d.SetView(ViewRange)
	v := d.Recompute()
	assert.Equal(t, ViewRange, v.Mode)
	require.True(t, v.RangeAverages.Available())
	assert.InDelta(t, 14.0, v.RangeAverages.Value["PM2.5"], 1e-9)
	assert.Nil(t, v.Averages.Value.Rows)

	d.SetView(ViewYear)
	v = d.Recompute()
	require.True(t, v.Averages.Available())
	assert.Equal(t, processor.GroupByYear, v.Averages.Value.GroupKey)
	assert.Nil(t, v.RangeAverages.Value)
}

func TestParseViewMode(t *testing.T) {
	m, err := ParseViewMode("")
	require.NoError(t, err)
	assert.Equal(t, ViewStation, m)

	m, err = ParseViewMode("range")
	require.NoError(t, err)
	assert.Equal(t, ViewRange, m)

	_, err = ParseViewMode("monthly")
	assert.Error(t, err)
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "n/a", FormatValue(math.NaN()))
	assert.Equal(t, "12.35", FormatValue(12.346))
}
