// dashboard.go
package dashboard

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Benylaode/Analisi-Udara/src/processor"
	"github.com/Benylaode/Analisi-Udara/src/storage"
)

// ViewMode 平均值图表的展示方式
type ViewMode string

const (
	ViewStation ViewMode = "station" // 全量数据按站点平均
	ViewYear    ViewMode = "year"    // 全量数据按年份平均
	ViewRange   ViewMode = "range"   // 过滤后数据整体平均
)

// ParseViewMode 配置字符串转ViewMode
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(s); m {
	case ViewStation, ViewYear, ViewRange:
		return m, nil
	case "":
		return ViewStation, nil
	}
	return "", fmt.Errorf("unknown view mode %q", s)
}

// DefaultParameters 未指定参数时的默认选择
var DefaultParameters = []string{"PM2.5"}

/******************** 选项 ********************/

type options struct {
	compositeColumn       string
	completenessThreshold int
	correlationTarget     string
	worstStationYear      int // 0 表示取数据中最近的年份
	view                  ViewMode
}

// Option 配置Dashboard
type Option func(*options)

// WithCompositeColumn 综合空气质量列名
func WithCompositeColumn(name string) Option {
	return func(o *options) { o.compositeColumn = name }
}

// WithCompletenessThreshold 最差年份评选的记录数下限
func WithCompletenessThreshold(n int) Option {
	return func(o *options) { o.completenessThreshold = n }
}

// WithCorrelationTarget 求最强相关字段时的目标列
func WithCorrelationTarget(field string) Option {
	return func(o *options) { o.correlationTarget = field }
}

// WithWorstStationYear 最差站点所统计的年份
func WithWorstStationYear(year int) Option {
	return func(o *options) { o.worstStationYear = year }
}

// WithView 初始展示方式
func WithView(mode ViewMode) Option {
	return func(o *options) { o.view = mode }
}

/******************** Dashboard ********************/

// Dashboard 面向展示层的查询接口。
// 持有当前数据集与过滤条件，二者只会被整体替换；每次查询都从数据集重新计算。
type Dashboard struct {
	mu       sync.RWMutex
	data     *processor.Dataset
	criteria processor.Criteria
	filtered processor.FilterResult
	view     ViewMode
	opts     options
	logger   *storage.Logger
}

// New 注入已加载的数据集，默认选择第一个站点、PM2.5、全时间范围
func New(data *processor.Dataset, logger *storage.Logger, opts ...Option) *Dashboard {
	o := options{
		compositeColumn:       processor.CompositeCol,
		completenessThreshold: processor.CompletenessThreshold,
		correlationTarget:     "PM2.5",
		view:                  ViewStation,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = storage.Nop()
	}

	d := &Dashboard{data: data, view: o.view, opts: o, logger: logger}
	d.criteria = processor.Criteria{
		Station:    firstStation(data),
		Parameters: append([]string(nil), DefaultParameters...),
	}
	d.filtered = processor.NewFilterEngine(data).Filter(d.criteria)
	return d
}

// SetFilter 设置过滤条件并立即重新计算过滤子集。
// 站点为空时使用第一个站点；日期范围不合法时回退到全范围并记录警告，不返回错误。
func (d *Dashboard) SetFilter(rng processor.DateRange, station string, parameters []string) error {
	c := processor.Criteria{Range: rng, Station: station, Parameters: append([]string(nil), parameters...)}
	if err := c.ValidateParameters(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if c.Station == "" {
		c.Station = firstStation(d.data)
	}
	d.criteria = c
	d.filtered = d.applyLocked()
	return nil
}

// SetView 切换平均值展示方式
func (d *Dashboard) SetView(mode ViewMode) {
	d.mu.Lock()
	d.view = mode
	d.mu.Unlock()
}

// Reload 替换数据集并重新应用当前过滤条件
func (d *Dashboard) Reload(data *processor.Dataset) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.data = data
	if d.criteria.Station == "" {
		d.criteria.Station = firstStation(data)
	}
	d.filtered = d.applyLocked()
	d.logger.Info("数据集已重新加载", zap.Int("rows", data.Nrow()), zap.Int("filtered", d.filtered.Count()))
}

func (d *Dashboard) applyLocked() processor.FilterResult {
	res := processor.NewFilterEngine(d.data).Filter(d.criteria)
	if res.Fallback != nil {
		d.logger.Warning("日期范围无效，已使用全部数据范围", zap.Error(res.Fallback))
	}
	return res
}

// Criteria 当前过滤条件
func (d *Dashboard) Criteria() processor.Criteria {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.criteria
}

// Stations 站点下拉框的可选值
func (d *Dashboard) Stations() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data.Stations()
}

type snapshot struct {
	data     *processor.Dataset
	criteria processor.Criteria
	filtered processor.FilterResult
	view     ViewMode
}

func (d *Dashboard) snapshot() snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return snapshot{data: d.data, criteria: d.criteria, filtered: d.filtered, view: d.view}
}

// Filtered 当前过滤子集
func (d *Dashboard) Filtered() *processor.Dataset {
	return d.snapshot().filtered.Dataset
}

// FilteredCount 过滤后的记录数
func (d *Dashboard) FilteredCount() int {
	return d.snapshot().filtered.Count()
}

// TimeSeries 过滤子集上各字段的时间序列，未指定字段时使用已选参数
func (d *Dashboard) TimeSeries(fields ...string) ([]processor.Series, error) {
	s := d.snapshot()
	if len(fields) == 0 {
		fields = s.criteria.Parameters
	}
	return s.filtered.Dataset.TimeSeries(fields...)
}

// GroupedAverages 全量数据按站点或年份的已选参数均值
func (d *Dashboard) GroupedAverages(key processor.GroupKey) (processor.DerivedTable, error) {
	s := d.snapshot()
	return processor.NewAggregationEngine(s.data).GroupMean(key, s.criteria.Parameters...)
}

// RangeAverages 过滤子集上已选参数的均值
func (d *Dashboard) RangeAverages() (map[string]float64, error) {
	s := d.snapshot()
	return processor.NewAggregationEngine(s.filtered.Dataset).RangeMean(s.criteria.Parameters...)
}

// CorrelationMatrix 过滤子集上的相关系数矩阵，未指定字段时使用气象字段+已选参数
func (d *Dashboard) CorrelationMatrix(fields ...string) (processor.CorrelationMatrix, error) {
	s := d.snapshot()
	if len(fields) == 0 {
		fields = processor.CorrelationFields(s.criteria.Parameters)
	}
	return processor.NewAggregationEngine(s.filtered.Dataset).Correlation(fields...)
}

// WorstStation 指定年份综合空气质量均值最高的站点
func (d *Dashboard) WorstStation(year int) (string, error) {
	s := d.snapshot()
	station, _, err := processor.NewAggregationEngine(s.data).WorstStation(year, d.opts.compositeColumn)
	return station, err
}

// WorstYear 记录数达到minCompleteness的年份中综合空气质量均值最高的年份
func (d *Dashboard) WorstYear(minCompleteness int) (int, error) {
	s := d.snapshot()
	year, _, err := processor.NewAggregationEngine(s.data).WorstYear(d.opts.compositeColumn, minCompleteness)
	return year, err
}

/******************** 重新计算 ********************/

// Metric 单个指标的结果；Err非空表示该指标不可用，不影响其他指标
type Metric[T any] struct {
	Value T
	Err   error
}

// Available 指标是否可用
func (m Metric[T]) Available() bool { return m.Err == nil }

// View 一次重新计算得到的全部展示数据
type View struct {
	GeneratedAt   time.Time
	Criteria      processor.Criteria
	Range         processor.DateRange
	RangeFallback error
	Mode          ViewMode
	Count         int

	TimeSeries       Metric[[]processor.Series]
	Averages         Metric[processor.DerivedTable] // ViewStation / ViewYear
	RangeAverages    Metric[map[string]float64]     // ViewRange
	Correlation      Metric[processor.CorrelationMatrix]
	Strongest        Metric[string] // 与目标列绝对相关最强的字段，并列以逗号连接
	WorstStation     Metric[string]
	WorstStationYear int
	WorstYear        Metric[int]
}

// Recompute 显式的重新计算入口：基于当前数据集与条件逐项计算，单项失败只标记该项不可用
func (d *Dashboard) Recompute() View {
	s := d.snapshot()
	params := s.criteria.Parameters

	v := View{
		GeneratedAt:   time.Now(),
		Criteria:      s.criteria,
		Range:         s.filtered.Range,
		RangeFallback: s.filtered.Fallback,
		Mode:          s.view,
		Count:         s.filtered.Count(),
	}

	full := processor.NewAggregationEngine(s.data)
	sub := processor.NewAggregationEngine(s.filtered.Dataset)

	series, err := s.filtered.Dataset.TimeSeries(params...)
	v.TimeSeries = Metric[[]processor.Series]{Value: series, Err: err}

	switch s.view {
	case ViewYear:
		table, err := full.GroupMean(processor.GroupByYear, params...)
		v.Averages = Metric[processor.DerivedTable]{Value: table, Err: err}
	case ViewRange:
		means, err := sub.RangeMean(params...)
		v.RangeAverages = Metric[map[string]float64]{Value: means, Err: err}
	default:
		table, err := full.GroupMean(processor.GroupByStation, params...)
		v.Averages = Metric[processor.DerivedTable]{Value: table, Err: err}
	}

	corr, err := sub.Correlation(processor.CorrelationFields(params)...)
	v.Correlation = Metric[processor.CorrelationMatrix]{Value: corr, Err: err}
	if err == nil {
		fields, _, err := processor.StrongestCorrelates(corr, d.opts.correlationTarget)
		v.Strongest = Metric[string]{Value: processor.JoinFields(fields), Err: err}
	} else {
		v.Strongest = Metric[string]{Err: err}
	}

	v.WorstStationYear = d.opts.worstStationYear
	if v.WorstStationYear == 0 {
		if years := s.data.Years(); len(years) > 0 {
			v.WorstStationYear = years[len(years)-1]
		}
	}
	station, _, err := full.WorstStation(v.WorstStationYear, d.opts.compositeColumn)
	v.WorstStation = Metric[string]{Value: station, Err: err}

	year, _, err := full.WorstYear(d.opts.compositeColumn, d.opts.completenessThreshold)
	v.WorstYear = Metric[int]{Value: year, Err: err}

	d.logUnavailable(v)
	return v
}

func (d *Dashboard) logUnavailable(v View) {
	check := func(name string, err error) {
		if err != nil {
			d.logger.Warning("指标不可用", zap.String("metric", name), zap.Error(err))
		}
	}
	check("time_series", v.TimeSeries.Err)
	check("averages", v.Averages.Err)
	check("range_averages", v.RangeAverages.Err)
	check("correlation", v.Correlation.Err)
	check("strongest_correlates", v.Strongest.Err)
	check("worst_station", v.WorstStation.Err)
	check("worst_year", v.WorstYear.Err)
}

// FormatValue 展示层使用的数值格式，NaN显示为"n/a"
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}

func firstStation(data *processor.Dataset) string {
	if data == nil {
		return ""
	}
	if stations := data.Stations(); len(stations) > 0 {
		return stations[0]
	}
	return ""
}
