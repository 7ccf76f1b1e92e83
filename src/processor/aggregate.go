// aggregate.go
package processor

import (
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// CompletenessThreshold 年份参与"最差年份"评选所需的最少记录数，避免不完整年份的偏差
const CompletenessThreshold = 73210

// GroupKey 分组键
type GroupKey string

const (
	GroupByStation GroupKey = "station"
	GroupByYear    GroupKey = "year"
)

/******************** 结果结构 ********************/

// GroupRow 一个分组的均值
type GroupRow struct {
	Key   string
	Count int                // 分组内的记录数(含缺失值行)
	Means map[string]float64 // 字段 -> 均值，全部缺失时为NaN
}

// DerivedTable 分组键 -> 字段 -> 均值，Rows按键升序
type DerivedTable struct {
	GroupKey GroupKey
	Fields   []string
	Rows     []GroupRow
}

// Keys 分组键列表
func (t DerivedTable) Keys() []string {
	keys := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		keys[i] = r.Key
	}
	return keys
}

// Get 取某分组某字段的均值
func (t DerivedTable) Get(key, field string) (float64, bool) {
	for _, r := range t.Rows {
		if r.Key == key {
			v, ok := r.Means[field]
			return v, ok
		}
	}
	return math.NaN(), false
}

// Argmax 最大均值所在的分组
type Argmax struct {
	Key   string
	Value float64
	Count int
}

/******************** 选项 ********************/

// ArgmaxOption 配置ArgmaxByGroup
type ArgmaxOption func(*argmaxConfig)

type argmaxConfig struct {
	minCount int
}

// WithMinCount 记录数低于n的分组不参与评选
func WithMinCount(n int) ArgmaxOption {
	return func(c *argmaxConfig) {
		c.minCount = n
	}
}

/******************** 聚合引擎 ********************/

// AggregationEngine 在给定数据集(全量或过滤后)上做分组均值、argmax和相关性
type AggregationEngine struct {
	data *Dataset
}

func NewAggregationEngine(data *Dataset) *AggregationEngine {
	return &AggregationEngine{data: data}
}

// GroupMean 按站点或年份分组，逐字段求均值，缺失值按字段忽略
func (e *AggregationEngine) GroupMean(key GroupKey, fields ...string) (DerivedTable, error) {
	table := DerivedTable{GroupKey: key, Fields: fields}

	columns, err := e.columns(fields)
	if err != nil {
		return table, err
	}
	keys, err := e.groupKeys(key)
	if err != nil {
		return table, err
	}

	// 按键收集行号
	index := make(map[string][]int)
	for i, k := range keys {
		index[k] = append(index[k], i)
	}
	order := make([]string, 0, len(index))
	for k := range index {
		order = append(order, k)
	}
	sort.Strings(order)

	for _, k := range order {
		rows := index[k]
		means := make(map[string]float64, len(fields))
		for j, f := range fields {
			means[f] = nanMean(columns[j], rows)
		}
		table.Rows = append(table.Rows, GroupRow{Key: k, Count: len(rows), Means: means})
	}
	return table, nil
}

// RangeMean 整个数据集上逐字段求均值；空数据集返回全NaN
func (e *AggregationEngine) RangeMean(fields ...string) (map[string]float64, error) {
	columns, err := e.columns(fields)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(fields))
	for j, f := range fields {
		out[f] = nanMean(columns[j], nil)
	}
	return out, nil
}

// ArgmaxByGroup 返回均值最大的分组。
// 并列时取键升序中的第一个；NaN均值不参与；WithMinCount过滤记录不足的分组。
func (e *AggregationEngine) ArgmaxByGroup(key GroupKey, field string, opts ...ArgmaxOption) (Argmax, error) {
	cfg := &argmaxConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	table, err := e.GroupMean(key, field)
	if err != nil {
		return Argmax{}, err
	}

	counts := make(map[string]int, len(table.Rows))
	for _, r := range table.Rows {
		counts[r.Key] = r.Count
	}
	eligible := EligibleGroups(counts, cfg.minCount)

	best := Argmax{Value: math.NaN()}
	found := false
	for _, r := range table.Rows {
		if !eligible[r.Key] {
			continue
		}
		v := r.Means[field]
		if math.IsNaN(v) {
			continue
		}
		if !found || v > best.Value {
			best = Argmax{Key: r.Key, Value: v, Count: r.Count}
			found = true
		}
	}
	if !found {
		return Argmax{}, &EmptyCandidateSetError{GroupKey: key, Field: field}
	}
	return best, nil
}

// EligibleGroups 记录数 >= threshold 的分组
func EligibleGroups(counts map[string]int, threshold int) map[string]bool {
	out := make(map[string]bool, len(counts))
	for k, n := range counts {
		if n >= threshold {
			out[k] = true
		}
	}
	return out
}

// WorstYear 在记录数达到minCount的年份中，返回field均值最高的年份
func (e *AggregationEngine) WorstYear(field string, minCount int) (int, float64, error) {
	best, err := e.ArgmaxByGroup(GroupByYear, field, WithMinCount(minCount))
	if err != nil {
		return 0, math.NaN(), err
	}
	year, err := strconv.Atoi(best.Key)
	if err != nil {
		return 0, math.NaN(), err
	}
	return year, best.Value, nil
}

// WorstStation 指定年份内field均值最高的站点
func (e *AggregationEngine) WorstStation(year int, field string) (string, float64, error) {
	if err := requireColumns(e.data.df, field); err != nil {
		return "", math.NaN(), err
	}
	sub := NewAggregationEngine(e.data.YearSubset(year))
	best, err := sub.ArgmaxByGroup(GroupByStation, field)
	if err != nil {
		return "", math.NaN(), err
	}
	return best.Key, best.Value, nil
}

/******************** 辅助函数 ********************/

func (e *AggregationEngine) columns(fields []string) ([][]float64, error) {
	columns := make([][]float64, len(fields))
	for j, f := range fields {
		col, err := e.data.floats(f)
		if err != nil {
			return nil, err
		}
		columns[j] = col
	}
	return columns, nil
}

func (e *AggregationEngine) groupKeys(key GroupKey) ([]string, error) {
	switch key {
	case GroupByStation:
		return e.data.df.Col(StationCol).Records(), nil
	case GroupByYear:
		return yearKeys(e.data.df), nil
	}
	return nil, &SchemaError{Column: string(key)}
}

// nanMean 忽略NaN求均值；rows为nil时取全部行
func nanMean(col []float64, rows []int) float64 {
	var vals []float64
	if rows == nil {
		vals = make([]float64, 0, len(col))
		for _, v := range col {
			if !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
	} else {
		vals = make([]float64, 0, len(rows))
		for _, i := range rows {
			if v := col[i]; !math.IsNaN(v) {
				vals = append(vals, v)
			}
		}
	}
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}
