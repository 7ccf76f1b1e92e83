// filter.go
package processor

import (
	"fmt"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// DateRange 闭区间 [Start, End]，零值表示该端点未指定
type DateRange struct {
	Start time.Time
	End   time.Time
}

// IsZero 两端均未指定
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Criteria 用户选择的过滤条件
type Criteria struct {
	Range      DateRange
	Station    string
	Parameters []string // 只决定后续绘图与聚合的列，不过滤行
}

// ValidateParameters 参数必须非空且都是污染物
func (c Criteria) ValidateParameters() error {
	if len(c.Parameters) == 0 {
		return ErrNoParameters
	}
	for _, p := range c.Parameters {
		if !IsPollutant(p) {
			return fmt.Errorf("%w: %q", ErrUnknownParameter, p)
		}
	}
	return nil
}

// FilterResult 过滤结果
type FilterResult struct {
	Dataset *Dataset
	Range   DateRange // 实际使用的范围
	// Fallback 非空表示输入范围不合法，已回退到全范围
	Fallback error
}

// Count 过滤后的记录数
func (r FilterResult) Count() int {
	if r.Dataset == nil {
		return 0
	}
	return r.Dataset.Nrow()
}

// FilterEngine 根据Criteria从数据集中取出子集
type FilterEngine struct {
	data *Dataset
}

func NewFilterEngine(data *Dataset) *FilterEngine {
	return &FilterEngine{data: data}
}

// ResolveRange 校验日期范围，不合法时回退到数据集的最小/最大时间
func (e *FilterEngine) ResolveRange(r DateRange) (DateRange, error) {
	lo, hi := e.data.Bounds()
	full := DateRange{Start: lo, End: hi}

	switch {
	case r.IsZero():
		return full, nil
	case r.Start.IsZero() || r.End.IsZero():
		return full, &InvalidRangeError{Start: r.Start, End: r.End, Reason: "single endpoint"}
	case r.Start.After(r.End):
		return full, &InvalidRangeError{Start: r.Start, End: r.End, Reason: "start after end"}
	}
	return r, nil
}

// Filter 保留 Start <= datetime <= End 且 station 相等的记录，保持原有顺序
func (e *FilterEngine) Filter(c Criteria) FilterResult {
	rng, fallback := e.ResolveRange(c.Range)

	df := e.data.df.FilterAggregation(
		dataframe.And,
		dataframe.F{Colname: DatetimeCol, Comparator: series.GreaterEq, Comparando: rng.Start.UTC().Format(TimeLayout)},
		dataframe.F{Colname: DatetimeCol, Comparator: series.LessEq, Comparando: rng.End.UTC().Format(TimeLayout)},
		dataframe.F{Colname: StationCol, Comparator: series.Eq, Comparando: c.Station},
	)

	return FilterResult{
		Dataset:  &Dataset{df: df},
		Range:    rng,
		Fallback: fallback,
	}
}

// YearSubset 取出某一自然年的全部记录
func (d *Dataset) YearSubset(year int) *Dataset {
	df := d.df.FilterAggregation(
		dataframe.And,
		dataframe.F{Colname: DatetimeCol, Comparator: series.GreaterEq, Comparando: fmt.Sprintf("%04d-01-01 00:00:00", year)},
		dataframe.F{Colname: DatetimeCol, Comparator: series.LessEq, Comparando: fmt.Sprintf("%04d-12-31 23:59:59", year)},
	)
	return &Dataset{df: df}
}
