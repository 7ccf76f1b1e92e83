package processor

import (
	"math"
	"time"
)

// Point 时间序列上的一个点
type Point struct {
	Time  time.Time
	Value float64
}

// Series 一个字段的时间序列
type Series struct {
	Field  string
	Points []Point
}

// TimeSeries 按数据集行序输出每个字段的(时间, 值)序列，缺失值不输出
func (d *Dataset) TimeSeries(fields ...string) ([]Series, error) {
	times := d.Times()
	out := make([]Series, 0, len(fields))
	for _, f := range fields {
		col, err := d.floats(f)
		if err != nil {
			return nil, err
		}
		s := Series{Field: f, Points: make([]Point, 0, len(col))}
		for i, v := range col {
			if math.IsNaN(v) {
				continue
			}
			s.Points = append(s.Points, Point{Time: times[i], Value: v})
		}
		out = append(out, s)
	}
	return out, nil
}
