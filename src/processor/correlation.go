package processor

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// CorrelationMatrix 皮尔逊相关系数矩阵，对称，对角线为1
type CorrelationMatrix struct {
	Fields  []string
	Values  [][]float64
	Samples int // 参与计算的完整行数
}

// At 取两字段间的相关系数
func (m CorrelationMatrix) At(a, b string) (float64, bool) {
	i, j := m.index(a), m.index(b)
	if i < 0 || j < 0 {
		return math.NaN(), false
	}
	return m.Values[i][j], true
}

func (m CorrelationMatrix) index(field string) int {
	for i, f := range m.Fields {
		if f == field {
			return i
		}
	}
	return -1
}

// CorrelationFields 热力图使用的列：气象字段 + 已选参数
func CorrelationFields(parameters []string) []string {
	fields := make([]string, 0, len(Meteorology)+len(parameters))
	fields = append(fields, Meteorology...)
	return append(fields, parameters...)
}

// Correlation 计算字段两两之间的皮尔逊相关系数。
// 任一所选字段缺失的行整行剔除(complete-case)，再统一计算所有字段对。
// 完整行少于两行或某字段方差为0时，对应的非对角元素为NaN。
func (e *AggregationEngine) Correlation(fields ...string) (CorrelationMatrix, error) {
	columns, err := e.columns(fields)
	if err != nil {
		return CorrelationMatrix{}, err
	}

	k := len(fields)
	n := e.data.Nrow()
	data := make([]float64, 0, n*k)
	rows := 0
	for i := 0; i < n; i++ {
		complete := true
		for j := range columns {
			if math.IsNaN(columns[j][i]) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}
		for j := range columns {
			data = append(data, columns[j][i])
		}
		rows++
	}

	values := make([][]float64, k)
	for i := range values {
		values[i] = make([]float64, k)
		for j := range values[i] {
			values[i][j] = math.NaN()
		}
		values[i][i] = 1
	}

	if rows >= 2 && k > 0 {
		var sym mat.SymDense
		stat.CorrelationMatrix(&sym, mat.NewDense(rows, k, data), nil)
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				v := clamp(sym.At(i, j))
				values[i][j] = v
				values[j][i] = v
			}
		}
	}

	return CorrelationMatrix{Fields: fields, Values: values, Samples: rows}, nil
}

// StrongestCorrelates 返回与target绝对相关性最大的字段(保留两位小数后比较，并列全部返回)
func StrongestCorrelates(m CorrelationMatrix, target string) ([]string, float64, error) {
	t := m.index(target)
	if t < 0 {
		return nil, math.NaN(), &SchemaError{Column: target}
	}

	best := math.NaN()
	var fields []string
	for j, f := range m.Fields {
		if j == t {
			continue
		}
		v := m.Values[t][j]
		if math.IsNaN(v) {
			continue
		}
		v = RoundTo2(math.Abs(v))
		switch {
		case len(fields) == 0 || v > best:
			best = v
			fields = []string{f}
		case v == best:
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return nil, math.NaN(), &EmptyCandidateSetError{GroupKey: "field", Field: target}
	}
	return fields, best, nil
}

// JoinFields 并列字段以逗号连接
func JoinFields(fields []string) string {
	return strings.Join(fields, ", ")
}

// RoundTo2 保留两位小数
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return math.Max(-1, math.Min(1, v))
}
