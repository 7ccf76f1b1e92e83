// dataset.go
package processor

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/Benylaode/Analisi-Udara/src/utils"
)

/******************** 列名常量 ********************/
const (
	DatetimeCol = "datetime"
	StationCol  = "station"

	// CompositeCol 上游预先计算好的综合空气质量列
	CompositeCol = "Rata-Rata Kualitas Udarah"

	// TimeLayout 规范化后的时间格式，字典序即时间序
	TimeLayout = "2006-01-02 15:04:05"
)

// Pollutants 可被选为参数的六种污染物
var Pollutants = []string{"PM2.5", "PM10", "SO2", "NO2", "CO", "O3"}

// Meteorology 五个气象字段
var Meteorology = []string{"TEMP", "PRES", "DEWP", "RAIN", "WSPM"}

// fieldDescriptions 参数说明
var fieldDescriptions = map[string]string{
	"TEMP":       "Air temperature in degrees Celsius.",
	"PRES":       "Air pressure in hPa.",
	"DEWP":       "Dew point in degrees Celsius.",
	"RAIN":       "Rainfall in mm.",
	"WSPM":       "Wind speed in m/s.",
	"PM2.5":      "Particulate matter with a diameter below 2.5 micrometres.",
	"PM10":       "Particulate matter with a diameter below 10 micrometres.",
	"SO2":        "Sulphur dioxide concentration.",
	"NO2":        "Nitrogen dioxide concentration.",
	"CO":         "Carbon monoxide concentration.",
	"O3":         "Ozone concentration.",
	CompositeCol: "Aggregate air quality value derived from the parameters above.",
}

// FieldDescription 返回字段的说明文字，未知字段返回空串
func FieldDescription(field string) string {
	return fieldDescriptions[field]
}

// DescribedFields 按展示顺序返回所有带说明的字段
func DescribedFields() []string {
	fields := make([]string, 0, len(fieldDescriptions))
	fields = append(fields, Meteorology...)
	fields = append(fields, Pollutants...)
	return append(fields, CompositeCol)
}

// IsPollutant 判断字段是否为可选污染物参数
func IsPollutant(field string) bool {
	return utils.Contains(Pollutants, field)
}

// ColumnTypes 加载时强制指定的列类型，其余列自动推断
func ColumnTypes() map[string]series.Type {
	types := map[string]series.Type{
		DatetimeCol:  series.String,
		StationCol:   series.String,
		CompositeCol: series.Float,
	}
	for _, f := range Pollutants {
		types[f] = series.Float
	}
	for _, f := range Meteorology {
		types[f] = series.Float
	}
	return types
}

// LoadOptions gota加载选项：空串与NA均视为缺失值
func LoadOptions() []dataframe.LoadOption {
	return []dataframe.LoadOption{
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
		dataframe.WithTypes(ColumnTypes()),
		dataframe.NaNValues([]string{"", "NA", "NaN", "nan", "<nil>"}),
	}
}

/******************** 数据集 ********************/

// Dataset 按时间顺序排列的观测记录，只读
type Dataset struct {
	df dataframe.DataFrame
}

// NewDataset 校验必需列并将datetime列规范化为TimeLayout
func NewDataset(df dataframe.DataFrame) (*Dataset, error) {
	if df.Err != nil {
		return nil, fmt.Errorf("dataframe加载失败: %w", df.Err)
	}
	if err := requireColumns(df, DatetimeCol, StationCol); err != nil {
		return nil, err
	}

	raw := df.Col(DatetimeCol).Records()
	normalized := make([]string, len(raw))
	for i, s := range raw {
		t, err := utils.ParseTimeString(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse datetime at row %d: %w", i, err)
		}
		normalized[i] = t.Format(TimeLayout)
	}

	df = df.Mutate(series.New(normalized, series.String, DatetimeCol))
	if df.Err != nil {
		return nil, fmt.Errorf("规范化datetime列失败: %w", df.Err)
	}
	return &Dataset{df: df}, nil
}

// FromRecords 从二维字符串表构造数据集，第一行为表头
func FromRecords(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("records为空，缺少表头")
	}
	return NewDataset(dataframe.LoadRecords(records, LoadOptions()...))
}

// Frame 返回底层DataFrame
func (d *Dataset) Frame() dataframe.DataFrame { return d.df }

// Nrow 记录条数
func (d *Dataset) Nrow() int { return d.df.Nrow() }

// Names 列名
func (d *Dataset) Names() []string { return d.df.Names() }

// HasColumn 判断列是否存在
func (d *Dataset) HasColumn(name string) bool {
	return utils.HasColumn(d.df, name)
}

// Times 解析后的datetime列
func (d *Dataset) Times() []time.Time {
	raw := d.df.Col(DatetimeCol).Records()
	out := make([]time.Time, len(raw))
	for i, s := range raw {
		// 构造时已规范化，这里不会失败
		out[i], _ = time.Parse(TimeLayout, s)
	}
	return out
}

// Bounds 返回datetime列的最小值与最大值，空数据集返回零值
func (d *Dataset) Bounds() (time.Time, time.Time) {
	raw := d.df.Col(DatetimeCol).Records()
	if len(raw) == 0 {
		return time.Time{}, time.Time{}
	}
	lo, hi := raw[0], raw[0]
	for _, s := range raw[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	start, _ := time.Parse(TimeLayout, lo)
	end, _ := time.Parse(TimeLayout, hi)
	return start, end
}

// Stations 按首次出现顺序返回站点
func (d *Dataset) Stations() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range d.df.Col(StationCol).Records() {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Years 升序返回数据中出现的年份
func (d *Dataset) Years() []int {
	seen := make(map[int]bool)
	var out []int
	for _, k := range yearKeys(d.df) {
		y, err := strconv.Atoi(k)
		if err != nil || seen[y] {
			continue
		}
		seen[y] = true
		out = append(out, y)
	}
	sort.Ints(out)
	return out
}

// yearKeys 每行的年份字符串，取规范化时间的前四位
func yearKeys(df dataframe.DataFrame) []string {
	raw := df.Col(DatetimeCol).Records()
	keys := make([]string, len(raw))
	for i, s := range raw {
		if len(s) >= 4 {
			keys[i] = s[:4]
		}
	}
	return keys
}

// floats 返回列的float值，缺失值为NaN
func (d *Dataset) floats(field string) ([]float64, error) {
	if err := requireColumns(d.df, field); err != nil {
		return nil, err
	}
	return d.df.Col(field).Float(), nil
}

func requireColumns(df dataframe.DataFrame, names ...string) error {
	for _, name := range names {
		if !utils.HasColumn(df, name) {
			return &SchemaError{Column: name}
		}
	}
	return nil
}
