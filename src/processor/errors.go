package processor

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownParameter 参数不在六种污染物之内
var ErrUnknownParameter = errors.New("unknown pollutant parameter")

// ErrNoParameters 参数集合为空
var ErrNoParameters = errors.New("parameter set is empty")

// SchemaError 请求的列在数据集中不存在，对当前计算是致命的
type SchemaError struct {
	Column string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("column not found: %q", e.Column)
}

// InvalidRangeError 日期范围不合法，可恢复：过滤时回退到数据集全范围
type InvalidRangeError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid date range [%s, %s]: %s, using full dataset bounds",
		formatBound(e.Start), formatBound(e.End), e.Reason)
}

// EmptyCandidateSetError argmax没有可选的分组，仅影响该指标
type EmptyCandidateSetError struct {
	GroupKey GroupKey
	Field    string
}

func (e *EmptyCandidateSetError) Error() string {
	return fmt.Sprintf("no candidate %s groups for argmax of %q", e.GroupKey, e.Field)
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "unset"
	}
	return t.Format(TimeLayout)
}
