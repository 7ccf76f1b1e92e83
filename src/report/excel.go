// excel.go
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Benylaode/Analisi-Udara/src/dashboard"
	"github.com/Benylaode/Analisi-Udara/src/processor"
	"github.com/Benylaode/Analisi-Udara/src/utils"
)

// 工作表名称
const (
	SheetSummary     = "Summary"
	SheetAverages    = "Averages"
	SheetCorrelation = "Correlation"
	SheetFiltered    = "Filtered"
	SheetParameters  = "Parameters"
)

// Unavailable 指标不可用时写入的占位文字
const Unavailable = "unavailable"

// GenerateFilename 按时间生成报表文件名
func GenerateFilename(now time.Time) string {
	return fmt.Sprintf("air_quality_%s.xlsx", now.Format("20060102_150405"))
}

// Export 将View与过滤子集写入outputDir下的新报表，返回文件路径
func Export(view dashboard.View, filtered *processor.Dataset, outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建目录失败: %w", err)
	}
	path := filepath.Join(outputDir, GenerateFilename(view.GeneratedAt))
	if err := Write(view, filtered, path); err != nil {
		return "", err
	}
	return path, nil
}

// Write 生成报表工作簿
func Write(view dashboard.View, filtered *processor.Dataset, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	// 默认的Sheet1改名为Summary
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return err
	}

	steps := []func(*excelize.File) error{
		func(f *excelize.File) error { return writeSummary(f, view) },
		func(f *excelize.File) error { return writeAverages(f, view) },
		func(f *excelize.File) error { return writeCorrelation(f, view) },
		func(f *excelize.File) error { return writeParameters(f) },
	}
	if filtered != nil {
		steps = append(steps, func(f *excelize.File) error {
			return utils.WriteFrameSheet(f, SheetFiltered, filtered.Frame())
		})
	}
	for _, step := range steps {
		if err := step(f); err != nil {
			return err
		}
	}

	// 保存文件
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, v dashboard.View) error {
	rows := [][]interface{}{
		{"Generated at", v.GeneratedAt.Format(processor.TimeLayout)},
		{"Station", v.Criteria.Station},
		{"Parameters", processor.JoinFields(v.Criteria.Parameters)},
		{"Range start", v.Range.Start.Format(processor.TimeLayout)},
		{"Range end", v.Range.End.Format(processor.TimeLayout)},
		{"Records", v.Count},
	}
	if v.RangeFallback != nil {
		rows = append(rows, []interface{}{"Range warning", v.RangeFallback.Error()})
	}
	rows = append(rows,
		[]interface{}{fmt.Sprintf("Worst station (%d)", v.WorstStationYear), orUnavailable(v.WorstStation.Value, v.WorstStation.Err)},
		[]interface{}{"Worst year", orUnavailable(v.WorstYear.Value, v.WorstYear.Err)},
		[]interface{}{"Strongest correlates", orUnavailable(v.Strongest.Value, v.Strongest.Err)},
	)
	return writeRows(f, SheetSummary, rows)
}

func writeAverages(f *excelize.File, v dashboard.View) error {
	params := v.Criteria.Parameters
	var rows [][]interface{}

	switch v.Mode {
	case dashboard.ViewRange:
		if !v.RangeAverages.Available() {
			rows = append(rows, []interface{}{Unavailable, v.RangeAverages.Err.Error()})
			break
		}
		rows = append(rows, []interface{}{"Parameter", "Mean"})
		for _, p := range params {
			rows = append(rows, []interface{}{p, utils.CellValue(v.RangeAverages.Value[p])})
		}
	default:
		if !v.Averages.Available() {
			rows = append(rows, []interface{}{Unavailable, v.Averages.Err.Error()})
			break
		}
		table := v.Averages.Value
		header := []interface{}{string(table.GroupKey), "Count"}
		for _, p := range table.Fields {
			header = append(header, p)
		}
		rows = append(rows, header)
		for _, r := range table.Rows {
			row := []interface{}{r.Key, r.Count}
			for _, p := range table.Fields {
				row = append(row, utils.CellValue(r.Means[p]))
			}
			rows = append(rows, row)
		}
	}
	return writeRows(f, SheetAverages, rows)
}

func writeCorrelation(f *excelize.File, v dashboard.View) error {
	if !v.Correlation.Available() {
		return writeRows(f, SheetCorrelation, [][]interface{}{{Unavailable, v.Correlation.Err.Error()}})
	}
	m := v.Correlation.Value
	header := []interface{}{""}
	for _, name := range m.Fields {
		header = append(header, name)
	}
	rows := [][]interface{}{header}
	for i, name := range m.Fields {
		row := []interface{}{name}
		for j := range m.Fields {
			row = append(row, utils.CellValue(processor.RoundTo2(m.Values[i][j])))
		}
		rows = append(rows, row)
	}
	rows = append(rows, []interface{}{"Complete rows", m.Samples})
	return writeRows(f, SheetCorrelation, rows)
}

func writeParameters(f *excelize.File) error {
	rows := [][]interface{}{{"Parameter", "Description"}}
	for _, field := range processor.DescribedFields() {
		rows = append(rows, []interface{}{field, processor.FieldDescription(field)})
	}
	return writeRows(f, SheetParameters, rows)
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("创建sheet %s 失败: %w", sheet, err)
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func orUnavailable(v interface{}, err error) interface{} {
	if err != nil {
		return fmt.Sprintf("%s: %v", Unavailable, err)
	}
	return v
}
