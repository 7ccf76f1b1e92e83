// reader.go
package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/tealeg/xlsx"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/Benylaode/Analisi-Udara/src/processor"
)

const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"

	Number string = "^[0-9]+(\\.[0-9]+)?$"
)

var numberRe = regexp.MustCompile(Number)

// Source 数据源配置
type Source struct {
	Path      string
	Format    string // csv | xlsx，为空时按扩展名判断
	SheetName string // xlsx使用，为空取第一个sheet
	HeaderRow int    // xlsx表头所在行(从0开始)
	Encoding  string // csv文件编码: utf-8 | gbk | gb18030 | latin1 | windows-1252
}

// Load 读取整个数据文件并构造数据集
func Load(src Source) (*processor.Dataset, error) {
	switch detectFormat(src) {
	case FormatXLSX:
		return ReadXLSX(src.Path, src.SheetName, src.HeaderRow)
	case FormatCSV:
		return ReadCSVFile(src.Path, src.Encoding)
	default:
		return nil, fmt.Errorf("unsupported data format %q for %s", src.Format, src.Path)
	}
}

func detectFormat(src Source) string {
	if src.Format != "" {
		return strings.ToLower(src.Format)
	}
	switch strings.ToLower(filepath.Ext(src.Path)) {
	case ".xlsx":
		return FormatXLSX
	case ".csv", ".txt", "":
		return FormatCSV
	}
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(src.Path)), ".")
}

/******************** CSV ********************/

// ReadCSVFile 打开CSV文件并解析
func ReadCSVFile(filePath, enc string) (*processor.Dataset, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("无法读取文件 %s: %w", filePath, err)
	}
	defer f.Close()

	ds, err := ReadCSV(f, enc)
	if err != nil {
		return nil, fmt.Errorf("解析 %s 失败: %w", filePath, err)
	}
	return ds, nil
}

// ReadCSV 按指定编码解码后用gota解析CSV
func ReadCSV(r io.Reader, enc string) (*processor.Dataset, error) {
	decoder, err := decoderFor(enc)
	if err != nil {
		return nil, err
	}
	df := dataframe.ReadCSV(transform.NewReader(r, decoder), processor.LoadOptions()...)
	if df.Err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", df.Err)
	}
	return processor.NewDataset(df)
}

// decoderFor 返回对应编码的解码器，UTF-8时顺带去掉BOM
func decoderFor(enc string) (transform.Transformer, error) {
	var e encoding.Encoding
	switch strings.ToLower(strings.TrimSpace(enc)) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "gbk":
		e = simplifiedchinese.GBK
	case "gb18030":
		e = simplifiedchinese.GB18030
	case "latin1", "iso-8859-1":
		e = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		e = charmap.Windows1252
	default:
		return nil, fmt.Errorf("unsupported encoding %q", enc)
	}
	return e.NewDecoder(), nil
}

/******************** XLSX ********************/

// ReadXLSX 使用tealeg/xlsx读取工作表并转换为数据集
func ReadXLSX(filePath, sheetName string, headerRow int) (*processor.Dataset, error) {
	// 1. 打开Excel文件
	xlFile, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("xlsx open file false: %w", err)
	}

	// 2. 获取工作表
	if len(xlFile.Sheets) == 0 {
		return nil, fmt.Errorf("excel文件中没有工作表: %s", filePath)
	}
	sheet := xlFile.Sheets[0]
	if sheetName != "" {
		s, ok := xlFile.Sheet[sheetName]
		if !ok {
			return nil, fmt.Errorf("sheet %q not found in %s", sheetName, filePath)
		}
		sheet = s
	}

	// 3. 转换为二维表
	records, err := sheetToRecords(sheet, headerRow, xlFile.Date1904)
	if err != nil {
		return nil, err
	}
	return processor.FromRecords(records)
}

// sheetToRecords 将xlsx.Sheet转换为[][]string，第一行为表头
func sheetToRecords(sheet *xlsx.Sheet, headerRow int, date1904 bool) ([][]string, error) {
	if len(sheet.Rows) <= headerRow {
		return nil, fmt.Errorf("sheet %s 没有表头行 %d", sheet.Name, headerRow)
	}

	// 获取列名
	var headers []string
	for _, cell := range sheet.Rows[headerRow].Cells {
		headers = append(headers, strings.TrimSpace(cell.Value))
	}
	dtIdx := -1
	for i, h := range headers {
		if h == processor.DatetimeCol {
			dtIdx = i
		}
	}

	records := make([][]string, 0, len(sheet.Rows)-headerRow)
	records = append(records, headers)

	// 填充数据
	for _, row := range sheet.Rows[headerRow+1:] {
		if row == nil {
			continue
		}
		rec := make([]string, len(headers))
		empty := true
		for i, cell := range row.Cells {
			if i >= len(headers) { // 确保不超出列数范围
				break
			}
			rec[i] = cell.Value
			if rec[i] != "" {
				empty = false
			}
		}
		// 跳过完全空的行
		if empty {
			continue
		}
		if dtIdx >= 0 {
			rec[dtIdx] = excelToTime(rec[dtIdx], date1904)
		}
		records = append(records, rec)
	}
	return records, nil
}

// excelToTime Excel序列号日期转成规范化时间字符串，非数字原样返回。
// TimeFromExcelTime 截断小数部分，需取整到秒
func excelToTime(v string, date1904 bool) string {
	if !numberRe.MatchString(v) {
		return v
	}
	serial, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return v
	}
	return xlsx.TimeFromExcelTime(serial, date1904).Round(time.Second).Format(processor.TimeLayout)
}
