package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"cookie-ai-go/internal/model"
	"cookie-ai-go/pkg/log"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
	"gonum.org/v1/gonum/stat"
)

const previewRowCount = 5

// csvEncodings 是 CSV 解码的有序回退链。
// gb18030 是 gb2312 的超集，可覆盖其全部码位。
var csvEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"utf-8", nil},
	{"gbk", simplifiedchinese.GBK},
	{"gb18030", simplifiedchinese.GB18030},
	{"iso-8859-1", charmap.ISO8859_1},
}

// summarizeCSV 按编码回退链解码 CSV 并构建表格摘要。
// 所有编码均失败时返回错误。
func summarizeCSV(data []byte) (*model.TableSummary, error) {
	var lastErr error
	for _, e := range csvEncodings {
		decoded, err := decodeBytes(data, e.enc)
		if err != nil {
			lastErr = err
			continue
		}
		rows, err := parseCSV(decoded)
		if err != nil {
			lastErr = err
			continue
		}
		log.Infof("[Ingestor] CSV 使用编码 %s 解码成功", e.name)
		return buildTableSummary(rows)
	}
	if lastErr == nil {
		lastErr = errors.New("无法识别的CSV编码")
	}
	return nil, fmt.Errorf("无法使用 utf-8/gbk/gb2312/iso-8859-1 解码CSV: %w", lastErr)
}

// decodeBytes 用给定编码解码字节串；enc 为 nil 时校验 UTF-8。
func decodeBytes(data []byte, enc encoding.Encoding) (string, error) {
	if enc == nil {
		if !utf8.Valid(data) {
			return "", errors.New("不是有效的 UTF-8 字节序列")
		}
		return string(data), nil
	}
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), enc.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// parseCSV 将解码后的文本解析为行。
func parseCSV(text string) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(text))
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// summarizeExcel 解析 xlsx/xls 的第一个工作表并构建表格摘要。
func summarizeExcel(data []byte) (*model.TableSummary, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("打开Excel文件失败: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("Excel文件不包含任何工作表")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("读取工作表 %s 失败: %w", sheets[0], err)
	}
	return buildTableSummary(rows)
}

// oleSignature 是旧版二进制 Office 文件（OLE 复合文档）的魔数。
var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// summarizeLegacyExcel 处理 .xls。旧版二进制格式无法在进程内解析，
// 交由 Tika 服务器提取为制表符分隔文本；重命名为 .xls 的 OOXML
// 工作簿仍走 excelize。
func (p *Ingestor) summarizeLegacyExcel(file File) (*model.TableSummary, error) {
	if !bytes.HasPrefix(file.Data, oleSignature) {
		return summarizeExcel(file.Data)
	}

	text, err := p.tikaClient.ExtractText(bytes.NewReader(file.Data), file.Name)
	if err != nil {
		return nil, fmt.Errorf("提取xls内容失败: %w", err)
	}
	rows := parseTabSeparated(text)
	if len(rows) == 0 {
		return nil, errors.New("表格为空")
	}
	return buildTableSummary(rows)
}

// parseTabSeparated 将 Tika 输出的制表符分隔文本解析为行，跳过空行。
func parseTabSeparated(text string) [][]string {
	var rows [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}

// buildTableSummary 由首行作为列名的行数据构建摘要，csv 与 xlsx 共用。
func buildTableSummary(rows [][]string) (*model.TableSummary, error) {
	if len(rows) == 0 {
		return nil, errors.New("表格为空")
	}

	columns := rows[0]
	dataRows := rows[1:]
	colCount := len(columns)

	// 补齐短行，保证逐列统计时下标安全
	normalized := make([][]string, len(dataRows))
	for i, row := range dataRows {
		if len(row) < colCount {
			padded := make([]string, colCount)
			copy(padded, row)
			row = padded
		}
		normalized[i] = row[:colCount]
	}

	summary := &model.TableSummary{
		RowCount:    len(normalized),
		ColCount:    colCount,
		ColumnNames: append([]string{}, columns...),
		Dtypes:      make(map[string]string, colCount),
		NullCounts:  make(map[string]int, colCount),
		Stats:       make(map[string]model.ColumnStats),
	}

	// 前 5 行预览
	previewEnd := previewRowCount
	if previewEnd > len(normalized) {
		previewEnd = len(normalized)
	}
	summary.PreviewRows = make([][]string, previewEnd)
	for i := 0; i < previewEnd; i++ {
		summary.PreviewRows[i] = append([]string{}, normalized[i]...)
	}

	for colIdx, name := range columns {
		values := make([]float64, 0, len(normalized))
		nulls := 0
		numeric := true
		integral := true

		for _, row := range normalized {
			cell := strings.TrimSpace(row[colIdx])
			if cell == "" {
				nulls++
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				numeric = false
				continue
			}
			if v != float64(int64(v)) {
				integral = false
			}
			values = append(values, v)
		}

		summary.NullCounts[name] = nulls

		switch {
		case numeric && len(values) > 0 && integral:
			summary.Dtypes[name] = "int64"
		case numeric && len(values) > 0:
			summary.Dtypes[name] = "float64"
		default:
			summary.Dtypes[name] = "object"
		}

		if numeric && len(values) > 0 {
			summary.Stats[name] = describeColumn(values)
		}
	}

	return summary, nil
}

// describeColumn 计算一个数值列的描述性统计。
func describeColumn(values []float64) model.ColumnStats {
	sorted := append([]float64{}, values...)
	sort.Float64s(sorted)

	std := 0.0
	if len(sorted) > 1 {
		std = stat.StdDev(sorted, nil)
	}
	return model.ColumnStats{
		Count: len(sorted),
		Mean:  stat.Mean(sorted, nil),
		Std:   std,
		Min:   sorted[0],
		Q25:   stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Q50:   stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q75:   stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Max:   sorted[len(sorted)-1],
	}
}
