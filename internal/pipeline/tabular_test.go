package pipeline

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func TestSummarizeCSVBasic(t *testing.T) {
	data := []byte("name,age,score\nalice,30,91.5\nbob,25,88.0\ncarol,,75.5\n")

	summary, err := summarizeCSV(data)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.RowCount)
	assert.Equal(t, 3, summary.ColCount)
	assert.Equal(t, []string{"name", "age", "score"}, summary.ColumnNames)

	assert.Equal(t, "object", summary.Dtypes["name"])
	assert.Equal(t, "int64", summary.Dtypes["age"])
	assert.Equal(t, "float64", summary.Dtypes["score"])

	assert.Equal(t, 1, summary.NullCounts["age"])
	assert.Equal(t, 0, summary.NullCounts["name"])

	require.Contains(t, summary.Stats, "score")
	stats := summary.Stats["score"]
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 85.0, stats.Mean, 1e-9)
	assert.InDelta(t, 75.5, stats.Min, 1e-9)
	assert.InDelta(t, 91.5, stats.Max, 1e-9)

	// name 是非数值列，不产生统计
	assert.NotContains(t, summary.Stats, "name")
}

func TestSummarizeCSVPreviewLimitedToFiveRows(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("v\n")
	for i := 0; i < 10; i++ {
		buf.WriteString("1\n")
	}

	summary, err := summarizeCSV(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 10, summary.RowCount)
	assert.Len(t, summary.PreviewRows, 5)
}

func TestSummarizeCSVGBKEncoded(t *testing.T) {
	utf8CSV := "姓名,年龄\n张三,30\n李四,25\n"
	gbkBytes, err := io.ReadAll(transform.NewReader(
		bytes.NewReader([]byte(utf8CSV)), simplifiedchinese.GBK.NewEncoder()))
	require.NoError(t, err)
	// GBK 字节串不是有效的 UTF-8
	require.NotEqual(t, utf8CSV, string(gbkBytes))

	summary, err := summarizeCSV(gbkBytes)
	require.NoError(t, err)
	assert.Equal(t, []string{"姓名", "年龄"}, summary.ColumnNames)
	assert.Equal(t, 2, summary.RowCount)
	assert.Equal(t, [][]string{{"张三", "30"}, {"李四", "25"}}, summary.PreviewRows)
}

func TestSummarizeCSVUnparseableFails(t *testing.T) {
	// 未闭合的引号在所有候选编码下都解析失败
	data := []byte("col\n\"broken")

	_, err := summarizeCSV(data)
	assert.Error(t, err)
}

func TestSummarizeCSVRaggedRowsPadded(t *testing.T) {
	data := []byte("a,b,c\n1,2\n4,5,6\n")

	summary, err := summarizeCSV(data)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RowCount)
	// 短行补空，补位算作空值
	assert.Equal(t, 1, summary.NullCounts["c"])
	assert.Equal(t, [][]string{{"1", "2", ""}, {"4", "5", "6"}}, summary.PreviewRows)
}

func TestSummarizeExcelFirstSheet(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"city", "pop"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"beijing", 2154}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"shanghai", 2487}))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	summary, err := summarizeExcel(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.RowCount)
	assert.Equal(t, []string{"city", "pop"}, summary.ColumnNames)
	assert.Equal(t, "int64", summary.Dtypes["pop"])
}

func TestParseTabSeparatedSkipsBlankLines(t *testing.T) {
	rows := parseTabSeparated("a\tb\r\n\r\n1\t2\n   \n3\t4\n")
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"a", "b"}, rows[0])
	assert.Equal(t, []string{"3", "4"}, rows[2])
}

func TestBuildTableSummaryEmptyFails(t *testing.T) {
	_, err := buildTableSummary(nil)
	assert.Error(t, err)
}
