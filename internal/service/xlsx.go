package service

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const maxImportRows = 2000

// sheetRow Excel 数据行，Row 为表格中的行号（表头为第 1 行）
type sheetRow struct {
	Row    int
	Values map[string]string // 列名 → 单元格
}

// readSheet 读取首个工作表，按表头名返回数据行；全空行被跳过
// required 中任一列缺失返回 ErrImportBadHeader
func readSheet(r io.Reader, required ...string) ([]sheetRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("无法解析Excel文件: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(rows) < 2 {
		return nil, ErrImportNoData
	}

	header := make([]string, len(rows[0]))
	present := make(map[string]bool, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
		present[header[i]] = true
	}
	for _, name := range required {
		if !present[name] {
			return nil, fmt.Errorf("%w: %s", ErrImportBadHeader, name)
		}
	}

	var out []sheetRow
	for i := 1; i < len(rows); i++ {
		item := sheetRow{Row: i + 1, Values: make(map[string]string, len(header))}
		empty := true
		for j, v := range rows[i] {
			if j >= len(header) || header[j] == "" {
				continue
			}
			v = strings.TrimSpace(v)
			if v != "" {
				empty = false
			}
			item.Values[header[j]] = v
		}
		if empty {
			continue
		}
		out = append(out, item)
	}

	if len(out) == 0 {
		return nil, ErrImportNoData
	}
	if len(out) > maxImportRows {
		return nil, fmt.Errorf("数据行数超过上限 %d 行", maxImportRows)
	}
	return out, nil
}

// workbook 生成单工作表的 Excel
func workbook(sheet string, headers []string, rows [][]any) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	if sheet != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range headers {
		c := cell(colName(i), 1)
		f.SetCellValue(sheet, c, h)
		f.SetCellStyle(sheet, c, c, headerStyle)
		width := float64(len([]rune(h)))*2 + 4
		if width < 10 {
			width = 10
		}
		f.SetColWidth(sheet, colName(i), colName(i), width)
	}
	for r, row := range rows {
		for i, v := range row {
			f.SetCellValue(sheet, cell(colName(i), r+2), v)
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("写入 Excel 失败: %w", err)
	}
	return buf, nil
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// parseFloat 空串或非法数字返回 nil
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func derefFloat(p *float64) any {
	if p == nil {
		return ""
	}
	return *p
}
