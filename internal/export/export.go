// Package export 负责结果的展示排序与表格导出（CSV / XLSX）。
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/John-Robertt/ncmq/internal/domain"
)

const (
	CSVFileName  = "consulta_ncm.csv"
	XLSXFileName = "consulta_ncm.xlsx"
	SheetName    = "NCM"

	CSVContentType  = "text/csv; charset=utf-8"
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Header 是导出表格的列顺序（与 Row 一一对应）。
var Header = []string{"NCM (input)", "NCM (retorno)", "Descrição", "Status", "Detalhe", "Fonte"}

// Sort 返回按展示顺序排序后的副本：状态优先级（ok, not_found, invalid, error, 其他），其次输入编码。
// 入参不会被修改。
func Sort(results []domain.Result) []domain.Result {
	out := append([]domain.Result(nil), results...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := domain.StatusRank(out[i].Status), domain.StatusRank(out[j].Status)
		if ri != rj {
			return ri < rj
		}
		return out[i].InputCode < out[j].InputCode
	})
	return out
}

// Row 把单条结果展开为表格行。
func Row(r domain.Result) []string {
	return []string{r.InputCode, r.Code, r.Description, r.Status, r.Detail, r.Source}
}

// Rows 返回表头 + 数据行（不排序；调用方决定是否先 Sort）。
func Rows(results []domain.Result) [][]string {
	rows := make([][]string, 0, len(results)+1)
	rows = append(rows, append([]string(nil), Header...))
	for _, r := range results {
		rows = append(rows, Row(r))
	}
	return rows
}

// WriteCSV 以 UTF-8（带 BOM，便于 Excel 直接打开）写出 CSV。
func WriteCSV(w io.Writer, results []domain.Result) error {
	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	cw := csv.NewWriter(tw)
	if err := cw.WriteAll(Rows(results)); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// ReadCSV 解析 WriteCSV 的输出（BOM 可有可无），返回行顺序不变的结果列表。
func ReadCSV(r io.Reader) ([]domain.Result, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.UTF8BOM.NewDecoder()))
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if strings.Join(head, "|") != strings.Join(Header, "|") {
		return nil, fmt.Errorf("unexpected csv header: %q", head)
	}

	out := []domain.Result{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, domain.Result{
			InputCode:   rec[0],
			Code:        rec[1],
			Description: rec[2],
			Status:      rec[3],
			Detail:      rec[4],
			Source:      rec[5],
		})
	}
	return out, nil
}

// WriteXLSX 写出单 sheet（NCM）的 Excel 文件。所有单元格按文本写入，避免前导 0 的编码被转成数字。
func WriteXLSX(w io.Writer, results []domain.Result) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#1A1A1A"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FFC300"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for rowIdx, row := range Rows(results) {
		for colIdx, v := range row {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return err
			}
			if err := f.SetCellStr(SheetName, cell, v); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	last, _ := excelize.ColumnNumberToName(len(Header))
	if err := f.SetCellStyle(SheetName, "A1", last+"1", headerStyle); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	widths := []float64{14, 14, 60, 12, 45, 50}
	for i, wd := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(SheetName, col, col, wd); err != nil {
			return fmt.Errorf("set width %s: %w", col, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

// SummaryLine 返回人类可读的统计行。
func SummaryLine(s domain.Summary) string {
	return fmt.Sprintf("ok=%d not_found=%d invalid=%d error=%d total=%d", s.OK, s.NotFound, s.Invalid, s.Error, s.Total)
}
