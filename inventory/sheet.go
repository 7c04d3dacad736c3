package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

const MaxImportRows = 5000

var (
	ErrUnsupportedFile = errors.New("only .xlsx and .csv files are supported")
	ErrEmptySheet      = errors.New("sheet has no header row")
	ErrTooManyRows     = fmt.Errorf("sheet has more than %d rows", MaxImportRows)
)

// Sheet is a parsed spreadsheet: a header row plus data rows. Lines holds
// the 1-based source line of each row.
type Sheet struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
	Lines   []int      `json:"lines"`
}

// ParseSheet reads the first worksheet of an .xlsx file, or a .csv file.
func ParseSheet(filename string, r io.Reader) (*Sheet, error) {
	var (
		raw [][]string
		err error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		raw, err = readXLSX(r)
	case ".csv":
		raw, err = readCSV(r)
	default:
		return nil, ErrUnsupportedFile
	}
	if err != nil {
		return nil, err
	}
	return newSheet(raw)
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptySheet
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func newSheet(raw [][]string) (*Sheet, error) {
	i := 0
	for i < len(raw) && blank(raw[i]) {
		i++
	}
	if i == len(raw) {
		return nil, ErrEmptySheet
	}
	s := &Sheet{}
	for _, h := range raw[i] {
		s.Headers = append(s.Headers, strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	for j := i + 1; j < len(raw); j++ {
		if blank(raw[j]) {
			continue
		}
		s.Rows = append(s.Rows, raw[j])
		s.Lines = append(s.Lines, j+1)
	}
	if len(s.Rows) > MaxImportRows {
		return nil, ErrTooManyRows
	}
	return s, nil
}

// WriteXLSX renders headers and rows into a single-sheet workbook.
func WriteXLSX(w io.Writer, sheetName string, headers []string, data [][]any) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}
	for r, row := range data {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheetName, cell, v)
		}
	}
	if sheetName != "Sheet1" {
		f.DeleteSheet("Sheet1")
	}
	return f.Write(w)
}
