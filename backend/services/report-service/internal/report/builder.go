package report

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"sessionexport/backend/services/report-service/internal/apperr"
	"sessionexport/backend/services/report-service/internal/models"
)

// SheetName is the only worksheet of the workbook.
const SheetName = "Sessions"

// ContentType is the MIME type of the rendered workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Builtin number format 2 is "0.00".
const numFmtTwoDecimals = 2

// maxExactInt is the largest integer a spreadsheet number (IEEE double) holds exactly.
const maxExactInt = 1 << 53

type column struct {
	name       string
	header     string
	width      float64
	rightAlign bool
}

var columns = []column{
	{name: "A", header: "Session ID", width: 15, rightAlign: true},
	{name: "B", header: "Charging Started", width: 20},
	{name: "C", header: "Charging Ended", width: 20},
	{name: "D", header: "Metervalue Start", width: 20, rightAlign: true},
	{name: "E", header: "Metervalue End", width: 20, rightAlign: true},
	{name: "F", header: "Energy Consumed (kWh)", width: 20, rightAlign: true},
}

// Summary row placement.
const (
	energyColumn      = "F"
	totalLabelColumn  = "E"
	payoutLabelColumn = "G"
	payoutValueColumn = "H"
	payoutLabelWidth  = 30
	payoutValueWidth  = 15
	firstDataRow      = 2
	rowsBeforeSummary = 2
)

// Document is a rendered workbook together with the totals it encodes.
type Document struct {
	Bytes    []byte
	DataRows int
	TotalKWh decimal.Decimal
	Payout   decimal.Decimal
}

type styles struct {
	header      int
	headerRight int
	energy      int
	label       int
	total       int
}

// Build renders rows into an xlsx workbook: a bold header, one row per session in input order,
// a blank row and a summary row with the energy SUM and the payout at unitPrice per kWh.
func Build(rows []models.ReportRow, unitPrice decimal.Decimal) (*Document, error) {
	lastDataRow := firstDataRow + len(rows) - 1
	summaryRow := lastDataRow + rowsBeforeSummary
	if summaryRow > excelize.TotalRows {
		return nil, apperr.Render(fmt.Sprintf("%d rows exceed the sheet row limit", len(rows)), nil)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, apperr.Render("name sheet", err)
	}

	st, err := newStyles(f)
	if err != nil {
		return nil, apperr.Render("create styles", err)
	}

	if err := writeHeader(f, st); err != nil {
		return nil, apperr.Render("write header", err)
	}

	total := decimal.Zero
	for i, row := range rows {
		if row.EnergyKWh != nil {
			total = total.Add(decimal.NewFromFloat(*row.EnergyKWh))
		}
		if err := writeRow(f, firstDataRow+i, row); err != nil {
			return nil, apperr.Render(fmt.Sprintf("write row %d", firstDataRow+i), err)
		}
	}
	if len(rows) > 0 {
		first := cellRef(energyColumn, firstDataRow)
		last := cellRef(energyColumn, lastDataRow)
		if err := f.SetCellStyle(SheetName, first, last, st.energy); err != nil {
			return nil, apperr.Render("format energy column", err)
		}
	}

	payout := total.Mul(unitPrice)
	if err := writeSummary(f, st, summaryRow, max(lastDataRow, firstDataRow), unitPrice, total, payout); err != nil {
		return nil, apperr.Render("write summary", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, apperr.Render("serialize workbook", err)
	}

	return &Document{
		Bytes:    buf.Bytes(),
		DataRows: len(rows),
		TotalKWh: total,
		Payout:   payout,
	}, nil
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	defs := []struct {
		target *int
		style  *excelize.Style
	}{
		{&st.header, &excelize.Style{Font: &excelize.Font{Bold: true}}},
		{&st.headerRight, &excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: &excelize.Alignment{Horizontal: "right"}}},
		{&st.energy, &excelize.Style{NumFmt: numFmtTwoDecimals}},
		{&st.label, &excelize.Style{Font: &excelize.Font{Bold: true}, Alignment: &excelize.Alignment{Horizontal: "right"}}},
		{&st.total, &excelize.Style{Font: &excelize.Font{Bold: true}}},
	}
	for _, d := range defs {
		id, err := f.NewStyle(d.style)
		if err != nil {
			return styles{}, err
		}
		*d.target = id
	}
	return st, nil
}

func writeHeader(f *excelize.File, st styles) error {
	for _, col := range columns {
		if err := f.SetColWidth(SheetName, col.name, col.name, col.width); err != nil {
			return err
		}
		ref := cellRef(col.name, 1)
		if err := f.SetCellValue(SheetName, ref, col.header); err != nil {
			return err
		}
		style := st.header
		if col.rightAlign {
			style = st.headerRight
		}
		if err := f.SetCellStyle(SheetName, ref, ref, style); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(SheetName, payoutLabelColumn, payoutLabelColumn, payoutLabelWidth); err != nil {
		return err
	}
	return f.SetColWidth(SheetName, payoutValueColumn, payoutValueColumn, payoutValueWidth)
}

func writeRow(f *excelize.File, rowNum int, row models.ReportRow) error {
	cells := []Cell{
		sessionIDCell(row.SessionID),
		textCell(row.StartedAt),
		textCell(row.EndedAt),
		numberCell(row.MeterStart),
		numberCell(row.MeterEnd),
		numberCell(row.EnergyKWh),
	}
	for i, c := range cells {
		if err := c.apply(f, SheetName, cellRef(columns[i].name, rowNum)); err != nil {
			return err
		}
	}
	return nil
}

func writeSummary(f *excelize.File, st styles, rowNum, sumTo int, unitPrice, total, payout decimal.Decimal) error {
	totalRef := cellRef(energyColumn, rowNum)
	cells := []struct {
		column string
		cell   Cell
		style  int
	}{
		{totalLabelColumn, Value{V: "Total"}, st.label},
		{energyColumn, Formula{
			Expr:   fmt.Sprintf("SUM(%s:%s)", cellRef(energyColumn, firstDataRow), cellRef(energyColumn, sumTo)),
			Cached: total.InexactFloat64(),
		}, st.total},
		{payoutLabelColumn, Value{V: fmt.Sprintf("Payout (%s per kWh)", unitPrice.String())}, st.label},
		{payoutValueColumn, Formula{
			Expr:   fmt.Sprintf("%s*%s", totalRef, unitPrice.String()),
			Cached: payout.InexactFloat64(),
		}, st.total},
	}
	for _, c := range cells {
		ref := cellRef(c.column, rowNum)
		if err := c.cell.apply(f, SheetName, ref); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, ref, ref, c.style); err != nil {
			return err
		}
	}
	return nil
}

// sessionIDCell keeps numeric ids numeric as long as a double represents them exactly.
func sessionIDCell(id string) Cell {
	if id == "" {
		return Value{}
	}
	if n, err := strconv.ParseInt(id, 10, 64); err == nil && n > -maxExactInt && n < maxExactInt {
		return Value{V: n}
	}
	return Value{V: id}
}

func textCell(s string) Cell {
	if s == "" {
		return Value{}
	}
	return Value{V: s}
}

func numberCell(v *float64) Cell {
	if v == nil {
		return Value{}
	}
	return Value{V: *v}
}

func cellRef(column string, row int) string {
	return column + strconv.Itoa(row)
}
