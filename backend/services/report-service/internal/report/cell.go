package report

import "github.com/xuri/excelize/v2"

// Cell is what the builder writes into one sheet cell: either a plain Value or a Formula.
type Cell interface {
	apply(f *excelize.File, sheet, ref string) error
}

// Value is a literal cell. A nil V leaves the cell empty.
type Value struct {
	V any
}

func (c Value) apply(f *excelize.File, sheet, ref string) error {
	if c.V == nil {
		return nil
	}
	return f.SetCellValue(sheet, ref, c.V)
}

// Formula is an expression cell with an optional precomputed result. Spreadsheet software
// recalculates from Expr; Cached only serves readers that do not evaluate formulas.
type Formula struct {
	Expr   string
	Cached any
}

func (c Formula) apply(f *excelize.File, sheet, ref string) error {
	if c.Cached != nil {
		if err := f.SetCellValue(sheet, ref, c.Cached); err != nil {
			return err
		}
	}
	return f.SetCellFormula(sheet, ref, c.Expr)
}
