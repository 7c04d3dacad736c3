package inventory

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ImportRow is one computed spreadsheet row with its problems.
type ImportRow struct {
	Line            int      `json:"line"`
	Name            string   `json:"productName"`
	Description     string   `json:"description,omitempty"`
	Quantity        int      `json:"quantity"`
	DamagedQuantity int      `json:"damagedQuantity"`
	InStock         int      `json:"inStock"`
	Issues          []string `json:"issues,omitempty"`
}

func (r *ImportRow) flag(format string, args ...any) {
	r.Issues = append(r.Issues, fmt.Sprintf(format, args...))
}

// Input converts the row to a product payload.
func (r ImportRow) Input() ProductInput {
	return ProductInput{
		Name:            r.Name,
		Description:     r.Description,
		Quantity:        r.Quantity,
		DamagedQuantity: r.DamagedQuantity,
		InStock:         r.InStock,
	}
}

// Report is the outcome of checking a batch. Submission is allowed only when
// Valid is true.
type Report struct {
	Mapping    Mapping     `json:"mapping"`
	Rows       []ImportRow `json:"rows"`
	IssueCount int         `json:"issueCount"`
	Valid      bool        `json:"valid"`
}

func cell(row []string, m Mapping, field string) (string, bool) {
	col, ok := m[field]
	if !ok {
		return "", false
	}
	if col >= len(row) {
		return "", true
	}
	return strings.TrimSpace(row[col]), true
}

// parseCount accepts integers and integral decimals ("5", "5.0").
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, fmt.Errorf("%q is not a whole number", s)
	}
	return int(f), nil
}

// BuildRows computes typed rows from a sheet using m. Unmapped damaged
// defaults to 0; unmapped inStock defaults to quantity - damaged.
func BuildRows(s *Sheet, m Mapping) []ImportRow {
	rows := make([]ImportRow, 0, len(s.Rows))
	for i, raw := range s.Rows {
		r := ImportRow{Line: i + 2}
		if i < len(s.Lines) {
			r.Line = s.Lines[i]
		}
		name, _ := cell(raw, m, FieldName)
		r.Name = CleanName(name)
		r.Description, _ = cell(raw, m, FieldDescription)

		var err error
		q, _ := cell(raw, m, FieldQuantity)
		if r.Quantity, err = parseCount(q); err != nil {
			r.flag("quantity: %v", err)
		}
		if d, ok := cell(raw, m, FieldDamaged); ok {
			if r.DamagedQuantity, err = parseCount(d); err != nil {
				r.flag("damagedQuantity: %v", err)
			}
		}
		if st, ok := cell(raw, m, FieldInStock); ok {
			if r.InStock, err = parseCount(st); err != nil {
				r.flag("inStock: %v", err)
			}
		} else {
			if r.Quantity >= 0 && r.DamagedQuantity >= 0 {
				r.InStock = r.Quantity - r.DamagedQuantity
			}
		}
		rows = append(rows, r)
	}
	return rows
}

// CheckBatch flags empty names, negative counts, sum inconsistencies,
// duplicates inside the batch and names that already exist. existing holds
// NameKey values of stored products.
func CheckBatch(rows []ImportRow, existing map[string]bool) Report {
	firstByKey := map[string]int{}
	for i := range rows {
		r := &rows[i]
		key := NameKey(r.Name)
		if key == "" {
			r.flag("productName is required")
		}
		if r.Quantity < 0 {
			r.flag("quantity must be non-negative")
		}
		if r.DamagedQuantity < 0 {
			r.flag("damagedQuantity must be non-negative")
		}
		if r.InStock < 0 {
			r.flag("inStock must be non-negative")
		}
		if nonNegative(*r) && r.Quantity-r.DamagedQuantity < r.InStock {
			r.flag("quantity (%d) is less than damagedQuantity (%d) + inStock (%d)", r.Quantity, r.DamagedQuantity, r.InStock)
		}
		if key == "" {
			continue
		}
		if existing[key] {
			r.flag("product %q already exists", r.Name)
		}
		if j, ok := firstByKey[key]; ok {
			r.flag("duplicate of line %d", rows[j].Line)
			if !hasDuplicateFlag(rows[j]) {
				rows[j].flag("duplicate of line %d", r.Line)
			}
			continue
		}
		firstByKey[key] = i
	}

	rep := Report{Rows: rows}
	for _, r := range rows {
		rep.IssueCount += len(r.Issues)
	}
	rep.Valid = rep.IssueCount == 0 && len(rows) > 0
	return rep
}

func nonNegative(r ImportRow) bool {
	return r.Quantity >= 0 && r.DamagedQuantity >= 0 && r.InStock >= 0
}

func hasDuplicateFlag(r ImportRow) bool {
	for _, is := range r.Issues {
		if strings.HasPrefix(is, "duplicate of line") {
			return true
		}
	}
	return false
}
