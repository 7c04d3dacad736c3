package inventory

import (
	"sort"
	"strings"
	"unicode"
)

// Canonical import fields.
const (
	FieldName        = "productName"
	FieldQuantity    = "quantity"
	FieldDamaged     = "damagedQuantity"
	FieldInStock     = "inStock"
	FieldDescription = "description"
)

var Fields = []string{FieldName, FieldQuantity, FieldDamaged, FieldInStock, FieldDescription}

var requiredFields = []string{FieldName, FieldQuantity}

var aliases = map[string][]string{
	FieldName:        {"productname", "name", "product", "component", "componentname", "item", "itemname", "partname"},
	FieldQuantity:    {"quantity", "qty", "total", "totalquantity", "totalqty", "count"},
	FieldDamaged:     {"damagedquantity", "damaged", "damagedqty", "broken", "defective", "faulty"},
	FieldInStock:     {"instock", "stock", "available", "availablequantity", "availableqty", "instockquantity"},
	FieldDescription: {"description", "desc", "details", "notes", "remarks"},
}

// Mapping maps canonical field -> zero-based column index.
type Mapping map[string]int

// Missing lists required fields that have no column.
func (m Mapping) Missing() []string {
	var out []string
	for _, f := range requiredFields {
		if _, ok := m[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// Clean drops unknown fields and out-of-range columns and reports whether
// one column is claimed twice.
func (m Mapping) Clean(columns int) (Mapping, bool) {
	out := Mapping{}
	seen := map[int]bool{}
	dup := false
	for _, f := range Fields {
		col, ok := m[f]
		if !ok || col < 0 || col >= columns {
			continue
		}
		if seen[col] {
			dup = true
		}
		seen[col] = true
		out[f] = col
	}
	return out, dup
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// score is lower for better matches; -1 means no match.
func score(header, alias string) int {
	switch {
	case header == alias:
		return 0
	case strings.HasPrefix(header, alias) || strings.HasSuffix(header, alias):
		return 1
	}
	limit := 1
	if len(alias) > 6 {
		limit = 2
	}
	if d := levenshtein(header, alias); d <= limit {
		return 1 + d
	}
	return -1
}

// MatchHeaders fuzzy-matches spreadsheet headers onto canonical fields.
// Each column is used at most once; best matches win.
func MatchHeaders(headers []string) Mapping {
	type cand struct {
		field string
		col   int
		score int
	}
	var cands []cand
	for col, h := range headers {
		key := squash(h)
		if key == "" {
			continue
		}
		for _, f := range Fields {
			best := -1
			for _, a := range aliases[f] {
				if s := score(key, a); s >= 0 && (best < 0 || s < best) {
					best = s
				}
			}
			if best >= 0 {
				cands = append(cands, cand{field: f, col: col, score: best})
			}
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score < cands[j].score
		}
		return cands[i].col < cands[j].col
	})

	m := Mapping{}
	used := map[int]bool{}
	for _, c := range cands {
		if _, done := m[c.field]; done || used[c.col] {
			continue
		}
		m[c.field] = c.col
		used[c.col] = true
	}
	return m
}

func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
