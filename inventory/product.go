// Package inventory validates products and runs the spreadsheet import
// pipeline: parse, map columns, check rows.
package inventory

import (
	"strings"
	"unicode"

	"lab_lending_tool/validation"
)

// NameKey normalizes a product name for uniqueness checks: case and all
// whitespace are ignored, so "Arduino Uno", "arduino uno " and "ArduinoUno"
// collide.
func NameKey(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// CleanName trims and collapses inner whitespace for display.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// ProductInput is a create/update payload.
type ProductInput struct {
	Name            string `json:"productName"`
	Description     string `json:"description"`
	Quantity        int    `json:"quantity"`
	DamagedQuantity int    `json:"damagedQuantity"`
	InStock         int    `json:"inStock"`
}

// ValidateProduct checks field rules. Uniqueness is checked by the caller
// against the store.
func ValidateProduct(in ProductInput) error {
	var ve validation.Errors
	if NameKey(in.Name) == "" {
		ve.Add("productName", "is required")
	}
	validation.NonNegative(&ve, "quantity", in.Quantity)
	validation.NonNegative(&ve, "damagedQuantity", in.DamagedQuantity)
	validation.NonNegative(&ve, "inStock", in.InStock)
	// 先减后比，避免两个大数相加溢出
	if !ve.HasErrors() && in.Quantity-in.DamagedQuantity < in.InStock {
		ve.Add("quantity", "must be at least damagedQuantity + inStock")
	}
	return ve.Err()
}
