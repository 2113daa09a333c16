package parser

import (
	"strconv"
	"strings"
	"unicode"
)

var validators = map[string]func(string) bool{
	"price":   ValidPrice,
	"decimal": validDecimal,
	"count":   validCount,
}

var priceSeparators = strings.NewReplacer(",", "", ".", "")

// ValidPrice reports whether s is a plain number once thousands and decimal
// separators are removed.
func ValidPrice(s string) bool {
	return allDigits(priceSeparators.Replace(strings.TrimSpace(s)))
}

func validDecimal(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

func validCount(s string) bool {
	return allDigits(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// cleanText collapses runs of whitespace, including non-breaking spaces.
func cleanText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
