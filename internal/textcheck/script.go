// Package textcheck holds the pure text heuristics used to accept or reject generated content.
package textcheck

import (
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Arabic is the basic Arabic block, U+0600 to U+06FF.
var Arabic = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0600, Hi: 0x06FF, Stride: 1}},
}

// Cyrillic is the basic Cyrillic block, U+0400 to U+04FF.
var Cyrillic = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0400, Hi: 0x04FF, Stride: 1}},
}

// Language is the coarse classification produced by DetectLanguage.
type Language string

const (
	LangArabic  Language = "arabic"
	LangRussian Language = "russian"
	LangOther   Language = "other"
	LangUnknown Language = "unknown"
)

// Tag maps the classification to a BCP 47 tag.
func (l Language) Tag() language.Tag {
	switch l {
	case LangArabic:
		return language.Arabic
	case LangRussian:
		return language.Russian
	case LangOther:
		return language.English
	default:
		return language.Und
	}
}

// CountIn returns the number of runes of text that belong to table.
func CountIn(text string, table *unicode.RangeTable) int {
	n := 0
	for _, r := range norm.NFC.String(text) {
		if unicode.Is(table, r) {
			n++
		}
	}
	return n
}

// ContainsScript reports whether any rune of text belongs to table.
func ContainsScript(text string, table *unicode.RangeTable) bool {
	for _, r := range text {
		if unicode.Is(table, r) {
			return true
		}
	}
	return false
}

// ScriptRatio is the share of letters in text that belong to table.
// Text without letters has a ratio of zero.
func ScriptRatio(text string, table *unicode.RangeTable) float64 {
	var inScript, letters int
	for _, r := range norm.NFC.String(text) {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.Is(table, r) {
			inScript++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(inScript) / float64(letters)
}

// DetectLanguage classifies text by counting Arabic, Cyrillic and other letters.
func DetectLanguage(text string) Language {
	var arabic, cyrillic, latin int
	for _, r := range norm.NFC.String(text) {
		switch {
		case unicode.Is(Arabic, r):
			arabic++
		case unicode.Is(Cyrillic, r):
			cyrillic++
		case unicode.IsLetter(r):
			latin++
		}
	}

	total := arabic + cyrillic + latin
	if total == 0 {
		return LangUnknown
	}
	if float64(arabic)/float64(total) > 0.5 {
		return LangArabic
	}
	if cyrillic > latin {
		return LangRussian
	}
	return LangOther
}

// ScriptFor returns the Unicode block used to validate output in the given language,
// or nil when the language has no dedicated block check.
func ScriptFor(tag language.Tag) *unicode.RangeTable {
	base, _ := tag.Base()
	switch base.String() {
	case "ar", "fa", "ur":
		return Arabic
	case "ru", "uk", "bg", "sr":
		return Cyrillic
	}
	return nil
}
