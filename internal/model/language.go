package model

import (
	"errors"
	"strings"
)

// Language is the source language of a document.
type Language int

const (
	LanguageUnknown Language = iota
	LanguageMarkdown
	LanguageLatex
	LanguagePdf
)

var ErrUnknownLanguage = errors.New("unknown document language")

func (l Language) String() string {
	switch l {
	case LanguageMarkdown:
		return "Markdown"
	case LanguageLatex:
		return "Latex"
	case LanguagePdf:
		return "Pdf"
	default:
		return "Unknown"
	}
}

// Authorable reports whether documents can be written in this language.
// Pdf is an output format and Unknown is the zero value, neither can be compiled.
func (l Language) Authorable() bool {
	return l == LanguageMarkdown || l == LanguageLatex
}

// ParseLanguage parses a language name, case-insensitive.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown", "md":
		return LanguageMarkdown, nil
	case "latex", "tex":
		return LanguageLatex, nil
	case "pdf":
		return LanguagePdf, nil
	case "unknown", "":
		return LanguageUnknown, nil
	}

	return LanguageUnknown, ErrUnknownLanguage
}
