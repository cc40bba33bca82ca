package main

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// toTitleCase renders a shouting section name ("PIO-HW") as "Pio-Hw" for
// report output, using x/text/cases in place of the deprecated
// strings.Title.
func toTitleCase(s string) string {
	return titleCaser.String(strings.ToLower(s))
}
