package player

import (
	"regexp"
	"unicode"
	"unicode/utf8"
)

var hexColorRe = regexp.MustCompile(`^#([0-9A-Fa-f]{6}|[0-9A-Fa-f]{3})$`)

// presetColors are handed out when a player joins without choosing one.
var presetColors = []string{
	"#E6194B", "#3CB44B", "#FFE119", "#4363D8", "#F58231",
	"#911EB4", "#46F0F0", "#F032E6", "#BCF60C", "#008080",
}

// ValidName reports whether name is 1-20 characters with no control
// characters.
func ValidName(name string) bool {
	if name == "" || utf8.RuneCountInString(name) > 20 {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ValidColor reports whether color is a #RRGGBB or #RGB hex color.
func ValidColor(color string) bool {
	return hexColorRe.MatchString(color)
}
