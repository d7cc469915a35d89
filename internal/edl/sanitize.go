package edl

import (
	"fmt"
	"strings"
	"unicode"
)

// SanitizeName drops control characters, replaces anything outside letters,
// digits and a small punctuation set with underscores, trims, and truncates to
// maxLen runes when maxLen is positive.
func SanitizeName(s string, maxLen int) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) {
			continue
		}
		if isAllowedNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	cleaned := strings.TrimSpace(b.String())
	if maxLen > 0 {
		runes := []rune(cleaned)
		if len(runes) > maxLen {
			cleaned = string(runes[:maxLen])
		}
	}
	return cleaned
}

func isAllowedNameRune(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ',', '(', ')':
		return true
	default:
		return false
	}
}

// SheetTitle trims a user supplied sheet title and drops control
// characters, falling back when nothing is left. Quoting for A1 ranges and
// file paths happens where the title is used.
func SheetTitle(title, fallback string) string {
	if t := stripControl(title); t != "" {
		return t
	}
	return stripControl(fallback)
}

func stripControl(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}

// FrameName is the suggested file name for the frame grabbed for the clip at
// index. Spaces are folded so the name survives URLs unescaped.
func FrameName(index int, clipName string) string {
	name := strings.ReplaceAll(SanitizeName(clipName, 60), " ", "_")
	if name == "" {
		return fmt.Sprintf("screengrab_%d.jpg", index)
	}
	return fmt.Sprintf("screengrab_%d_%s.jpg", index, name)
}
