package tabular

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxSheetNameLen is the spreadsheet format's hard limit on sheet names, in characters.
const MaxSheetNameLen = 31

var reservedSheetChars = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_",
	"?", "_", "/", "_", `\`, "_",
)

const reservedSheetSet = `[]:*?/\`

const reservedHistorySheet = "History"

// SanitizeSheetName maps name to a legal sheet name. index is the sheet's
// position among its siblings and picks the fallback "Sheet<index+1>" when
// the name is empty or made only of reserved characters. The result is never
// empty and never longer than MaxSheetNameLen characters; it is not
// guaranteed unique.
func SanitizeSheetName(name string, index int) string {
	if strings.Trim(name, reservedSheetSet) == "" {
		return "Sheet" + strconv.Itoa(index+1)
	}
	s := reservedSheetChars.Replace(strings.ToValidUTF8(name, "_"))
	s = truncateRunes(s, MaxSheetNameLen)
	// Sheet names may not start or end with an apostrophe.
	if strings.HasPrefix(s, "'") {
		s = "_" + s[1:]
	}
	if strings.HasSuffix(s, "'") {
		s = s[:len(s)-1] + "_"
	}
	// Excel reserves "History" for its change-tracking sheet.
	if strings.EqualFold(s, reservedHistorySheet) {
		s += "_"
	}
	return s
}

// UniqueSheetNames sanitizes names in order and resolves collisions, which
// the format compares case-insensitively, by suffixing " (2)", " (3)", ...
// and shortening the base so the length limit still holds.
func UniqueSheetNames(names []string) []string {
	out := make([]string, len(names))
	taken := make(map[string]bool, len(names))
	for i, n := range names {
		base := SanitizeSheetName(n, i)
		name := base
		for c := 2; taken[strings.ToLower(name)]; c++ {
			suffix := " (" + strconv.Itoa(c) + ")"
			name = truncateRunes(base, MaxSheetNameLen-utf8.RuneCountInString(suffix)) + suffix
		}
		taken[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
