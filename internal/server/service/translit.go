package service

import (
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// wordStarts matches the first word character of each token, so initials of
// "Neko No Uta" come out as "nnu".
var wordStarts = regexp.MustCompile(`\b\w`)

// SearchFields derives the locale-neutral search name and its initials from
// a display name. Non-Latin scripts are transliterated first (CJK titles
// become their romanized reading), so the catalog is searchable from an
// ASCII keyboard.
func SearchFields(displayName string) (searchName, searchInitials string) {
	searchName = strings.TrimSpace(unidecode.Unidecode(displayName))
	searchInitials = strings.Join(wordStarts.FindAllString(searchName, -1), "")
	return searchName, searchInitials
}
