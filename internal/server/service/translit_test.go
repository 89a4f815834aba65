package service

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSearchFields(t *testing.T) {
	tests := []struct {
		name         string
		display      string
		wantName     string
		wantInitials string
	}{
		{"plain ascii", "Hotel California", "Hotel California", "HC"},
		{"diacritics", "Échos d'été", "Echos d'ete", "Ede"},
		{"cjk romanization", "夜曲", "Ye Qu", "YQ"},
		{"mixed separators", "one_two-three four", "one_two-three four", "otf"},
		{"empty", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotName, gotInitials := SearchFields(tt.display)
			if gotName != tt.wantName {
				t.Errorf("search name = %q, want %q", gotName, tt.wantName)
			}
			if gotInitials != tt.wantInitials {
				t.Errorf("initials = %q, want %q", gotInitials, tt.wantInitials)
			}
		})
	}
}

// Romanization expands each CJK character into a syllable plus separator, so
// a display name at the 200-character ceiling yields a search name several
// times longer. The tracks.search_name column is unbounded for this reason.
func TestSearchFieldsExpansion(t *testing.T) {
	display := strings.Repeat("歌", 200)

	searchName, searchInitials := SearchFields(display)

	if got := len(searchName); got <= 400 {
		t.Fatalf("expected the romanized name to exceed 400 characters, got %d", got)
	}
	if got := utf8.RuneCountInString(searchInitials); got != 200 {
		t.Errorf("initials runes = %d, want one per source character", got)
	}
}
