package audio

import (
	"errors"
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Run("accepts mp3 and flac", func(t *testing.T) {
		for _, name := range []string{"song.mp3", "song.flac", "SONG.MP3", "Song.Flac"} {
			display, ext, err := Validate(name)
			if err != nil {
				t.Fatalf("Validate(%q): unexpected error: %v", name, err)
			}
			if display != name[:len(name)-len(ext)] {
				t.Errorf("Validate(%q): display = %q", name, display)
			}
			if ext != ".mp3" && ext != ".flac" {
				t.Errorf("Validate(%q): ext = %q", name, ext)
			}
		}
	})

	t.Run("strips only the final extension", func(t *testing.T) {
		display, ext, err := Validate("album.v2.final.mp3")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if display != "album.v2.final" {
			t.Errorf("display = %q, want %q", display, "album.v2.final")
		}
		if ext != ".mp3" {
			t.Errorf("ext = %q, want .mp3", ext)
		}
	})

	t.Run("rejects unsupported extensions", func(t *testing.T) {
		for _, name := range []string{"track.wav", "track.ogg", "track", "track.mp3.exe"} {
			_, _, err := Validate(name)
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("Validate(%q): expected ErrUnsupportedFormat, got %v", name, err)
			}
		}
	})

	t.Run("rejects overlong display names", func(t *testing.T) {
		long := strings.Repeat("a", MaxDisplayNameLength+1) + ".mp3"
		if _, _, err := Validate(long); !errors.Is(err, ErrNameTooLong) {
			t.Errorf("expected ErrNameTooLong, got %v", err)
		}
	})

	t.Run("length limit counts characters not bytes", func(t *testing.T) {
		// 200 CJK characters is 600 bytes but exactly at the limit.
		name := strings.Repeat("歌", MaxDisplayNameLength) + ".flac"
		if _, _, err := Validate(name); err != nil {
			t.Errorf("unexpected error for 200-character name: %v", err)
		}
		name = strings.Repeat("歌", MaxDisplayNameLength+1) + ".flac"
		if _, _, err := Validate(name); !errors.Is(err, ErrNameTooLong) {
			t.Errorf("expected ErrNameTooLong, got %v", err)
		}
	})
}

func TestFingerprint(t *testing.T) {
	t.Run("matches known digest", func(t *testing.T) {
		if got := Fingerprint([]byte("hello world")); got != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("content defined, not name defined", func(t *testing.T) {
		a := Fingerprint([]byte("same bytes"))
		b := Fingerprint([]byte("same bytes"))
		if a != b {
			t.Error("identical content must produce identical fingerprints")
		}
		if a == Fingerprint([]byte("other bytes")) {
			t.Error("different content must produce different fingerprints")
		}
	})
}
