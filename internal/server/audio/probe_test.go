package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
)

// flacHeader builds a header-only FLAC stream: the "fLaC" marker followed by
// a single (last) STREAMINFO metadata block with the given parameters.
func flacHeader(t *testing.T, sampleRate, bitsPerSample int, nsamples uint64) []byte {
	t.Helper()

	buf := []byte("fLaC")
	// Metadata block header: last-block flag set, type 0 (STREAMINFO), length 34.
	buf = append(buf, 0x80, 0x00, 0x00, 34)

	// Block/frame size fields: fixed 4096-sample blocks, unknown frame sizes.
	buf = append(buf, 0x10, 0x00, 0x10, 0x00) // min/max block size
	buf = append(buf, 0, 0, 0, 0, 0, 0)       // min/max frame size

	// 64 bits: sample rate (20) | channels-1 (3) | bits-1 (5) | total samples (36).
	packed := uint64(sampleRate)<<44 |
		uint64(2-1)<<41 |
		uint64(bitsPerSample-1)<<36 |
		(nsamples & 0xFFFFFFFFF)
	buf = binary.BigEndian.AppendUint64(buf, packed)

	// Unset MD5 signature.
	buf = append(buf, make([]byte, 16)...)
	return buf
}

// mp3Frames builds n valid, silent MPEG-1 Layer III frames
// (128 kbps, 44100 Hz, 417 bytes each, 1152 samples per frame).
func mp3Frames(t *testing.T, n int) []byte {
	t.Helper()

	const frameSize = 417
	frame := make([]byte, frameSize)
	frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, 0x90, 0x00

	var buf []byte
	for i := 0; i < n; i++ {
		buf = append(buf, frame...)
	}
	return buf
}

func TestProbeFLAC(t *testing.T) {
	t.Run("reads stream parameters", func(t *testing.T) {
		data := flacHeader(t, 96000, 24, 96000*10)

		info, err := ProbeFLAC(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if info.SampleRate != 96000 {
			t.Errorf("sample rate = %d, want 96000", info.SampleRate)
		}
		if info.BitsPerSample != 24 {
			t.Errorf("bits per sample = %d, want 24", info.BitsPerSample)
		}
		if info.DurationSeconds != 10 {
			t.Errorf("duration = %d, want 10", info.DurationSeconds)
		}
	})

	t.Run("rejects non-flac bytes", func(t *testing.T) {
		if _, err := ProbeFLAC([]byte("definitely not a flac stream")); !errors.Is(err, ErrCorruptAudio) {
			t.Errorf("expected ErrCorruptAudio, got %v", err)
		}
	})

	t.Run("rejects empty input", func(t *testing.T) {
		if _, err := ProbeFLAC(nil); !errors.Is(err, ErrCorruptAudio) {
			t.Errorf("expected ErrCorruptAudio, got %v", err)
		}
	})
}

func TestProbeMP3(t *testing.T) {
	t.Run("sums frame durations", func(t *testing.T) {
		// 80 frames at 1152/44100 s per frame is ~2.09 seconds.
		seconds, err := ProbeMP3(mp3Frames(t, 80))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seconds != 2 {
			t.Errorf("duration = %d, want 2", seconds)
		}
	})

	t.Run("rejects garbage", func(t *testing.T) {
		if _, err := ProbeMP3([]byte("this is not mpeg audio data at all")); !errors.Is(err, ErrCorruptAudio) {
			t.Errorf("expected ErrCorruptAudio, got %v", err)
		}
	})
}

func TestDuration(t *testing.T) {
	t.Run("dispatches on extension", func(t *testing.T) {
		seconds, err := Duration(flacHeader(t, 44100, 16, 44100*30), ExtFLAC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if seconds != 30 {
			t.Errorf("duration = %d, want 30", seconds)
		}
	})

	t.Run("rejects unknown extensions", func(t *testing.T) {
		if _, err := Duration([]byte("x"), ".wav"); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

func TestNormalize(t *testing.T) {
	params := NormalizeParams{
		Enabled:             true,
		TargetSampleRate:    44100,
		TargetBitsPerSample: 16,
	}

	t.Run("mp3 passes through untouched", func(t *testing.T) {
		n := NewFFmpegNormalizer(params)
		in := mp3Frames(t, 10)

		out, transcoded, err := n.Normalize(context.Background(), in, ExtMP3)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcoded {
			t.Error("mp3 must never be transcoded")
		}
		if &out[0] != &in[0] {
			t.Error("expected passthrough of the input slice")
		}
	})

	t.Run("flac within target passes through byte-identical", func(t *testing.T) {
		n := NewFFmpegNormalizer(params)
		in := flacHeader(t, 44100, 16, 44100)

		out, transcoded, err := n.Normalize(context.Background(), in, ExtFLAC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcoded {
			t.Error("in-target flac must not be transcoded")
		}
		if string(out) != string(in) {
			t.Error("expected byte-identical passthrough")
		}
	})

	t.Run("disabled flag skips even high-resolution flac", func(t *testing.T) {
		disabled := params
		disabled.Enabled = false
		n := NewFFmpegNormalizer(disabled)
		in := flacHeader(t, 192000, 24, 192000)

		out, transcoded, err := n.Normalize(context.Background(), in, ExtFLAC)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if transcoded {
			t.Error("disabled normalizer must not transcode")
		}
		if string(out) != string(in) {
			t.Error("expected byte-identical passthrough")
		}
	})

	t.Run("corrupt flac aborts with decode error", func(t *testing.T) {
		n := NewFFmpegNormalizer(params)
		if _, _, err := n.Normalize(context.Background(), []byte("not flac"), ExtFLAC); !errors.Is(err, ErrCorruptAudio) {
			t.Errorf("expected ErrCorruptAudio, got %v", err)
		}
	})
}

func TestSampleFormat(t *testing.T) {
	if got := sampleFormat(16); got != "s16" {
		t.Errorf("sampleFormat(16) = %q, want s16", got)
	}
	if got := sampleFormat(24); got != "s32" {
		t.Errorf("sampleFormat(24) = %q, want s32", got)
	}
}
