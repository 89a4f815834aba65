package audio

import (
	"bytes"
	"fmt"
	"time"

	"github.com/mewkiz/flac"
	mp3lib "github.com/tcolgate/mp3"
)

// FLACInfo holds the stream parameters relevant to normalization.
type FLACInfo struct {
	SampleRate      int
	BitsPerSample   int
	DurationSeconds int
}

// ProbeFLAC parses the STREAMINFO header of an in-memory FLAC stream.
func ProbeFLAC(data []byte) (FLACInfo, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return FLACInfo{}, fmt.Errorf("%w: %v", ErrCorruptAudio, err)
	}

	info := stream.Info
	if info == nil || info.SampleRate == 0 {
		return FLACInfo{}, fmt.Errorf("%w: missing stream info", ErrCorruptAudio)
	}

	return FLACInfo{
		SampleRate:      int(info.SampleRate),
		BitsPerSample:   int(info.BitsPerSample),
		DurationSeconds: int(info.NSamples / uint64(info.SampleRate)),
	}, nil
}

// ProbeMP3 walks the MPEG frames of an in-memory MP3 stream and sums their
// durations. Trailing garbage after at least one valid frame is tolerated,
// matching how players treat truncated files.
func ProbeMP3(data []byte) (int, error) {
	decoder := mp3lib.NewDecoder(bytes.NewReader(data))

	var (
		frame   mp3lib.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := decoder.Decode(&frame, &skipped); err != nil {
			if frames == 0 {
				return 0, fmt.Errorf("%w: %v", ErrCorruptAudio, err)
			}
			break
		}
		if d := frame.Duration(); d > 0 {
			total += d
		}
		frames++
	}
	return int(total.Seconds()), nil
}

// Duration returns the playback length in whole seconds for either
// supported format.
func Duration(data []byte, ext string) (int, error) {
	switch ext {
	case ExtFLAC:
		info, err := ProbeFLAC(data)
		if err != nil {
			return 0, err
		}
		return info.DurationSeconds, nil
	case ExtMP3:
		return ProbeMP3(data)
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}
