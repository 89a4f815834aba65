package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// soxr with high precision and high-passed triangular dither, the same
// resampler chain the library has always transcoded with.
const resampleFilter = "aresample=resampler=soxr:precision=28:dither_method=triangular_hp"

// NormalizeParams configures the downsample/requantize target.
type NormalizeParams struct {
	Enabled             bool
	TargetSampleRate    int
	TargetBitsPerSample int
	FFmpegPath          string
}

// FFmpegNormalizer downconverts high-resolution FLAC streams to the target
// quality profile by piping them through ffmpeg. MP3 input always passes
// through untouched.
type FFmpegNormalizer struct {
	params NormalizeParams
}

// NewFFmpegNormalizer creates a normalizer with the given target profile.
func NewFFmpegNormalizer(params NormalizeParams) *FFmpegNormalizer {
	if params.FFmpegPath == "" {
		params.FFmpegPath = "ffmpeg"
	}
	return &FFmpegNormalizer{params: params}
}

// Normalize inspects the stream header and, when the sample rate or bit
// depth exceeds the target, re-encodes the stream losslessly at the target
// parameters. Output that already satisfies the thresholds is returned
// unchanged, which also makes the operation idempotent: a normalized stream
// never exceeds the target on a second pass.
func (n *FFmpegNormalizer) Normalize(ctx context.Context, data []byte, ext string) ([]byte, bool, error) {
	if ext != ExtFLAC || !n.params.Enabled {
		return data, false, nil
	}

	info, err := ProbeFLAC(data)
	if err != nil {
		return nil, false, err
	}
	if info.SampleRate <= n.params.TargetSampleRate && info.BitsPerSample <= n.params.TargetBitsPerSample {
		return data, false, nil
	}

	out, err := n.transcode(ctx, data)
	if err != nil {
		return nil, false, err
	}

	slog.Info("normalized flac stream",
		"source_rate", info.SampleRate,
		"source_bits", info.BitsPerSample,
		"target_rate", n.params.TargetSampleRate,
		"target_bits", n.params.TargetBitsPerSample,
		"bytes_in", len(data),
		"bytes_out", len(out),
	)
	return out, true, nil
}

func (n *FFmpegNormalizer) transcode(ctx context.Context, data []byte) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-map", "0:a",
		"-map_metadata", "0",
		"-af", resampleFilter,
		"-ar", strconv.Itoa(n.params.TargetSampleRate),
		"-sample_fmt", sampleFormat(n.params.TargetBitsPerSample),
		"-f", "flac",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, n.params.FFmpegPath, args...)
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", ErrCorruptAudio, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: ffmpeg produced no output", ErrCorruptAudio)
	}
	return stdout.Bytes(), nil
}

// sampleFormat maps a target bit depth onto the FLAC encoder's sample
// formats. The encoder only speaks s16 and s32; 24-bit targets ride in s32.
func sampleFormat(bits int) string {
	if bits <= 16 {
		return "s16"
	}
	return "s32"
}
