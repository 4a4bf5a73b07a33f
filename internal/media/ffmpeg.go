package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober reports the duration of a media file in seconds
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

// Normalizer converts a media file to the canonical transcription format:
// mono, 16 kHz, signed 16-bit PCM wav.
type Normalizer interface {
	Normalize(ctx context.Context, input, output string) error
}

// FFmpeg implements Prober and Normalizer with the ffprobe and ffmpeg binaries
type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
}

// NewFFmpeg uses the binaries found on PATH
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

// CheckBinaries verifies both binaries can be found
func (f *FFmpeg) CheckBinaries() error {
	for _, bin := range []string{f.FFmpegPath, f.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not found: %w", bin, err)
		}
	}
	return nil
}

// Duration runs ffprobe and parses the container duration
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	// ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 input
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, lastLine(stderr.String()))
	}
	return ParseDuration(out)
}

// Normalize transcodes input into output
func (f *FFmpeg) Normalize(ctx context.Context, input, output string) error {
	// ffmpeg -y -i input -ar 16000 -ac 1 -c:a pcm_s16le output
	cmd := exec.CommandContext(ctx, f.FFmpegPath,
		"-y", "-i", input,
		"-ar", "16000", "-ac", "1",
		"-c:a", "pcm_s16le",
		output,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

// ErrNoDuration is returned when ffprobe prints no usable duration
var ErrNoDuration = errors.New("media duration unavailable")

// ParseDuration reads the first numeric line of ffprobe output
func ParseDuration(out []byte) (float64, error) {
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "N/A" {
			continue
		}
		d, err := strconv.ParseFloat(line, 64)
		if err != nil || d < 0 {
			return 0, fmt.Errorf("%w: %q", ErrNoDuration, line)
		}
		return d, nil
	}
	return 0, ErrNoDuration
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
