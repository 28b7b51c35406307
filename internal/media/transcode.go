package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
)

// Transcoder converts arbitrary audio containers to mono 16kHz WAV,
// which every transcription model accepts.
type Transcoder struct {
	ffmpegPath string
	dir        string
}

// NewTranscoder locates ffmpeg on PATH.
func NewTranscoder() (*Transcoder, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	return &Transcoder{ffmpegPath: path, dir: os.TempDir()}, nil
}

// ToWAV transcodes the file at inPath and returns the WAV path plus a
// cleanup func. The input file is left alone.
func (t *Transcoder) ToWAV(ctx context.Context, inPath string) (string, func(), error) {
	outPath := filepath.Join(t.dir, uuid.NewString()+".wav")

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-i", inPath,
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(outPath)
		return "", nil, fmt.Errorf("ffmpeg transcode: %w: %s", err, tail(out))
	}

	return outPath, func() { _ = os.Remove(outPath) }, nil
}

// tail keeps error output readable in logs. ffmpeg prints its whole
// banner before the actual error.
func tail(b []byte) string {
	const n = 400
	if len(b) <= n {
		return string(b)
	}
	return "..." + string(b[len(b)-n:])
}
