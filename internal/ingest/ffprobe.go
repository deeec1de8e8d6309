package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/franz/lollydb/internal/util"
)

// probeFormat is the part of the ffprobe output ingestion reads
type probeFormat struct {
	Format *struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Prober returns the duration of an audio file in milliseconds
type Prober func(ctx context.Context, path string) (int64, error)

// FFprobeDuration runs ffprobe and parses the container duration.
// It returns util.ErrNotFound when ffprobe is not installed.
func FFprobeDuration(ctx context.Context, path string) (int64, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, util.ErrNotFound
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return 0, fmt.Errorf("ffprobe failed: %s", string(exitErr.Stderr))
		}
		return 0, fmt.Errorf("ffprobe execution failed: %w", err)
	}
	return parseDuration(output)
}

func parseDuration(output []byte) (int64, error) {
	var info probeFormat
	if err := json.Unmarshal(output, &info); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if info.Format == nil || info.Format.Duration == "" || info.Format.Duration == "N/A" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(info.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", info.Format.Duration, err)
	}
	return int64(seconds * 1000), nil
}
