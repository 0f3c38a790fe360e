package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// ClipExtensions are the recording containers accepted for import.
var ClipExtensions = []string{".mp4", ".mov", ".webm", ".mkv", ".m4v"}

// InitResourceLimits raises the open file limit. Every clip playback holds
// two ffmpeg processes with their pipes open.
func InitResourceLimits(logger *slog.Logger) {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		logger.Warn("failed to read open file limit", "error", err)
		return
	}

	want := uint64(2048)
	if rLimit.Cur >= want {
		return
	}
	rLimit.Cur = min(want, rLimit.Max)

	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("failed to raise open file limit", "error", err)
		return
	}
	logger.Debug("open file limit raised", "limit", rLimit.Cur)
}

// IsClipFile reports whether name has a supported recording extension.
func IsClipFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range ClipExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// FindLatestClip returns the most recently modified recording in dir.
func FindLatestClip(dir string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime time.Time

	for _, f := range files {
		if f.IsDir() || !IsClipFile(f.Name()) {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, f.Name())
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no clip recordings found in %s", dir)
	}
	return latestFile, nil
}

// ProbeEncoders lists the encoders the ffmpeg binary was built with.
func ProbeEncoders(ctx context.Context, binary string) (map[string]bool, error) {
	if binary == "" {
		binary = "ffmpeg"
	}
	out, err := exec.CommandContext(ctx, binary, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg -encoders: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return ParseEncoders(out), nil
}

// ParseEncoders reads `ffmpeg -encoders` output. Entries look like
// " V....D libx264   libx264 H.264 ..." and follow a "------" separator.
func ParseEncoders(out []byte) map[string]bool {
	encoders := make(map[string]bool)
	started := false
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !started {
			started = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}
