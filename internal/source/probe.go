package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult is the subset of ffprobe output the decoder needs.
type ProbeResult struct {
	Streams []ProbeStream `json:"streams"`
	Format  ProbeFormat   `json:"format"`
}

// ProbeStream describes one stream in the container.
type ProbeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	RFrameRate   string            `json:"r_frame_rate"`
	Duration     string            `json:"duration"`
	Tags         map[string]string `json:"tags"`
	SideData     []ProbeSideData   `json:"side_data_list"`
}

// ProbeSideData carries display matrix rotation on recent ffprobe builds.
type ProbeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// ProbeFormat is container-level metadata.
type ProbeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

// Probe runs ffprobe against path.
func Probe(ctx context.Context, binary, path string) (ProbeResult, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	if strings.TrimSpace(path) == "" {
		return ProbeResult{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(output)))
	}
	return ParseProbe(output)
}

// ParseProbe decodes ffprobe JSON output.
func ParseProbe(data []byte) (ProbeResult, error) {
	var result ProbeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return ProbeResult{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// Info converts the probe into display information. Dimensions are swapped
// for clips recorded with a quarter-turn rotation.
func (r ProbeResult) Info() (Info, error) {
	var (
		info  Info
		video *ProbeStream
	)
	for i := range r.Streams {
		s := &r.Streams[i]
		switch strings.ToLower(s.CodecType) {
		case "video":
			if video == nil {
				video = s
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if video == nil {
		return Info{}, errors.New("no video stream")
	}
	if video.Width <= 0 || video.Height <= 0 {
		return Info{}, fmt.Errorf("invalid video dimensions %dx%d", video.Width, video.Height)
	}

	info.Width, info.Height = video.Width, video.Height
	info.Rotation = video.rotation()
	if info.Rotation == 90 || info.Rotation == 270 {
		info.Width, info.Height = info.Height, info.Width
	}

	info.FPS = parseRate(video.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseRate(video.RFrameRate)
	}

	seconds := parseFloat(r.Format.Duration)
	if seconds == 0 {
		seconds = parseFloat(video.Duration)
	}
	info.Duration = time.Duration(seconds * float64(time.Second))
	return info, nil
}

func (s *ProbeStream) rotation() int {
	deg := 0.0
	if v, ok := s.Tags["rotate"]; ok {
		deg = parseFloat(v)
	}
	for _, sd := range s.SideData {
		if sd.Rotation != 0 {
			deg = sd.Rotation
		}
	}
	r := int(math.Round(deg)) % 360
	if r < 0 {
		r += 360
	}
	return r
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(v string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return parseFloat(num)
	}
	n, d := parseFloat(num), parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
