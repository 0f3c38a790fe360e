// Package video encodes composed canvas frames and the spliced audio track
// into a single output stream.
package video

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat means no configured format can be encoded here.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrEncodingFailure covers an encoder that fails or produces nothing.
	ErrEncodingFailure = errors.New("encoding failure")
)

// Format is one output container/codec combination.
type Format struct {
	Name       string
	Container  string
	Extension  string
	MIMEType   string
	VideoCodec string
	// AudioCodecs are tried in order; Select fills AudioCodec with the first
	// one ffmpeg offers.
	AudioCodecs []string
	AudioCodec  string
	Hardware    bool
}

var catalog = []Format{
	{
		Name: "webm-vp9", Container: "webm", Extension: "webm", MIMEType: "video/webm;codecs=vp9,opus",
		VideoCodec: "libvpx-vp9", AudioCodecs: []string{"libopus", "libvorbis"},
	},
	{
		Name: "webm-vp8", Container: "webm", Extension: "webm", MIMEType: "video/webm;codecs=vp8,opus",
		VideoCodec: "libvpx", AudioCodecs: []string{"libopus", "libvorbis"},
	},
	{
		Name: "mp4-h264", Container: "mp4", Extension: "mp4", MIMEType: "video/mp4",
		VideoCodec: "libx264", AudioCodecs: []string{"aac"},
	},
	{
		Name: "mp4-h264-nvenc", Container: "mp4", Extension: "mp4", MIMEType: "video/mp4",
		VideoCodec: "h264_nvenc", AudioCodecs: []string{"aac"}, Hardware: true,
	},
	{
		Name: "mp4-h264-videotoolbox", Container: "mp4", Extension: "mp4", MIMEType: "video/mp4",
		VideoCodec: "h264_videotoolbox", AudioCodecs: []string{"aac"}, Hardware: true,
	},
}

// Formats lists every known format.
func Formats() []Format {
	out := make([]Format, len(catalog))
	copy(out, catalog)
	return out
}

// LookupFormat finds a format by name.
func LookupFormat(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range catalog {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// Supported reports whether the encoder set can produce f, and with which
// audio codec.
func (f Format) Supported(available map[string]bool) (string, bool) {
	if !available[f.VideoCodec] {
		return "", false
	}
	for _, a := range f.AudioCodecs {
		if available[a] {
			return a, true
		}
	}
	return "", false
}

// SelectFormat returns the first preferred format the encoder set supports.
func SelectFormat(preference []string, available map[string]bool) (Format, error) {
	for _, name := range preference {
		f, ok := LookupFormat(name)
		if !ok {
			continue
		}
		if audio, ok := f.Supported(available); ok {
			f.AudioCodec = audio
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("%w: none of %s available", ErrUnsupportedFormat, strings.Join(preference, ", "))
}

// qualityArgs maps the single quality knob onto each encoder family.
// Zero selects the family default.
func qualityArgs(codec string, quality int) []string {
	switch codec {
	case "h264_videotoolbox":
		// VideoToolbox не везде поддерживает -q:v, используем битрейт.
		if quality <= 0 {
			quality = 75
		}
		return []string{"-b:v", fmt.Sprintf("%dk", quality*100)}
	case "h264_nvenc":
		if quality <= 0 {
			quality = 23
		}
		return []string{"-cq", fmt.Sprintf("%d", quality)}
	case "libvpx-vp9":
		if quality <= 0 {
			quality = 33
		}
		return []string{"-crf", fmt.Sprintf("%d", quality), "-b:v", "0", "-deadline", "realtime", "-cpu-used", "8", "-row-mt", "1"}
	case "libvpx":
		if quality <= 0 {
			quality = 10
		}
		return []string{"-crf", fmt.Sprintf("%d", quality), "-b:v", "4M", "-deadline", "realtime", "-cpu-used", "8"}
	default: // libx264
		if quality <= 0 {
			quality = 23
		}
		return []string{"-crf", fmt.Sprintf("%d", quality), "-preset", "medium"}
	}
}
