package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// probeOutput mirrors the JSON that ffprobe emits with -show_format and
// -show_streams. Numeric fields arrive as strings.
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

type probeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Channels   int    `json:"channels"`
	SampleRate string `json:"sample_rate"`
}

// MediaInfo is the subset of probe data the converters and the info
// endpoint care about.
type MediaInfo struct {
	Format     string  `json:"format,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
	Size       int64   `json:"size,omitempty"`
	BitRate    int64   `json:"bit_rate,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	Channels   int     `json:"channels,omitempty"`
	SampleRate int     `json:"sample_rate,omitempty"`
}

// ProbeFile inspects a media file with ffprobe and returns its parsed
// stream and container metadata. It counts against the same subprocess
// bound as Run.
func (e *Engine) ProbeFile(ctx context.Context, path string) (MediaInfo, error) {
	if err := e.acquire(ctx); err != nil {
		return MediaInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}
	defer e.release()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
	out, err := e.exec(ctx, e.ffprobe, args, 30*time.Second)
	if err != nil {
		return MediaInfo{}, fmt.Errorf("probe %s: %w", path, err)
	}

	var probe probeOutput
	if err := json.Unmarshal([]byte(out.Stdout), &probe); err != nil {
		return MediaInfo{}, fmt.Errorf("probe %s: parse output: %w", path, err)
	}

	info := MediaInfo{
		Format:   probe.Format.FormatName,
		Duration: parseFloat(probe.Format.Duration),
		Size:     parseInt(probe.Format.Size),
		BitRate:  parseInt(probe.Format.BitRate),
	}
	for _, s := range probe.Streams {
		switch s.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = s.Width
				info.Height = s.Height
				info.VideoCodec = s.CodecName
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
				info.Channels = s.Channels
				info.SampleRate = int(parseInt(s.SampleRate))
			}
		}
	}
	return info, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
