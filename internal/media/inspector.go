package media

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/scrubline/backend/internal/models"
)

// Probe is the metadata extracted from one video file.
type Probe struct {
	Duration    float64
	Format      models.FormatInfo
	HasVideo    bool
	VideoCodec  string
	Width       int
	Height      int
	ContentType string
}

// Inspector extracts container metadata using the ffprobe CLI tool.
type Inspector struct {
	Binary  string
	Run     CommandRunner
	Timeout time.Duration
}

// NewInspector constructs an Inspector that shells out to ffprobe.
func NewInspector(binary string, timeout time.Duration) *Inspector {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Inspector{
		Binary:  binary,
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Inspect probes the file at path. A missing or unparsable duration is
// reported as zero; only a container ffprobe cannot read is an error.
func (p *Inspector) Inspect(ctx context.Context, path string) (Probe, error) {
	if p == nil {
		return Probe{}, fmt.Errorf("%w: inspector not configured", ErrUnreadableMedia)
	}
	if p.Run == nil {
		p.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.Run(execCtx, p.Binary,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return Probe{}, fmt.Errorf("%w: ffprobe: %v", ErrUnreadableMedia, err)
	}

	var payload struct {
		Format struct {
			FormatName     string `json:"format_name"`
			FormatLongName string `json:"format_long_name"`
			Duration       string `json:"duration"`
			BitRate        string `json:"bit_rate"`
		} `json:"format"`
		Streams []struct {
			CodecType string `json:"codec_type"`
			CodecName string `json:"codec_name"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return Probe{}, fmt.Errorf("%w: parse ffprobe response: %v", ErrUnreadableMedia, err)
	}
	if payload.Format.FormatName == "" && len(payload.Streams) == 0 {
		return Probe{}, fmt.Errorf("%w: ffprobe returned no format", ErrUnreadableMedia)
	}

	probe := Probe{
		Duration: parseSeconds(payload.Format.Duration),
		Format: models.FormatInfo{
			Name:     payload.Format.FormatName,
			LongName: payload.Format.FormatLongName,
			BitRate:  parseInt(payload.Format.BitRate),
		},
	}
	for _, s := range payload.Streams {
		if s.CodecType != "video" {
			continue
		}
		probe.HasVideo = true
		probe.VideoCodec = s.CodecName
		probe.Width = s.Width
		probe.Height = s.Height
		break
	}
	probe.ContentType = ContentTypeForFormat(payload.Format.FormatName, path, probe.VideoCodec)

	return probe, nil
}

// ThumbnailCount is the number of one-second frames a duration yields.
func ThumbnailCount(duration float64) int {
	if duration <= 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		return 0
	}
	return int(math.Floor(duration))
}

// ContentTypeForFormat maps an ffprobe format name onto a video MIME type.
// ffprobe names Matroska and WebM alike, so the file extension decides
// between them and the video codec breaks the tie when the extension does
// not. Unknown containers yield "".
func ContentTypeForFormat(formatName, filename, videoCodec string) string {
	for _, name := range strings.Split(formatName, ",") {
		switch strings.TrimSpace(name) {
		case "mp4", "mov", "m4a", "3gp":
			return "video/mp4"
		case "webm", "matroska":
			return matroskaContentType(filename, videoCodec)
		case "avi":
			return "video/x-msvideo"
		case "ogg":
			return "video/ogg"
		case "mpegts":
			return "video/mp2t"
		}
	}
	return ""
}

func matroskaContentType(filename, videoCodec string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".webm":
		return "video/webm"
	case ".mkv", ".mk3d":
		return "video/x-matroska"
	}
	switch videoCodec {
	case "vp8", "vp9", "av1":
		return "video/webm"
	}
	return "video/x-matroska"
}

func parseSeconds(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return 0
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

func parseInt(raw string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
