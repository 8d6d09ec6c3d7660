// Package preview builds thumbnail patterns and resolves scrub-preview frames
// from them without touching the network.
package preview

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/scrubline/backend/internal/models"
)

// Placeholder is the token substituted by Pattern.URL.
const Placeholder = "%d"

// ErrInvalidPattern indicates a template without exactly one placeholder.
var ErrInvalidPattern = errors.New("thumbnail pattern must contain exactly one placeholder")

// Pattern is a thumbnail URL template plus what its placeholder stands for.
type Pattern struct {
	Template string
	Kind     models.ThumbnailKind
}

// FromVideo reads the pattern stored on a record.
func FromVideo(v models.Video) Pattern {
	return Pattern{Template: v.ThumbnailPattern, Kind: v.ThumbnailKind}
}

// Empty reports whether the pattern carries no previews.
func (p Pattern) Empty() bool { return p.Template == "" }

// Validate checks the placeholder invariant; the empty pattern is valid.
func (p Pattern) Validate() error {
	if p.Empty() {
		return nil
	}
	if strings.Count(p.Template, Placeholder) != 1 {
		return fmt.Errorf("%w: %q", ErrInvalidPattern, p.Template)
	}
	switch p.Kind {
	case models.ThumbnailKindIndex, models.ThumbnailKindSeconds:
		return nil
	default:
		return fmt.Errorf("thumbnail pattern %q: unknown kind %q", p.Template, p.Kind)
	}
}

// URL substitutes n for the placeholder.
func (p Pattern) URL(n int) string {
	if p.Empty() {
		return ""
	}
	return strings.Replace(p.Template, Placeholder, strconv.Itoa(n), 1)
}

// Location is what the resolver needs to know about a stored source video.
type Location struct {
	VideoID string
	// BaseURL prefixes local thumbnail paths; empty keeps them same-origin.
	BaseURL string
	// AssetID is the remote public id of the master video, without extension.
	AssetID string
	// Version busts CDN caches when an asset id is reused.
	Version int64
	// TransformBaseURL is the image-transforming delivery root for remote assets.
	TransformBaseURL string
	// Width of remote renditions, in pixels.
	Width int
}

// Build derives the pattern for count frames from naming conventions alone.
// Local frames are pre-rendered files addressed by 1-based index; remote frames
// are rendered by the CDN from the master video at an elapsed second.
func Build(variant models.StorageVariant, loc Location, count int) (Pattern, error) {
	if count <= 0 {
		return Pattern{}, nil
	}

	var p Pattern
	switch variant {
	case models.StorageLocal:
		if loc.VideoID == "" {
			return Pattern{}, errors.New("build local pattern: video id is required")
		}
		p = Pattern{
			Template: fmt.Sprintf("%s/thumbnails/%s/thumb-%s.jpg", strings.TrimSuffix(loc.BaseURL, "/"), loc.VideoID, Placeholder),
			Kind:     models.ThumbnailKindIndex,
		}
	case models.StorageRemote:
		if loc.AssetID == "" || loc.TransformBaseURL == "" {
			return Pattern{}, errors.New("build remote pattern: asset id and transform base url are required")
		}
		width := loc.Width
		if width <= 0 {
			width = 300
		}
		p = Pattern{
			Template: fmt.Sprintf("%s/w_%d,f_jpg,so_%s/v%d/%s.jpg",
				strings.TrimSuffix(loc.TransformBaseURL, "/"), width, Placeholder, loc.Version, strings.Trim(loc.AssetID, "/")),
			Kind: models.ThumbnailKindSeconds,
		}
	default:
		return Pattern{}, fmt.Errorf("build pattern: unknown storage variant %q", variant)
	}

	if err := p.Validate(); err != nil {
		return Pattern{}, err
	}
	return p, nil
}
