package creative

import (
	"fmt"
	"strings"
)

// ImageLayoutMap is the perceptual analysis of one candidate image, produced
// by an external service.
type ImageLayoutMap struct {
	ImageRef        string          `json:"image_ref,omitempty"`
	ContrastLevel   Level           `json:"contrast_level"`
	VisualNoise     Level           `json:"visual_noise"`
	AvoidZones      []Rect          `json:"avoid_zones"`
	CoordinateSpace CoordinateSpace `json:"coordinate_space,omitempty"`
}

// Rect is an axis-aligned rectangle; normalized rects live in [0,1].
type Rect struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

const normEpsilon = 1e-9

func (r Rect) wellFormed() bool {
	return r.Width > 0 && r.Height > 0 && r.X >= 0 && r.Y >= 0
}

// Normalized reports whether the rect lies inside the unit square.
func (r Rect) Normalized() bool {
	return r.wellFormed() &&
		r.X+r.Width <= 1+normEpsilon &&
		r.Y+r.Height <= 1+normEpsilon
}

// Area of the rect.
func (r Rect) Area() float64 { return r.Width * r.Height }

// Intersection returns the overlapping area of r and o.
func (r Rect) Intersection(o Rect) float64 {
	w := min(r.X+r.Width, o.X+o.Width) - max(r.X, o.X)
	h := min(r.Y+r.Height, o.Y+o.Height) - max(r.Y, o.Y)
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Validate rejects maps whose verdict-affecting fields are missing.
func (m *ImageLayoutMap) Validate() error {
	if m.ContrastLevel == "" {
		return invalid("contrast_level", "required")
	}
	if !m.ContrastLevel.Valid() {
		return invalid("contrast_level", "unknown value %q", m.ContrastLevel)
	}
	if m.VisualNoise == "" {
		return invalid("visual_noise", "required")
	}
	if !m.VisualNoise.Valid() {
		return invalid("visual_noise", "unknown value %q", m.VisualNoise)
	}
	switch m.CoordinateSpace {
	case "", SpaceNormalized, SpacePixel:
	default:
		return invalid("coordinate_space", "unknown value %q", m.CoordinateSpace)
	}
	for i, r := range m.AvoidZones {
		if !r.wellFormed() {
			return invalid(fmt.Sprintf("avoid_zones[%d]", i), "width and height must be positive")
		}
	}
	return nil
}

// Normalize canonicalizes enum casing in place.
func (m *ImageLayoutMap) Normalize() {
	m.ContrastLevel = Level(strings.ToLower(strings.TrimSpace(string(m.ContrastLevel))))
	m.VisualNoise = Level(strings.ToLower(strings.TrimSpace(string(m.VisualNoise))))
	m.CoordinateSpace = CoordinateSpace(strings.ToLower(strings.TrimSpace(string(m.CoordinateSpace))))
}

// NormalizedCoordinates reports whether avoid zones can be compared against
// template positions: the map must claim (or default to) normalized space and
// every rect must actually fit the unit square.
func (m *ImageLayoutMap) NormalizedCoordinates() bool {
	if m.CoordinateSpace != "" && m.CoordinateSpace != SpaceNormalized {
		return false
	}
	for _, r := range m.AvoidZones {
		if !r.Normalized() {
			return false
		}
	}
	return true
}

// CompatibilityResult is the verdict of checking one template against one image.
type CompatibilityResult struct {
	TemplateID string   `json:"template_id,omitempty"`
	Compatible bool     `json:"compatible"`
	Score      int      `json:"score"`
	Issues     []string `json:"issues"`
}
