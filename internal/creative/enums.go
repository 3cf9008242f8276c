package creative

import "strings"

// Level is the shared low/medium/high scale used for contrast and noise.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

func (l Level) Valid() bool {
	switch l {
	case LevelLow, LevelMedium, LevelHigh:
		return true
	}
	return false
}

type ImagePlacement string

const (
	PlacementCenter ImagePlacement = "center"
	PlacementLeft   ImagePlacement = "left"
	PlacementRight  ImagePlacement = "right"
)

func (p ImagePlacement) Valid() bool {
	switch p {
	case PlacementCenter, PlacementLeft, PlacementRight:
		return true
	}
	return false
}

type TextHierarchy string

const (
	HeadlineFirst TextHierarchy = "headline_first"
	SupportFirst  TextHierarchy = "support_first"
)

func (h TextHierarchy) Valid() bool {
	return h == HeadlineFirst || h == SupportFirst
}

type CTAPosition string

const (
	CTABottom  CTAPosition = "bottom"
	CTACenter  CTAPosition = "center"
	CTAOverlay CTAPosition = "overlay"
)

func (c CTAPosition) Valid() bool {
	switch c {
	case CTABottom, CTACenter, CTAOverlay:
		return true
	}
	return false
}

type VisualDensity string

const (
	DensityMinimal  VisualDensity = "minimal"
	DensityModerate VisualDensity = "moderate"
	DensityBusy     VisualDensity = "busy"
)

func (d VisualDensity) Valid() bool {
	switch d {
	case DensityMinimal, DensityModerate, DensityBusy:
		return true
	}
	return false
}

type BackgroundStyle string

const (
	BackgroundClean     BackgroundStyle = "clean"
	BackgroundLifestyle BackgroundStyle = "lifestyle"
	BackgroundGradient  BackgroundStyle = "gradient"
)

func (b BackgroundStyle) Valid() bool {
	switch b {
	case BackgroundClean, BackgroundLifestyle, BackgroundGradient:
		return true
	}
	return false
}

// TextRole is the semantic role of a text zone.
type TextRole string

const (
	RoleHeadline TextRole = "headline"
	RoleBody     TextRole = "body"
	RoleHook     TextRole = "hook"
	RoleCTA      TextRole = "cta"
)

func (r TextRole) Valid() bool {
	switch r {
	case RoleHeadline, RoleBody, RoleHook, RoleCTA:
		return true
	}
	return false
}

// ZonePlacement is where an image zone sits inside the canvas.
type ZonePlacement string

const (
	ZoneFull   ZonePlacement = "full"
	ZoneCenter ZonePlacement = "center"
	ZoneLeft   ZonePlacement = "left"
	ZoneRight  ZonePlacement = "right"
	ZoneTop    ZonePlacement = "top"
	ZoneBottom ZonePlacement = "bottom"
)

func (z ZonePlacement) Valid() bool {
	switch z {
	case ZoneFull, ZoneCenter, ZoneLeft, ZoneRight, ZoneTop, ZoneBottom:
		return true
	}
	return false
}

// CoordinateSpace names the unit system of avoid-zone rectangles.
type CoordinateSpace string

const (
	SpaceNormalized CoordinateSpace = "normalized"
	SpacePixel      CoordinateSpace = "pixel"
)

// normalizeEnum lowercases and trims a raw enum value, mapping spaces and
// dashes to underscores ("Headline First" -> "headline_first").
func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}
