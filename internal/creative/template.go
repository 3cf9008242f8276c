package creative

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AdTemplate is a reusable layout skeleton. Stored templates are immutable;
// edits produce a new id.
type AdTemplate struct {
	ID          string                `json:"id" yaml:"id"`
	Name        string                `json:"name" yaml:"name"`
	Platforms   []string              `json:"platforms,omitempty" yaml:"platforms"`
	Layout      Layout                `json:"layout_json" yaml:"layout"`
	StyleRules  map[TextRole]FontSpec `json:"style_rules_json" yaml:"style_rules"`
	GuidelineID *int64                `json:"guideline_id,omitempty" yaml:"-"`
	CreatedAt   time.Time             `json:"created_at,omitempty" yaml:"-"`
}

// Layout describes the zones of a template.
type Layout struct {
	ImageZones       []ImageZone `json:"image_zones" yaml:"image_zones"`
	TextZones        []TextZone  `json:"text_zones" yaml:"text_zones"`
	RequiredContrast Level       `json:"required_contrast" yaml:"required_contrast"`
}

type ImageZone struct {
	ID        string        `json:"id" yaml:"id"`
	Placement ZonePlacement `json:"placement" yaml:"placement"`
	Width     Length        `json:"width" yaml:"width"`
	Height    Length        `json:"height" yaml:"height"`
}

type TextZone struct {
	ID       string   `json:"id" yaml:"id"`
	Role     TextRole `json:"role" yaml:"role"`
	MaxChars int      `json:"max_chars" yaml:"max_chars"`
	Position *Rect    `json:"position,omitempty" yaml:"position"`
}

// FontSpec is a font size in px and a CSS weight.
type FontSpec struct {
	Size   int `json:"size" yaml:"size"`
	Weight int `json:"weight" yaml:"weight"`
}

// Unit of a Length.
type Unit string

const (
	UnitFraction Unit = "%"
	UnitPixels   Unit = "px"
)

// Length is either a fraction of the canvas ("60%") or an absolute size ("600px").
type Length struct {
	Value float64
	Unit  Unit
}

// Percent returns a fractional length.
func Percent(v float64) Length { return Length{Value: v, Unit: UnitFraction} }

// Pixels returns an absolute length.
func Pixels(v float64) Length { return Length{Value: v, Unit: UnitPixels} }

func (l Length) String() string {
	return strconv.FormatFloat(l.Value, 'f', -1, 64) + string(l.Unit)
}

func (l Length) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Length) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	unit := UnitPixels
	switch {
	case strings.HasSuffix(s, "%"):
		unit = UnitFraction
		s = strings.TrimSuffix(s, "%")
	case strings.HasSuffix(s, "px"):
		s = strings.TrimSuffix(s, "px")
	default:
		return fmt.Errorf("length %q needs a %% or px suffix", string(text))
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("length %q: %w", string(text), err)
	}
	*l = Length{Value: v, Unit: unit}
	return nil
}

// Valid reports whether the length is positive and within range for its unit.
func (l Length) Valid() bool {
	switch l.Unit {
	case UnitFraction:
		return l.Value > 0 && l.Value <= 100
	case UnitPixels:
		return l.Value > 0
	}
	return false
}

// Validate enforces the structural invariants of a template. Nothing is
// defaulted here: a template missing required_contrast is rejected.
func (t *AdTemplate) Validate() error {
	l := t.Layout
	if l.RequiredContrast == "" {
		return invalid("layout_json.required_contrast", "required")
	}
	if !l.RequiredContrast.Valid() {
		return invalid("layout_json.required_contrast", "unknown value %q", l.RequiredContrast)
	}

	seen := make(map[string]bool, len(l.TextZones))
	for i, z := range l.TextZones {
		field := fmt.Sprintf("layout_json.text_zones[%d]", i)
		if strings.TrimSpace(z.ID) == "" {
			return invalid(field+".id", "required")
		}
		if seen[z.ID] {
			return invalid(field+".id", "duplicate id %q", z.ID)
		}
		seen[z.ID] = true
		if !z.Role.Valid() {
			return invalid(field+".role", "unknown role %q", z.Role)
		}
		if z.MaxChars <= 0 {
			return invalid(field+".max_chars", "must be positive")
		}
		if z.Position != nil && !z.Position.wellFormed() {
			return invalid(field+".position", "width and height must be positive")
		}
	}

	for i, z := range l.ImageZones {
		field := fmt.Sprintf("layout_json.image_zones[%d]", i)
		if strings.TrimSpace(z.ID) == "" {
			return invalid(field+".id", "required")
		}
		if !z.Placement.Valid() {
			return invalid(field+".placement", "unknown placement %q", z.Placement)
		}
		if !z.Width.Valid() || !z.Height.Valid() {
			return invalid(field, "dimensions must be positive")
		}
	}

	for role, spec := range t.StyleRules {
		if !role.Valid() {
			return invalid("style_rules_json", "unknown role %q", role)
		}
		if spec.Size <= 0 {
			return invalid("style_rules_json."+string(role)+".size", "must be positive")
		}
		if spec.Weight != 0 && (spec.Weight < 100 || spec.Weight > 900) {
			return invalid("style_rules_json."+string(role)+".weight", "%d outside 100..900", spec.Weight)
		}
	}
	return nil
}

// SupportsPlatform reports whether the template may be offered on platform.
// Templates without a platform list are universal.
func (t *AdTemplate) SupportsPlatform(platform string) bool {
	if len(t.Platforms) == 0 {
		return true
	}
	for _, p := range t.Platforms {
		if strings.EqualFold(p, platform) {
			return true
		}
	}
	return false
}
