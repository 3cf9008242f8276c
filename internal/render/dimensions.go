package render

import (
	"fmt"
	"strconv"
	"strings"
)

const maxSide = 4096

// Dimensions is a canvas size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

// DefaultDimensions is the landscape feed size used when none is given.
var DefaultDimensions = Dimensions{Width: 1200, Height: 628}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// ParseDimensions parses "WxH". Anything malformed, non-positive or larger
// than 4096 on a side yields DefaultDimensions and ok=false.
func ParseDimensions(s string) (d Dimensions, ok bool) {
	w, h, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return DefaultDimensions, false
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return DefaultDimensions, false
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return DefaultDimensions, false
	}
	if width <= 0 || height <= 0 || width > maxSide || height > maxSide {
		return DefaultDimensions, false
	}
	return Dimensions{Width: width, Height: height}, true
}
