package imageconv

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/kolesa-team/go-webp/decoder"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// Format is an output raster encoding.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WEBP Format = "webp"
)

// DefaultQuality is the JPEG/WebP quality used when none is configured.
const DefaultQuality = 90

// ParseFormat accepts the usual spellings of a format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WEBP, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Encode re-encodes data in the given format. Quality applies to JPEG and
// WebP; values outside 1..100 fall back to DefaultQuality.
func Encode(data []byte, format Format, quality int) ([]byte, error) {
	switch format {
	case JPEG:
		return ToJPG(data, quality)
	case PNG:
		return ToPNG(data)
	case WEBP:
		return ToWEBP(data, quality)
	}
	return nil, fmt.Errorf("unsupported image format %q", format)
}

func ToJPG(data []byte, quality int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func ToWEBP(data []byte, quality int) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(clampQuality(quality)))
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := webp.Encode(&out, img, opts); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func ToPNG(data []byte) ([]byte, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// Decode reads a PNG, JPEG or WebP image.
func Decode(data []byte) (image.Image, error) {
	if isWEBP(data) {
		return webp.Decode(bytes.NewReader(data), &decoder.Options{})
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Dimensions returns the pixel size of an encoded image.
func Dimensions(data []byte) (int, int, error) {
	if isWEBP(data) {
		img, err := Decode(data)
		if err != nil {
			return 0, 0, err
		}
		b := img.Bounds()
		return b.Dx(), b.Dy(), nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func clampQuality(q int) int {
	if q < 1 || q > 100 {
		return DefaultQuality
	}
	return q
}

func isWEBP(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	return string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP"
}
