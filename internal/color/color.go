// Package color implements the WCAG color math used by the analyzers:
// hex parsing, relative luminance, contrast ratio, and the normalized
// presentation scales.
package color

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hpungsan/nbaudit/internal/errors"
)

// AANormalText is the WCAG 2.x AA minimum contrast for normal-size text.
const AANormalText = 4.5

// AAANormalText is the WCAG 2.x AAA minimum contrast for normal-size text.
const AAANormalText = 7.0

// MaxContrast is the highest possible contrast ratio (black on white).
const MaxContrast = 21.0

// Color is an 8-bit RGB triple.
type Color struct {
	R, G, B uint8
}

var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// ParseHex parses "#RRGGBB" or "RRGGBB" (case-insensitive).
func ParseHex(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return Color{}, errors.NewParseFailure("color", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, errors.NewParseFailure("color", s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// MustParseHex is like ParseHex but panics on malformed input.
// Intended for package-level constants and tests.
func MustParseHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex renders the canonical uppercase "#RRGGBB" form.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// String implements fmt.Stringer.
func (c Color) String() string {
	return c.Hex()
}

// Quantize floors each channel to a multiple of bucket.
// A bucket below 2 returns c unchanged.
func Quantize(c Color, bucket int) Color {
	if bucket < 2 {
		return c
	}
	q := func(v uint8) uint8 {
		return uint8(int(v) / bucket * bucket)
	}
	return Color{R: q(c.R), G: q(c.G), B: q(c.B)}
}

// Gamma is the sRGB linearization threshold. Both values below appear in
// WCAG-derived code; an analyzer picks one and uses it for every comparison.
type Gamma float64

const (
	// WCAG20 is the threshold printed in the WCAG 2.0 definition.
	WCAG20 Gamma = 0.03928
	// SRGB is the threshold from the IEC sRGB specification.
	SRGB Gamma = 0.04045
)

func (g Gamma) linearize(v uint8) float64 {
	c := float64(v) / 255.0
	if c <= float64(g) {
		return c / 12.92
	}
	return math.Pow((c+0.055)/1.055, 2.4)
}

// Luminance returns the relative luminance of c in [0,1].
func (g Gamma) Luminance(c Color) float64 {
	return 0.2126*g.linearize(c.R) + 0.7152*g.linearize(c.G) + 0.0722*g.linearize(c.B)
}

// Contrast returns the WCAG contrast ratio between a and b.
func (g Gamma) Contrast(a, b Color) float64 {
	return ContrastRatio(g.Luminance(a), g.Luminance(b))
}

// Luminance returns the relative luminance of c using the WCAG20 threshold.
func Luminance(c Color) float64 {
	return WCAG20.Luminance(c)
}

// ContrastRatio computes (max+0.05)/(min+0.05). Symmetric in its inputs.
func ContrastRatio(l1, l2 float64) float64 {
	lighter := math.Max(l1, l2)
	darker := math.Min(l1, l2)
	return (lighter + 0.05) / (darker + 0.05)
}

// HexContrast parses both colors and returns their contrast ratio.
// A parse failure fails only this comparison.
func HexContrast(g Gamma, fg, bg string) (float64, error) {
	a, err := ParseHex(fg)
	if err != nil {
		return 0, err
	}
	b, err := ParseHex(bg)
	if err != nil {
		return 0, err
	}
	return g.Contrast(a, b), nil
}

// NormalizeToTwentyScale maps a raw ratio in [1,21] onto [0,20].
func NormalizeToTwentyScale(ratio float64) float64 {
	return clamp(ratio-1, 0, 20)
}

// NormalizeToTenScale maps a raw ratio in [1,21] onto [0,10].
func NormalizeToTenScale(ratio float64) float64 {
	return clamp((ratio-1)/2, 0, 10)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
