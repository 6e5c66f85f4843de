package ops

import (
	"fmt"
	"strings"

	"github.com/hpungsan/nbaudit/internal/color"
	"github.com/hpungsan/nbaudit/internal/errors"
)

// ContrastInput contains parameters for the Contrast operation.
type ContrastInput struct {
	Foreground string // required, #RRGGBB
	Background string // required, #RRGGBB
}

// ContrastOutput contains the result of the Contrast operation.
type ContrastOutput struct {
	Foreground string  `json:"foreground"`
	Background string  `json:"background"`
	Ratio      float64 `json:"ratio"`
	Display    string  `json:"display"`
	Score      float64 `json:"score"` // ratio on the 0-20 scale
	AA         bool    `json:"aa"`
	AAA        bool    `json:"aaa"`
}

// Contrast computes the WCAG contrast ratio of two hex colors.
func Contrast(input ContrastInput) (*ContrastOutput, error) {
	if strings.TrimSpace(input.Foreground) == "" || strings.TrimSpace(input.Background) == "" {
		return nil, errors.NewInvalidRequest("foreground and background are required")
	}
	fg, err := color.ParseHex(strings.TrimSpace(input.Foreground))
	if err != nil {
		return nil, err
	}
	bg, err := color.ParseHex(strings.TrimSpace(input.Background))
	if err != nil {
		return nil, err
	}

	ratio := color.WCAG20.Contrast(fg, bg)
	return &ContrastOutput{
		Foreground: fg.Hex(),
		Background: bg.Hex(),
		Ratio:      ratio,
		Display:    fmt.Sprintf("%.2f:1", ratio),
		Score:      color.NormalizeToTwentyScale(ratio),
		AA:         ratio >= color.AANormalText,
		AAA:        ratio >= color.AAANormalText,
	}, nil
}
