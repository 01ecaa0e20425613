package model

import (
	"strings"

	"github.com/google/uuid"
)

// GroupColor is the closed set of colors a group can be rendered with.
type GroupColor string

const (
	ColorRed    GroupColor = "red"
	ColorOrange GroupColor = "orange"
	ColorYellow GroupColor = "yellow"
	ColorGreen  GroupColor = "green"
	ColorBlue   GroupColor = "blue"
	ColorPurple GroupColor = "purple"
	ColorPink   GroupColor = "pink"
	ColorGray   GroupColor = "gray"
)

// GroupColors lists every valid color in display order.
var GroupColors = []GroupColor{ColorRed, ColorOrange, ColorYellow, ColorGreen, ColorBlue, ColorPurple, ColorPink, ColorGray}

// ParseGroupColor maps a color name to a GroupColor. Unknown names fall back
// to blue.
func ParseGroupColor(s string) GroupColor {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range GroupColors {
		if string(c) == s {
			return c
		}
	}
	return ColorBlue
}

// ANSI returns the 256-color palette index used by the dashboard.
func (c GroupColor) ANSI() string {
	switch c {
	case ColorRed:
		return "196"
	case ColorOrange:
		return "208"
	case ColorYellow:
		return "220"
	case ColorGreen:
		return "42"
	case ColorPurple:
		return "135"
	case ColorPink:
		return "205"
	case ColorGray:
		return "244"
	default:
		return "39"
	}
}

// Group is a named bucket that orders hosts for display.
type Group struct {
	ID        uuid.UUID  `json:"id" yaml:"id"`
	Name      string     `json:"name" yaml:"name"`
	Icon      string     `json:"icon" yaml:"icon"`
	Color     GroupColor `json:"color" yaml:"color"`
	Expanded  bool       `json:"expanded" yaml:"expanded"`
	SortOrder int        `json:"sort_order" yaml:"sort_order"`
}

// NewGroup returns an expanded group with a fresh id and default icon/color.
func NewGroup(name string) Group {
	return Group{
		ID:       uuid.New(),
		Name:     name,
		Icon:     "folder",
		Color:    ColorBlue,
		Expanded: true,
	}
}

// DefaultGroups is the starter set offered by "group init".
func DefaultGroups() []Group {
	specs := []struct {
		name, icon string
		color      GroupColor
	}{
		{"Production", "server.rack", ColorRed},
		{"Testing", "testtube", ColorYellow},
		{"Development", "hammer", ColorGreen},
		{"Cloud", "cloud", ColorBlue},
	}
	out := make([]Group, 0, len(specs))
	for i, s := range specs {
		g := NewGroup(s.name)
		g.Icon = s.icon
		g.Color = s.color
		g.SortOrder = i
		out = append(out, g)
	}
	return out
}
