package network

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidColor = errors.New("invalid node color")

// Color is a node's semantic type.
type Color int

const (
	Green  Color = iota + 1 // growth
	Red                     // conflict
	Blue                    // cooperation
	Yellow                  // innovation
)

var Colors = []Color{Green, Red, Blue, Yellow}

func (c Color) Valid() bool {
	return c >= Green && c <= Yellow
}

func (c Color) String() string {
	switch c {
	case Green:
		return "green"
	case Red:
		return "red"
	case Blue:
		return "blue"
	case Yellow:
		return "yellow"
	}
	return fmt.Sprintf("color(%d)", int(c))
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "green":
		return Green, nil
	case "red":
		return Red, nil
	case "blue":
		return Blue, nil
	case "yellow":
		return Yellow, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

func (c Color) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidColor, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
