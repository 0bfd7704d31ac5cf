package model

import (
	"fmt"
	"strings"
)

// Pole is one named extreme of an Axis. Poles are laid out so that the
// poles of axis n are 2n (first) and 2n+1 (second).
type Pole int

const (
	Solitary Pole = iota
	Social
	Abstract
	Representational
	Affective
	Analytical
	Fluid
	Structured
)

// PoleCount is the number of poles in a Profile
const PoleCount = 8

var poleNames = [PoleCount]string{
	"Solitary", "Social",
	"Abstract", "Representational",
	"Affective", "Analytical",
	"Fluid", "Structured",
}

var poleChars = [PoleCount]byte{'I', 'E', 'N', 'S', 'F', 'T', 'P', 'J'}

// AllPoles returns every pole in profile order
func AllPoles() []Pole {
	return []Pole{Solitary, Social, Abstract, Representational, Affective, Analytical, Fluid, Structured}
}

func (p Pole) String() string {
	if !p.Valid() {
		return fmt.Sprintf("Pole(%d)", int(p))
	}
	return poleNames[p]
}

// Char returns the type-code character of the pole
func (p Pole) Char() byte {
	return poleChars[p]
}

// Valid reports whether p names one of the eight poles
func (p Pole) Valid() bool {
	return p >= 0 && int(p) < PoleCount
}

// Axis returns the axis the pole belongs to
func (p Pole) Axis() Axis {
	return Axis(int(p) / 2)
}

// Pair returns the opposite pole on the same axis
func (p Pole) Pair() Pole {
	return p ^ 1
}

// IsFirst reports whether p is the first-named pole of its axis
func (p Pole) IsFirst() bool {
	return int(p)%2 == 0
}

// ParsePole resolves a pole by name ("Structured") or code character ("J"),
// case-insensitively.
func ParsePole(s string) (Pole, error) {
	s = strings.TrimSpace(s)
	for i, name := range poleNames {
		if strings.EqualFold(s, name) {
			return Pole(i), nil
		}
	}
	if len(s) == 1 {
		c := strings.ToUpper(s)[0]
		for i, pc := range poleChars {
			if pc == c {
				return Pole(i), nil
			}
		}
	}
	return 0, fmt.Errorf("unknown pole %q", s)
}

// Axis is one of the four fixed bipolar dimensions
type Axis int

const (
	AxisOrientation Axis = iota // Solitary / Social
	AxisPerception              // Abstract / Representational
	AxisJudgement               // Affective / Analytical
	AxisMethod                  // Fluid / Structured
)

// AxisCount is the number of axes in a type code
const AxisCount = 4

var axisNames = [AxisCount]string{"orientation", "perception", "judgement", "method"}

// AllAxes returns the axes in type-code order
func AllAxes() []Axis {
	return []Axis{AxisOrientation, AxisPerception, AxisJudgement, AxisMethod}
}

func (a Axis) String() string {
	if a < 0 || int(a) >= AxisCount {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisNames[a]
}

// First returns the first-named pole of the axis
func (a Axis) First() Pole {
	return Pole(int(a) * 2)
}

// Second returns the second-named pole of the axis
func (a Axis) Second() Pole {
	return Pole(int(a)*2 + 1)
}

// FlipChar returns the code character of the pole opposite to c on this axis.
// Unknown characters are returned unchanged.
func (a Axis) FlipChar(c byte) byte {
	switch c {
	case a.First().Char():
		return a.Second().Char()
	case a.Second().Char():
		return a.First().Char()
	}
	return c
}
