package model

import (
	"encoding/json"
	"fmt"
)

// Neutral is the baseline value of every pole before any evidence is applied
const Neutral = 50

// AxisTotal is the sum of the two pole values of every axis
const AxisTotal = 100

// Profile is the 8-value scored vector, indexed by Pole.
// It is a value type: copies never share state.
type Profile [PoleCount]int

// Baseline returns a fresh profile with every pole at Neutral
func Baseline() Profile {
	var p Profile
	for i := range p {
		p[i] = Neutral
	}
	return p
}

// ProfileFromFirst builds a profile from the first-pole value of each axis,
// deriving the second pole as AxisTotal minus the first.
func ProfileFromFirst(first [AxisCount]int) Profile {
	var p Profile
	for _, a := range AllAxes() {
		p[a.First()] = first[a]
		p[a.Second()] = AxisTotal - first[a]
	}
	return p
}

// Get returns the value of a pole
func (p Profile) Get(pole Pole) int {
	return p[pole]
}

// Margin returns the absolute difference between the two poles of an axis
func (p Profile) Margin(a Axis) int {
	d := p[a.First()] - p[a.Second()]
	if d < 0 {
		return -d
	}
	return d
}

// Map returns the profile keyed by pole name
func (p Profile) Map() map[string]int {
	m := make(map[string]int, PoleCount)
	for _, pole := range AllPoles() {
		m[pole.String()] = p[pole]
	}
	return m
}

// MarshalJSON encodes the profile as an object keyed by pole name.
// encoding/json sorts map keys, so the output is byte-stable.
func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Map())
}

// UnmarshalJSON decodes an object keyed by pole name
func (p *Profile) UnmarshalJSON(data []byte) error {
	var m map[string]int
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Profile
	for name, v := range m {
		pole, err := ParsePole(name)
		if err != nil {
			return fmt.Errorf("profile: %w", err)
		}
		out[pole] = v
	}
	*p = out
	return nil
}
