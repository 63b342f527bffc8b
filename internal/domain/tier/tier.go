// Package tier defines model capability tiers ordered by cost.
package tier

import "fmt"

// Tier is a model capability rank. Higher rank means more capable and
// more expensive.
type Tier string

const (
	Local Tier = "LOCAL"
	Cheap Tier = "CHEAP"
	Smart Tier = "SMART"
)

// rank returns the cost order of a tier. Unknown tiers rank below LOCAL
// so they never pass a budget check.
func (t Tier) rank() int {
	switch t {
	case Local:
		return 0
	case Cheap:
		return 1
	case Smart:
		return 2
	}
	return -1
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	return t.rank() >= 0
}

// WithinBudget reports whether t costs no more than the ceiling tier.
func (t Tier) WithinBudget(ceiling Tier) bool {
	return t.rank() <= ceiling.rank()
}

// StepDown returns the next cheaper tier and true, or t and false when
// there is nothing below (LOCAL has no fallback).
func (t Tier) StepDown() (Tier, bool) {
	switch t {
	case Smart:
		return Cheap, true
	case Cheap:
		return Local, true
	}
	return t, false
}

// Parse converts a string to a Tier.
func Parse(s string) (Tier, error) {
	t := Tier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}
