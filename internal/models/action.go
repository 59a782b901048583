// Package models defines the core domain entities for the dmgvar application.
// These models describe the rows of a rotation table, the hit types a single hit
// can land as, and the run records persisted after a rotation has been analyzed.
//
// Terminology:
//   - Action: one row of the rotation table, i.e. one action/buff/crit-modifier combination.
//   - Base action: the action ignoring buffs. Rows sharing a base action form a group.
//   - d2: base damage of one hit before hit-type and damage-roll variability.
//
// Nothing in the probability engine validates these values. Malformed probability
// vectors or negative damage produce meaningless results, not errors. Validate is
// offered to table ingestion, which decides whether to enforce it.
package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// HitType is the discrete outcome of a single hit.
type HitType int

const (
	NormalHit HitType = iota
	CriticalHit
	DirectHit
	CriticalDirectHit
)

// NumHitTypes is the number of hit-type outcomes per hit.
const NumHitTypes = 4

// HitTypes lists every hit type in severity order.
var HitTypes = [NumHitTypes]HitType{NormalHit, CriticalHit, DirectHit, CriticalDirectHit}

func (h HitType) String() string {
	switch h {
	case NormalHit:
		return "normal"
	case CriticalHit:
		return "critical"
	case DirectHit:
		return "direct"
	case CriticalDirectHit:
		return "critical-direct"
	default:
		return "unknown"
	}
}

// DamageType selects the potency formula for potency-based rows.
type DamageType string

const (
	DamageDirect      DamageType = "direct"
	DamageMagicDoT    DamageType = "magic-dot"
	DamagePhysicalDoT DamageType = "physical-dot"
	DamageAuto        DamageType = "auto"
	DamagePet         DamageType = "pet"
)

// IsDoT reports whether the damage type ticks over time.
func (d DamageType) IsDoT() bool {
	return d == DamageMagicDoT || d == DamagePhysicalDoT
}

// ParseDamageType converts a table value into a DamageType.
func ParseDamageType(s string) (DamageType, error) {
	switch DamageType(strings.ToLower(strings.TrimSpace(s))) {
	case DamageDirect:
		return DamageDirect, nil
	case DamageMagicDoT:
		return DamageMagicDoT, nil
	case DamagePhysicalDoT:
		return DamagePhysicalDoT, nil
	case DamageAuto:
		return DamageAuto, nil
	case DamagePet:
		return DamagePet, nil
	}
	return "", fmt.Errorf("invalid damage type %q: allowed values are direct, magic-dot, physical-dot, auto, pet", s)
}

// Action is one row of a rotation table.
type Action struct {
	Name       string `json:"action_name" yaml:"action_name"`
	BaseAction string `json:"base_action" yaml:"base_action"`
	// Hits is the number of times this action lands (n).
	Hits int `json:"n" yaml:"n"`
	// P holds the hit-type probabilities indexed by HitType.
	P  [NumHitTypes]float64 `json:"p" yaml:"p"`
	D2 float64              `json:"d2" yaml:"d2"`
	// CritMultiplier is the critical damage multiplier scaled by 1000 (l_c).
	CritMultiplier int       `json:"l_c" yaml:"l_c"`
	Buffs          []float64 `json:"buffs,omitempty" yaml:"buffs,omitempty"`
	IsDoT          bool      `json:"is_dot" yaml:"is_dot"`
}

// BuffProduct multiplies every buff together. No buffs yields 1.
func (a *Action) BuffProduct() float64 {
	prod := 1.0
	for _, b := range a.Buffs {
		prod *= b
	}
	return prod
}

// ProbabilitySum returns the sum of the hit-type probabilities.
func (a *Action) ProbabilitySum() float64 {
	var sum float64
	for _, p := range a.P {
		sum += p
	}
	return sum
}

// probabilityTolerance is the allowed drift of a probability vector sum from 1.
const probabilityTolerance = 1e-6

// Validate checks that the row describes a physically possible action.
func (a *Action) Validate() error {
	if a.Name == "" {
		return errors.New("action name must not be empty")
	}
	if a.Hits < 1 {
		return fmt.Errorf("action %s: hit count must be at least 1", a.Name)
	}
	for i, p := range a.P {
		if p < 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("action %s: %s hit probability must be between 0.0 and 1.0", a.Name, HitType(i))
		}
	}
	if math.Abs(a.ProbabilitySum()-1) > probabilityTolerance {
		return fmt.Errorf("action %s: hit-type probabilities must sum to 1.0", a.Name)
	}
	if a.D2 < 0 || math.IsNaN(a.D2) {
		return fmt.Errorf("action %s: d2 must not be negative", a.Name)
	}
	if a.CritMultiplier < 0 {
		return fmt.Errorf("action %s: critical multiplier must not be negative", a.Name)
	}
	for _, b := range a.Buffs {
		if b <= 0 {
			return fmt.Errorf("action %s: buffs must be positive multipliers", a.Name)
		}
	}
	return nil
}

// PotencyAction is a row in the potency-based schema. A role converter turns it
// into an Action before it reaches the engine.
type PotencyAction struct {
	Name           string               `json:"action_name" yaml:"action_name"`
	BaseAction     string               `json:"base_action" yaml:"base_action"`
	Hits           int                  `json:"n" yaml:"n"`
	P              [NumHitTypes]float64 `json:"p" yaml:"p"`
	Potency        int                  `json:"potency" yaml:"potency"`
	DamageType     DamageType           `json:"damage_type" yaml:"damage_type"`
	MainStatAdd    int                  `json:"main_stat_add" yaml:"main_stat_add"`
	CritMultiplier int                  `json:"l_c" yaml:"l_c"`
	Buffs          []float64            `json:"buffs,omitempty" yaml:"buffs,omitempty"`
}

// WithD2 builds the engine row for this potency row.
func (p *PotencyAction) WithD2(d2 float64) Action {
	buffs := make([]float64, len(p.Buffs))
	copy(buffs, p.Buffs)
	return Action{
		Name:           p.Name,
		BaseAction:     p.BaseAction,
		Hits:           p.Hits,
		P:              p.P,
		D2:             d2,
		CritMultiplier: p.CritMultiplier,
		Buffs:          buffs,
		IsDoT:          p.DamageType.IsDoT(),
	}
}
