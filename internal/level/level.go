// Package level holds the level-dependent constants of the damage formulas.
// Only the reference level is supported.
package level

// Modifiers are the level-dependent divisors and attack modifiers.
type Modifiers struct {
	Level int
	// Main is the base main stat at this level.
	Main int
	// Sub is the base substat at this level.
	Sub int
	// Div is the substat divisor.
	Div int
	// AtkMod scales main stat into the attack multiplier for non-tanks.
	AtkMod int
	// AtkModTank is the attack modifier for tanks.
	AtkModTank int
}

// Reference is the level the formulas are calibrated to.
var Reference = Modifiers{
	Level:      100,
	Main:       440,
	Sub:        420,
	Div:        2780,
	AtkMod:     237,
	AtkModTank: 190,
}
