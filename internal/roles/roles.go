// Package roles converts potency into base damage (d2) from character stats.
//
// Each role is one Converter. The formulas reproduce the integer arithmetic of
// the game at the reference level, flooring after every multiplication and division.
// The probability engine never sees a role: converted rows are ordinary actions.
package roles

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rewired-gh/dmgvar/internal/level"
	"github.com/rewired-gh/dmgvar/internal/models"
)

var (
	// ErrNoPet is returned when converting pet potency without pet stats.
	ErrNoPet = errors.New("character has no pet stats")
	// ErrUnknownDamageType is returned for damage types a converter cannot handle.
	ErrUnknownDamageType = errors.New("unknown damage type")
)

// Role names a converter.
type Role string

const (
	RoleHealer Role = "healer"
	RoleTank   Role = "tank"
	RoleCaster Role = "caster"
)

// Converter turns potency into d2 for one character.
type Converter interface {
	Role() Role
	// D2 returns the base damage of one hit. mainStatAdd is extra main stat,
	// typically from medication.
	D2(potency int, kind models.DamageType, mainStatAdd int) (float64, error)
}

// Pet holds the stats of a pet or summoned entity.
type Pet struct {
	AttackPower       int     `mapstructure:"attack_power"`
	AttackPowerScalar float64 `mapstructure:"attack_power_scalar"`
	AttackPowerOffset int     `mapstructure:"attack_power_offset"`
	JobAttribute      int     `mapstructure:"job_attribute"`
	AtkMod            int     `mapstructure:"atk_mod"`
}

// PetDefaults lists the pet parameters of each job with a pet at the reference level.
var PetDefaults = map[string]Pet{
	"Summoner":    {AttackPowerScalar: 0.88, AttackPowerOffset: -64, JobAttribute: 100, AtkMod: 237},
	"Astrologian": {AttackPowerScalar: 1.058, AttackPowerOffset: 0, JobAttribute: 100, AtkMod: 237},
	"DarkKnight":  {AttackPowerScalar: 1.0, AttackPowerOffset: -18, JobAttribute: 100, AtkMod: 237},
	"Ninja":       {AttackPowerScalar: 1.0, AttackPowerOffset: 0, JobAttribute: 100, AtkMod: 237},
	"Machinist":   {AttackPowerScalar: 1.0, AttackPowerOffset: -61, JobAttribute: 100, AtkMod: 237},
}

// Stats are the character stats the formulas read.
type Stats struct {
	// MainStat is mind, intelligence or strength depending on the role.
	MainStat int `mapstructure:"main_stat"`
	// Strength drives healer and caster auto attacks.
	Strength      int `mapstructure:"strength"`
	Determination int `mapstructure:"determination"`
	// Speed is skill or spell speed.
	Speed int `mapstructure:"speed"`
	// Tenacity only affects tanks. Zero means the level base value.
	Tenacity     int     `mapstructure:"tenacity"`
	CriticalHit  int     `mapstructure:"critical_hit"`
	DirectHit    int     `mapstructure:"direct_hit"`
	WeaponDamage int     `mapstructure:"weapon_damage"`
	Delay        float64 `mapstructure:"delay"`
	Pet          *Pet    `mapstructure:"pet"`
}

// base holds the shared multipliers. All values are integers kept as float64.
type base struct {
	stats        Stats
	mods         level.Modifiers
	trait        float64
	autoTrait    float64
	jobAttribute float64
	atkMod       float64
	tenacity     float64
	autoSpeed    float64
}

func newBase(stats Stats, trait, autoTrait, jobAttribute, atkMod int) base {
	mods := level.Reference
	return base{
		stats:        stats,
		mods:         mods,
		trait:        float64(trait),
		autoTrait:    float64(autoTrait),
		jobAttribute: float64(jobAttribute),
		atkMod:       float64(atkMod),
		tenacity:     float64(mods.Sub),
		autoSpeed:    float64(mods.Sub),
	}
}

var floor = math.Floor

func (b *base) main() float64 { return float64(b.mods.Main) }
func (b *base) sub() float64  { return float64(b.mods.Sub) }
func (b *base) div() float64  { return float64(b.mods.Div) }

// fWD is the weapon damage multiplier.
func (b *base) fWD() float64 {
	return floor(b.main()*b.jobAttribute/1000 + float64(b.stats.WeaponDamage))
}

// attack is the attack multiplier for an attack power and modifier.
func (b *base) attack(ap, atkMod float64) float64 {
	return floor(atkMod*(ap-b.main())/b.main()) + 100
}

func (b *base) fAtk(mainStatAdd int) float64 {
	return b.attack(float64(b.stats.MainStat+mainStatAdd), b.atkMod)
}

func (b *base) fDet() float64 {
	return floor(140*(float64(b.stats.Determination)-b.main())/b.div() + 1000)
}

func (b *base) fTen() float64 {
	return floor(100*(b.tenacity-b.sub())/b.div() + 1000)
}

func (b *base) speed(stat float64) float64 {
	return floor(130*(stat-b.sub())/b.div() + 1000)
}

func (b *base) fAuto() float64 {
	return floor(b.fWD() * b.stats.Delay / 3)
}

func (b *base) direct(potency float64, atk float64) float64 {
	d1 := floor(floor(floor(potency*atk*b.fDet())/100) / 1000)
	d := floor(floor(d1*b.fTen()) / 1000)
	d = floor(floor(d*b.fWD()) / 100)
	return floor(floor(d*b.trait) / 100)
}

func (b *base) magicDoT(potency float64, atk float64) float64 {
	d1 := floor(floor(potency*b.fWD()) / 100)
	d1 = floor(floor(d1*atk) / 100)
	d1 = floor(floor(d1*b.speed(float64(b.stats.Speed))) / 1000)

	d := floor(floor(d1*b.fDet()) / 1000)
	d = floor(floor(d*b.fTen()) / 1000)
	return floor(floor(d*b.trait)/100) + 1
}

func (b *base) physicalDoT(potency float64, atk float64) float64 {
	d1 := floor(floor(floor(potency*atk*b.fDet())/100) / 1000)
	d := floor(floor(d1*b.fTen()) / 1000)
	d = floor(floor(d*b.speed(float64(b.stats.Speed))) / 1000)
	d = floor(floor(d*b.fWD()) / 100)
	return floor(floor(d*b.trait)/100) + 1
}

func (b *base) auto(potency float64, atk float64) float64 {
	d1 := floor(floor(floor(potency*atk*b.fDet())/100) / 1000)
	d := floor(floor(d1*b.fTen()) / 1000)
	d = floor(floor(d*b.speed(b.autoSpeed)) / 1000)
	d = floor(floor(d*b.fAuto()) / 100)
	return floor(floor(d*b.autoTrait) / 100)
}

func (b *base) pet(potency float64, mainStatAdd int) (float64, error) {
	p := b.stats.Pet
	if p == nil || p.AttackPower <= 0 {
		return 0, ErrNoPet
	}
	effective := floor(p.AttackPowerScalar * float64(p.AttackPower+p.AttackPowerOffset))
	atk := b.attack(effective+float64(mainStatAdd), float64(p.AtkMod))
	wd := floor(b.main()*float64(p.JobAttribute)/1000 + float64(b.stats.WeaponDamage))

	d1 := floor(floor(floor(potency*atk*b.fDet())/100) / 1000)
	d := floor(floor(d1*b.fTen()) / 1000)
	d = floor(floor(d*wd) / 100)
	return floor(d * b.trait / 100), nil
}

// convert dispatches on the damage type. autoAtk is the attack multiplier of
// auto attacks, which differs between roles.
func (b *base) convert(potency int, kind models.DamageType, mainStatAdd int, autoAtk float64) (float64, error) {
	pot := float64(potency)
	switch kind {
	case models.DamageDirect:
		return b.direct(pot, b.fAtk(mainStatAdd)), nil
	case models.DamageMagicDoT:
		return b.magicDoT(pot, b.fAtk(mainStatAdd)), nil
	case models.DamagePhysicalDoT:
		return b.physicalDoT(pot, b.fAtk(mainStatAdd)), nil
	case models.DamageAuto:
		return b.auto(pot, autoAtk), nil
	case models.DamagePet:
		return b.pet(pot, mainStatAdd)
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDamageType, kind)
}

// Healer converts potency for healers. Auto attacks scale with strength and
// ignore medication.
type Healer struct {
	base
}

// NewHealer creates a healer converter.
func NewHealer(stats Stats) *Healer {
	return &Healer{base: newBase(stats, 130, 100, 115, level.Reference.AtkMod)}
}

func (h *Healer) Role() Role { return RoleHealer }

func (h *Healer) D2(potency int, kind models.DamageType, mainStatAdd int) (float64, error) {
	return h.convert(potency, kind, mainStatAdd, h.attack(float64(h.stats.Strength), h.atkMod))
}

// Caster converts potency for magical ranged jobs. Auto attacks scale with strength.
type Caster struct {
	base
}

// NewCaster creates a caster converter.
func NewCaster(stats Stats) *Caster {
	return &Caster{base: newBase(stats, 130, 100, 115, level.Reference.AtkMod)}
}

func (c *Caster) Role() Role { return RoleCaster }

func (c *Caster) D2(potency int, kind models.DamageType, mainStatAdd int) (float64, error) {
	return c.convert(potency, kind, mainStatAdd, c.attack(float64(c.stats.Strength+mainStatAdd), c.atkMod))
}

// tankJobAttributes lists the weapon job attribute of each tank job.
var tankJobAttributes = map[string]int{
	"Warrior":    105,
	"DarkKnight": 105,
	"Paladin":    100,
	"Gunbreaker": 100,
}

// Tank converts potency for tanks. Tenacity and skill speed apply to every formula.
type Tank struct {
	base
	Job string
}

// NewTank creates a tank converter for one of Warrior, DarkKnight, Paladin or Gunbreaker.
func NewTank(stats Stats, job string) (*Tank, error) {
	attr, ok := tankJobAttributes[job]
	if !ok {
		return nil, fmt.Errorf("invalid tank job %q: allowed values are Warrior, DarkKnight, Paladin, Gunbreaker", job)
	}
	b := newBase(stats, 100, 100, attr, level.Reference.AtkModTank)
	if stats.Tenacity > 0 {
		b.tenacity = float64(stats.Tenacity)
	}
	if stats.Speed > 0 {
		b.autoSpeed = float64(stats.Speed)
	}
	return &Tank{base: b, Job: job}, nil
}

func (t *Tank) Role() Role { return RoleTank }

func (t *Tank) D2(potency int, kind models.DamageType, mainStatAdd int) (float64, error) {
	return t.convert(potency, kind, mainStatAdd, t.fAtk(mainStatAdd))
}

// New creates the converter for a role. job selects the tank job and is ignored otherwise.
func New(role, job string, stats Stats) (Converter, error) {
	switch Role(strings.ToLower(strings.TrimSpace(role))) {
	case RoleHealer:
		return NewHealer(stats), nil
	case RoleCaster:
		return NewCaster(stats), nil
	case RoleTank:
		t, err := NewTank(stats, job)
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("invalid role %q: allowed values are healer, tank, caster", role)
}
