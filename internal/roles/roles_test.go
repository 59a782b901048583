package roles

import (
	"errors"
	"testing"

	"github.com/rewired-gh/dmgvar/internal/models"
)

func healerStats() Stats {
	pet := PetDefaults["Astrologian"]
	pet.AttackPower = 4800
	return Stats{
		MainStat:      4800,
		Strength:      400,
		Determination: 2400,
		Speed:         700,
		CriticalHit:   2000,
		DirectHit:     1250,
		WeaponDamage:  146,
		Delay:         3.44,
		Pet:           &pet,
	}
}

func darkKnightStats() Stats {
	pet := PetDefaults["DarkKnight"]
	pet.AttackPower = 4248
	return Stats{
		MainStat:      4248,
		Determination: 2148,
		Speed:         573,
		Tenacity:      1338,
		CriticalHit:   2349,
		DirectHit:     636,
		WeaponDamage:  141,
		Delay:         2.96,
		Pet:           &pet,
	}
}

func TestHealerD2(t *testing.T) {
	h := NewHealer(healerStats())
	if h.Role() != RoleHealer {
		t.Errorf("Role() = %v, want %v", h.Role(), RoleHealer)
	}

	tests := []struct {
		name        string
		potency     int
		kind        models.DamageType
		mainStatAdd int
		want        float64
	}{
		{"direct", 310, models.DamageDirect, 0, 21229},
		{"direct with medication", 310, models.DamageDirect, 300, 22633},
		{"magic dot", 75, models.DamageMagicDoT, 0, 5202},
		{"physical dot", 75, models.DamagePhysicalDoT, 0, 5201},
		{"auto attack", 90, models.DamageAuto, 0, 172},
		{"auto attack ignores medication", 90, models.DamageAuto, 300, 172},
		{"earthly star", 310, models.DamagePet, 0, 21841},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.D2(tt.potency, tt.kind, tt.mainStatAdd)
			if err != nil {
				t.Fatalf("D2() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("D2(%d, %s) = %v, want %v", tt.potency, tt.kind, got, tt.want)
			}
		})
	}
}

func TestCasterD2(t *testing.T) {
	stats := healerStats()
	stats.Delay = 3.12
	pet := PetDefaults["Summoner"]
	pet.AttackPower = 4800
	stats.Pet = &pet
	c := NewCaster(stats)

	tests := []struct {
		name        string
		potency     int
		kind        models.DamageType
		mainStatAdd int
		want        float64
	}{
		{"direct", 400, models.DamageDirect, 0, 27392},
		{"auto attack with medication", 90, models.DamageAuto, 300, 481},
		{"summon", 150, models.DamagePet, 0, 8570},
	}

	for _, tt := range tests {
		got, err := c.D2(tt.potency, tt.kind, tt.mainStatAdd)
		if err != nil {
			t.Fatalf("%s: D2() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: D2(%d, %s) = %v, want %v", tt.name, tt.potency, tt.kind, got, tt.want)
		}
	}
}

func TestTankD2(t *testing.T) {
	drk, err := NewTank(darkKnightStats(), "DarkKnight")
	if err != nil {
		t.Fatalf("NewTank() error = %v", err)
	}
	pld, err := NewTank(darkKnightStats(), "Paladin")
	if err != nil {
		t.Fatalf("NewTank() error = %v", err)
	}

	tests := []struct {
		name    string
		conv    Converter
		potency int
		kind    models.DamageType
		want    float64
	}{
		{"dark knight direct", drk, 300, models.DamageDirect, 10973},
		{"dark knight auto attack", drk, 90, models.DamageAuto, 3260},
		{"dark knight esteem", drk, 420, models.DamagePet, 18660},
		{"dark knight physical dot", drk, 60, models.DamagePhysicalDoT, 2209},
		{"paladin direct", pld, 300, models.DamageDirect, 10855},
	}

	for _, tt := range tests {
		got, err := tt.conv.D2(tt.potency, tt.kind, 0)
		if err != nil {
			t.Fatalf("%s: D2() error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: D2(%d, %s) = %v, want %v", tt.name, tt.potency, tt.kind, got, tt.want)
		}
	}

	if _, err := NewTank(darkKnightStats(), "Monk"); err == nil {
		t.Error("Expected error for a non-tank job")
	}
}

func TestD2Errors(t *testing.T) {
	stats := healerStats()
	stats.Pet = nil
	h := NewHealer(stats)

	if _, err := h.D2(100, models.DamagePet, 0); !errors.Is(err, ErrNoPet) {
		t.Errorf("D2(pet) error = %v, want ErrNoPet", err)
	}
	if _, err := h.D2(100, models.DamageType("healing"), 0); !errors.Is(err, ErrUnknownDamageType) {
		t.Errorf("D2(healing) error = %v, want ErrUnknownDamageType", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		role    string
		job     string
		want    Role
		wantErr bool
	}{
		{"healer", "", RoleHealer, false},
		{"Caster", "", RoleCaster, false},
		{"tank", "Warrior", RoleTank, false},
		{"tank", "", "", true},
		{"melee", "", "", true},
	}

	for _, tt := range tests {
		conv, err := New(tt.role, tt.job, healerStats())
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) error = %v, wantErr %v", tt.role, tt.job, err, tt.wantErr)
			continue
		}
		if err == nil && conv.Role() != tt.want {
			t.Errorf("New(%q).Role() = %v, want %v", tt.role, conv.Role(), tt.want)
		}
		if err != nil && conv != nil {
			t.Errorf("New(%q) returned a converter with an error", tt.role)
		}
	}
}
