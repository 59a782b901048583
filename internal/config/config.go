package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rewired-gh/dmgvar/internal/dist"
	"github.com/rewired-gh/dmgvar/internal/mixture"
	"github.com/rewired-gh/dmgvar/internal/rate"
	"github.com/rewired-gh/dmgvar/internal/roles"
	"github.com/rewired-gh/dmgvar/internal/rotation"
)

// EnvPrefix prefixes environment overrides, e.g. DMGVAR_ENGINE_ACTION_DELTA.
const EnvPrefix = "DMGVAR"

// statKeys have no defaults, so AutomaticEnv alone would not see them.
// Pet keys must stay unset unless given, or every character would get a pet.
var statKeys = []string{
	"character.stats.main_stat",
	"character.stats.strength",
	"character.stats.determination",
	"character.stats.speed",
	"character.stats.tenacity",
	"character.stats.critical_hit",
	"character.stats.direct_hit",
	"character.stats.weapon_damage",
	"character.stats.delay",
	"character.stats.pet.attack_power",
	"character.stats.pet.attack_power_scalar",
	"character.stats.pet.attack_power_offset",
	"character.stats.pet.job_attribute",
	"character.stats.pet.atk_mod",
}

// Config represents the complete application configuration
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Roll      RollConfig      `mapstructure:"roll"`
	Input     InputConfig     `mapstructure:"input"`
	Character CharacterConfig `mapstructure:"character"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// EngineConfig holds the discretization and aggregation settings
type EngineConfig struct {
	ActionDelta   float64 `mapstructure:"action_delta"`
	RotationDelta float64 `mapstructure:"rotation_delta"`
	TailMass      float64 `mapstructure:"tail_mass"`
	MaxGridPoints int     `mapstructure:"max_grid_points"`
	FFTThreshold  int     `mapstructure:"fft_threshold"`
	Workers       int     `mapstructure:"workers"`
	Separator     string  `mapstructure:"separator"`
	Elapsed       float64 `mapstructure:"elapsed"`
	MomentsOnly   bool    `mapstructure:"moments_only"`
	RollModel     string  `mapstructure:"roll_model"`
}

// RollConfig holds the damage-roll ranges
type RollConfig struct {
	DirectLow  float64 `mapstructure:"direct_low"`
	DirectHigh float64 `mapstructure:"direct_high"`
	DoTLow     float64 `mapstructure:"dot_low"`
	DoTHigh    float64 `mapstructure:"dot_high"`
}

// InputConfig holds rotation table settings
type InputConfig struct {
	Path   string `mapstructure:"path"`
	Strict bool   `mapstructure:"strict"`
}

// CharacterConfig holds the stats used to fill in potency rows, hit-type
// probabilities and l_c. An empty role disables potency conversion.
type CharacterConfig struct {
	Role string `mapstructure:"role"`
	Job  string `mapstructure:"job"`
	// PetJob selects the pet defaults of a job, e.g. Astrologian.
	PetJob string      `mapstructure:"pet_job"`
	Stats  roles.Stats `mapstructure:"stats"`
}

// StorageConfig holds run persistence configuration
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	MaxRuns int    `mapstructure:"max_runs"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	Enabled        bool          `mapstructure:"enabled"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New returns a viper instance with defaults and environment overrides set up.
// Callers may bind flags to it before passing it to Decode.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range statKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return v, nil
}

// Decode unmarshals a viper instance into a Config.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Load reads configuration from file and environment variables. An empty path
// loads defaults and environment only.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return Decode(v)
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	def := rotation.DefaultOptions()

	// Engine defaults
	v.SetDefault("engine.action_delta", def.ActionStep)
	v.SetDefault("engine.rotation_delta", def.RotationStep)
	v.SetDefault("engine.tail_mass", def.Dist.TailMass)
	v.SetDefault("engine.max_grid_points", def.Dist.MaxPoints)
	v.SetDefault("engine.fft_threshold", def.Dist.FFTThreshold)
	v.SetDefault("engine.workers", 0)
	v.SetDefault("engine.separator", def.Separator)
	v.SetDefault("engine.elapsed", def.Elapsed)
	v.SetDefault("engine.moments_only", false)
	v.SetDefault("engine.roll_model", mixture.Lattice.String())

	// Roll defaults
	v.SetDefault("roll.direct_low", mixture.DefaultRollRange.Low)
	v.SetDefault("roll.direct_high", mixture.DefaultRollRange.High)
	v.SetDefault("roll.dot_low", mixture.DefaultRollRange.Low)
	v.SetDefault("roll.dot_high", mixture.DefaultRollRange.High)

	// Input defaults
	v.SetDefault("input.path", "")
	v.SetDefault("input.strict", false)

	// Character defaults
	v.SetDefault("character.role", "")
	v.SetDefault("character.job", "")
	v.SetDefault("character.pet_job", "")

	// Storage defaults
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.db_path", "./data/dmgvar.db")
	v.SetDefault("storage.max_runs", 200)

	// Telegram defaults
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Engine config
	if c.Engine.Elapsed <= 0 {
		return fmt.Errorf("engine.elapsed must be positive")
	}
	if !c.Engine.MomentsOnly {
		if c.Engine.ActionDelta <= 0 {
			return fmt.Errorf("engine.action_delta must be positive")
		}
		if c.Engine.RotationDelta < c.Engine.ActionDelta {
			return fmt.Errorf("engine.rotation_delta must be at least engine.action_delta")
		}
	}
	if c.Engine.TailMass < 0 || c.Engine.TailMass >= 1 {
		return fmt.Errorf("engine.tail_mass must be in [0, 1)")
	}
	if c.Engine.MaxGridPoints < 1 {
		return fmt.Errorf("engine.max_grid_points must be at least 1")
	}
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must not be negative")
	}
	if _, err := mixture.ParseModel(c.Engine.RollModel); err != nil {
		return fmt.Errorf("engine.roll_model: %w", err)
	}

	// Validate Roll config
	if c.Roll.DirectLow <= 0 || c.Roll.DirectHigh < c.Roll.DirectLow {
		return fmt.Errorf("roll.direct_low must be positive and not above roll.direct_high")
	}
	if c.Roll.DoTLow <= 0 || c.Roll.DoTHigh < c.Roll.DoTLow {
		return fmt.Errorf("roll.dot_low must be positive and not above roll.dot_high")
	}

	// Validate Character config
	if c.Character.Role != "" {
		if _, err := c.Character.Converter(); err != nil {
			return fmt.Errorf("character: %w", err)
		}
	}

	// Validate Storage config
	if c.Storage.Enabled && c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required when storage is enabled")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	// Validate Logging config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// RotationOptions returns the aggregation options described by the engine and
// roll sections.
func (c *Config) RotationOptions() (rotation.Options, error) {
	model, err := mixture.ParseModel(c.Engine.RollModel)
	if err != nil {
		return rotation.Options{}, err
	}
	return rotation.Options{
		Mixture: mixture.Options{
			Direct: mixture.RollRange{Low: c.Roll.DirectLow, High: c.Roll.DirectHigh},
			DoT:    mixture.RollRange{Low: c.Roll.DoTLow, High: c.Roll.DoTHigh},
			Model:  model,
		},
		Dist: dist.Options{
			TailMass:     c.Engine.TailMass,
			MaxPoints:    c.Engine.MaxGridPoints,
			FFTThreshold: c.Engine.FFTThreshold,
		},
		ActionStep:   c.Engine.ActionDelta,
		RotationStep: c.Engine.RotationDelta,
		Separator:    c.Engine.Separator,
		Elapsed:      c.Engine.Elapsed,
		Workers:      c.Engine.Workers,
		MomentsOnly:  c.Engine.MomentsOnly,
	}, nil
}

// Converter builds the potency converter. It returns nil when no role is set.
func (c *CharacterConfig) Converter() (roles.Converter, error) {
	if c.Role == "" {
		return nil, nil
	}
	stats := c.Stats
	if c.PetJob != "" {
		pet, ok := roles.PetDefaults[c.PetJob]
		if !ok {
			return nil, fmt.Errorf("unknown pet job %q", c.PetJob)
		}
		if stats.Pet != nil {
			pet.AttackPower = stats.Pet.AttackPower
		}
		if pet.AttackPower == 0 {
			pet.AttackPower = stats.MainStat
		}
		stats.Pet = &pet
	}
	return roles.New(c.Role, c.Job, stats)
}

// Rate returns the hit-rate stats, or nil when neither critical hit nor direct
// hit is configured.
func (c *CharacterConfig) Rate() *rate.Rate {
	if c.Stats.CriticalHit == 0 && c.Stats.DirectHit == 0 {
		return nil
	}
	return rate.New(c.Stats.CriticalHit, c.Stats.DirectHit)
}
