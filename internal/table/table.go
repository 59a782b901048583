// Package table loads rotation tables from CSV, YAML or JSON.
//
// Two row schemas are accepted and may be mixed in one table:
//   - damage rows carry d2 directly, with p (or p_n, p_c, p_d, p_cd), l_c, buffs and is_dot;
//   - potency rows carry potency, damage_type and main_stat_add, and are converted to
//     d2 by the loader's role converter.
//
// When a row omits the hit-type probabilities or l_c, they are derived from the
// loader's Rate, optionally shifted by crit_rate_buff / dh_rate_buff or forced by
// guaranteed. Values are not range checked unless Strict is set.
package table

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/rate"
	"github.com/rewired-gh/dmgvar/internal/roles"
)

// ErrMissingColumn is returned when a row lacks a value the engine needs.
var ErrMissingColumn = errors.New("missing required column")

// Format is a table file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unsupported table format %q: use .csv, .yaml, .yml or .json", filepath.Ext(path))
}

// Loader turns table rows into actions.
type Loader struct {
	// Converter converts potency rows. Nil rejects potency rows.
	Converter roles.Converter
	// Rate fills in missing probabilities and l_c. Nil requires them on every row.
	Rate *rate.Rate
	// Strict validates every resolved action.
	Strict bool
}

// LoadFile reads a table file, choosing the format from its extension.
func (l *Loader) LoadFile(path string) ([]models.Action, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open table: %w", err)
	}
	defer f.Close()

	var actions []models.Action
	switch format {
	case FormatCSV:
		actions, err = l.ReadCSV(f)
	case FormatYAML:
		actions, err = l.ReadYAML(f)
	case FormatJSON:
		actions, err = l.ReadJSON(f)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return actions, nil
}

// Row is one table row before resolution. Absent optional values are nil.
type Row struct {
	ActionName string    `json:"action_name" yaml:"action_name"`
	BaseAction string    `json:"base_action" yaml:"base_action"`
	Hits       *int      `json:"n" yaml:"n"`
	P          []float64 `json:"p" yaml:"p"`
	PNormal    *float64  `json:"p_n" yaml:"p_n"`
	PCritical  *float64  `json:"p_c" yaml:"p_c"`
	PDirect    *float64  `json:"p_d" yaml:"p_d"`
	PCritDir   *float64  `json:"p_cd" yaml:"p_cd"`
	D2         *float64  `json:"d2" yaml:"d2"`
	LC         *int      `json:"l_c" yaml:"l_c"`
	Buffs      Buffs     `json:"buffs" yaml:"buffs"`
	IsDoT      *bool     `json:"is_dot" yaml:"is_dot"`

	Potency     *int   `json:"potency" yaml:"potency"`
	DamageType  string `json:"damage_type" yaml:"damage_type"`
	MainStatAdd int    `json:"main_stat_add" yaml:"main_stat_add"`

	CritRateBuff float64 `json:"crit_rate_buff" yaml:"crit_rate_buff"`
	DHRateBuff   float64 `json:"dh_rate_buff" yaml:"dh_rate_buff"`
	Guaranteed   string  `json:"guaranteed" yaml:"guaranteed"`
}

func missing(column, action string) error {
	return fmt.Errorf("%w: %s (action %q)", ErrMissingColumn, column, action)
}

// Resolve turns rows into actions.
func (l *Loader) Resolve(rows []Row) ([]models.Action, error) {
	actions := make([]models.Action, 0, len(rows))
	for i, row := range rows {
		a, err := l.resolve(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func (l *Loader) resolve(row Row) (models.Action, error) {
	name := strings.TrimSpace(row.ActionName)
	if name == "" {
		return models.Action{}, missing("action_name", "")
	}
	if row.Hits == nil {
		return models.Action{}, missing("n", name)
	}

	p, err := l.probabilities(row, name)
	if err != nil {
		return models.Action{}, err
	}
	lc, err := l.critMultiplier(row, name)
	if err != nil {
		return models.Action{}, err
	}

	var a models.Action
	switch {
	case row.D2 != nil:
		a = models.Action{
			Name:           name,
			BaseAction:     strings.TrimSpace(row.BaseAction),
			Hits:           *row.Hits,
			P:              p,
			D2:             *row.D2,
			CritMultiplier: lc,
			Buffs:          append([]float64(nil), row.Buffs...),
			IsDoT:          row.IsDoT != nil && *row.IsDoT,
		}
	case row.Potency != nil:
		a, err = l.convert(row, name, p, lc)
		if err != nil {
			return models.Action{}, err
		}
	default:
		return models.Action{}, missing("d2 or potency", name)
	}

	if l.Strict {
		if err := a.Validate(); err != nil {
			return models.Action{}, err
		}
	}
	return a, nil
}

func (l *Loader) probabilities(row Row, name string) ([models.NumHitTypes]float64, error) {
	var p [models.NumHitTypes]float64
	switch {
	case len(row.P) > 0:
		if len(row.P) != models.NumHitTypes {
			return p, fmt.Errorf("action %q: p must have %d values, got %d", name, models.NumHitTypes, len(row.P))
		}
		copy(p[:], row.P)
		return p, nil
	case row.PNormal != nil && row.PCritical != nil && row.PDirect != nil && row.PCritDir != nil:
		return [models.NumHitTypes]float64{*row.PNormal, *row.PCritical, *row.PDirect, *row.PCritDir}, nil
	case l.Rate != nil:
		g, err := rate.ParseGuarantee(row.Guaranteed)
		if err != nil {
			return p, fmt.Errorf("action %q: %w", name, err)
		}
		return l.Rate.HitTypeProbabilities(row.CritRateBuff, row.DHRateBuff, g), nil
	}
	return p, missing("p", name)
}

func (l *Loader) critMultiplier(row Row, name string) (int, error) {
	switch {
	case row.LC != nil:
		return *row.LC, nil
	case l.Rate != nil:
		return l.Rate.CritMultiplier(), nil
	}
	return 0, missing("l_c", name)
}

func (l *Loader) convert(row Row, name string, p [models.NumHitTypes]float64, lc int) (models.Action, error) {
	if l.Converter == nil {
		return models.Action{}, fmt.Errorf("action %q: potency rows need character stats", name)
	}
	if row.DamageType == "" {
		return models.Action{}, missing("damage_type", name)
	}
	kind, err := models.ParseDamageType(row.DamageType)
	if err != nil {
		return models.Action{}, fmt.Errorf("action %q: %w", name, err)
	}

	pa := models.PotencyAction{
		Name:           name,
		BaseAction:     strings.TrimSpace(row.BaseAction),
		Hits:           *row.Hits,
		P:              p,
		Potency:        *row.Potency,
		DamageType:     kind,
		MainStatAdd:    row.MainStatAdd,
		CritMultiplier: lc,
		Buffs:          row.Buffs,
	}
	d2, err := l.Converter.D2(pa.Potency, pa.DamageType, pa.MainStatAdd)
	if err != nil {
		return models.Action{}, fmt.Errorf("action %q: %w", name, err)
	}
	return pa.WithD2(d2), nil
}
