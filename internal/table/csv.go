package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rewired-gh/dmgvar/internal/models"
)

// listSeparator separates values inside one CSV cell, e.g. buffs "1.1;1.05".
const listSeparator = ";"

// ReadCSV reads a table with a header row. Column names are case-insensitive,
// unknown columns are ignored and empty cells count as absent.
func (l *Loader) ReadCSV(r io.Reader) ([]models.Action, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return l.Resolve(rows)
}

// ParseCSV reads CSV records into rows without resolving them.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["action_name"]; !ok {
		return nil, fmt.Errorf("%w: action_name", ErrMissingColumn)
	}
	_, hasD2 := columns["d2"]
	_, hasPotency := columns["potency"]
	if !hasD2 && !hasPotency {
		return nil, fmt.Errorf("%w: d2 or potency", ErrMissingColumn)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		c := cells{record: record, columns: columns}
		if c.blank() {
			continue
		}
		row, err := c.row()
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// cells looks up values of one record by column name.
type cells struct {
	record  []string
	columns map[string]int
}

func (c cells) get(name string) string {
	i, ok := c.columns[name]
	if !ok || i >= len(c.record) {
		return ""
	}
	return strings.TrimSpace(c.record[i])
}

func (c cells) blank() bool {
	for _, v := range c.record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func (c cells) row() (Row, error) {
	row := Row{
		ActionName: c.get("action_name"),
		BaseAction: c.get("base_action"),
		DamageType: c.get("damage_type"),
		Guaranteed: c.get("guaranteed"),
	}

	var err error
	if row.Hits, err = c.optInt("n"); err != nil {
		return row, err
	}
	if row.P, err = c.list("p"); err != nil {
		return row, err
	}
	if row.PNormal, err = c.optFloat("p_n"); err != nil {
		return row, err
	}
	if row.PCritical, err = c.optFloat("p_c"); err != nil {
		return row, err
	}
	if row.PDirect, err = c.optFloat("p_d"); err != nil {
		return row, err
	}
	if row.PCritDir, err = c.optFloat("p_cd"); err != nil {
		return row, err
	}
	if row.D2, err = c.optFloat("d2"); err != nil {
		return row, err
	}
	if row.LC, err = c.optInt("l_c"); err != nil {
		return row, err
	}
	if row.Buffs, err = c.list("buffs"); err != nil {
		return row, err
	}
	if row.IsDoT, err = c.optBool("is_dot"); err != nil {
		return row, err
	}
	if row.Potency, err = c.optInt("potency"); err != nil {
		return row, err
	}

	if v, err := c.optInt("main_stat_add"); err != nil {
		return row, err
	} else if v != nil {
		row.MainStatAdd = *v
	}
	if v, err := c.optFloat("crit_rate_buff"); err != nil {
		return row, err
	} else if v != nil {
		row.CritRateBuff = *v
	}
	if v, err := c.optFloat("dh_rate_buff"); err != nil {
		return row, err
	} else if v != nil {
		row.DHRateBuff = *v
	}
	return row, nil
}

func (c cells) optFloat(name string) (*float64, error) {
	s := c.get(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return &v, nil
}

// optInt accepts integral floats such as "3.0", which spreadsheet exports produce.
func (c cells) optInt(name string) (*int, error) {
	s := c.get(name)
	if s == "" {
		return nil, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return &v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) {
		return nil, fmt.Errorf("invalid %s %q: must be an integer", name, s)
	}
	v := int(f)
	return &v, nil
}

func (c cells) optBool(name string) (*bool, error) {
	s := c.get(name)
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return &v, nil
}

func (c cells) list(name string) ([]float64, error) {
	s := c.get(name)
	if s == "" {
		return nil, nil
	}
	v, err := parseList(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return v, nil
}

func isNullToken(s string) bool {
	switch strings.ToLower(s) {
	case "none", "null", "~":
		return true
	}
	return false
}

// parseList reads "1.1;1.05", "[1.1, 1.05]" or "None". Null tokens are skipped.
func parseList(s string) ([]float64, error) {
	s = strings.Trim(s, "[]")
	s = strings.ReplaceAll(s, ",", listSeparator)
	var out []float64
	for _, part := range strings.Split(s, listSeparator) {
		part = strings.TrimSpace(part)
		if part == "" || isNullToken(part) {
			continue
		}
		v, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
