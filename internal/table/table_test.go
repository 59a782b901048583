package table

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/dmgvar/internal/models"
	"github.com/rewired-gh/dmgvar/internal/rate"
	"github.com/rewired-gh/dmgvar/internal/roles"
)

func healer(t *testing.T) roles.Converter {
	t.Helper()
	pet := roles.PetDefaults["Astrologian"]
	pet.AttackPower = 4800
	conv, err := roles.New("healer", "", roles.Stats{
		MainStat:      4800,
		Strength:      400,
		Determination: 2400,
		Speed:         700,
		CriticalHit:   2000,
		DirectHit:     1250,
		WeaponDamage:  146,
		Delay:         3.44,
		Pet:           &pet,
	})
	require.NoError(t, err)
	return conv
}

const damageCSV = `action_name,base_action,n,p_n,p_c,p_d,p_cd,d2,l_c,buffs,is_dot
Glare III-buffA,Glare III,3,0.7,0.1,0.15,0.05,15000,1550,1.1;1.05,false
# comment lines are skipped
Dia,,10,0.7,0.1,0.15,0.05,4000.0,1550,,true

Glare III-buffB,,2.0,0.7,0.1,0.15,0.05,15000,1550,1.1,
`

func TestReadCSVDamageRows(t *testing.T) {
	l := &Loader{Strict: true}
	actions, err := l.ReadCSV(strings.NewReader(damageCSV))
	require.NoError(t, err)
	require.Len(t, actions, 3)

	glare := actions[0]
	assert.Equal(t, "Glare III-buffA", glare.Name)
	assert.Equal(t, "Glare III", glare.BaseAction)
	assert.Equal(t, 3, glare.Hits)
	assert.Equal(t, [4]float64{0.7, 0.1, 0.15, 0.05}, glare.P)
	assert.Equal(t, 15000.0, glare.D2)
	assert.Equal(t, 1550, glare.CritMultiplier)
	assert.Equal(t, []float64{1.1, 1.05}, glare.Buffs)
	assert.False(t, glare.IsDoT)

	dia := actions[1]
	assert.True(t, dia.IsDoT)
	assert.Empty(t, dia.Buffs)
	assert.Equal(t, 4000.0, dia.D2)

	assert.Equal(t, 2, actions[2].Hits)
	assert.Equal(t, []float64{1.1}, actions[2].Buffs)
}

func TestReadCSVMissingColumns(t *testing.T) {
	l := &Loader{}

	_, err := l.ReadCSV(strings.NewReader("name,n,d2\nx,1,100\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = l.ReadCSV(strings.NewReader("action_name,n\nx,1\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	// Without a Rate the probabilities and l_c are required.
	_, err = l.ReadCSV(strings.NewReader("action_name,n,d2\nx,1,100\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = l.ReadCSV(strings.NewReader("action_name,n,d2,p,l_c\nx,,100,0.7;0.1;0.1;0.1,1500\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestReadCSVInvalidValues(t *testing.T) {
	l := &Loader{}
	tests := []string{
		"action_name,n,d2,p,l_c\nx,1.5,100,0.7;0.1;0.1;0.1,1500\n",
		"action_name,n,d2,p,l_c\nx,1,abc,0.7;0.1;0.1;0.1,1500\n",
		"action_name,n,d2,p,l_c\nx,1,100,0.7;0.3,1500\n",
		"action_name,n,d2,p,l_c,is_dot\nx,1,100,0.7;0.1;0.1;0.1,1500,maybe\n",
	}
	for _, input := range tests {
		_, err := l.ReadCSV(strings.NewReader(input))
		assert.Error(t, err, input)
	}
}

func TestReadCSVEmpty(t *testing.T) {
	l := &Loader{}
	actions, err := l.ReadCSV(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestRateFillsProbabilities(t *testing.T) {
	l := &Loader{Rate: rate.New(2000, 1250)}
	input := `action_name,n,d2,crit_rate_buff,guaranteed
Glare III,1,15000,,
Glare III-chain,1,15000,0.1,
Glare III-crit,1,15000,,critical
`
	actions, err := l.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, 1513, actions[0].CritMultiplier)
	assert.InDeltaSlice(t, []float64{0.699732, 0.136268, 0.137268, 0.026732}, actions[0].P[:], 1e-12)
	assert.InDeltaSlice(t, []float64{0.616132, 0.219868, 0.120868, 0.043132}, actions[1].P[:], 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0.836, 0, 0.164}, actions[2].P[:], 1e-12)

	_, err = l.ReadCSV(strings.NewReader("action_name,n,d2,guaranteed\nx,1,100,always\n"))
	assert.Error(t, err)
}

func TestPotencyRows(t *testing.T) {
	l := &Loader{Converter: healer(t), Rate: rate.New(2000, 1250), Strict: true}
	input := `action_name,n,potency,damage_type,main_stat_add
Glare III,1,310,direct,
Glare III-pot,1,310,direct,300
Dia,10,75,magic-dot,
`
	actions, err := l.ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, actions, 3)

	assert.Equal(t, 21229.0, actions[0].D2)
	assert.Equal(t, 22633.0, actions[1].D2)
	assert.Equal(t, 5202.0, actions[2].D2)
	assert.True(t, actions[2].IsDoT)
	assert.False(t, actions[0].IsDoT)
	assert.Equal(t, 1513, actions[0].CritMultiplier)

	// Potency rows need a converter and a damage type.
	_, err = (&Loader{Rate: rate.New(2000, 1250)}).ReadCSV(strings.NewReader(input))
	assert.Error(t, err)

	_, err = l.ReadCSV(strings.NewReader("action_name,n,potency\nx,1,100\n"))
	assert.ErrorIs(t, err, ErrMissingColumn)

	_, err = l.ReadCSV(strings.NewReader("action_name,n,potency,damage_type\nx,1,100,healing\n"))
	assert.Error(t, err)
}

func TestStrictValidation(t *testing.T) {
	input := "action_name,n,d2,p,l_c\nx,1,100,0.5;0.1;0.1;0.1,1500\n"

	_, err := (&Loader{Strict: true}).ReadCSV(strings.NewReader(input))
	assert.Error(t, err)

	actions, err := (&Loader{}).ReadCSV(strings.NewReader(input))
	require.NoError(t, err)
	assert.InDelta(t, 0.8, actions[0].ProbabilitySum(), 1e-12)
}

func TestReadYAML(t *testing.T) {
	list := `
- action_name: Glare III-buffA
  base_action: Glare III
  n: 3
  p: [0.7, 0.1, 0.15, 0.05]
  d2: 15000
  l_c: 1550
  buffs: [1.1, 1.05]
- action_name: Dia
  n: 10
  p_n: 0.7
  p_c: 0.1
  p_d: 0.15
  p_cd: 0.05
  d2: 4000
  l_c: 1550
  buffs: 1.1
  is_dot: true
`
	l := &Loader{Strict: true}
	actions, err := l.ReadYAML(strings.NewReader(list))
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, "Glare III", actions[0].BaseAction)
	assert.Equal(t, []float64{1.1, 1.05}, actions[0].Buffs)
	assert.Equal(t, []float64{1.1}, actions[1].Buffs)
	assert.True(t, actions[1].IsDoT)
	assert.Equal(t, [4]float64{0.7, 0.1, 0.15, 0.05}, actions[1].P)

	mapping := `
actions:
  - action_name: Glare III
    n: 1
    d2: 15000
    buffs: "1.1;1.2"
`
	actions, err = (&Loader{Rate: rate.New(2000, 1250)}).ReadYAML(strings.NewReader(mapping))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.InDeltaSlice(t, []float64{1.1, 1.2}, actions[0].Buffs, 1e-12)
	assert.Equal(t, 1513, actions[0].CritMultiplier)

	_, err = l.ReadYAML(strings.NewReader("just a string"))
	assert.Error(t, err)

	actions, err = l.ReadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestReadJSON(t *testing.T) {
	array := `[
  {"action_name": "Glare III", "n": 2, "p": [0.7, 0.1, 0.15, 0.05], "d2": 15000, "l_c": 1550, "buffs": [1.1]},
  {"action_name": "Dia", "n": 10, "p": [0.7, 0.1, 0.15, 0.05], "d2": 4000, "l_c": 1550, "buffs": "1.05", "is_dot": true},
  {"action_name": "Assize", "n": 1, "p": [0.7, 0.1, 0.15, 0.05], "d2": 8000, "l_c": 1550, "buffs": 1.2}
]`
	l := &Loader{Strict: true}
	actions, err := l.ReadJSON(strings.NewReader(array))
	require.NoError(t, err)
	require.Len(t, actions, 3)
	assert.Equal(t, []float64{1.1}, actions[0].Buffs)
	assert.Equal(t, []float64{1.05}, actions[1].Buffs)
	assert.Equal(t, []float64{1.2}, actions[2].Buffs)
	assert.True(t, actions[1].IsDoT)

	object := `{"actions": [{"action_name": "Glare III", "n": 1, "p": [1, 0, 0, 0], "d2": 100, "l_c": 1500, "buffs": null}]}`
	actions, err = l.ReadJSON(strings.NewReader(object))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Empty(t, actions[0].Buffs)

	_, err = l.ReadJSON(strings.NewReader(`"nope"`))
	assert.Error(t, err)
	_, err = l.ReadJSON(strings.NewReader(`[{"action_name": "x", "n": 1, "buffs": true}]`))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	l := &Loader{}

	files := map[string]string{
		"rotation.csv":  "action_name,n,p,d2,l_c\nGlare III,1,1;0;0;0,100,1500\n",
		"rotation.yml":  "- {action_name: Glare III, n: 1, p: [1, 0, 0, 0], d2: 100, l_c: 1500}\n",
		"rotation.json": `[{"action_name": "Glare III", "n": 1, "p": [1, 0, 0, 0], "d2": 100, "l_c": 1500}]`,
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

		actions, err := l.LoadFile(path)
		require.NoError(t, err, name)
		require.Len(t, actions, 1, name)
		assert.Equal(t, models.Action{
			Name:           "Glare III",
			Hits:           1,
			P:              [4]float64{1, 0, 0, 0},
			D2:             100,
			CritMultiplier: 1500,
			Buffs:          []float64{},
		}, normalizeBuffs(actions[0]), name)
	}

	_, err := l.LoadFile(filepath.Join(dir, "rotation.txt"))
	assert.Error(t, err)

	_, err = l.LoadFile(filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingColumn))
}

func normalizeBuffs(a models.Action) models.Action {
	if a.Buffs == nil {
		a.Buffs = []float64{}
	}
	return a
}

func TestFormatFromPath(t *testing.T) {
	tests := map[string]Format{
		"a.csv":  FormatCSV,
		"a.CSV":  FormatCSV,
		"a.yaml": FormatYAML,
		"a.yml":  FormatYAML,
		"a.json": FormatJSON,
	}
	for path, want := range tests {
		got, err := FormatFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := FormatFromPath("a.xlsx")
	assert.Error(t, err)
}

func TestNullBuffs(t *testing.T) {
	tests := []struct {
		name  string
		read  func(*Loader, string) ([]models.Action, error)
		input string
	}{
		{"csv None", readCSV, "action_name,n,p,d2,l_c,buffs\nGlare III,1,1;0;0;0,1000,1500,None\n"},
		{"csv bracketed None", readCSV, "action_name,n,p,d2,l_c,buffs\nGlare III,1,1;0;0;0,1000,1500,[None]\n"},
		{"csv null among values", readCSV, "action_name,n,p,d2,l_c,buffs\nGlare III,1,1;0;0;0,1000,1500,none;1.1\n"},
		{"json null entry", readJSON, `[{"action_name": "Glare III", "n": 1, "p": [1, 0, 0, 0], "d2": 1000, "l_c": 1500, "buffs": [null]}]`},
		{"json null among values", readJSON, `[{"action_name": "Glare III", "n": 1, "p": [1, 0, 0, 0], "d2": 1000, "l_c": 1500, "buffs": [null, 1.1]}]`},
		{"json None string", readJSON, `[{"action_name": "Glare III", "n": 1, "p": [1, 0, 0, 0], "d2": 1000, "l_c": 1500, "buffs": "None"}]`},
		{"yaml null entry", readYAML, "- action_name: Glare III\n  n: 1\n  p: [1, 0, 0, 0]\n  d2: 1000\n  l_c: 1500\n  buffs: [~]\n"},
		{"yaml None scalar", readYAML, "- action_name: Glare III\n  n: 1\n  p: [1, 0, 0, 0]\n  d2: 1000\n  l_c: 1500\n  buffs: None\n"},
		{"yaml null among values", readYAML, "- action_name: Glare III\n  n: 1\n  p: [1, 0, 0, 0]\n  d2: 1000\n  l_c: 1500\n  buffs: [null, 1.1]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actions, err := tt.read(&Loader{}, tt.input)
			require.NoError(t, err)
			require.Len(t, actions, 1)
			for _, b := range actions[0].Buffs {
				assert.NotZero(t, b)
			}
			if strings.Contains(tt.name, "among values") {
				assert.Equal(t, []float64{1.1}, actions[0].Buffs)
				assert.InDelta(t, 1.1, actions[0].BuffProduct(), 1e-12)
			} else {
				assert.Empty(t, actions[0].Buffs)
				assert.Equal(t, 1.0, actions[0].BuffProduct())
			}
		})
	}
}

func readCSV(l *Loader, s string) ([]models.Action, error)  { return l.ReadCSV(strings.NewReader(s)) }
func readJSON(l *Loader, s string) ([]models.Action, error) { return l.ReadJSON(strings.NewReader(s)) }
func readYAML(l *Loader, s string) ([]models.Action, error) { return l.ReadYAML(strings.NewReader(s)) }
