package catalog

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	beer, ok := c.Lookup("beer")
	require.True(t, ok)
	assert.InDelta(t, 2.5, beer.Units(), 1e-9)
	_, ok = c.Lookup("milk")
	assert.False(t, ok)
	assert.Equal(t, "beer", c.Drinks()[0].Kind)
	assert.Len(t, c.Drinks(), 5)
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/catalog.json",
		[]byte(`[{"kind":"lager","volume_ml":330,"abv":4},{"kind":"port","volume_ml":50,"abv":20}]`), 0644))

	c, err := Load(fs, "/catalog.json")
	require.NoError(t, err)
	kinds := make([]string, 0)
	for _, d := range c.Drinks() {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []string{"lager", "port"}, kinds)
	port, ok := c.Lookup("port")
	require.True(t, ok)
	assert.InDelta(t, 1.0, port.Units(), 1e-9)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	for name, content := range map[string]string{
		"/empty.json":     `[]`,
		"/garbage.json":   `{"kind":`,
		"/duplicate.json": `[{"kind":"ale","volume_ml":500,"abv":5},{"kind":"ale","volume_ml":330,"abv":4}]`,
		"/volume.json":    `[{"kind":"ale","volume_ml":0,"abv":5}]`,
		"/abv.json":       `[{"kind":"ale","volume_ml":500,"abv":101}]`,
		"/nokind.json":    `[{"kind":" ","volume_ml":500,"abv":5}]`,
	} {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
		_, err := Load(fs, name)
		assert.Error(t, err, name)
	}
	_, err := Load(fs, "/missing.json")
	assert.Error(t, err)
}

func TestDrinksReturnsCopy(t *testing.T) {
	c := Default()
	d := c.Drinks()
	d[0].Kind = "changed"
	_, ok := c.Lookup("beer")
	assert.True(t, ok)
	assert.Equal(t, "beer", c.Drinks()[0].Kind)
}

func TestNormalize(t *testing.T) {
	for in, want := range map[string]string{
		"beer":       "beer",
		" Pale Ale ": "pale_ale",
		"paleAle":    "pale_ale",
		"red-wine":   "red_wine",
	} {
		assert.Equal(t, want, Normalize(in), in)
	}

	c, err := New([]Drink{{Kind: "Pale Ale", VolumeML: 568, ABV: 4}})
	require.NoError(t, err)
	d, ok := c.Lookup("paleAle")
	require.True(t, ok)
	assert.Equal(t, "pale_ale", d.Kind)

	_, err = New([]Drink{{Kind: "Pale Ale", VolumeML: 568, ABV: 4}, {Kind: "pale_ale", VolumeML: 330, ABV: 4}})
	assert.Error(t, err, "kinds equal after normalization are duplicates")
}
