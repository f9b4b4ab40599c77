package catalog

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/elliotchance/orderedmap/v2"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stoewer/go-strcase"
)

const maxCatalogSize = 1 << 20

// Drink describes one serving of a drink kind.
type Drink struct {
	Kind     string  `json:"kind"`
	VolumeML float64 `json:"volume_ml"`
	ABV      float64 `json:"abv"` // percent
}

// Units returns UK alcohol units of one serving.
func (d Drink) Units() float64 {
	return d.VolumeML * d.ABV / 1000
}

// Normalize maps a drink kind to its catalog key: "Pale Ale" and "paleAle" both become "pale_ale".
func Normalize(kind string) string {
	return strcase.SnakeCase(strings.TrimSpace(kind))
}

func (d Drink) validate() error {
	if strings.TrimSpace(d.Kind) == "" {
		return errors.New("empty drink kind")
	}
	if d.VolumeML <= 0 {
		return errors.Errorf("drink %q: non-positive volume %v", d.Kind, d.VolumeML)
	}
	if d.ABV < 0 || d.ABV > 100 {
		return errors.Errorf("drink %q: ABV %v out of range [0, 100]", d.Kind, d.ABV)
	}
	return nil
}

// Catalog is an immutable set of drinks keyed by kind.
type Catalog struct {
	drinks *orderedmap.OrderedMap[string, Drink]
}

func New(drinks []Drink) (*Catalog, error) {
	c := &Catalog{drinks: orderedmap.NewOrderedMap[string, Drink]()}
	for _, d := range drinks {
		if err := d.validate(); err != nil {
			return nil, err
		}
		d.Kind = Normalize(d.Kind)
		if !c.drinks.Set(d.Kind, d) {
			return nil, errors.Errorf("duplicate drink kind %q", d.Kind)
		}
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New([]Drink{
		{Kind: "beer", VolumeML: 500, ABV: 5},
		{Kind: "wine", VolumeML: 175, ABV: 12},
		{Kind: "spirit", VolumeML: 25, ABV: 40},
		{Kind: "cocktail", VolumeML: 200, ABV: 10},
		{Kind: "cider", VolumeML: 500, ABV: 4.5},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a JSON array of drinks from path.
func Load(fs afero.Fs, path string) (*Catalog, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open catalog file")
	}
	defer func() { _ = f.Close() }()
	var drinks []Drink
	if err := json.NewDecoder(io.LimitReader(f, maxCatalogSize)).Decode(&drinks); err != nil {
		return nil, errors.Wrapf(err, "failed to decode catalog file '%s'", path)
	}
	if len(drinks) == 0 {
		return nil, errors.Errorf("catalog file '%s' has no drinks", path)
	}
	c, err := New(drinks)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid catalog file '%s'", path)
	}
	return c, nil
}

func (c *Catalog) Lookup(kind string) (Drink, bool) {
	return c.drinks.Get(Normalize(kind))
}

// Drinks returns the drinks in their definition order.
func (c *Catalog) Drinks() []Drink {
	out := make([]Drink, 0, c.drinks.Len())
	for el := c.drinks.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}
