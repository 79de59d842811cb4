// Package catalog holds the cities and districts the portal can be queried for.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/user/doorplate-crawler/internal/entity"
)

var (
	ErrUnknownCity     = errors.New("unknown city")
	ErrUnknownDistrict = errors.New("unknown district")
)

//go:embed districts.yaml
var districtsYAML []byte

// City is a municipality and its districts in portal order.
type City struct {
	Name      string            `yaml:"name" json:"name"`
	Code      string            `yaml:"code" json:"code"`
	Districts []entity.District `yaml:"districts" json:"districts"`
}

// Catalog is an immutable set of cities.
type Catalog struct {
	cities []City
}

// Default returns the embedded catalogue.
func Default() *Catalog {
	c, err := Parse(districtsYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded district catalogue is invalid: %v", err))
	}
	return c
}

// Parse reads a catalogue document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Cities []City `yaml:"cities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue: %w", err)
	}
	for _, c := range doc.Cities {
		if c.Code == "" || len(c.Districts) == 0 {
			return nil, fmt.Errorf("city %q has no code or districts", c.Name)
		}
	}
	return &Catalog{cities: doc.Cities}, nil
}

func (c *Catalog) Cities() []City {
	return c.cities
}

// City looks a city up by its portal code.
func (c *Catalog) City(code string) (City, error) {
	for _, city := range c.cities {
		if city.Code == code {
			return city, nil
		}
	}
	return City{}, fmt.Errorf("%w: %s", ErrUnknownCity, code)
}

func (c *Catalog) CityByName(name string) (City, error) {
	for _, city := range c.cities {
		if city.Name == name {
			return city, nil
		}
	}
	return City{}, fmt.Errorf("%w: %s", ErrUnknownCity, name)
}

// Select returns the named districts of a city in catalogue order. No names
// selects every district. Unknown names are rejected.
func (c *Catalog) Select(cityCode string, names []string) (City, []entity.District, error) {
	city, err := c.City(cityCode)
	if err != nil {
		return City{}, nil, err
	}
	if len(names) == 0 {
		return city, append([]entity.District(nil), city.Districts...), nil
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	var out []entity.District
	for _, d := range city.Districts {
		if wanted[d.Name] {
			out = append(out, d)
			delete(wanted, d.Name)
		}
	}
	for _, n := range names {
		if wanted[n] {
			return City{}, nil, fmt.Errorf("%w: %s", ErrUnknownDistrict, n)
		}
	}
	return city, out, nil
}
