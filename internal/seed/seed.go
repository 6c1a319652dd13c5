// Package seed loads demo users and landmarks from a YAML file.
//
//	camera:
//	  lat: 51.5007
//	  lng: -0.1246
//	  zoom: 14
//	users:
//	  - id: u1
//	    name: Ada
//	    position: {lat: 51.501, lng: -0.125}
//	landmarks:
//	  - id: big-ben
//	    title: Big Ben
//	    description: Clock tower at the Palace of Westminster.
//	    url: https://en.wikipedia.org/wiki/Big_Ben
//	    position: {lat: 51.5007, lng: -0.1246}
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/geomark/mapview/pkg/core"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateKey is returned when two users or two landmarks share an identity.
var ErrDuplicateKey = errors.New("duplicate key")

// Camera is the optional starting camera of a seed file.
type Camera struct {
	Lat  float64 `yaml:"lat"`
	Lng  float64 `yaml:"lng"`
	Zoom int     `yaml:"zoom"`
}

// File is a parsed seed file.
type File struct {
	Camera    *Camera         `yaml:"camera,omitempty"`
	Users     []core.User     `yaml:"users"`
	Landmarks []core.Landmark `yaml:"landmarks"`
}

// Start returns the seed camera, if one is set.
func (f *File) Start() (core.Camera, bool) {
	if f.Camera == nil {
		return core.Camera{}, false
	}
	return core.Camera{
		Center: core.Position{Lat: f.Camera.Lat, Lng: f.Camera.Lng},
		Zoom:   f.Camera.Zoom,
	}, true
}

// Load reads and parses the seed file at path.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading seed file: %w", err)
	}
	f, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a seed document. Unknown fields are rejected. Entities
// without a position are kept; the map skips them when rendering.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	users := make(map[string]struct{}, len(f.Users))
	for i, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("user %d has no id", i)
		}
		if _, ok := users[u.ID]; ok {
			return nil, fmt.Errorf("user %q: %w", u.ID, ErrDuplicateKey)
		}
		users[u.ID] = struct{}{}
	}

	landmarks := make(map[string]struct{}, len(f.Landmarks))
	for i, l := range f.Landmarks {
		if l.Key() == "" {
			return nil, fmt.Errorf("landmark %d has neither id nor title", i)
		}
		if _, ok := landmarks[l.Key()]; ok {
			return nil, fmt.Errorf("landmark %q: %w", l.Key(), ErrDuplicateKey)
		}
		landmarks[l.Key()] = struct{}{}
	}
	return &f, nil
}
