package seed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geomark/mapview/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const london = `
camera:
  lat: 51.5007
  lng: -0.1246
  zoom: 14
users:
  - id: u1
    name: Ada
    avatarUrl: https://example.com/ada.png
    position: {lat: 51.501, lng: -0.125}
    followed: true
  - id: u2
    name: Grace
landmarks:
  - id: big-ben
    title: Big Ben
    description: Clock tower at the Palace of Westminster.
    url: https://en.wikipedia.org/wiki/Big_Ben
    position: {lat: 51.5007, lng: -0.1246}
    tags: [clock, tower]
  - title: London Eye
    position: {lat: 51.5033, lng: -0.1196}
`

func TestParse(t *testing.T) {
	f, err := Parse(strings.NewReader(london))
	require.NoError(t, err)

	cam, ok := f.Start()
	require.True(t, ok)
	assert.Equal(t, core.Camera{Center: core.Position{Lat: 51.5007, Lng: -0.1246}, Zoom: 14}, cam)

	require.Len(t, f.Users, 2)
	assert.Equal(t, "Ada", f.Users[0].Name)
	assert.True(t, f.Users[0].Followed)
	require.NotNil(t, f.Users[0].Position)
	assert.Nil(t, f.Users[1].Position)

	require.Len(t, f.Landmarks, 2)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Big_Ben", f.Landmarks[0].URL)
	assert.Equal(t, []string{"clock", "tower"}, f.Landmarks[0].Tags)
	assert.Equal(t, "London Eye", f.Landmarks[1].Key())
}

func TestParse_Empty(t *testing.T) {
	f, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	_, ok := f.Start()
	assert.False(t, ok)
	assert.Empty(t, f.Landmarks)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]string{
		"unknown field":      "landmarks:\n  - id: a\n    colour: red\n",
		"duplicate landmark": "landmarks:\n  - id: a\n  - id: a\n",
		"anonymous landmark": "landmarks:\n  - description: nameless\n",
		"duplicate user":     "users:\n  - id: u\n  - id: u\n",
		"user without id":    "users:\n  - name: Nobody\n",
		"not yaml":           "users: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(doc))
			assert.Error(t, err)
		})
	}

	_, err := Parse(strings.NewReader("landmarks:\n  - id: a\n  - id: a\n"))
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(london), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Landmarks, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
