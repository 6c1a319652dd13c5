package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelection_None(t *testing.T) {
	s := NoSelection()
	assert.True(t, s.IsNone())
	assert.Equal(t, "", s.Key())
	assert.Nil(t, s.Position())

	_, ok := s.User()
	assert.False(t, ok)
	_, ok = s.Landmark()
	assert.False(t, ok)
}

func TestSelection_User(t *testing.T) {
	pos := &Position{Lat: 1, Lng: 2}
	s := SelectUserEntity(User{ID: "u1", Name: "Ada", Position: pos})

	assert.Equal(t, SelectUser, s.Kind())
	assert.Equal(t, "user:u1", s.Key())
	assert.Equal(t, pos, s.Position())

	u, ok := s.User()
	assert.True(t, ok)
	assert.Equal(t, "Ada", u.Name)
	_, ok = s.Landmark()
	assert.False(t, ok)
}

func TestSelection_LandmarkKeyFallsBackToTitle(t *testing.T) {
	s := SelectLandmarkEntity(Landmark{Title: "Big Ben"})
	assert.Equal(t, "landmark:Big Ben", s.Key())
	assert.Nil(t, s.Position())
}

func TestPosition_Valid(t *testing.T) {
	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"origin", Position{}, true},
		{"bounds", Position{Lat: 90, Lng: -180}, true},
		{"lat too high", Position{Lat: 90.1}, false},
		{"lng too low", Position{Lng: -180.5}, false},
		{"nan", Position{Lat: math.NaN()}, false},
		{"inf", Position{Lng: math.Inf(1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pos.Valid())
		})
	}
}
