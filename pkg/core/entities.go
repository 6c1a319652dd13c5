// pkg/core/entities.go
package core

// Kind identifies which entity family a marker belongs to
type Kind int

const (
	KindUser Kind = iota
	KindLandmark
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindLandmark:
		return "landmark"
	default:
		return "unknown"
	}
}

// User represents a person shown on the map
type User struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	AvatarURL string    `json:"avatarUrl" yaml:"avatarUrl"`
	Position  *Position `json:"position,omitempty" yaml:"position,omitempty"`
	Followed  bool      `json:"followed" yaml:"followed"`
}

// Landmark represents a place shown on the map.
// Landmarks without a resolved Position are not rendered.
type Landmark struct {
	ID          string    `json:"id" yaml:"id"`
	Title       string    `json:"title" yaml:"title"`
	Description string    `json:"description" yaml:"description"`
	URL         string    `json:"url,omitempty" yaml:"url,omitempty"`
	Position    *Position `json:"position,omitempty" yaml:"position,omitempty"`
	Tags        []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Key returns the landmark identity, falling back to the title when no ID is set.
func (l Landmark) Key() string {
	if l.ID != "" {
		return l.ID
	}
	return l.Title
}
