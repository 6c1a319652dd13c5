// pkg/core/selection.go
package core

// SelectionKind is the discriminant of Selection
type SelectionKind int

const (
	SelectNone SelectionKind = iota
	SelectUser
	SelectLandmark
)

// Selection holds at most one selected entity. Exactly one of
// "user selected", "landmark selected" or "nothing selected" holds.
type Selection struct {
	kind     SelectionKind
	user     User
	landmark Landmark
}

// NoSelection returns the empty selection.
func NoSelection() Selection {
	return Selection{}
}

// SelectUserEntity returns a selection holding u.
func SelectUserEntity(u User) Selection {
	return Selection{kind: SelectUser, user: u}
}

// SelectLandmarkEntity returns a selection holding l.
func SelectLandmarkEntity(l Landmark) Selection {
	return Selection{kind: SelectLandmark, landmark: l}
}

func (s Selection) Kind() SelectionKind { return s.kind }

func (s Selection) IsNone() bool { return s.kind == SelectNone }

// User returns the selected user, if a user is selected.
func (s Selection) User() (User, bool) {
	return s.user, s.kind == SelectUser
}

// Landmark returns the selected landmark, if a landmark is selected.
func (s Selection) Landmark() (Landmark, bool) {
	return s.landmark, s.kind == SelectLandmark
}

// Key returns a stable identity for the selected entity, "" when nothing is selected.
func (s Selection) Key() string {
	switch s.kind {
	case SelectUser:
		return KindUser.String() + ":" + s.user.ID
	case SelectLandmark:
		return KindLandmark.String() + ":" + s.landmark.Key()
	default:
		return ""
	}
}

// Position returns the position of the selected entity, or nil.
func (s Selection) Position() *Position {
	switch s.kind {
	case SelectUser:
		return s.user.Position
	case SelectLandmark:
		return s.landmark.Position
	default:
		return nil
	}
}
