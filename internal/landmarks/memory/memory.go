// Package memory implements an in-process landmark catalog indexed by an R-tree.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/dhconnelly/rtreego"
	"github.com/geomark/mapview/internal/geo"
	"github.com/geomark/mapview/pkg/core"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50
	// point landmarks are indexed as tiny boxes
	pointTolerance = 1e-7
)

type item struct {
	landmark core.Landmark
	rect     rtreego.Rect
}

func (i *item) Bounds() rtreego.Rect {
	return i.rect
}

// Index is a thread-safe landmark catalog. Landmarks are keyed by Landmark.Key;
// adding a key twice replaces the earlier entry.
type Index struct {
	mu    sync.RWMutex
	tree  *rtreego.Rtree
	byKey map[string]*item
}

// New builds an index from the given landmarks. Landmarks without a valid
// position are skipped and counted in the returned number.
func New(landmarks []core.Landmark) (*Index, int) {
	idx := &Index{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		byKey: make(map[string]*item),
	}
	skipped := 0
	for _, l := range landmarks {
		if err := idx.Add(l); err != nil {
			skipped++
		}
	}
	return idx, skipped
}

// Add indexes one landmark.
func (idx *Index) Add(l core.Landmark) error {
	if err := geo.Validate(l.Position); err != nil {
		return fmt.Errorf("landmark %q: %w", l.Key(), err)
	}
	if l.Key() == "" {
		return fmt.Errorf("landmark has neither id nor title")
	}

	p := *l.Position
	l.Position = &p
	it := &item{
		landmark: l,
		rect:     rtreego.Point{p.Lat, p.Lng}.ToRect(pointTolerance),
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if old, ok := idx.byKey[l.Key()]; ok {
		idx.tree.Delete(old)
	}
	idx.byKey[l.Key()] = it
	idx.tree.Insert(it)
	return nil
}

// Remove drops a landmark by key and reports whether it existed.
func (idx *Index) Remove(key string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	it, ok := idx.byKey[key]
	if !ok {
		return false
	}
	delete(idx.byKey, key)
	return idx.tree.Delete(it)
}

// Len returns the number of indexed landmarks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree.Size()
}

// Nearby returns the landmarks within radiusMeters of center, nearest first.
func (idx *Index) Nearby(ctx context.Context, center core.Position, radiusMeters float64) ([]core.Landmark, error) {
	if err := geo.Validate(&center); err != nil {
		return nil, err
	}
	if radiusMeters < 0 {
		return nil, fmt.Errorf("negative radius %v", radiusMeters)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	box, err := geo.BoxAround(center, radiusMeters)
	if err != nil {
		return nil, err
	}
	lo, hi := box.Min(), box.Max()
	bounds, err := rtreego.NewRectFromPoints(
		rtreego.Point{lo.Lat, lo.Lng},
		rtreego.Point{hi.Lat, hi.Lng},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid search box: %w", err)
	}

	idx.mu.RLock()
	hits := idx.tree.SearchIntersect(bounds)
	idx.mu.RUnlock()

	out := make([]core.Landmark, 0, len(hits))
	for _, h := range hits {
		it, ok := h.(*item)
		if !ok {
			continue
		}
		if geo.DistanceMeters(center, *it.landmark.Position) > radiusMeters {
			continue
		}
		l := it.landmark
		p := *l.Position
		l.Position = &p
		out = append(out, l)
	}
	geo.SortByDistance(center, out)
	return out, nil
}
