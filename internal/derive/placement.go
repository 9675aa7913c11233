package derive

import (
	"github.com/and161185/villagekeeper/internal/errs"
	"github.com/and161185/villagekeeper/internal/gamedata"
	"github.com/and161185/villagekeeper/internal/model"
)

// Rect is an axis-aligned footprint in grid cells. X,Y is the top-left cell.
type Rect struct {
	X, Y, W, H uint32
}

// Footprint returns the rectangle t occupies when placed at pos.
func Footprint(t model.BuildingType, pos model.Position) Rect {
	w, h := gamedata.Footprint(t)
	return Rect{X: pos.X, Y: pos.Y, W: w, H: h}
}

// InBounds reports whether r lies fully inside a size x size grid.
func InBounds(r Rect, size uint32) bool {
	if r.W == 0 || r.H == 0 {
		return false
	}
	return uint64(r.X)+uint64(r.W) <= uint64(size) && uint64(r.Y)+uint64(r.H) <= uint64(size)
}

// Overlaps reports whether a and b share at least one cell.
func Overlaps(a, b Rect) bool {
	return uint64(a.X) < uint64(b.X)+uint64(b.W) && uint64(b.X) < uint64(a.X)+uint64(a.W) &&
		uint64(a.Y) < uint64(b.Y)+uint64(b.H) && uint64(b.Y) < uint64(a.Y)+uint64(a.H)
}

// CheckPlacement validates placing t at pos among buildings, ignoring the building with id
// exclude when exclude is non-nil. It returns the failed reason or "".
func CheckPlacement(buildings []model.Building, t model.BuildingType, pos model.Position, exclude *uint32) errs.Reason {
	if !t.Valid() {
		return errs.ReasonInvalidParams
	}
	r := Footprint(t, pos)
	if !InBounds(r, gamedata.GridSize) {
		return errs.ReasonOutOfBounds
	}
	for _, b := range buildings {
		if exclude != nil && b.ID == *exclude {
			continue
		}
		if Overlaps(r, Footprint(b.Type, b.Position)) {
			return errs.ReasonCollision
		}
	}
	return ""
}

// InDeployZone reports whether pos lies in the outer border of the battle map.
func InDeployZone(pos model.Position) bool {
	size, border := gamedata.BattleGridSize, gamedata.DeployBorder
	if pos.X >= size || pos.Y >= size {
		return false
	}
	return pos.X < border || pos.Y < border || pos.X >= size-border || pos.Y >= size-border
}
