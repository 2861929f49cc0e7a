package water

import "hydro-server/ee"

const (
	ClassGain       = 1
	ClassLoss       = 2
	ClassPersistent = 3
)

// ChangeVis renders gain green, loss red, persistent water blue.
var ChangeVis = ee.VisParams{
	Min:     ClassGain,
	Max:     ClassPersistent,
	Palette: []string{"00FF00", "FF0000", "0000FF"},
}

// ChangeClass maps a (before, after) pair of binary water states to a change
// class. Pairs not listed here stay masked out of the change raster.
type ChangeClass struct {
	Before int
	After  int
	Class  int
}

// ChangeClasses must stay pairwise disjoint in (Before, After): the raster is
// built by sequential rewrites and overlapping conditions would make the
// result depend on table order.
var ChangeClasses = []ChangeClass{
	{Before: 0, After: 1, Class: ClassGain},
	{Before: 1, After: 0, Class: ClassLoss},
	{Before: 1, After: 1, Class: ClassPersistent},
}

// DetectChange compares two binary water masks pixel-wise. Pixels with no
// water in either period end up masked, not zero.
func DetectChange(t1, t2 ee.Image) ee.Image {
	out := ee.ConstantImage(0)
	for _, c := range ChangeClasses {
		cond := t1.Eq(float64(c.Before)).And(t2.Eq(float64(c.After)))
		out = out.Where(cond, float64(c.Class))
	}
	return out.SelfMask()
}
