package water

import (
	"encoding/json"
	"fmt"
	"strconv"

	"hydro-server/ee"
)

const (
	// Sentinel-2 ground resolution; one 10m x 10m pixel is 0.0001 km².
	HistogramScale = 10
	PixelAreaSqKm  = 0.0001

	// Histogram cap; bestEffort lets the service subsample past it.
	MaxPixels = 1e9

	// Band name the change raster's histogram is keyed under.
	HistogramBand = "constant"
)

// Stats holds per-class water change area in km².
type Stats struct {
	GainSqKm       float64 `json:"gain_sqkm"`
	LossSqKm       float64 `json:"loss_sqkm"`
	PersistentSqKm float64 `json:"persistent_sqkm"`
}

// HistogramExpr builds the frequency-histogram reduction of the change raster
// over the region at the fixed 10m scale.
func HistogramExpr(change ee.Image, roi interface{}) *ee.Expr {
	return change.ReduceRegion(ee.FrequencyHistogram(), roi, HistogramScale, MaxPixels, true)
}

// AreaStats converts a raw histogram result into per-class areas. A class
// absent from the histogram reports exactly zero.
func AreaStats(raw json.RawMessage) (Stats, error) {
	var bands map[string]map[string]float64
	if err := json.Unmarshal(raw, &bands); err != nil {
		return Stats{}, fmt.Errorf("bad histogram result %q: %v", string(raw), err)
	}
	hist := bands[HistogramBand]

	area := func(class int) float64 {
		return hist[strconv.Itoa(class)] * PixelAreaSqKm
	}
	return Stats{
		GainSqKm:       area(ClassGain),
		LossSqKm:       area(ClassLoss),
		PersistentSqKm: area(ClassPersistent),
	}, nil
}
