package water

import "hydro-server/ee"

// DefaultThreshold is the NDWI cutoff above which a pixel counts as water.
const DefaultThreshold = 0.0

// NDWI computes the normalized difference of the green and near-infrared
// bands.
func NDWI(img ee.Image) ee.Image {
	return img.NormalizedDifference("B3", "B8").Rename("NDWI")
}

// Classify thresholds the NDWI into a binary water mask.
func Classify(img ee.Image, threshold float64) ee.Image {
	return NDWI(img).Gt(threshold).Rename("water")
}
