package water

import (
	"context"
	"encoding/json"
	"fmt"

	"hydro-server/ee"

	log "github.com/sirupsen/logrus"
)

const (
	CollectionID = "COPERNICUS/S2_SR_HARMONIZED"

	// Images with a cloudy-pixel percentage at or above this are skipped.
	MaxCloudPercent = 30

	// QA60 quality band bits marking opaque cloud and cirrus pixels.
	cloudBitMask  = 1 << 10
	cirrusBitMask = 1 << 11

	reflectanceScale = 10000
)

// Mosaic is the result of a composite fetch. Found is false when the filtered
// collection held no images for the period; that is the expected empty case,
// distinct from a fetch error.
type Mosaic struct {
	Image ee.Image
	Found bool
}

func filteredCollection(roi interface{}, start, end string) ee.ImageCollection {
	return ee.LoadCollection(CollectionID).
		FilterBounds(roi).
		FilterDate(start, end).
		FilterLt("CLOUDY_PIXEL_PERCENTAGE", MaxCloudPercent)
}

func maskClouds(img ee.Image) ee.Image {
	qa := img.Select("QA60")
	mask := qa.BitwiseAnd(cloudBitMask).Eq(0).
		And(qa.BitwiseAnd(cirrusBitMask).Eq(0))
	return img.UpdateMask(mask).Divide(reflectanceScale)
}

// FetchMosaic builds a cloud-filtered median composite of the region for the
// date range. The only remote call is the collection size probe; the
// composite itself stays a lazy handle.
func FetchMosaic(ctx context.Context, svc ee.Service, roi interface{}, start, end string) (Mosaic, error) {
	col := filteredCollection(roi, start, end)

	raw, err := svc.ComputeValue(ctx, col.Size())
	if err != nil {
		log.Errorf("Error fetching Sentinel data: %v", err)
		return Mosaic{}, err
	}
	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return Mosaic{}, fmt.Errorf("bad collection size %q: %v", string(raw), err)
	}
	if count == 0 {
		return Mosaic{}, nil
	}

	img := col.Map(maskClouds).Median().Clip(roi)
	return Mosaic{Image: img, Found: true}, nil
}
