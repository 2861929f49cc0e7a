package ee

// Image is a lazy handle on a server-side raster. Methods build new graph
// nodes; nothing touches the network.
type Image struct {
	expr *Expr
}

// Expr exposes the underlying graph node for serialization.
func (i Image) Expr() *Expr {
	return i.expr
}

// ImageCollection is a lazy handle on a server-side image collection.
type ImageCollection struct {
	expr *Expr
}

func LoadCollection(id string) ImageCollection {
	return ImageCollection{Invoke("ImageCollection.load", map[string]*Expr{
		"id": Constant(id),
	})}
}

// FilterBounds restricts the collection to images intersecting the geometry.
func (c ImageCollection) FilterBounds(geometry interface{}) ImageCollection {
	filter := Invoke("Filter.intersects", map[string]*Expr{
		"leftField":  Constant(".all"),
		"rightValue": Constant(geometry),
	})
	return c.filter(filter)
}

func (c ImageCollection) FilterDate(start, end string) ImageCollection {
	filter := Invoke("Filter.date", map[string]*Expr{
		"start": Constant(start),
		"end":   Constant(end),
	})
	return c.filter(filter)
}

// FilterLt keeps images whose named property is strictly below value.
func (c ImageCollection) FilterLt(property string, value float64) ImageCollection {
	filter := Invoke("Filter.lessThan", map[string]*Expr{
		"leftField":  Constant(property),
		"rightValue": Constant(value),
	})
	return c.filter(filter)
}

func (c ImageCollection) filter(filter *Expr) ImageCollection {
	return ImageCollection{Invoke("Collection.filter", map[string]*Expr{
		"collection": c.expr,
		"filter":     filter,
	})}
}

// Size evaluates to the number of images in the collection.
func (c ImageCollection) Size() *Expr {
	return Invoke("Collection.size", map[string]*Expr{
		"collection": c.expr,
	})
}

// Map applies fn to every image in the collection. fn runs once, locally, to
// build the function body; the per-image application happens server-side.
func (c ImageCollection) Map(fn func(Image) Image) ImageCollection {
	body := fn(Image{ArgRef("img")})
	return ImageCollection{Invoke("Collection.map", map[string]*Expr{
		"collection":    c.expr,
		"baseAlgorithm": Lambda([]string{"img"}, body.expr),
	})}
}

// Median reduces the collection to a single per-pixel median image.
func (c ImageCollection) Median() Image {
	return Image{Invoke("reduce.median", map[string]*Expr{
		"collection": c.expr,
	})}
}

func ConstantImage(value float64) Image {
	return Image{Invoke("Image.constant", map[string]*Expr{
		"value": Constant(value),
	})}
}

func (i Image) Select(band string) Image {
	return Image{Invoke("Image.select", map[string]*Expr{
		"input":         i.expr,
		"bandSelectors": Constant([]string{band}),
	})}
}

func (i Image) BitwiseAnd(mask int) Image {
	return Image{Invoke("Image.bitwiseAnd", map[string]*Expr{
		"image1": i.expr,
		"image2": ConstantImage(float64(mask)).expr,
	})}
}

func (i Image) Eq(value float64) Image {
	return Image{Invoke("Image.eq", map[string]*Expr{
		"image1": i.expr,
		"image2": ConstantImage(value).expr,
	})}
}

func (i Image) And(other Image) Image {
	return Image{Invoke("Image.and", map[string]*Expr{
		"image1": i.expr,
		"image2": other.expr,
	})}
}

func (i Image) Gt(value float64) Image {
	return Image{Invoke("Image.gt", map[string]*Expr{
		"image1": i.expr,
		"image2": ConstantImage(value).expr,
	})}
}

func (i Image) UpdateMask(mask Image) Image {
	return Image{Invoke("Image.updateMask", map[string]*Expr{
		"image": i.expr,
		"mask":  mask.expr,
	})}
}

// SelfMask masks the image by its own non-zero values.
func (i Image) SelfMask() Image {
	return i.UpdateMask(i)
}

func (i Image) Divide(value float64) Image {
	return Image{Invoke("Image.divide", map[string]*Expr{
		"image1": i.expr,
		"image2": ConstantImage(value).expr,
	})}
}

func (i Image) Clip(geometry interface{}) Image {
	return Image{Invoke("Image.clip", map[string]*Expr{
		"input":    i.expr,
		"geometry": Constant(geometry),
	})}
}

// NormalizedDifference computes (b1 - b2) / (b1 + b2) over the named bands.
func (i Image) NormalizedDifference(b1, b2 string) Image {
	return Image{Invoke("Image.normalizedDifference", map[string]*Expr{
		"input":     i.expr,
		"bandNames": Constant([]string{b1, b2}),
	})}
}

func (i Image) Rename(name string) Image {
	return Image{Invoke("Image.rename", map[string]*Expr{
		"input": i.expr,
		"names": Constant([]string{name}),
	})}
}

// Where rewrites pixels of the image to value wherever test is non-zero.
func (i Image) Where(test Image, value float64) Image {
	return Image{Invoke("Image.where", map[string]*Expr{
		"input": i.expr,
		"test":  test.expr,
		"value": Constant(value),
	})}
}

// Reducer is a lazy handle on a server-side aggregation.
type Reducer struct {
	expr *Expr
}

func FrequencyHistogram() Reducer {
	return Reducer{Invoke("Reducer.frequencyHistogram", nil)}
}

// ReduceRegion aggregates the image's pixels over the geometry at the given
// scale in meters. With bestEffort the service may subsample rather than fail
// when the region exceeds maxPixels.
func (i Image) ReduceRegion(r Reducer, geometry interface{}, scale float64, maxPixels float64, bestEffort bool) *Expr {
	return Invoke("Image.reduceRegion", map[string]*Expr{
		"image":      i.expr,
		"reducer":    r.expr,
		"geometry":   Constant(geometry),
		"scale":      Constant(scale),
		"maxPixels":  Constant(maxPixels),
		"bestEffort": Constant(bestEffort),
	})
}
