package gee

import (
	"github.com/venicegeo/bf-vegindex/model"
	"github.com/venicegeo/bf-vegindex/roi"
	"github.com/venicegeo/geojson-go/geojson"
)

// Variable names used for mapped functions; nested functions count down
const (
	mappingVar      = "_MAPPING_VAR_0_0"
	outerMappingVar = "_MAPPING_VAR_1_0"
)

// Cloud mask thresholds on the Sentinel-2 L2A quality bands
const (
	maxCloudProbability = 5
	maxSnowProbability  = 5
	sclCloudShadow      = 3
	sclCirrus           = 10
	reflectanceScale    = 10000
)

// Recipe builds the Sentinel-2 vegetation-index pipeline on a Graph
type Recipe struct {
	g   *Graph
	roi Node
}

// NewRecipe starts a graph whose spatial filters and clips use region
func NewRecipe(region *roi.ROI) *Recipe {
	g := NewGraph()
	return &Recipe{g: g, roi: featureCollection(g, region)}
}

// Graph exposes the underlying graph
func (r *Recipe) Graph() *Graph {
	return r.g
}

// Expression finalizes the graph with result as its value
func (r *Recipe) Expression(result Node) *Expression {
	return &Expression{expr: r.g.Expression(result)}
}

func featureCollection(g *Graph, region *roi.ROI) Node {
	features := make([]Node, 0, len(region.Features()))
	for _, feature := range region.Features() {
		properties := map[string]interface{}{}
		for key, value := range feature.Properties {
			properties[key] = value
		}
		properties[model.FeatureIDPropertyName] = feature.IDStr()
		features = append(features, g.Invoke("Feature", map[string]Node{
			"geometry": geometry(g, feature.Geometry),
			"metadata": g.Constant(properties),
		}))
	}
	return g.Invoke("Collection", map[string]Node{"features": g.Array(features...)})
}

func geometry(g *Graph, geom interface{}) Node {
	switch typed := geom.(type) {
	case *geojson.MultiPolygon:
		return g.Invoke("GeometryConstructors.MultiPolygon", map[string]Node{
			"coordinates": g.Constant(typed.Coordinates),
			"evenOdd":     g.Constant(true),
		})
	case *geojson.Polygon:
		return g.Invoke("GeometryConstructors.Polygon", map[string]Node{
			"coordinates": g.Constant(typed.Coordinates),
			"evenOdd":     g.Constant(true),
		})
	}
	return g.Constant(nil)
}

// Collection returns the filtered, cloud-masked collection with index bands added
func (r *Recipe) Collection(query model.SceneQuery) Node {
	g := r.g
	collection := g.Invoke("ImageCollection.load", map[string]Node{
		"id": g.Constant(model.SentinelCollectionID),
	})
	collection = r.filter(collection, g.Invoke("Filter.intersects", map[string]Node{
		"leftField":  g.Constant(".all"),
		"rightValue": r.roi,
	}))
	collection = r.filter(collection, g.Invoke("Filter.dateRangeContains", map[string]Node{
		"leftValue": g.Invoke("DateRange", map[string]Node{
			"start": g.Constant(query.StartString()),
			"end":   g.Constant(query.EndString()),
		}),
		"rightField": g.Constant("system:time_start"),
	}))
	collection = r.filter(collection, g.Invoke("Filter.lessThan", map[string]Node{
		"leftField":  g.Constant(model.CloudPropertyName),
		"rightValue": g.Constant(query.CloudLimit),
	}))
	collection = r.mapImages(collection, r.maskClouds)
	return r.mapImages(collection, r.addIndices)
}

// SelectDates keeps the scenes whose date property is in dates, oldest first
func (r *Recipe) SelectDates(collection Node, dates []string) Node {
	g := r.g
	selected := r.filter(collection, g.Invoke("Filter.listContains", map[string]Node{
		"leftValue":  g.Constant(dates),
		"rightField": g.Constant(model.DatePropertyName),
	}))
	return g.Invoke("Collection.limit", map[string]Node{
		"collection": selected,
		"key":        g.Constant("system:time_start"),
		"ascending":  g.Constant(true),
	})
}

func (r *Recipe) filter(collection Node, filter Node) Node {
	return r.g.Invoke("Collection.filter", map[string]Node{
		"collection": collection,
		"filter":     filter,
	})
}

func (r *Recipe) mapImages(collection Node, body func(image Node) Node) Node {
	g := r.g
	return g.Invoke("Collection.map", map[string]Node{
		"collection":    collection,
		"baseAlgorithm": g.Function(body(g.Argument(mappingVar)), mappingVar),
	})
}

func (r *Recipe) constant(value float64) Node {
	return r.g.Invoke("Image.constant", map[string]Node{"value": r.g.Constant(value)})
}

func (r *Recipe) binary(op string, left, right Node) Node {
	return r.g.Invoke("Image."+op, map[string]Node{"image1": left, "image2": right})
}

func (r *Recipe) selectBands(image Node, bands ...string) Node {
	return r.g.Invoke("Image.select", map[string]Node{
		"input":         image,
		"bandSelectors": r.g.Constant(bands),
	})
}

func (r *Recipe) rename(image Node, name string) Node {
	return r.g.Invoke("Image.rename", map[string]Node{
		"input": image,
		"names": r.g.Constant([]string{name}),
	})
}

// maskClouds drops pixels with cloud or snow probability of 5% or more, cirrus
// and cloud shadow, scales reflectance to 0..1 and clips to the ROI
func (r *Recipe) maskClouds(image Node) Node {
	g := r.g
	cloud := r.binary("lt", r.selectBands(image, "MSK_CLDPRB"), r.constant(maxCloudProbability))
	snow := r.binary("lt", r.selectBands(image, "MSK_SNWPRB"), r.constant(maxSnowProbability))
	scl := r.selectBands(image, "SCL")
	shadow := r.binary("eq", scl, r.constant(sclCloudShadow))
	cirrus := r.binary("eq", scl, r.constant(sclCirrus))

	mask := r.binary("and", cloud, snow)
	mask = r.binary("and", mask, r.binary("neq", cirrus, r.constant(1)))
	mask = r.binary("and", mask, r.binary("neq", shadow, r.constant(1)))

	masked := g.Invoke("Image.updateMask", map[string]Node{"image": image, "mask": mask})
	scaled := r.binary("divide", masked, r.constant(reflectanceScale))
	clipped := g.Invoke("Image.clip", map[string]Node{
		"input":    r.selectBands(scaled, "B.*"),
		"geometry": r.roi,
	})
	return g.Invoke("Element.copyProperties", map[string]Node{
		"destination": clipped,
		"source":      image,
		"properties":  g.Invoke("Element.propertyNames", map[string]Node{"element": image}),
	})
}

// addIndices appends ndvi, ndre and evi bands and tags the scene with its date
func (r *Recipe) addIndices(image Node) Node {
	g := r.g
	ndvi := r.rename(r.normalizedDifference(image, "B8", "B4"), string(model.NDVI))
	ndre := r.rename(r.normalizedDifference(image, "B8", "B5"), string(model.NDRE))
	evi := r.rename(r.enhancedVegetationIndex(image), string(model.EVI))

	withBands := image
	for _, band := range []Node{ndvi, ndre, evi} {
		withBands = g.Invoke("Image.addBands", map[string]Node{"dstImg": withBands, "srcImg": band})
	}
	return g.Invoke("Element.set", map[string]Node{
		"object": withBands,
		"key":    g.Constant(model.DatePropertyName),
		"value":  r.dateString(image),
	})
}

func (r *Recipe) normalizedDifference(image Node, first, second string) Node {
	return r.g.Invoke("Image.normalizedDifference", map[string]Node{
		"input":     image,
		"bandNames": r.g.Constant([]string{first, second}),
	})
}

// enhancedVegetationIndex is 2.5 * (N - R) / (N + 6R - 7.5B + 1) (Huete 2002)
func (r *Recipe) enhancedVegetationIndex(image Node) Node {
	nir := r.selectBands(image, "B8")
	red := r.selectBands(image, "B4")
	blue := r.selectBands(image, "B2")

	numerator := r.binary("subtract", nir, red)
	denominator := r.binary("add", nir, r.binary("multiply", r.constant(6), red))
	denominator = r.binary("subtract", denominator, r.binary("multiply", r.constant(7.5), blue))
	denominator = r.binary("add", denominator, r.constant(1))
	return r.binary("multiply", r.constant(2.5), r.binary("divide", numerator, denominator))
}

func (r *Recipe) dateString(image Node) Node {
	g := r.g
	return g.Invoke("Date.format", map[string]Node{
		"date":   g.Invoke("Image.date", map[string]Node{"image": image}),
		"format": g.Constant("yyyy-MM-dd"),
	})
}

// SceneTable evaluates to the date, cloud percentage and id arrays of collection
func (r *Recipe) SceneTable(collection Node) Node {
	g := r.g
	aggregate := func(property string) Node {
		return g.Invoke("AggregateFeatureCollection.array", map[string]Node{
			"collection": collection,
			"property":   g.Constant(property),
		})
	}
	return g.Dictionary(map[string]Node{
		"dates":  aggregate(model.DatePropertyName),
		"clouds": aggregate(model.CloudPropertyName),
		"ids":    aggregate("system:id"),
	})
}

// RegionMeans evaluates to a flat feature collection holding, per scene and
// ROI feature, the mean of every index band and the scene date
func (r *Recipe) RegionMeans(collection Node) Node {
	g := r.g
	indexBands := make([]string, len(model.AllIndices))
	for i, index := range model.AllIndices {
		indexBands[i] = string(index)
	}

	image := g.Argument(outerMappingVar)
	stats := g.Invoke("Image.reduceRegions", map[string]Node{
		"image":      r.selectBands(image, indexBands...),
		"collection": r.roi,
		"reducer":    g.Invoke("Reducer.mean", map[string]Node{}),
		"scale":      g.Constant(model.ReductionScale),
	})
	feature := g.Argument(mappingVar)
	tagged := g.Invoke("Collection.map", map[string]Node{
		"collection": stats,
		"baseAlgorithm": g.Function(g.Invoke("Element.set", map[string]Node{
			"object": feature,
			"key":    g.Constant(model.DatePropertyName),
			"value":  r.dateString(image),
		}), mappingVar),
	})
	perScene := g.Invoke("Collection.map", map[string]Node{
		"collection":    collection,
		"baseAlgorithm": g.Function(tagged, outerMappingVar),
	})
	return g.Invoke("Collection.flatten", map[string]Node{"collection": perScene})
}

// Mosaic flattens collection into one image, most recent scene on top
func (r *Recipe) Mosaic(collection Node, bands ...string) Node {
	mosaic := r.g.Invoke("ImageCollection.mosaic", map[string]Node{"collection": collection})
	if len(bands) == 0 {
		return mosaic
	}
	return r.selectBands(mosaic, bands...)
}

// First returns the first scene of collection restricted to bands
func (r *Recipe) First(collection Node, bands ...string) Node {
	first := r.g.Invoke("Collection.first", map[string]Node{"collection": collection})
	return r.selectBands(first, bands...)
}

// Outline renders the ROI boundaries as an image
func (r *Recipe) Outline() Node {
	return r.g.Invoke("Collection.draw", map[string]Node{
		"collection":  r.roi,
		"color":       r.g.Constant("000000"),
		"strokeWidth": r.g.Constant(2),
	})
}
