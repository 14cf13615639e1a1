package model

// DateFormat is the layout scene dates are exchanged in (the remote engine's yyyy-MM-dd)
const DateFormat = "2006-01-02"

// SentinelCollectionID is the harmonized Sentinel-2 surface reflectance catalog entry
const SentinelCollectionID = "COPERNICUS/S2_SR_HARMONIZED"

// CloudPropertyName is the per-scene cloud percentage metadata property
const CloudPropertyName = "CLOUDY_PIXEL_PERCENTAGE"

// DatePropertyName is the property each processed scene is tagged with, holding its date
const DatePropertyName = "data"

// DefaultCloudLimit is the cloud percentage threshold used when none is given
const DefaultCloudLimit = 15

// ReductionScale is the pixel size, in meters, used for regional statistics and exports
const ReductionScale = 10

// ExportCRS is the coordinate reference system GeoTIFF exports are projected to (SIRGAS 2000)
const ExportCRS = "EPSG:4674"

// FeatureIDPropertyName carries the ROI feature id through remote reductions
const FeatureIDPropertyName = "roi_id"
