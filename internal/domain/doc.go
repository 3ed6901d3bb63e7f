// Package domain models USGS earthquake data as displayed on the globe view.
//
// # Data Source
//
// Events come from the USGS Earthquake Hazards Program GeoJSON feeds, either a
// canned summary snapshot or an FDSN event query over a date range:
//
//	https://earthquake.usgs.gov/earthquakes/feed/v1.0/summary/all_<hour|day|week|month>.geojson
//	https://earthquake.usgs.gov/fdsnws/event/1/query?format=geojson&starttime=YYYY-MM-DD&endtime=YYYY-MM-DD
//
// Both return a FeatureCollection. Each feature carries:
//
//	properties.mag    magnitude, may be null
//	properties.place  human-readable place, may be null
//	properties.time   epoch milliseconds (UTC)
//	geometry.coordinates  [longitude, latitude, depth_km]; depth may be null
//
// Defaulting rules are applied once, when a feature is parsed into an [Event]:
// a null magnitude becomes 0, a null place becomes "Unknown" and a null depth
// stays absent. Nothing downstream re-applies them.
//
// # Ordering
//
// An [EventSet] is always sorted by magnitude, largest first. Index-based
// references into a set are only meaningful for the snapshot they were taken
// from; callers tag them with the snapshot generation.
//
// # Magnitude Bands
//
// Marker styling is a step function of magnitude over five bands:
//
//	≥ 5.0      #d7191c
//	[4.0, 5.0) #fdae61
//	[3.0, 4.0) #ffffbf
//	[2.0, 3.0) #a6d96a
//	< 2.0      #1a9641
//
// Marker pixel size grows linearly: 6 + 2×magnitude.
package domain
