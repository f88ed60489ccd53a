// Package boundary loads neighborhood polygons from GeoJSON, answers
// point-in-neighborhood queries and joins mood statistics onto the features
// for choropleth rendering.
package boundary
