// Package mood classifies service-request text into a fixed set of moods and
// maps moods to their display glyphs and palette colors.
package mood
