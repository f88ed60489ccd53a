package domain

import (
	"fmt"
	"strings"
	"time"
)

const defaultRecordTitle = "311 Item"

// Point is a GeoJSON-style coordinate pair attached to a record.
type Point struct {
	Type        string    `json:"type,omitempty"`
	Coordinates []float64 `json:"coordinates" validate:"required"`
}

// Record is one service request as returned by the open-data feed.
// Every field except UpdatedDatetime is optional upstream.
type Record struct {
	Category          string `json:"category,omitempty"`
	RequestType       string `json:"request_type,omitempty"`
	StatusDescription string `json:"status_description,omitempty"`
	Status            string `json:"status,omitempty"`

	// Upstream publishes the neighborhood under two different column names.
	// NeighborhoodName resolves them in a fixed order.
	BoundaryNeighborhood string `json:"neighborhoods_sffind_boundaries,omitempty"`
	Neighborhood         string `json:"neighborhood,omitempty"`

	Point *Point `json:"point,omitempty" validate:"omitempty"`

	UpdatedDatetime string `json:"updated_datetime" validate:"required,isotime"`

	ServiceRequestID       string `json:"service_request_id,omitempty"`
	ServiceRequestParentID string `json:"service_request_parent_id,omitempty"`
}

// RecordFields lists the dataset columns selected for a Record, in query order.
var RecordFields = []string{
	"category",
	"request_type",
	"status_description",
	"status",
	"neighborhoods_sffind_boundaries",
	"neighborhood",
	"point",
	"updated_datetime",
	"service_request_id",
	"service_request_parent_id",
}

// NormalizeName trims and lowercases a neighborhood name.
func NormalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NeighborhoodName returns the normalized neighborhood, trying the boundary
// column first and the plain neighborhood column second. Empty means unresolved.
func (r Record) NeighborhoodName() string {
	if name := NormalizeName(r.BoundaryNeighborhood); name != "" {
		return name
	}
	return NormalizeName(r.Neighborhood)
}

// Text returns the lowercased classification input: category, request type,
// status description and status joined by single blanks, skipping empty fields.
func (r Record) Text() string {
	parts := make([]string, 0, 4)
	for _, f := range []string{r.Category, r.RequestType, r.StatusDescription, r.Status} {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Title picks a human-readable label: request type, category, status description,
// then a generic fallback.
func (r Record) Title() string {
	for _, f := range []string{r.RequestType, r.Category, r.StatusDescription} {
		if f != "" {
			return f
		}
	}
	return defaultRecordTitle
}

// RequestID returns the record identifier, preferring the request over its parent.
func (r Record) RequestID() string {
	if r.ServiceRequestID != "" {
		return r.ServiceRequestID
	}
	return r.ServiceRequestParentID
}

// UpdatedAt parses UpdatedDatetime. Floating timestamps are read in loc.
func (r Record) UpdatedAt(loc *time.Location) (time.Time, error) {
	return ParseTimestamp(r.UpdatedDatetime, loc)
}

// Floating layouts carry no zone; SODA emits them for floating_timestamp columns.
var floatingLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts RFC 3339 timestamps and zone-less ISO-8601 timestamps,
// the latter interpreted in loc (UTC when loc is nil).
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range floatingLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
}

// FormatFloating renders t in loc without a zone suffix, matching the dataset's
// floating timestamp columns.
func FormatFloating(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02T15:04:05.000")
}
