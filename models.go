package main

import "time"

// File status values. Transitions form a strict DAG: uploaded -> processing ->
// (ready | failed). Never backward, never skipped on the happy path.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Supported input formats, derived from the uploaded filename's extension.
const (
	FormatShapefile = "shapefile"
	FormatGeoJSON   = "geojson"
	FormatGeoJSONL  = "geojsonl"
	FormatKML       = "kml"
	FormatGPX       = "gpx"
	FormatTopoJSON  = "topojson"
)

// FileRecord is the lifecycle anchor for one uploaded dataset.
type FileRecord struct {
	ID           string
	DisplayName  string
	InputFormat  string
	ByteSize     int64
	UploadedAt   time.Time
	Status       string
	DetectedCRS  *string
	StoredPath   string
	TableName    *string
	ErrorMessage *string
	IsPublic     bool
}

// DatasetColumn describes one user-visible property column of a ready
// dataset's per-dataset table.
type DatasetColumn struct {
	SourceID       string
	NormalizedName string
	OriginalName   string
	Ordinal        int
	LogicalType    string
}

// PublishedRegistration maps a globally unique slug to a file.
type PublishedRegistration struct {
	FileID      string
	Slug        string
	PublishedAt time.Time
}

// User is an administrative account.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// SessionRecord is an opaque, serialized session payload with an expiry.
type SessionRecord struct {
	ID         string
	Data       []byte
	ExpiresAt  time.Time
}
