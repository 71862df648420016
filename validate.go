package main

import (
	"archive/zip"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb/geojson"
)

// validateShapefileArchive requires at least one .shp entry and at least one
// .shp base name with matching .shx and .dbf entries, same stem, case
// insensitive. Side-effect-free aside from reading.
func validateShapefileArchive(path string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return errUnableToReadZip
	}
	defer r.Close()

	var leaves []string
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		leaves = append(leaves, strings.ToLower(filepath.Base(f.Name)))
	}

	hasSHP := false
	for _, name := range leaves {
		if strings.HasSuffix(name, ".shp") {
			hasSHP = true
			break
		}
	}
	if !hasSHP {
		return errMissingSHP
	}

	for _, name := range leaves {
		base, ok := strings.CutSuffix(name, ".shp")
		if !ok {
			continue
		}
		if containsString(leaves, base+".shx") && containsString(leaves, base+".dbf") {
			return nil
		}
	}
	return errShapefileSetIncomplete
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

var (
	errUnableToReadZip        = badRequest("Unable to read zip file")
	errMissingSHP             = badRequest("Missing .shp file in zip")
	errShapefileSetIncomplete = badRequest("Shapefile zip must include .shp/.shx/.dbf with the same name")
	errInvalidGeoJSON         = badRequest("Invalid GeoJSON")
	errInvalidKML             = badRequest("Invalid KML")
	errInvalidGPX             = badRequest("Invalid GPX")
	errInvalidTopoJSON        = badRequest("Invalid TopoJSON")
)

// validateGeoJSON requires the root of the file to parse as a JSON object.
// Deeper structural checks (valid FeatureCollection shape, geometry types)
// are deferred to the Import Worker, which relies on the spatial driver.
func validateGeoJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errInvalidGeoJSON
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return errInvalidGeoJSON
	}
	// Best-effort structural check via orb/geojson; a parse failure here
	// doesn't necessarily mean the root isn't an object (e.g. a bare
	// Geometry rather than a FeatureCollection), so only a hard JSON
	// failure above is fatal.
	_, _ = geojson.UnmarshalFeatureCollection(data)
	return nil
}

// validateGeoJSONL requires every non-blank line to parse as a JSON object.
func validateGeoJSONL(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errInvalidGeoJSON
	}
	lines := strings.Split(string(data), "\n")
	sawOne := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			return errInvalidGeoJSON
		}
		sawOne = true
	}
	if !sawOne {
		return errInvalidGeoJSON
	}
	return nil
}

// validateKML requires a well-formed XML document rooted at <kml>.
func validateKML(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errInvalidKML
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err != nil {
			return errInvalidKML
		}
		if start, ok := tok.(xml.StartElement); ok {
			if strings.EqualFold(start.Name.Local, "kml") {
				return nil
			}
			return errInvalidKML
		}
	}
}

// validateGPX requires a well-formed XML document rooted at <gpx>.
func validateGPX(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errInvalidGPX
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	for {
		tok, err := dec.Token()
		if err != nil {
			return errInvalidGPX
		}
		if start, ok := tok.(xml.StartElement); ok {
			if strings.EqualFold(start.Name.Local, "gpx") {
				return nil
			}
			return errInvalidGPX
		}
	}
}

// validateTopoJSON requires a JSON object whose "type" field is "Topology".
func validateTopoJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errInvalidTopoJSON
	}
	var doc struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errInvalidTopoJSON
	}
	if doc.Type != "Topology" {
		return errInvalidTopoJSON
	}
	return nil
}

// validateByFormat dispatches to the correct pre-ingest check for format.
func validateByFormat(path, format string) error {
	switch format {
	case FormatShapefile:
		return validateShapefileArchive(path)
	case FormatGeoJSON:
		return validateGeoJSON(path)
	case FormatGeoJSONL:
		return validateGeoJSONL(path)
	case FormatKML:
		return validateKML(path)
	case FormatGPX:
		return validateGPX(path)
	case FormatTopoJSON:
		return validateTopoJSON(path)
	default:
		return badRequest("Unsupported format")
	}
}
