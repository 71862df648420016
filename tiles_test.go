package main

import (
	"strings"
	"testing"
)

func TestValidateTileCoords(t *testing.T) {
	testCases := []struct {
		name    string
		z, x, y int
		wantErr bool
	}{
		{"origin", 0, 0, 0, false},
		{"valid deep zoom", 10, 500, 500, false},
		{"max zoom", 22, 0, 0, false},
		{"zoom too high", 23, 0, 0, true},
		{"negative zoom", -1, 0, 0, true},
		{"x out of range", 2, 4, 0, true},
		{"y out of range", 2, 0, 4, true},
		{"negative x", 2, -1, 0, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateTileCoords(tc.z, tc.x, tc.y)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestBuildMVTSelectSQL(t *testing.T) {
	cols := []DatasetColumn{
		{NormalizedName: "name", OriginalName: "Name", Ordinal: 1, LogicalType: "VARCHAR"},
		{NormalizedName: "pop", OriginalName: "Population", Ordinal: 2, LogicalType: "BIGINT"},
	}
	sql := buildMVTSelectSQL("layer_abc123", "EPSG:4326", cols)

	for _, want := range []string{
		`ST_AsMVT(feature, 'layer', 4096, 'geom', 'fid')`,
		`"layer_abc123"`,
		`"Name" := "name"`,
		`"Population" := "pop"`,
		"fid := fid",
		"ST_TileEnvelope(?, ?, ?)",
		"ST_Intersects",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("generated SQL missing %q:\n%s", want, sql)
		}
	}

	// Exactly two placeholder triples: one in the geometry projection, one
	// in the WHERE predicate.
	if n := strings.Count(sql, "?"); n != 6 {
		t.Errorf("expected 6 bound parameters, found %d", n)
	}
}

func TestBuildMVTSelectSQLEscapesQuotesInOriginalName(t *testing.T) {
	cols := []DatasetColumn{
		{NormalizedName: "weird", OriginalName: `a "quoted" key`, Ordinal: 1, LogicalType: "VARCHAR"},
	}
	sql := buildMVTSelectSQL("layer_x", "EPSG:4326", cols)
	if !strings.Contains(sql, `"a ""quoted"" key" := "weird"`) {
		t.Errorf("expected escaped identifier in SQL:\n%s", sql)
	}
}
