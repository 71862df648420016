package main

import (
	"context"
	"fmt"
	"strings"
)

const maxTileZoom = 22

// validateTileCoords rejects coordinates outside the valid XYZ tile range.
func validateTileCoords(z, x, y int) error {
	if z < 0 || x < 0 || y < 0 || z > maxTileZoom {
		return badRequest(msgInvalidTileCoords)
	}
	if x >= 1<<uint(z) || y >= 1<<uint(z) {
		return badRequest(msgInvalidTileCoords)
	}
	return nil
}

// defaultSourceCRS is used when a dataset's CRS could not be detected at
// import time. See the "CRS default" decision in DESIGN.md.
const defaultSourceCRS = "EPSG:4326"

// buildMVTSelectSQL composes the MVT-producing query for one dataset. Bind
// params in order: z, x, y, z, x, y — once for the geometry projection, once
// for the intersects predicate, both referring to the same tile.
func buildMVTSelectSQL(tableName, sourceCRS string, cols []DatasetColumn) string {
	members := make([]string, 0, len(cols)+2)
	members = append(members, fmt.Sprintf(
		`geom := ST_AsMVTGeom(ST_Transform(geom, '%s', 'EPSG:3857', always_xy := true), ST_Extent(ST_TileEnvelope(?, ?, ?)), 4096, 256, true)`,
		sourceCRS))
	members = append(members, `fid := fid`)
	for _, c := range cols {
		members = append(members, fmt.Sprintf(`"%s" := "%s"`,
			escapeIdentifier(c.OriginalName), escapeIdentifier(c.NormalizedName)))
	}
	structExpr := "struct_pack(" + strings.Join(members, ", ") + ")"

	sql := fmt.Sprintf(
		`SELECT ST_AsMVT(feature, 'layer', 4096, 'geom', 'fid') FROM (
			SELECT %s AS feature FROM "%s"
			WHERE ST_Intersects(ST_Transform(geom, '%s', 'EPSG:3857', always_xy := true), ST_TileEnvelope(?, ?, ?))
		)`, structExpr, escapeIdentifier(tableName), sourceCRS)

	return sql
}

// generateTile executes the tile SQL for one dataset and returns its MVT
// bytes. A NULL or empty blob is a valid empty tile, not an error.
func generateTile(ctx context.Context, g *Gateway, tableName, sourceCRS string, cols []DatasetColumn, z, x, y int) ([]byte, error) {
	if sourceCRS == "" {
		sourceCRS = defaultSourceCRS
	}
	sql := buildMVTSelectSQL(tableName, sourceCRS, cols)

	var tile []byte
	row := g.QueryRow(ctx, sql, z, x, y, z, x, y)
	if err := row.Scan(&tile); err != nil {
		return nil, fmt.Errorf("tile generation failed: %w", err)
	}
	if tile == nil {
		return []byte{}, nil
	}
	return tile, nil
}
