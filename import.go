package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// coercibleLogicalTypes are storage types kept as-is by type coercion.
var coercibleLogicalTypes = map[string]bool{
	"VARCHAR": true, "BOOLEAN": true, "DOUBLE": true, "FLOAT": true,
	"BIGINT": true, "INTEGER": true,
}

var narrowIntegerTypes = map[string]bool{"SMALLINT": true, "TINYINT": true}

var unsignedIntegerTypes = map[string]bool{
	"UBIGINT": true, "UINTEGER": true, "USMALLINT": true, "UTINYINT": true,
}

// runImportWorker drives fileID from "uploaded" to a terminal status. It is
// meant to be invoked from a detached goroutine (fire-and-forget); it never
// returns an error to a caller because there is none waiting — all outcomes
// are recorded on the File Record itself.
func runImportWorker(ctx context.Context, g *Gateway, log *slog.Logger, fileID, absPath, format string) {
	if err := SetFileProcessing(ctx, g, fileID); err != nil {
		log.Error("import worker: set processing failed", "file_id", fileID, "error", err)
		return
	}
	log.Info("import worker: processing", "file_id", fileID)

	readPath := absPath
	if format == FormatShapefile {
		readPath = "/vsizip/" + absPath
	}

	crs, tableName, err := materializeDataset(ctx, g, fileID, readPath)
	if err != nil {
		log.Error("import worker: failed", "file_id", fileID, "error", err)
		if setErr := SetFileFailed(ctx, g, fileID, err.Error()); setErr != nil {
			log.Error("import worker: record failure failed", "file_id", fileID, "error", setErr)
		}
		return
	}

	if err := SetFileReady(ctx, g, fileID, tableName, crs); err != nil {
		log.Error("import worker: set ready failed", "file_id", fileID, "error", err)
		return
	}
	log.Info("import worker: ready", "file_id", fileID, "table_name", tableName)
}

// materializeDataset performs CRS detection, table creation, column
// normalization, and type coercion, per SPEC_FULL.md §4.3. On success it
// returns the detected CRS (nil if undetectable) and the table name.
func materializeDataset(ctx context.Context, g *Gateway, fileID, readPath string) (*string, string, error) {
	crs := detectCRS(ctx, g, readPath)

	rawTableName := "layer_" + fileID
	tableName, ok := normalizeIdentifier(rawTableName)
	if !ok {
		tableName = rawTableName
	}

	if _, err := g.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, escapeIdentifier(tableName))); err != nil {
		return nil, "", fmt.Errorf("drop existing table: %w", err)
	}

	createSQL := fmt.Sprintf(
		`CREATE TABLE "%s" AS SELECT row_number() OVER () AS fid, * FROM ST_Read('%s')`,
		escapeIdentifier(tableName), strings.ReplaceAll(readPath, "'", "''"))
	if _, err := g.Exec(ctx, createSQL); err != nil {
		return nil, "", fmt.Errorf("materialize table: %w", err)
	}

	if err := normalizeGeometryColumn(ctx, g, tableName); err != nil {
		return nil, "", err
	}

	cols, err := normalizeAndCoerceColumns(ctx, g, tableName)
	if err != nil {
		return nil, "", err
	}

	if err := InsertDatasetColumns(ctx, g, fileID, cols); err != nil {
		return nil, "", fmt.Errorf("record dataset columns: %w", err)
	}

	return crs, tableName, nil
}

// detectCRS queries the spatial driver's layer metadata for the first
// layer's CRS, joining auth_name and auth_code with a colon. A failure here
// is not fatal to the import — it simply leaves the CRS undetected, per the
// "CRS default" decision in DESIGN.md.
func detectCRS(ctx context.Context, g *Gateway, readPath string) *string {
	query := fmt.Sprintf(
		`SELECT layers[1].geometry_fields[1].crs.auth_name || ':' || layers[1].geometry_fields[1].crs.auth_code
		 FROM ST_Read_Meta('%s')`, strings.ReplaceAll(readPath, "'", "''"))
	var crs string
	if err := g.QueryRow(ctx, query).Scan(&crs); err != nil {
		return nil
	}
	return &crs
}

type informationSchemaColumn struct {
	name     string
	dataType string
	ordinal  int
}

func readColumns(ctx context.Context, g *Gateway, tableName string) ([]informationSchemaColumn, error) {
	rows, err := g.Query(ctx, `
		SELECT column_name, data_type, ordinal_position
		FROM information_schema.columns
		WHERE table_name = ?
		ORDER BY ordinal_position`, tableName)
	if err != nil {
		return nil, fmt.Errorf("read information schema: %w", err)
	}
	defer rows.Close()

	var cols []informationSchemaColumn
	for rows.Next() {
		var c informationSchemaColumn
		if err := rows.Scan(&c.name, &c.dataType, &c.ordinal); err != nil {
			return nil, fmt.Errorf("scan information schema row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// normalizeGeometryColumn renames the sole GEOMETRY-typed column to "geom" if
// it isn't already.
func normalizeGeometryColumn(ctx context.Context, g *Gateway, tableName string) error {
	cols, err := readColumns(ctx, g, tableName)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if strings.EqualFold(c.dataType, "GEOMETRY") && c.name != "geom" {
			stmt := fmt.Sprintf(`ALTER TABLE "%s" RENAME COLUMN "%s" TO "geom"`,
				escapeIdentifier(tableName), escapeIdentifier(c.name))
			if _, err := g.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("rename geometry column: %w", err)
			}
		}
	}
	return nil
}

// normalizeAndCoerceColumns renames every property column to a safe,
// collision-free identifier and widens its storage type per the coercion
// rules, returning the metadata rows to persist.
func normalizeAndCoerceColumns(ctx context.Context, g *Gateway, tableName string) ([]DatasetColumn, error) {
	cols, err := readColumns(ctx, g, tableName)
	if err != nil {
		return nil, err
	}

	used := map[string]bool{"fid": true, "geom": true}
	var out []DatasetColumn

	for _, c := range cols {
		lower := strings.ToLower(c.name)
		if lower == "fid" || lower == "geom" {
			continue
		}

		normalized := lower
		if !isSafeIdentifier(lower) {
			n, ok := normalizeIdentifier(c.name)
			if !ok {
				n = "col"
			}
			normalized = n
		}
		normalized = disambiguate(normalized, used)
		used[normalized] = true

		if normalized != c.name {
			stmt := fmt.Sprintf(`ALTER TABLE "%s" RENAME COLUMN "%s" TO "%s"`,
				escapeIdentifier(tableName), escapeIdentifier(c.name), escapeIdentifier(normalized))
			if _, err := g.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("rename column %s: %w", c.name, err)
			}
		}

		logicalType, newSQLType := coerceType(c.dataType)
		if newSQLType != "" {
			stmt := fmt.Sprintf(`ALTER TABLE "%s" ALTER COLUMN "%s" SET DATA TYPE %s`,
				escapeIdentifier(tableName), escapeIdentifier(normalized), newSQLType)
			if _, err := g.Exec(ctx, stmt); err != nil {
				return nil, fmt.Errorf("coerce column %s: %w", normalized, err)
			}
		}

		out = append(out, DatasetColumn{
			NormalizedName: normalized,
			OriginalName:   c.name,
			Ordinal:        c.ordinal,
			LogicalType:    logicalType,
		})
	}
	return out, nil
}

// disambiguate suffixes name with _2, _3, ... until it is absent from used.
func disambiguate(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !used[candidate] {
			return candidate
		}
	}
}

// coerceType maps a storage type to its logical type and, if the column must
// be altered, the target SQL type to cast to (empty string means no ALTER
// needed).
func coerceType(dataType string) (logicalType string, targetSQLType string) {
	upper := strings.ToUpper(dataType)
	switch {
	case coercibleLogicalTypes[upper]:
		return upper, ""
	case narrowIntegerTypes[upper]:
		return "INTEGER", "INTEGER"
	case unsignedIntegerTypes[upper]:
		return "BIGINT", "BIGINT"
	default:
		return "VARCHAR", "VARCHAR"
	}
}
