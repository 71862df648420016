package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// extensionFormats maps an accepted filename extension to its input format.
var extensionFormats = map[string]string{
	".zip":       FormatShapefile,
	".geojson":   FormatGeoJSON,
	".json":      FormatGeoJSON,
	".geojsonl":  FormatGeoJSONL,
	".geojsons":  FormatGeoJSONL,
	".kml":       FormatKML,
	".gpx":       FormatGPX,
	".topojson":  FormatTopoJSON,
}

func acceptedExtensionsList() string {
	exts := make([]string, 0, len(extensionFormats))
	for ext := range extensionFormats {
		exts = append(exts, ext)
	}
	return strings.Join(exts, ", ")
}

// formatForFilename derives the input format from a filename's extension,
// rejecting unknown extensions.
func formatForFilename(name string) (string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	format, ok := extensionFormats[ext]
	if !ok {
		return "", badRequest(fmt.Sprintf("Unsupported file extension. Accepted: %s", acceptedExtensionsList()))
	}
	return format, nil
}

// ingestUpload streams src to disk under uploadDir/<id>/<name>, enforcing
// maxBytes chunk-by-chunk, validates the result synchronously, inserts the
// File Record, and — on success — spawns the Import Worker as a detached
// goroutine before returning. Mirrors SPEC_FULL.md §4.9.
func ingestUpload(ctx context.Context, g *Gateway, log *slog.Logger, uploadDir string, maxBytes int64, maxSizeLabel string, displayName string, src io.Reader) (*FileRecord, error) {
	if strings.TrimSpace(displayName) == "" {
		return nil, badRequest(msgMissingFileName)
	}
	safeName := filepath.Base(displayName)
	if safeName == "." || safeName == string(filepath.Separator) {
		return nil, badRequest(msgInvalidFileName)
	}

	format, err := formatForFilename(safeName)
	if err != nil {
		return nil, err
	}

	id, err := newFileID()
	if err != nil {
		return nil, fmt.Errorf("generate file id: %w", err)
	}

	fileDir := filepath.Join(uploadDir, id)
	if err := os.MkdirAll(fileDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	storedPath := filepath.Join(fileDir, safeName)

	size, err := streamWithCap(src, storedPath, maxBytes)
	if err != nil {
		os.RemoveAll(fileDir)
		if err == errPayloadTooLarge {
			return nil, payloadTooLarge(fmt.Sprintf("File exceeds maximum size of %s", maxSizeLabel))
		}
		return nil, fmt.Errorf("write upload: %w", err)
	}

	now := time.Now().UTC()
	record := FileRecord{
		ID:          id,
		DisplayName: safeName,
		InputFormat: format,
		ByteSize:    size,
		UploadedAt:  now,
		StoredPath:  storedPath,
		Status:      StatusUploaded,
	}

	if valErr := validateByFormat(storedPath, format); valErr != nil {
		msg := valErr.Error()
		record.Status = StatusFailed
		record.ErrorMessage = &msg
		if err := InsertFile(ctx, g, record); err != nil {
			return nil, fmt.Errorf("record validation failure: %w", err)
		}
		return nil, valErr
	}

	if err := InsertFile(ctx, g, record); err != nil {
		return nil, fmt.Errorf("insert file record: %w", err)
	}

	absPath, err := filepath.Abs(storedPath)
	if err != nil {
		absPath = storedPath
	}
	go runImportWorker(context.Background(), g, log, id, absPath, format)

	return &record, nil
}

var errPayloadTooLarge = fmt.Errorf("payload too large")

// streamWithCap copies src to a new file at destPath, stopping with
// errPayloadTooLarge once src yields more than maxBytes. The partial file is
// not deleted here; ingestUpload removes the whole upload directory.
func streamWithCap(src io.Reader, destPath string, maxBytes int64) (int64, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	limited := io.LimitReader(src, maxBytes+1)
	written, err := io.Copy(out, limited)
	if err != nil {
		return 0, err
	}
	if written > maxBytes {
		return 0, errPayloadTooLarge
	}
	return written, nil
}
