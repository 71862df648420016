package main

import "net/http"

// apiError is a stable, client-facing error: a fixed HTTP status paired with a
// human-readable message. Internal errors never reach the client this way —
// they're logged and collapsed to a generic 500 by server.writeErr.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func newAPIError(status int, message string) *apiError {
	return &apiError{status: status, message: message}
}

func badRequest(message string) *apiError      { return newAPIError(http.StatusBadRequest, message) }
func notFound(message string) *apiError        { return newAPIError(http.StatusNotFound, message) }
func conflict(message string) *apiError        { return newAPIError(http.StatusConflict, message) }
func unauthorized(message string) *apiError    { return newAPIError(http.StatusUnauthorized, message) }
func payloadTooLarge(message string) *apiError { return newAPIError(http.StatusRequestEntityTooLarge, message) }

// Stable error-kind messages named in SPEC_FULL.md §7.
const (
	msgNoFileUploaded     = "No file uploaded"
	msgMissingFileName    = "Missing file name"
	msgInvalidFileName    = "Invalid file name"
	msgFileNotFound       = "File not found"
	msgNotReady           = "File is not ready for preview"
	msgNotReadyForPublish = "File is not ready for publishing"
	msgFeatureNotFound    = "Feature not found"
	msgSlugTaken          = "Slug already in use"
	msgNotPublished       = "File not published"
	msgInvalidTileCoords  = "Invalid tile coordinates"
	msgInvalidCredentials = "Invalid username or password"
	msgPublicTileNotFound = "Public tile not found"
	msgSlugEmpty          = "Slug cannot be empty"
	msgSlugTooLong        = "Slug must be 100 characters or less"
	msgSlugInvalidChars   = "Slug can only contain letters, numbers, hyphens, and underscores"
)
