package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// server holds everything an HTTP handler needs: the catalog gateway,
// configuration, and logger. Handlers are methods on *server, following the
// teacher's pattern of holding shared state on a receiver rather than
// reaching for package-level globals.
type server struct {
	gateway *Gateway
	cfg     Config
	log     *slog.Logger
}

func newServer(g *Gateway, cfg Config, log *slog.Logger) *server {
	return &server{gateway: g, cfg: cfg, log: log}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/init", s.handleAuthInit)
	mux.HandleFunc("POST /api/auth/login", s.handleAuthLogin)
	mux.HandleFunc("POST /api/auth/logout", s.requireSession(s.handleAuthLogout))
	mux.HandleFunc("GET /api/auth/check", s.requireSession(s.handleAuthCheck))

	mux.HandleFunc("POST /api/uploads", s.requireSession(s.handleUpload))
	mux.HandleFunc("GET /api/files", s.requireSession(s.handleListFiles))
	mux.HandleFunc("GET /api/files/{id}/preview", s.requireSession(s.handlePreview))
	mux.HandleFunc("GET /api/files/{id}/tiles/{z}/{x}/{y}", s.requireSession(s.handleTile))
	mux.HandleFunc("GET /api/files/{id}/features/{fid}", s.requireSession(s.handleFeature))
	mux.HandleFunc("GET /api/files/{id}/schema", s.requireSession(s.handleSchema))
	mux.HandleFunc("POST /api/files/{id}/publish", s.requireSession(s.handlePublish))
	mux.HandleFunc("POST /api/files/{id}/unpublish", s.requireSession(s.handleUnpublish))
	mux.HandleFunc("GET /api/files/{id}/public-url", s.requireSession(s.handlePublicURL))

	mux.HandleFunc("GET /api/test/is-initialized", s.handleIsInitialized)
	mux.HandleFunc("GET /tiles/{slug}/{z}/{x}/{y}", s.handlePublicTile)

	return withCORS(s.cfg.CORSAllowedOrigins, withLogging(s.log, mux))
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeErr renders err as a JSON error body. apiErrors carry their own
// status and message; anything else is logged in full and collapsed to a
// generic 500 — internal details never reach the client.
func (s *server) writeErr(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.status, errorResponse{Error: apiErr.message})
		return
	}
	s.log.Error("internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal Server Error"})
}

func writeError(w http.ResponseWriter, apiErr *apiError) {
	writeJSON(w, apiErr.status, errorResponse{Error: apiErr.message})
}

// --- auth -------------------------------------------------------------

type initRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *server) handleAuthInit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	initialized, err := IsInitialized(ctx, s.gateway)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if initialized {
		writeError(w, conflict("System already initialized"))
		return
	}

	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("Invalid request body"))
		return
	}

	if err := validatePasswordComplexity(req.Password); err != nil {
		writeError(w, badRequest(fmt.Sprintf("Invalid password: %s", err.Error())))
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	user := User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
		Role:         "admin",
		CreatedAt:    time.Now().UTC(),
	}
	if err := InsertUser(ctx, s.gateway, user); err != nil {
		s.writeErr(w, err)
		return
	}
	if err := SetInitialized(ctx, s.gateway); err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "System initialized successfully"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (s *server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("Invalid request body"))
		return
	}

	user, err := authenticateUser(r.Context(), s.gateway, req.Username, req.Password)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	sessionID, err := newSessionID()
	if err != nil {
		s.writeErr(w, err)
		return
	}
	expiresAt := time.Now().UTC().Add(sessionTTL)
	if err := saveSession(r.Context(), s.gateway, sessionID, map[string]any{"user_id": user.ID}, expiresAt); err != nil {
		s.writeErr(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})

	writeJSON(w, http.StatusOK, loginResponse{Username: user.Username, Role: user.Role})
}

func (s *server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if err := deleteSession(r.Context(), s.gateway, cookie.Value); err != nil {
			s.writeErr(w, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleAuthCheck(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	writeJSON(w, http.StatusOK, loginResponse{Username: user.Username, Role: user.Role})
}

func (s *server) handleIsInitialized(w http.ResponseWriter, r *http.Request) {
	initialized, err := IsInitialized(r.Context(), s.gateway)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"initialized": initialized})
}

// --- uploads & files ----------------------------------------------------

type fileResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Type         string  `json:"type"`
	Size         int64   `json:"size"`
	UploadedAt   string  `json:"uploadedAt"`
	Status       string  `json:"status"`
	CRS          *string `json:"crs"`
	Error        *string `json:"error,omitempty"`
	IsPublic     bool    `json:"isPublic"`
}

func toFileResponse(f FileRecord) fileResponse {
	return fileResponse{
		ID:         f.ID,
		Name:       f.DisplayName,
		Type:       f.InputFormat,
		Size:       f.ByteSize,
		UploadedAt: f.UploadedAt.Format(time.RFC3339),
		Status:     f.Status,
		CRS:        f.DetectedCRS,
		Error:      f.ErrorMessage,
		IsPublic:   f.IsPublic,
	}
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, badRequest(msgNoFileUploaded))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, badRequest(msgNoFileUploaded))
		return
	}
	defer file.Close()

	record, err := ingestUpload(r.Context(), s.gateway, s.log, s.cfg.UploadDir, s.cfg.MaxUploadBytes,
		s.cfg.MaxUploadSizeText, header.Filename, file)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFileResponse(*record))
}

func (s *server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := ListFiles(r.Context(), s.gateway)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) lookupReadyFile(r *http.Request, w http.ResponseWriter) *FileRecord {
	id := r.PathValue("id")
	f, err := GetFile(r.Context(), s.gateway, id)
	if err != nil {
		s.writeErr(w, err)
		return nil
	}
	if f == nil {
		writeError(w, notFound(msgFileNotFound))
		return nil
	}
	return f
}

type previewResponse struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	CRS  *string    `json:"crs"`
	BBox *[4]float64 `json:"bbox"`
}

func (s *server) handlePreview(w http.ResponseWriter, r *http.Request) {
	f := s.lookupReadyFile(r, w)
	if f == nil {
		return
	}
	if f.Status != StatusReady {
		writeError(w, conflict(msgNotReady))
		return
	}

	sourceCRS := defaultSourceCRS
	if f.DetectedCRS != nil {
		sourceCRS = *f.DetectedCRS
	}

	query := fmt.Sprintf(
		`SELECT ST_XMin(e), ST_YMin(e), ST_XMax(e), ST_YMax(e) FROM (
			SELECT ST_Extent(ST_Transform(geom, '%s', 'EPSG:4326', always_xy := true)) AS e FROM "%s"
		)`, sourceCRS, escapeIdentifier(*f.TableName))

	var bbox [4]float64
	err := s.gateway.QueryRow(r.Context(), query).Scan(&bbox[0], &bbox[1], &bbox[2], &bbox[3])
	var bboxPtr *[4]float64
	if err == nil {
		bboxPtr = &bbox
	} else if !errors.Is(err, sql.ErrNoRows) {
		s.writeErr(w, fmt.Errorf("compute preview bbox: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{ID: f.ID, Name: f.DisplayName, CRS: f.DetectedCRS, BBox: bboxPtr})
}

func parseTileCoords(r *http.Request) (int, int, int, error) {
	z, errZ := strconv.Atoi(r.PathValue("z"))
	x, errX := strconv.Atoi(r.PathValue("x"))
	y, errY := strconv.Atoi(r.PathValue("y"))
	if errZ != nil || errX != nil || errY != nil {
		return 0, 0, 0, badRequest(msgInvalidTileCoords)
	}
	return z, x, y, nil
}

func (s *server) handleTile(w http.ResponseWriter, r *http.Request) {
	f := s.lookupReadyFile(r, w)
	if f == nil {
		return
	}
	if f.Status != StatusReady {
		writeError(w, conflict(msgNotReady))
		return
	}
	z, x, y, err := parseTileCoords(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if err := validateTileCoords(z, x, y); err != nil {
		s.writeErr(w, err)
		return
	}

	cols, err := GetDatasetColumns(r.Context(), s.gateway, f.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	sourceCRS := ""
	if f.DetectedCRS != nil {
		sourceCRS = *f.DetectedCRS
	}

	tile, err := generateTile(r.Context(), s.gateway, *f.TableName, sourceCRS, cols, z, x, y)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.WriteHeader(http.StatusOK)
	w.Write(tile)
}

func (s *server) handleFeature(w http.ResponseWriter, r *http.Request) {
	f := s.lookupReadyFile(r, w)
	if f == nil {
		return
	}
	if f.Status != StatusReady {
		writeError(w, conflict(msgNotReady))
		return
	}
	fid := r.PathValue("fid")

	cols, err := GetDatasetColumns(r.Context(), s.gateway, f.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	selectExprs := make([]string, 0, len(cols))
	for _, c := range cols {
		selectExprs = append(selectExprs, fmt.Sprintf(`"%s"`, escapeIdentifier(c.NormalizedName)))
	}
	selectList := "fid"
	for _, e := range selectExprs {
		selectList += ", " + e
	}

	query := fmt.Sprintf(`SELECT %s FROM "%s" WHERE fid = ?`, selectList, escapeIdentifier(*f.TableName))
	rows, err := s.gateway.Query(r.Context(), query, fid)
	if err != nil {
		s.writeErr(w, fmt.Errorf("query feature: %w", err))
		return
	}
	defer rows.Close()

	if !rows.Next() {
		writeError(w, notFound(msgFeatureNotFound))
		return
	}

	dest := make([]any, len(cols)+1)
	values := make([]any, len(cols)+1)
	for i := range dest {
		dest[i] = &values[i]
	}
	if err := rows.Scan(dest...); err != nil {
		s.writeErr(w, fmt.Errorf("scan feature row: %w", err))
		return
	}

	props := make(map[string]any, len(cols))
	for i, c := range cols {
		props[c.OriginalName] = values[i+1]
	}

	writeJSON(w, http.StatusOK, map[string]any{"fid": values[0], "properties": props})
}

type fieldInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func (s *server) handleSchema(w http.ResponseWriter, r *http.Request) {
	f := s.lookupReadyFile(r, w)
	if f == nil {
		return
	}
	if f.Status != StatusReady {
		writeError(w, conflict(msgNotReady))
		return
	}
	cols, err := GetDatasetColumns(r.Context(), s.gateway, f.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	fields := make([]fieldInfo, 0, len(cols))
	for _, c := range cols {
		fields = append(fields, fieldInfo{Name: c.OriginalName, Type: c.LogicalType})
	}
	writeJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

type publishRequest struct {
	Slug string `json:"slug"`
}

type publishResponse struct {
	URL      string `json:"url"`
	Slug     string `json:"slug"`
	IsPublic bool   `json:"is_public"`
}

func (s *server) handlePublish(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req publishRequest
	json.NewDecoder(r.Body).Decode(&req) // empty body is valid (default slug)

	slug, err := publishFile(r.Context(), s.gateway, id, req.Slug)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, publishResponse{
		URL:      fmt.Sprintf("/tiles/%s/{z}/{x}/{y}", slug),
		Slug:     slug,
		IsPublic: true,
	})
}

func (s *server) handleUnpublish(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := unpublishFile(r.Context(), s.gateway, id); err != nil {
		s.writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handlePublicURL(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var slug string
	err := s.gateway.QueryRow(r.Context(), `
		SELECT slug FROM published_files
		WHERE file_id = ? AND file_id IN (SELECT id FROM files WHERE is_public = TRUE)`, id).Scan(&slug)
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, notFound(msgNotPublished))
		return
	}
	if err != nil {
		s.writeErr(w, fmt.Errorf("get public url: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"slug": slug,
		"url":  fmt.Sprintf("/tiles/%s/{z}/{x}/{y}", slug),
	})
}

func (s *server) handlePublicTile(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	z, x, y, err := parseTileCoords(r)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if err := validateTileCoords(z, x, y); err != nil {
		s.writeErr(w, err)
		return
	}

	f, err := resolvePublicFile(r.Context(), s.gateway, slug)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if f.Status != StatusReady || f.TableName == nil {
		writeError(w, notFound(msgPublicTileNotFound))
		return
	}

	cols, err := GetDatasetColumns(r.Context(), s.gateway, f.ID)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	sourceCRS := ""
	if f.DetectedCRS != nil {
		sourceCRS = *f.DetectedCRS
	}

	tile, err := generateTile(r.Context(), s.gateway, *f.TableName, sourceCRS, cols, z, x, y)
	if err != nil {
		s.writeErr(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.mapbox-vector-tile")
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(tile)
}
