package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"melodex/internal/server/audio"
	"melodex/internal/server/database"
	"melodex/internal/server/service"

	"github.com/labstack/echo/v4"
)

// Handler contains the HTTP handlers for the Melodex API.
type Handler struct {
	auth    *service.Auth
	catalog *service.Catalog
	ingest  *service.Ingestor
	hub     notifyServer
	db      *database.DB
}

// notifyServer is the subset of the notification hub the handlers need.
type notifyServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request) error
}

// NewHandler creates a new handler with the given service dependencies.
func NewHandler(auth *service.Auth, catalog *service.Catalog, ingest *service.Ingestor, hub notifyServer, db *database.DB) *Handler {
	return &Handler{auth: auth, catalog: catalog, ingest: ingest, hub: hub, db: db}
}

// trackJSON is the wire form of a catalog entry.
type trackJSON struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Duration    int    `json:"duration"`
	StoredName  string `json:"stored_name"`
	UploadedAt  string `json:"uploaded_at"`
}

func toTrackJSON(t *database.Track) trackJSON {
	return trackJSON{
		ID:          t.ID,
		DisplayName: t.DisplayName,
		Duration:    t.Duration,
		StoredName:  t.StoredName,
		UploadedAt:  t.UploadedAt.UTC().Format(time.RFC3339),
	}
}

// HandleSetup handles POST /api/setup.
// Creates the single admin account. Available only while no account exists.
func (h *Handler) HandleSetup(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	confirm := c.FormValue("confirm_password")

	msgs, err := h.auth.SetupAdmin(c.Request().Context(), username, password, confirm)
	if err != nil {
		if errors.Is(err, service.ErrAdminExists) {
			return c.JSON(http.StatusConflict, echo.Map{
				"success":  false,
				"messages": []service.Message{{Message: "Admin account already exists.", Category: "danger"}},
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "setup failed"})
	}
	if len(msgs) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "messages": msgs})
	}

	return c.JSON(http.StatusCreated, echo.Map{
		"success":  true,
		"messages": []service.Message{{Message: "Admin account created. You can log in now.", Category: "success"}},
	})
}

// HandleLogin handles POST /api/login.
// Failures count against the caller's address; a locked address is refused
// before any credentials are checked.
func (h *Handler) HandleLogin(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")
	remember := c.FormValue("remember_me") == "on" || c.FormValue("remember_me") == "true"

	result, err := h.auth.Login(c.Request().Context(), c.RealIP(), username, password, remember)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	if result.RetryAfterSeconds > 0 {
		c.Response().Header().Set("Retry-After", fmt.Sprintf("%d", result.RetryAfterSeconds))
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"success":     false,
			"retry_after": result.RetryAfterSeconds,
			"messages":    []service.Message{{Message: result.Message, Category: "danger"}},
		})
	}

	if !result.OK {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"success":  false,
			"messages": []service.Message{{Message: result.Message, Category: "danger"}},
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   int(result.TokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandleLogout handles POST /api/logout.
func (h *Handler) HandleLogout(c echo.Context) error {
	c.SetCookie(&http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// HandleSession handles GET /api/session.
// Tells the frontend whether setup is pending and whether the caller is
// logged in.
func (h *Handler) HandleSession(c echo.Context) error {
	hasAdmin, err := h.auth.HasAdmin(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "session check failed"})
	}

	loggedIn := false
	if cookie, err := c.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if _, isAdmin, err := h.auth.ParseToken(cookie.Value); err == nil && isAdmin {
			loggedIn = true
		}
	}

	return c.JSON(http.StatusOK, echo.Map{
		"setup_required": !hasAdmin,
		"logged_in":      loggedIn,
	})
}

// HandleListMusic handles GET /api/music.
// Supports q, sort_by, order, type and page query parameters; anything
// invalid falls back to defaults rather than erroring.
func (h *Handler) HandleListMusic(c echo.Context) error {
	params := service.ListParams{
		Term:   c.QueryParam("q"),
		SortBy: c.QueryParam("sort_by"),
		Order:  c.QueryParam("order"),
		Type:   c.QueryParam("type"),
		Page:   intQueryParam(c, "page", 1),
	}

	page, err := h.catalog.List(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list music"})
	}

	// A stale page number past the end lands the caller on the first page.
	if len(page.Tracks) == 0 && page.Page > 1 {
		params.Page = 1
		if page, err = h.catalog.List(c.Request().Context(), params); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list music"})
		}
	}

	tracks := make([]trackJSON, 0, len(page.Tracks))
	for _, t := range page.Tracks {
		tracks = append(tracks, toTrackJSON(t))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"tracks": tracks,
		"pagination": echo.Map{
			"page":        page.Page,
			"per_page":    page.PerPage,
			"total":       page.Total,
			"total_pages": page.TotalPages,
		},
	})
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with one or more "file" fields and responds as
// soon as every file's ingest task is scheduled. Outcomes arrive over the
// websocket feed.
func (h *Handler) HandleUpload(c echo.Context) error {
	userID, ok := c.Get("user_id").(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	form, err := c.MultipartForm()
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "multipart form with a 'file' field is required",
		})
	}

	var files []service.SubmittedFile
	for _, fh := range form.File["file"] {
		src, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read uploaded file"})
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read uploaded file"})
		}
		files = append(files, service.SubmittedFile{Name: fh.Filename, Data: data})
	}

	result := h.ingest.Submit(files, userID)

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	return c.JSON(status, result)
}

// batchDeleteRequest is the body of POST /api/delete/batch.
type batchDeleteRequest struct {
	MusicIDs    []int64 `json:"music_ids"`
	CurrentPage int     `json:"current_page"`
}

// HandleDeleteBatch handles POST /api/delete/batch.
// Returns 200 when every requested track was removed and 207 when some
// deletions failed; failures never abort the rest of the batch.
func (h *Handler) HandleDeleteBatch(c echo.Context) error {
	var req batchDeleteRequest
	if err := c.Bind(&req); err != nil || len(req.MusicIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"success":  false,
			"messages": []service.Message{{Message: "No tracks selected.", Category: "danger"}},
		})
	}

	result, err := h.catalog.BatchDelete(c.Request().Context(), req.MusicIDs, req.CurrentPage)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "batch delete failed"})
	}

	status := http.StatusOK
	if len(result.FailedNames) > 0 {
		status = http.StatusMultiStatus
	}
	return c.JSON(status, echo.Map{
		"success":       len(result.FailedNames) == 0,
		"deleted_ids":   result.DeletedIDs,
		"redirect_page": result.RedirectPage,
		"messages":      []service.Message{{Message: result.Message, Category: deleteCategory(result)}},
	})
}

func deleteCategory(result *service.BatchDeleteResult) string {
	if len(result.FailedNames) > 0 {
		return "warning"
	}
	return "success"
}

// HandleServeMusic handles GET /music/:filename.
// Streams a stored blob by its opaque stored name. Range requests work, so
// browsers can seek.
func (h *Handler) HandleServeMusic(c echo.Context) error {
	storedName := c.Param("filename")

	contentType, ok := audioContentType(storedName)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	path, err := h.catalog.TrackPath(storedName)
	if err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	}

	c.Response().Header().Set(echo.HeaderContentType, contentType)
	return c.File(path)
}

func audioContentType(name string) (string, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case audio.ExtMP3:
		return "audio/mpeg", true
	case audio.ExtFLAC:
		return "audio/flac", true
	}
	return "", false
}

// HandleWS handles GET /ws, the push notification feed.
func (h *Handler) HandleWS(c echo.Context) error {
	return h.hub.ServeWS(c.Response(), c.Request())
}

// HandleChangeUsername handles POST /api/admin/change-username.
func (h *Handler) HandleChangeUsername(c echo.Context) error {
	userID, ok := c.Get("user_id").(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	msgs, err := h.auth.ChangeUsername(c.Request().Context(), userID, c.FormValue("new_username"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to change username"})
	}
	if len(msgs) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "messages": msgs})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"messages": []service.Message{{Message: "Username updated.", Category: "success"}},
	})
}

// HandleChangePassword handles POST /api/admin/change-password.
// Existing sessions stay valid until their tokens expire.
func (h *Handler) HandleChangePassword(c echo.Context) error {
	userID, ok := c.Get("user_id").(int64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	msgs, err := h.auth.ChangePassword(
		c.Request().Context(),
		userID,
		c.FormValue("current_password"),
		c.FormValue("new_password"),
		c.FormValue("confirm_password"),
	)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to change password"})
	}
	if len(msgs) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"success": false, "messages": msgs})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success":  true,
		"messages": []service.Message{{Message: "Password updated.", Category: "success"}},
	})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(c.Request().Context()); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":   status,
		"database": dbStatus,
	})
}

func intQueryParam(c echo.Context, name string, fallback int) int {
	n, err := strconv.Atoi(c.QueryParam(name))
	if err != nil {
		return fallback
	}
	return n
}
