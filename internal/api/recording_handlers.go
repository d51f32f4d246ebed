package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/projectkasa/kasabot/internal/database"
)

// handleListRecordings returns indexed recordings, newest first. Optional
// query filters: user_id, category, variant, start_date, end_date.
func (s *Server) handleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.recordings == nil {
		writeError(w, http.StatusServiceUnavailable, "recording index disabled")
		return
	}

	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	filter := database.RecordingListFilter{
		Category:  r.URL.Query().Get("category"),
		Variant:   r.URL.Query().Get("variant"),
		StartDate: r.URL.Query().Get("start_date"),
		EndDate:   r.URL.Query().Get("end_date"),
		Limit:     pg.Limit,
		Offset:    pg.Offset,
	}
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "user_id must be an integer")
			return
		}
		filter.UserID = id
	}

	recs, total, err := s.recordings.List(r.Context(), filter)
	if err != nil {
		slog.Error("list recordings: query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  recs,
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleRecordingStats returns aggregate counts over the whole index.
func (s *Server) handleRecordingStats(w http.ResponseWriter, r *http.Request) {
	if s.recordings == nil {
		writeError(w, http.StatusServiceUnavailable, "recording index disabled")
		return
	}

	stats, err := s.recordings.Stats(r.Context())
	if err != nil {
		slog.Error("recording stats: query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleGetRecording returns one indexed recording by ID.
func (s *Server) handleGetRecording(w http.ResponseWriter, r *http.Request) {
	if s.recordings == nil {
		writeError(w, http.StatusServiceUnavailable, "recording index disabled")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.recordings.GetByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}
	if err != nil {
		slog.Error("get recording: query failed", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleRecordingAudio streams the OGG voice note for an indexed recording.
func (s *Server) handleRecordingAudio(w http.ResponseWriter, r *http.Request) {
	if s.recordings == nil {
		writeError(w, http.StatusServiceUnavailable, "recording index disabled")
		return
	}

	id := chi.URLParam(r, "id")
	rec, err := s.recordings.GetByID(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "recording not found")
		return
	}
	if err != nil {
		slog.Error("get recording audio: query failed", "error", err, "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	f, err := os.Open(rec.FilePath)
	if err != nil {
		slog.Error("get recording audio: failed to open file", "error", err, "id", id, "path", rec.FilePath)
		writeError(w, http.StatusInternalServerError, "audio file not found")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/ogg")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", rec.FileName))

	http.ServeContent(w, r, rec.FileName, rec.RecordedAt, f)
}

// handleUserRecordings returns all recordings contributed by one user.
func (s *Server) handleUserRecordings(w http.ResponseWriter, r *http.Request) {
	if s.recordings == nil {
		writeError(w, http.StatusServiceUnavailable, "recording index disabled")
		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	recs, err := s.recordings.ListByUser(r.Context(), userID)
	if err != nil {
		slog.Error("user recordings: query failed", "error", err, "user_id", userID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
