package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"allepoints-backend/services/collector"
	"allepoints-backend/services/directory"
	"allepoints-backend/services/pointstore"

	"github.com/go-chi/chi/v5"
)

const summaryExpiryWindow = time.Hour * 24 * 30

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	if query := r.URL.Query().Get("q"); query != "" {
		matches, err := h.directory.SearchMembers(r.Context(), query)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, directory.PaginateMembers(matches, page, pageSize))
		return
	}

	minPoints, err := intQuery(r, "min_points")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	result, err := h.directory.ListMembers(r.Context(), directory.ListRequest{
		MinPoints: int64(minPoints),
		Page:      page,
		PageSize:  pageSize,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	member, err := h.directory.GetMember(r.Context(), chi.URLParam(r, "id"))
	if err == directory.ErrMemberNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, member)
}

type memberPoints struct {
	MemberId       string     `json:"member_id"`
	Points         int64      `json:"points"`
	LastUpdated    time.Time  `json:"last_updated"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
}

func (h *Handler) GetMemberPoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	cacheKey := "points:" + id
	if body, ok := h.cache.Get(cacheKey); ok {
		writeRaw(w, body)
		return
	}

	member, err := h.directory.GetMember(r.Context(), id)
	if err == directory.ErrMemberNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	body, err := json.Marshal(memberPoints{
		MemberId:       member.Id,
		Points:         member.Points,
		LastUpdated:    member.PointsUpdated,
		ExpirationDate: member.PointsExpireAt,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	h.cache.Add(cacheKey, body)
	writeRaw(w, body)
}

type historyPagination struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"page_size"`
	TotalPages   int   `json:"total_pages"`
	TotalEntries int64 `json:"total_entries"`
}

type historyResponse struct {
	MemberId   string                    `json:"member_id"`
	History    []pointstore.HistoryEntry `json:"history"`
	Pagination historyPagination         `json:"pagination"`
}

func (h *Handler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	cacheKey := fmt.Sprintf("history:%s:%d:%d", id, page, pageSize)
	if body, ok := h.cache.Get(cacheKey); ok {
		writeRaw(w, body)
		return
	}

	// the ledger only holds members we have synced, unknown ids 404
	// the same way the member endpoints do
	_, err = h.directory.GetMember(r.Context(), id)
	if err == directory.ErrMemberNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	entries, total, err := h.pointstore.History(r.Context(), id, page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	totalPages := (int(total) + pageSize - 1) / pageSize
	if totalPages == 0 {
		totalPages = 1
	}

	body, err := json.Marshal(historyResponse{
		MemberId: id,
		History:  entries,
		Pagination: historyPagination{
			Page:         page,
			PageSize:     pageSize,
			TotalPages:   totalPages,
			TotalEntries: total,
		},
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	h.cache.Add(cacheKey, body)
	writeRaw(w, body)
}

type seriesResponse struct {
	MemberId string                   `json:"member_id"`
	Series   []pointstore.SeriesPoint `json:"series"`
}

func (h *Handler) GetPointsSeries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	_, err := h.directory.GetMember(r.Context(), id)
	if err == directory.ErrMemberNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	series, err := h.pointstore.Series(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if series == nil {
		series = []pointstore.SeriesPoint{}
	}
	writeJSON(w, http.StatusOK, seriesResponse{MemberId: id, Series: series})
}

type summaryResponse struct {
	directory.Summary
	LastSync *directory.SyncRun `json:"last_sync,omitempty"`
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.directory.Summary(r.Context(), summaryExpiryWindow)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	response := summaryResponse{Summary: summary}
	lastSync, ok, err := h.directory.LastSyncRun(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}
	if ok {
		response.LastSync = &lastSync
	}
	writeJSON(w, http.StatusOK, response)
}

type syncStarted struct {
	Status string `json:"status"`
}

// TriggerSync kicks off a collection run. Fast runs report their
// result inline, anything slower keeps going in the background and
// the caller polls /points/summary for the outcome.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	type outcome struct {
		result collector.Result
		err    error
	}
	done := make(chan outcome, 1)

	// the run must outlive the request, a real pull can take minutes
	syncCtx := context.WithoutCancel(r.Context())
	go func() {
		result, err := h.collector.RunOnce(syncCtx)
		done <- outcome{result, err}
	}()

	select {
	case out := <-done:
		if out.err == collector.ErrSyncInProgress {
			writeError(w, http.StatusConflict, "SYNC_IN_PROGRESS", out.err.Error())
			return
		}
		if out.err != nil {
			writeError(w, http.StatusBadGateway, "UNAVAILABLE", out.err.Error())
			return
		}
		writeJSON(w, http.StatusOK, out.result)
	case <-time.After(time.Second * 2):
		writeJSON(w, http.StatusAccepted, syncStarted{Status: "started"})
	}
}

type healthResponse struct {
	Status   string             `json:"status"`
	LastSync *directory.SyncRun `json:"last_sync,omitempty"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	response := healthResponse{Status: "ok"}
	lastSync, ok, err := h.directory.LastSyncRun(r.Context())
	if err != nil {
		slog.WarnContext(r.Context(), "read last sync run", "err", err)
	} else if ok {
		response.LastSync = &lastSync
	}
	writeJSON(w, http.StatusOK, response)
}

func pageParams(r *http.Request) (page int, pageSize int, err error) {
	page, err = intQuery(r, "page")
	if err != nil {
		return 0, 0, err
	}
	pageSize, err = intQuery(r, "page_size")
	if err != nil {
		return 0, 0, err
	}
	if pageSize == 0 {
		// the platform's own api calls this per_page, accept both
		pageSize, err = intQuery(r, "per_page")
		if err != nil {
			return 0, 0, err
		}
	}
	return page, pageSize, nil
}

func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return value, nil
}

func writeRaw(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}
