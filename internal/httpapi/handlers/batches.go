package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"certforge/internal/httpapi/util"
	"certforge/internal/httpkit"
	"certforge/internal/worker/queue"
)

// CreateBatchRequest queues one asynchronous generation run. The CSV and the
// background image must have been uploaded as assets first.
type CreateBatchRequest struct {
	Name         string `json:"name"`
	TemplateID   string `json:"template_id"`
	CSVAssetID   string `json:"csv_asset_id"`
	ImageAssetID string `json:"image_asset_id"`
	Concurrency  int    `json:"concurrency,omitempty"`
	NameColumn   string `json:"name_column,omitempty"`
}

func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateBatchRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	req.TemplateID = strings.TrimSpace(req.TemplateID)
	req.CSVAssetID = strings.TrimSpace(req.CSVAssetID)
	req.ImageAssetID = strings.TrimSpace(req.ImageAssetID)

	for field, v := range map[string]string{
		"template_id":    req.TemplateID,
		"csv_asset_id":   req.CSVAssetID,
		"image_asset_id": req.ImageAssetID,
	} {
		if v == "" {
			httpkit.WriteErr(w, 400, "VALIDATION_ERROR", field+" is required", map[string]any{"field": field})
			return
		}
	}

	if _, err := h.templates.Get(ctx, req.TemplateID); err != nil {
		httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", "template not found", map[string]any{"template_id": req.TemplateID})
		return
	}

	batchID := util.NewID("bat")
	paramsBytes, _ := json.Marshal(map[string]any{
		"template_id":    req.TemplateID,
		"csv_asset_id":   req.CSVAssetID,
		"image_asset_id": req.ImageAssetID,
		"concurrency":    req.Concurrency,
		"name_column":    req.NameColumn,
	})

	createdAt := time.Now().UTC()
	_, err := h.pool.Exec(ctx,
		`INSERT INTO batches (id, name, status, params_json, created_at)
		 VALUES ($1,$2,'QUEUED',$3,$4)`,
		batchID, nullIfEmpty(strings.TrimSpace(req.Name)), string(paramsBytes), createdAt,
	)
	if err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db insert failed", nil)
		return
	}

	if err := h.rdb.LPush(ctx, queue.DefaultName, batchID).Err(); err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "queue push failed", nil)
		return
	}

	httpkit.WriteJSON(w, 201, map[string]any{
		"batch": map[string]any{
			"id":          batchID,
			"name":        req.Name,
			"status":      "QUEUED",
			"template_id": req.TemplateID,
			"created_at":  createdAt,
		},
	})
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limitStr := strings.TrimSpace(r.URL.Query().Get("limit"))
	limit := 50
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	var (
		rows pgxRows
		err  error
	)

	if status != "" {
		rows, err = h.pool.Query(ctx,
			`SELECT id, COALESCE(name,''), status, created_at
			 FROM batches WHERE status=$1
			 ORDER BY created_at DESC
			 LIMIT $2`,
			status, limit,
		)
	} else {
		rows, err = h.pool.Query(ctx,
			`SELECT id, COALESCE(name,''), status, created_at
			 FROM batches
			 ORDER BY created_at DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db query failed", nil)
		return
	}
	defer rows.Close()

	type item struct {
		ID        string    `json:"id"`
		Name      string    `json:"name,omitempty"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"created_at"`
	}

	out := make([]item, 0, limit)
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.ID, &it.Name, &it.Status, &it.CreatedAt); err != nil {
			httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "row scan failed", nil)
			return
		}
		out = append(out, it)
	}

	httpkit.WriteJSON(w, 200, map[string]any{"batches": out})
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "batchId")

	var (
		id, name, status, paramsJSON string
		resultJSON, errorText        *string
		archiveAssetID               *string
		createdAt                    time.Time
		startedAt, finishedAt        *time.Time
	)

	err := h.pool.QueryRow(ctx,
		`SELECT id, COALESCE(name,''), status, params_json, result_json, error_text,
		        archive_asset_id, created_at, started_at, finished_at
		 FROM batches WHERE id=$1`,
		batchID,
	).Scan(&id, &name, &status, &paramsJSON, &resultJSON, &errorText,
		&archiveAssetID, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		httpkit.WriteErr(w, 404, "BATCH_NOT_FOUND", "batch not found", map[string]any{"batch_id": batchID})
		return
	}

	var params map[string]any
	_ = json.Unmarshal([]byte(paramsJSON), &params)

	var result map[string]any
	if resultJSON != nil {
		_ = json.Unmarshal([]byte(*resultJSON), &result)
	}

	body := map[string]any{
		"id":          id,
		"name":        name,
		"status":      status,
		"params":      params,
		"result":      result,
		"created_at":  createdAt,
		"started_at":  startedAt,
		"finished_at": finishedAt,
	}
	if errorText != nil && *errorText != "" {
		body["error"] = *errorText
	}
	if archiveAssetID != nil && *archiveAssetID != "" {
		body["archive_asset_id"] = *archiveAssetID
	}

	httpkit.WriteJSON(w, 200, map[string]any{"batch": body})
}

type pgxRows interface {
	Close()
	Next() bool
	Scan(dest ...any) error
}
