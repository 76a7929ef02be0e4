package handlers

import (
	"io"
	"net/http"
	"strings"

	"certforge/internal/batch"
	"certforge/internal/compose"
	"certforge/internal/httpkit"
	"certforge/internal/pkg/errors"
	"certforge/internal/tabular"
)

// GenerateFromTemplate runs one synchronous batch from a caller-supplied
// HTML template instead of a designer config. Expected parts: "csvFile"
// (the rows) and "template" (an HTML page with {{Column}} placeholders).
// Output pages are A4 landscape.
func (h *Handler) GenerateFromTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid multipart form", nil)
		return
	}

	tplFile, _, err := r.FormFile("template")
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "template is required", map[string]any{"field": "template"})
		return
	}
	defer tplFile.Close()

	tplBytes, err := io.ReadAll(tplFile)
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "could not read template", nil)
		return
	}
	if strings.TrimSpace(string(tplBytes)) == "" {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "template is empty", map[string]any{"field": "template"})
		return
	}

	csvFile, _, err := r.FormFile("csvFile")
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "csvFile is required", map[string]any{"field": "csvFile"})
		return
	}
	defer csvFile.Close()

	rows, _, err := tabular.ReadRows(csvFile)
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), map[string]any{"field": "csvFile"})
		return
	}

	opts := batch.Options{
		Concurrency:   queryInt(r, "concurrency", 0),
		NameColumn:    strings.TrimSpace(r.FormValue("nameColumn")),
		FailureReport: true,
		Log:           log,
	}

	sink := &streamSink{w: w}
	tpl := compose.Template{HTML: string(tplBytes)}
	result, err := batch.RunTemplate(ctx, tpl, rows, h.newEngine(), sink, opts)
	if err != nil {
		if !sink.started {
			httpkit.WriteErr(w, errors.GetHTTPStatus(err), string(errors.GetCode(err)), err.Error(), errors.GetFields(err))
			return
		}
		log.Error("batch aborted mid-stream", "error", err.Error())
		return
	}

	log.Info("batch streamed",
		"rows", len(rows),
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
	)
}
