package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"certforge/internal/batch"
	"certforge/internal/compose"
	"certforge/internal/design"
	"certforge/internal/httpkit"
	"certforge/internal/pkg/errors"
	"certforge/internal/tabular"
)

// maxUploadBytes bounds the multipart body held in memory/temp files.
const maxUploadBytes = 512 << 20

// Generate runs one synchronous batch: multipart upload in, zip stream out.
// Expected parts: "csvFile" (the rows), "certificateImage" (background) and
// a "designConfig" form value (JSON from the designer).
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := h.log.FromContext(ctx)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid multipart form", nil)
		return
	}

	cfg, err := design.Parse([]byte(r.FormValue("designConfig")))
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), map[string]any{"field": "designConfig"})
		return
	}

	imgFile, imgHeader, err := r.FormFile("certificateImage")
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "certificateImage is required", map[string]any{"field": "certificateImage"})
		return
	}
	defer imgFile.Close()

	imgBytes, err := io.ReadAll(imgFile)
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "could not read certificate image", nil)
		return
	}
	bg := compose.Background{
		Data:        imgBytes,
		ContentType: imgHeader.Header.Get("Content-Type"),
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

	// Headers go out with the first archive byte; everything that can be
	// rejected cleanly has been checked above.
	sink := &streamSink{w: w}
	result, err := batch.Run(ctx, cfg, rows, bg, h.newEngine(), sink, opts)
	if err != nil {
		if !sink.started {
			httpkit.WriteErr(w, errors.GetHTTPStatus(err), string(errors.GetCode(err)), err.Error(), errors.GetFields(err))
			return
		}
		// Bytes already went out; the truncated download is all we can
		// leave the client with.
		log.Error("batch aborted mid-stream", "error", err.Error())
		return
	}

	log.Info("batch streamed",
		"rows", len(rows),
		"succeeded", result.Succeeded,
		"failed", result.Failed(),
	)
}

// streamSink sets the download headers just before the first byte, so
// validation errors can still produce a JSON response.
type streamSink struct {
	w       http.ResponseWriter
	started bool
}

func (s *streamSink) Write(p []byte) (int, error) {
	if !s.started {
		s.started = true
		s.w.Header().Set("Content-Type", "application/zip")
		s.w.Header().Set("Content-Disposition", `attachment; filename="certificates.zip"`)
	}
	return s.w.Write(p)
}

func queryInt(r *http.Request, key string, def int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		raw = strings.TrimSpace(r.FormValue(key))
	}
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
