package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/edl-indexer/internal/runs"
)

const (
	// multipartMemory is how much of a form is held in memory before parts
	// spill to temp files.
	multipartMemory = 8 << 20
	maxListLimit    = 200
)

func submitRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				WriteError(w, http.StatusRequestEntityTooLarge, "upload too large", CodeTooLarge)
				return
			}
			WriteError(w, http.StatusBadRequest, "invalid multipart form", CodeBadRequest)
			return
		}
		defer r.MultipartForm.RemoveAll()

		edlFile, edlHeader, err := r.FormFile("edl_file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "edl_file is required", CodeBadRequest)
			return
		}
		defer edlFile.Close()

		videoFile, videoHeader, err := r.FormFile("video_file")
		if err != nil {
			WriteError(w, http.StatusBadRequest, "video_file is required", CodeBadRequest)
			return
		}
		defer videoFile.Close()

		title := r.FormValue("sheet_title")
		if title == "" {
			WriteError(w, http.StatusBadRequest, "sheet_title is required", CodeBadRequest)
			return
		}

		run, err := cfg.Runs.Submit(r.Context(), runs.Submission{
			SheetTitle: title,
			DocumentID: r.FormValue("document_id"),
			EDLName:    headerName(edlHeader),
			EDL:        edlFile,
			VideoName:  headerName(videoHeader),
			Video:      videoFile,
		})
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), CodeBadRequest)
			return
		}

		WriteJSON(w, http.StatusAccepted, SubmitRunResponse{RunID: run.ID, Status: run.Status})
	}
}

func headerName(h *multipart.FileHeader) string {
	if h == nil {
		return ""
	}
	return h.Filename
}

func listRunsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				WriteError(w, http.StatusBadRequest, "limit must be a positive integer", CodeBadRequest)
				return
			}
			limit = min(n, maxListLimit)
		}

		list, err := cfg.Runs.ListRuns(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list runs", CodeInternal)
			return
		}

		resp := RunsResponse{Runs: make([]RunResponse, len(list))}
		for i, run := range list {
			resp.Runs[i] = RunToResponse(run)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRunHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(cfg, w, r)
		if !ok {
			return
		}
		WriteJSON(w, http.StatusOK, RunToResponse(run))
	}
}

func listClipsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, ok := lookupRun(cfg, w, r)
		if !ok {
			return
		}

		clips, err := cfg.Runs.ListClips(r.Context(), run.ID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), CodeInternal)
			return
		}

		resp := ClipsResponse{RunID: run.ID, Clips: make([]ClipResponse, len(clips))}
		for i, c := range clips {
			resp.Clips[i] = ClipToResponse(c)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func lookupRun(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*runs.Run, bool) {
	id := chi.URLParam(r, "id")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "run id required", CodeBadRequest)
		return nil, false
	}

	run, err := cfg.Runs.GetRun(r.Context(), id)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error(), CodeInternal)
		return nil, false
	}
	if run == nil {
		WriteError(w, http.StatusNotFound, "run not found", CodeNotFound)
		return nil, false
	}
	return run, true
}
