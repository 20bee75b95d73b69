package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/policyingest/internal/core"
	"github.com/JonMunkholm/policyingest/internal/logging"
)

// Version is reported by the index endpoint.
const Version = "1.0.0"

// handleIndex lists the available endpoints.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Policy import API",
		"version": Version,
		"endpoints": map[string]string{
			"upload":    "POST /api/policy/upload",
			"job":       "GET /api/jobs/{jobID}",
			"jobStatus": "GET /api/jobs/{jobID}/status",
			"jobEvents": "GET /api/jobs/{jobID}/events",
			"search":    "GET /api/policy/search?username=",
			"aggregate": "GET /api/policy/aggregate",
			"status":    "GET /api/policy/status",
			"health":    "GET /healthz",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"jobs":   s.service.LimiterStatus(),
	})
}

// handleUpload saves the uploaded file and imports it. With ?async=true the
// job ID is returned right away; otherwise the request waits for the result.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	if r.ContentLength > maxSize {
		s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize), http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	path, err := s.saveUpload(file, header.Filename)
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	ctx := clientContext(r)

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		jobID, err := s.service.Submit(ctx, path, header.Filename)
		if err != nil {
			s.respondError(w, r, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"jobId":     jobID,
			"statusUrl": "/api/jobs/" + jobID + "/status",
		})
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.requestTimeout())
	defer cancel()

	resp, jobID, err := s.service.Run(ctx, path, header.Filename)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	w.Header().Set("X-Job-ID", jobID)
	writeResponse(w, resp)
}

// saveUpload copies the upload into the temp dir, keeping its extension so
// the decoder can pick a format. The job removes the file when it ends.
func (s *Server) saveUpload(src io.Reader, name string) (string, error) {
	dst, err := os.CreateTemp(s.cfg.Upload.TempDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("save upload: %w", err)
	}
	return dst.Name(), nil
}

// handleJobResult waits for a job and returns its response.
func (s *Server) handleJobResult(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout())
	defer cancel()

	resp, err := s.service.Result(ctx, chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeResponse(w, resp)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.service.Status(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleJobEvents streams job messages as Server-Sent Events. The event name
// is the message type; the stream ends after the terminal message.
func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	ch, err := s.service.Subscribe(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	log := logging.FromContext(r.Context())

	for {
		select {
		case m, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(m)
			if err != nil {
				log.Error("encode job event", "error", err)
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", m.Type, data)
			if err := rc.Flush(); err != nil {
				log.Debug("flush job event", "error", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	results, err := s.queries.SearchPoliciesByFirstName(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	data, err := s.queries.AggregatePoliciesByUser(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	body := map[string]any{
		"success":    true,
		"totalUsers": len(data),
		"data":       data,
	}
	if len(data) == 0 {
		body["message"] = "No users found"
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.queries.Status(r.Context())
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"counts":       st.Counts,
		"sampleUser":   st.SampleUser,
		"samplePolicy": st.SamplePolicy,
		"message":      "Database status",
	})
}

// clientContext carries the caller's address and agent into job logs.
// RemoteAddr has already been rewritten by TrustedRealIP.
func clientContext(r *http.Request) context.Context {
	ctx := core.ContextWithIPAddress(r.Context(), r.RemoteAddr)
	return core.ContextWithUserAgent(ctx, r.UserAgent())
}

// writeResponse writes a job response: 200 on success, 500 when the job failed.
func writeResponse(w http.ResponseWriter, resp core.Response) {
	status := http.StatusOK
	if !resp.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}
