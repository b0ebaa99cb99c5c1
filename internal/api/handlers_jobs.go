package api

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"resume-enhancer/internal/engine"
	"resume-enhancer/internal/gateway"
	"resume-enhancer/internal/render"
	"resume-enhancer/internal/structuring"
	"resume-enhancer/pkg/errors"
	"resume-enhancer/pkg/types"
)

// handleSuggest rewrites a single bullet point on demand, outside of any job.
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Point   string `json:"point"`
		Context string `json:"context"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, errors.ErrBadRequest("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Point) == "" {
		respondError(w, r, errors.ErrBadRequest("point text is required"))
		return
	}

	prompt := fmt.Sprintf(`You are an expert resume writer. Rewrite the following resume bullet point using the STAR or CAR method, emphasizing measurable results.%s

Provide 3 rewritten versions, one per line. Do not number them or add any other text.

Original bullet point: "%s"`, suggestContext(req.Context), req.Point)

	raw, err := s.cfg.LLM.Complete(r.Context(), prompt, gateway.Options{Temperature: 0.7, MaxOutputTokens: 512})
	if err != nil {
		respondError(w, r, errors.ErrAIProcessing("suggestion generation failed"))
		return
	}

	var suggestions []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*•"))
		if len(line) > 10 {
			suggestions = append(suggestions, line)
		}
		if len(suggestions) == 3 {
			break
		}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

func suggestContext(ctx string) string {
	if strings.TrimSpace(ctx) == "" {
		return ""
	}
	return fmt.Sprintf(" Tailor them to this target: %s.", strings.TrimSpace(ctx))
}

// handleCustomizeResume accepts a resume PDF plus a target (role or analyzed
// job description), structures the resume synchronously, and starts the
// enhancement run in the background.
func (s *Server) handleCustomizeResume(w http.ResponseWriter, r *http.Request) {
	path, _, apiErr := s.savePDFUpload(w, r, "resumePdf", maxResumeUpload, "resumes")
	if apiErr != nil {
		respondError(w, r, apiErr)
		return
	}
	defer os.Remove(path)

	roleID := r.FormValue("roleId")
	jdID := r.FormValue("jdId")
	if (roleID == "") == (jdID == "") {
		respondError(w, r, errors.ErrBadRequest("exactly one of roleId or jdId is required"))
		return
	}

	rc, summary, apiErr := s.buildRunContext(roleID, jdID)
	if apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	resumeText, err := s.cfg.Extractor.FromPDF(path)
	if err != nil {
		slog.Error("resume extraction failed", "error", err)
		respondError(w, r, errors.ErrBadRequest("could not extract text from the resume PDF"))
		return
	}

	resume, err := s.cfg.Structurer.Structure(newDetachedContext(r), resumeText)
	if err != nil {
		slog.Error("resume structuring failed", "error", err)
		respondError(w, r, errors.ErrAIProcessing("could not structure the resume"))
		return
	}

	points := structuring.FlattenPoints(resume)
	jobID := uuid.NewString()
	s.cfg.Jobs.Create(jobID, resume, points)
	s.cfg.Enhancer.Start(jobID, rc)

	slog.Info("customize job accepted", "job_id", jobID, "points", len(points), "mode", rc.Mode)

	respondJSON(w, http.StatusAccepted, map[string]any{
		"jobId":             jobID,
		"message":           "Processing started.",
		"analysisContext":   string(rc.Mode),
		"contextName":       rc.ContextName,
		"jdAnalysisSummary": summary,
	})
}

// buildRunContext resolves the enhancement target. Role mode aggregates the
// role's analyzed keywords; jd mode requires a completed analysis.
func (s *Server) buildRunContext(roleID, jdID string) (engine.RunContext, string, *errors.ApiError) {
	if roleID != "" {
		role, err := s.cfg.Store.Role(roleID)
		if err != nil {
			return engine.RunContext{}, "", errors.ErrNotFound("role not found")
		}
		keywords, err := s.cfg.Store.AggregateRoleKeywords(roleID)
		if err != nil {
			return engine.RunContext{}, "", errors.ErrInternalServer("could not aggregate role keywords")
		}
		return engine.RunContext{
			Mode:        engine.ModeRole,
			ContextName: role.Name,
			Keywords:    keywords,
		}, "", nil
	}

	jd, err := s.cfg.Store.JD(jdID)
	if err != nil {
		return engine.RunContext{}, "", errors.ErrNotFound("job description not found")
	}
	if jd.Status != types.JDStatusCompleted {
		return engine.RunContext{}, "", errors.ErrBadRequest("job description has not been analyzed yet")
	}

	name := jd.OriginalFilename
	if name == "" {
		name = jd.Source
	}
	return engine.RunContext{
		Mode:        engine.ModeJD,
		ContextName: name,
		Keywords:    strings.Join(jd.Keywords, ", "),
		JDSummary:   jd.Analysis,
	}, jd.Analysis, nil
}

// handleCustomizeStream is the SSE endpoint. Events already recorded are
// replayed first, then live delivery; the client going away cancels the run.
func (s *Server) handleCustomizeStream(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("jobId")
	if _, err := s.cfg.Jobs.Get(jobID); err != nil {
		respondError(w, r, errors.ErrNotFound("job not found"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.ErrInternalServer("streaming not supported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch, cancel := s.cfg.Events.Subscribe(jobID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			slog.Info("stream client disconnected", "job_id", jobID)
			return
		case event, open := <-ch:
			if !open {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				slog.Error("encoding stream event failed", "job_id", jobID, "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// handleGenerateEditedPDF renders the final document from the client's
// per-point selections.
func (s *Server) handleGenerateEditedPDF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID      string            `json:"jobId"`
		Selections map[string]string `json:"selections"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, errors.ErrBadRequest("invalid JSON body"))
		return
	}
	if req.JobID == "" {
		respondError(w, r, errors.ErrBadRequest("jobId is required"))
		return
	}

	pdf, err := s.cfg.Materializer.Materialize(req.JobID, req.Selections)
	if err != nil {
		switch {
		case stderrors.Is(err, render.ErrJobNotFound):
			respondError(w, r, errors.ErrNotFound("job not found"))
		case stderrors.Is(err, render.ErrJobNotReady):
			respondError(w, r, errors.ErrBadRequest("job is still processing"))
		default:
			respondError(w, r, errors.ErrInternalServer(err.Error()))
		}
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="structured_resume.pdf"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		slog.Error("writing pdf response failed", "job_id", req.JobID, "error", err)
	}
}
