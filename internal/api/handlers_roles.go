package api

import (
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"resume-enhancer/internal/store"
	"resume-enhancer/pkg/errors"
	"resume-enhancer/pkg/types"
)

func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, errors.ErrBadRequest("invalid JSON body"))
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, r, errors.ErrBadRequest("role name is required"))
		return
	}

	role, err := s.cfg.Store.CreateRole(strings.TrimSpace(req.Name))
	if err != nil {
		respondError(w, r, errors.ErrInternalServer("could not create role"))
		return
	}
	respondJSON(w, http.StatusCreated, role)
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := s.cfg.Store.Roles()
	if err != nil {
		respondError(w, r, errors.ErrInternalServer("could not list roles"))
		return
	}
	respondJSON(w, http.StatusOK, roles)
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cfg.Store.DeleteRole(r.PathValue("roleId"))
	if err != nil {
		if stderrors.Is(err, store.ErrRoleNotFound) {
			respondError(w, r, errors.ErrNotFound("role not found"))
			return
		}
		respondError(w, r, errors.ErrInternalServer("could not delete role"))
		return
	}
	for _, jd := range removed {
		s.removeJDFile(jd)
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "Role deleted."})
}

func (s *Server) handleAddJDFromURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, errors.ErrBadRequest("invalid JSON body"))
		return
	}
	parsed, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		respondError(w, r, errors.ErrBadRequest("a valid http(s) url is required"))
		return
	}

	jd, err := s.cfg.Store.AddJDFromURL(r.PathValue("roleId"), parsed.String())
	if err != nil {
		if stderrors.Is(err, store.ErrRoleNotFound) {
			respondError(w, r, errors.ErrNotFound("role not found"))
			return
		}
		respondError(w, r, errors.ErrInternalServer("could not add job description"))
		return
	}
	respondJSON(w, http.StatusCreated, jd)
}

func (s *Server) handleAddJDFromUpload(w http.ResponseWriter, r *http.Request) {
	path, originalName, apiErr := s.savePDFUpload(w, r, "jdPdf", maxJDUpload, "jds")
	if apiErr != nil {
		respondError(w, r, apiErr)
		return
	}

	jd, err := s.cfg.Store.AddJDFromPDF(r.PathValue("roleId"), path, originalName)
	if err != nil {
		os.Remove(path)
		if stderrors.Is(err, store.ErrRoleNotFound) {
			respondError(w, r, errors.ErrNotFound("role not found"))
			return
		}
		respondError(w, r, errors.ErrInternalServer("could not add job description"))
		return
	}
	respondJSON(w, http.StatusCreated, jd)
}

func (s *Server) handleListRoleJDs(w http.ResponseWriter, r *http.Request) {
	jds, err := s.cfg.Store.JDsForRole(r.PathValue("roleId"))
	if err != nil {
		if stderrors.Is(err, store.ErrRoleNotFound) {
			respondError(w, r, errors.ErrNotFound("role not found"))
			return
		}
		respondError(w, r, errors.ErrInternalServer("could not list job descriptions"))
		return
	}
	respondJSON(w, http.StatusOK, jds)
}

func (s *Server) handleRoleKeywords(w http.ResponseWriter, r *http.Request) {
	summary, err := s.cfg.Store.KeywordSummary(r.PathValue("roleId"))
	if err != nil {
		if stderrors.Is(err, store.ErrRoleNotFound) {
			respondError(w, r, errors.ErrNotFound("role not found"))
			return
		}
		respondError(w, r, errors.ErrInternalServer("could not summarize keywords"))
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleListCompletedJDs(w http.ResponseWriter, r *http.Request) {
	jds, err := s.cfg.Store.CompletedJDs()
	if err != nil {
		respondError(w, r, errors.ErrInternalServer("could not list job descriptions"))
		return
	}
	respondJSON(w, http.StatusOK, jds)
}

func (s *Server) handleAnalyzeJD(w http.ResponseWriter, r *http.Request) {
	jdID := r.PathValue("jdId")
	jd, err := s.cfg.Store.JD(jdID)
	if err != nil {
		respondError(w, r, errors.ErrNotFound("job description not found"))
		return
	}

	if jd.Status == types.JDStatusProcessing || jd.Status == types.JDStatusCompleted {
		respondJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Analysis already %s.", jd.Status),
		})
		return
	}

	go s.cfg.Analyzer.Run(newDetachedContext(r), jdID)
	respondJSON(w, http.StatusAccepted, map[string]string{"message": "Analysis started."})
}

func (s *Server) handleDeleteJD(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cfg.Store.DeleteJD(r.PathValue("jdId"))
	if err != nil {
		if stderrors.Is(err, store.ErrJDNotFound) {
			respondError(w, r, errors.ErrNotFound("job description not found"))
			return
		}
		respondError(w, r, errors.ErrInternalServer("could not delete job description"))
		return
	}
	s.removeJDFile(removed)
	respondJSON(w, http.StatusOK, map[string]string{"message": "Job description deleted."})
}

func (s *Server) removeJDFile(jd *types.JD) {
	if jd.Type != types.JDTypePDF || jd.Source == "" {
		return
	}
	if err := os.Remove(jd.Source); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		slog.Warn("could not remove uploaded jd file", "path", jd.Source, "error", err)
	}
}

// savePDFUpload streams a multipart PDF field to the upload directory and
// returns the stored path plus the client's filename.
func (s *Server) savePDFUpload(w http.ResponseWriter, r *http.Request, field string, limit int64, subdir string) (string, string, *errors.ApiError) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return "", "", errors.ErrPayloadTooLarge(fmt.Sprintf("file exceeds %d bytes", limit))
		}
		return "", "", errors.ErrBadRequest("invalid multipart form")
	}

	file, header, err := r.FormFile(field)
	if err != nil {
		return "", "", errors.ErrBadRequest(fmt.Sprintf("missing %q file field", field))
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return "", "", errors.ErrBadRequest("only PDF files are accepted")
	}

	dir := filepath.Join(s.cfg.UploadDir, subdir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", errors.ErrInternalServer("could not prepare upload directory")
	}

	path := filepath.Join(dir, uuid.NewString()+".pdf")
	dst, err := os.Create(path)
	if err != nil {
		return "", "", errors.ErrInternalServer("could not store upload")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", "", errors.ErrInternalServer("could not store upload")
	}
	return path, header.Filename, nil
}
