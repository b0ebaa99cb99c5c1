package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"resume-enhancer/pkg/types"
)

var (
	ErrRoleNotFound = errors.New("role not found")
	ErrJDNotFound   = errors.New("job description not found")
)

type data struct {
	Roles map[string]*types.Role `json:"roles"`
	JDs   map[string]*types.JD   `json:"jds"`
}

// CompletedJD is the list view of an analyzed job description, with its
// role's name joined in.
type CompletedJD struct {
	types.JD
	RoleName string `json:"roleName"`
}

// KeywordCount is one row of a role's keyword summary.
type KeywordCount struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Store persists roles and job descriptions to a single JSON file. Every
// mutation is a read-modify-write under the mutex, mirroring a simple
// document file rather than a database.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) (*Store, error) {
	s := &Store{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.write(&data{Roles: map[string]*types.Role{}, JDs: map[string]*types.JD{}}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) read() (*data, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading data file: %w", err)
	}
	var d data
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing data file: %w", err)
	}
	if d.Roles == nil {
		d.Roles = map[string]*types.Role{}
	}
	if d.JDs == nil {
		d.JDs = map[string]*types.JD{}
	}
	return &d, nil
}

func (s *Store) write(d *data) error {
	raw, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding data file: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		return fmt.Errorf("writing data file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func (s *Store) CreateRole(name string) (*types.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	role := &types.Role{
		ID:        uuid.NewString(),
		Name:      name,
		JDIDs:     []string{},
		CreatedAt: now(),
	}
	d.Roles[role.ID] = role
	if err := s.write(d); err != nil {
		return nil, err
	}
	return role, nil
}

func (s *Store) Roles() ([]*types.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	roles := make([]*types.Role, 0, len(d.Roles))
	for _, role := range d.Roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].CreatedAt < roles[j].CreatedAt })
	return roles, nil
}

func (s *Store) Role(id string) (*types.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	role, ok := d.Roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (s *Store) addJD(roleID string, jd *types.JD) (*types.JD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	role, ok := d.Roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}

	jd.ID = uuid.NewString()
	jd.RoleID = roleID
	jd.Status = types.JDStatusPending
	jd.Keywords = []string{}
	jd.CreatedAt = now()

	d.JDs[jd.ID] = jd
	role.JDIDs = append(role.JDIDs, jd.ID)

	if err := s.write(d); err != nil {
		return nil, err
	}
	return jd, nil
}

func (s *Store) AddJDFromURL(roleID, url string) (*types.JD, error) {
	return s.addJD(roleID, &types.JD{Type: types.JDTypeURL, Source: url})
}

// AddJDFromPDF records an uploaded file. source is the stored file path,
// originalFilename the client's name for it.
func (s *Store) AddJDFromPDF(roleID, source, originalFilename string) (*types.JD, error) {
	return s.addJD(roleID, &types.JD{Type: types.JDTypePDF, Source: source, OriginalFilename: originalFilename})
}

func (s *Store) JD(id string) (*types.JD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	jd, ok := d.JDs[id]
	if !ok {
		return nil, ErrJDNotFound
	}
	return jd, nil
}

func (s *Store) JDsForRole(roleID string) ([]*types.JD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	role, ok := d.Roles[roleID]
	if !ok {
		return nil, ErrRoleNotFound
	}
	jds := make([]*types.JD, 0, len(role.JDIDs))
	for _, id := range role.JDIDs {
		if jd, ok := d.JDs[id]; ok {
			jds = append(jds, jd)
		}
	}
	return jds, nil
}

// CompletedJDs lists every analyzed job description across all roles.
func (s *Store) CompletedJDs() ([]CompletedJD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]CompletedJD, 0)
	for _, jd := range d.JDs {
		if jd.Status != types.JDStatusCompleted {
			continue
		}
		view := CompletedJD{JD: *jd}
		if role, ok := d.Roles[jd.RoleID]; ok {
			view.RoleName = role.Name
		}
		out = append(out, view)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// UpdateJD applies fn to the stored record and persists the result.
func (s *Store) UpdateJD(id string, fn func(*types.JD)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return err
	}
	jd, ok := d.JDs[id]
	if !ok {
		return ErrJDNotFound
	}
	fn(jd)
	return s.write(d)
}

func (s *Store) MarkJDProcessing(id string) error {
	return s.UpdateJD(id, func(jd *types.JD) {
		jd.Status = types.JDStatusProcessing
		jd.Error = ""
	})
}

func (s *Store) CompleteJDAnalysis(id, analysis string, keywords []string) error {
	return s.UpdateJD(id, func(jd *types.JD) {
		jd.Status = types.JDStatusCompleted
		jd.Analysis = analysis
		jd.Keywords = keywords
		jd.AnalyzedAt = now()
		jd.Error = ""
	})
}

func (s *Store) FailJDAnalysis(id, message string) error {
	return s.UpdateJD(id, func(jd *types.JD) {
		jd.Status = types.JDStatusFailed
		jd.Error = message
	})
}

// DeleteJD removes the record and the role's back-reference, returning the
// removed record so the caller can clean up any uploaded file.
func (s *Store) DeleteJD(id string) (*types.JD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	jd, ok := d.JDs[id]
	if !ok {
		return nil, ErrJDNotFound
	}
	delete(d.JDs, id)
	if role, ok := d.Roles[jd.RoleID]; ok {
		kept := role.JDIDs[:0]
		for _, jdID := range role.JDIDs {
			if jdID != id {
				kept = append(kept, jdID)
			}
		}
		role.JDIDs = kept
	}
	if err := s.write(d); err != nil {
		return nil, err
	}
	return jd, nil
}

// DeleteRole removes the role and cascades to its job descriptions, returning
// the removed JDs for file cleanup.
func (s *Store) DeleteRole(id string) ([]*types.JD, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, err := s.read()
	if err != nil {
		return nil, err
	}
	role, ok := d.Roles[id]
	if !ok {
		return nil, ErrRoleNotFound
	}
	var removed []*types.JD
	for _, jdID := range role.JDIDs {
		if jd, ok := d.JDs[jdID]; ok {
			removed = append(removed, jd)
			delete(d.JDs, jdID)
		}
	}
	delete(d.Roles, id)
	if err := s.write(d); err != nil {
		return nil, err
	}
	return removed, nil
}

// KeywordSummary counts keyword occurrences across a role's completed job
// descriptions, normalized to lowercase and sorted by frequency.
func (s *Store) KeywordSummary(roleID string) ([]KeywordCount, error) {
	jds, err := s.JDsForRole(roleID)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	for _, jd := range jds {
		if jd.Status != types.JDStatusCompleted {
			continue
		}
		for _, kw := range jd.Keywords {
			normalized := strings.ToLower(strings.TrimSpace(kw))
			if normalized != "" {
				counts[normalized]++
			}
		}
	}

	out := make([]KeywordCount, 0, len(counts))
	for kw, n := range counts {
		out = append(out, KeywordCount{Keyword: kw, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Keyword < out[j].Keyword
	})
	return out, nil
}

// AggregateRoleKeywords joins the distinct keywords of a role's completed job
// descriptions, first-seen order, for use as enhancement context.
func (s *Store) AggregateRoleKeywords(roleID string) (string, error) {
	jds, err := s.JDsForRole(roleID)
	if err != nil {
		return "", err
	}

	seen := map[string]bool{}
	var ordered []string
	for _, jd := range jds {
		if jd.Status != types.JDStatusCompleted {
			continue
		}
		for _, kw := range jd.Keywords {
			normalized := strings.ToLower(strings.TrimSpace(kw))
			if normalized == "" || seen[normalized] {
				continue
			}
			seen[normalized] = true
			ordered = append(ordered, normalized)
		}
	}
	return strings.Join(ordered, ", "), nil
}
