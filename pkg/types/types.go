package types

import "encoding/json"

// =============== structured resume TYPES ===============

type ContactInfo struct {
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	LinkedIn string `json:"linkedin,omitempty"`
	Location string `json:"location"`
}

type ExperienceEntry struct {
	Company         string   `json:"company"`
	Location        string   `json:"location,omitempty"`
	Dates           string   `json:"dates"`
	Title           string   `json:"title"`
	Accomplishments []string `json:"accomplishments"`
}

type EducationEntry struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Date        string `json:"date"`
}

// SkillSet holds skills grouped by category. The model is asked for the
// categorized form but sometimes returns a flat list instead; that case is
// folded into a single "Skills" category.
type SkillSet map[string][]string

func (s *SkillSet) UnmarshalJSON(data []byte) error {
	var categorized map[string][]string
	if err := json.Unmarshal(data, &categorized); err == nil {
		*s = categorized
		return nil
	}
	var flat []string
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	if len(flat) > 0 {
		*s = SkillSet{"Skills": flat}
	}
	return nil
}

type StructuredResume struct {
	Name        string            `json:"name"`
	ContactInfo ContactInfo       `json:"contactInfo"`
	Summary     string            `json:"summary"`
	Experience  []ExperienceEntry `json:"experience"`
	Education   []EducationEntry  `json:"education"`
	Skills      SkillSet          `json:"skills"`
}

// Clone returns a deep copy, so a caller can substitute accomplishment text
// without touching the original held in the job ledger.
func (r *StructuredResume) Clone() *StructuredResume {
	out := *r
	out.Experience = make([]ExperienceEntry, len(r.Experience))
	for i, exp := range r.Experience {
		exp.Accomplishments = append([]string(nil), exp.Accomplishments...)
		out.Experience[i] = exp
	}
	out.Education = append([]EducationEntry(nil), r.Education...)
	if r.Skills != nil {
		out.Skills = make(SkillSet, len(r.Skills))
		for category, list := range r.Skills {
			out.Skills[category] = append([]string(nil), list...)
		}
	}
	return &out
}

// =============== enhancement TYPES ===============

// PointResult is the outcome of enhancing a single accomplishment point.
// Results are append-only and never mutated once recorded.
type PointResult struct {
	Original    string   `json:"original"`
	Suggestions []string `json:"suggestions"`
	IsRelevant  bool     `json:"isRelevant"`
	IsDefault   bool     `json:"isDefault"`
	Error       string   `json:"error,omitempty"`
}

type EventType string

const (
	EventConnected      EventType = "connected"
	EventProgress       EventType = "progress"
	EventPointProcessed EventType = "point_processed"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Event is the unit pushed over a job's stream channel.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

type ProgressPayload struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message"`
}

type MessagePayload struct {
	Message string `json:"message"`
}

// =============== role / JD TYPES ===============

type JDType string

const (
	JDTypeURL JDType = "url"
	JDTypePDF JDType = "pdf"
)

type JDStatus string

const (
	JDStatusPending    JDStatus = "pending"
	JDStatusProcessing JDStatus = "processing"
	JDStatusCompleted  JDStatus = "completed"
	JDStatusFailed     JDStatus = "failed"
)

type Role struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	JDIDs     []string `json:"jdIds"`
	CreatedAt string   `json:"createdAt"`
}

type JD struct {
	ID               string   `json:"id"`
	RoleID           string   `json:"roleId"`
	Type             JDType   `json:"type"`
	Source           string   `json:"source"`
	OriginalFilename string   `json:"originalFilename,omitempty"`
	Status           JDStatus `json:"status"`
	Analysis         string   `json:"analysis,omitempty"`
	Keywords         []string `json:"keywords"`
	CreatedAt        string   `json:"createdAt"`
	AnalyzedAt       string   `json:"analyzedAt,omitempty"`
	Error            string   `json:"error,omitempty"`
}
