package model

import (
	"sort"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type QuestionType string

const (
	SingleChoice QuestionType = "radio"
	Dropdown     QuestionType = "select"
)

func (t QuestionType) Valid() bool {
	return t == SingleChoice || t == Dropdown
}

type Form struct {
	ID             int64      `json:"id,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	ClientName     string     `json:"client_name"`
	Subdomain      string     `json:"subdomain"`
	ScoreThreshold int        `json:"score_threshold"`
	RedirectGood   string     `json:"redirect_good_url"`
	RedirectBad    string     `json:"redirect_bad_url"`
	IsActive       bool       `json:"is_active"`
	GoogleSheetURL string     `json:"google_sheet_url,omitempty"`
	CreatedAt      time.Time  `json:"created_at,omitempty"`
	Questions      []Question `json:"questions"`
}

type Question struct {
	ID            int64          `json:"id,omitempty"`
	FormID        int64          `json:"form_id,omitempty"`
	QuestionText  string         `json:"question_text"`
	QuestionType  QuestionType   `json:"question_type"`
	OrderIndex    int            `json:"order_index"`
	AnswerOptions []AnswerOption `json:"answer_options"`
}

type AnswerOption struct {
	ID         int64  `json:"id,omitempty"`
	QuestionID int64  `json:"question_id,omitempty"`
	OptionText string `json:"option_text"`
	Points     int    `json:"points"`
}

// SortQuestions orders questions by OrderIndex. Equal indexes keep their
// stored relative order.
func (f *Form) SortQuestions() {
	sort.SliceStable(f.Questions, func(i, j int) bool {
		return f.Questions[i].OrderIndex < f.Questions[j].OrderIndex
	})
}

// Option returns the option of q with the given id.
func (q Question) Option(id int64) (AnswerOption, bool) {
	for _, o := range q.AnswerOptions {
		if o.ID == id {
			return o, true
		}
	}
	return AnswerOption{}, false
}

// SubmittedData maps question text to the chosen option text, in question order.
type SubmittedData = orderedmap.OrderedMap[string, string]

func NewSubmittedData() *SubmittedData {
	return orderedmap.New[string, string]()
}

type Submission struct {
	ID              int64             `json:"id,omitempty"`
	FormID          int64             `json:"form_id"`
	CalculatedScore int               `json:"calculated_score"`
	SubmittedData   *SubmittedData    `json:"submitted_data"`
	UTMParams       map[string]string `json:"utm_params"`
	CreatedAt       time.Time         `json:"created_at"`
}

type KPIs struct {
	TotalForms       int `json:"total_forms"`
	ActiveForms      int `json:"active_forms"`
	TotalSubmissions int `json:"total_submissions"`
}

type FormSummary struct {
	ID              int64  `json:"id"`
	ClientName      string `json:"client_name"`
	Subdomain       string `json:"subdomain"`
	ScoreThreshold  int    `json:"score_threshold"`
	IsActive        bool   `json:"is_active"`
	SubmissionCount int    `json:"submission_count"`
}
