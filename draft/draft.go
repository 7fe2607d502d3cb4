// Package draft is the form builder's editing model: an in-memory copy of a
// form tree that can be reshaped freely and is written to the store only by
// Save.
//
// Questions and options added while editing carry Local ids until the first
// successful save, after which the whole draft is rebuilt from the stored
// tree and every id is Persisted. Deleting a question never renumbers the
// order_index of the ones left behind, so indexes may have gaps, and adding
// after a delete may produce ties; ties keep insertion order when sorted.
package draft

import (
	"context"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
)

// Field names an editable attribute of a form, question or option.
type Field string

const (
	FieldClientName     Field = "client_name"
	FieldSubdomain      Field = "subdomain"
	FieldScoreThreshold Field = "score_threshold"
	FieldRedirectGood   Field = "redirect_good_url"
	FieldRedirectBad    Field = "redirect_bad_url"
	FieldIsActive       Field = "is_active"
	FieldGoogleSheetURL Field = "google_sheet_url"

	FieldQuestionText Field = "question_text"
	FieldQuestionType Field = "question_type"
	FieldOrderIndex   Field = "order_index"

	FieldOptionText Field = "option_text"
	FieldPoints     Field = "points"
)

type Option struct {
	ID         ID     `json:"id"`
	OptionText string `json:"option_text"`
	Points     int    `json:"points"`
}

type Question struct {
	ID            ID                 `json:"id"`
	QuestionText  string             `json:"question_text"`
	QuestionType  model.QuestionType `json:"question_type"`
	OrderIndex    int                `json:"order_index"`
	AnswerOptions []Option           `json:"answer_options"`
}

// Draft mirrors a form. FormID is zero until the form has been stored.
type Draft struct {
	FormID         int64      `json:"form_id,omitempty"`
	ClientName     string     `json:"client_name"`
	Subdomain      string     `json:"subdomain"`
	ScoreThreshold int        `json:"score_threshold"`
	RedirectGood   string     `json:"redirect_good_url"`
	RedirectBad    string     `json:"redirect_bad_url"`
	IsActive       bool       `json:"is_active"`
	GoogleSheetURL string     `json:"google_sheet_url"`
	Questions      []Question `json:"questions"`
}

// DefaultThreshold is the score a new form starts with.
const DefaultThreshold = 60

// New returns the draft of a form that does not exist yet.
func New() *Draft {
	return &Draft{
		ScoreThreshold: DefaultThreshold,
		IsActive:       true,
		Questions:      []Question{},
	}
}

// FromForm copies a stored form into a draft.
func FromForm(f model.Form) *Draft {
	d := &Draft{
		FormID:         f.ID,
		ClientName:     f.ClientName,
		Subdomain:      f.Subdomain,
		ScoreThreshold: f.ScoreThreshold,
		RedirectGood:   f.RedirectGood,
		RedirectBad:    f.RedirectBad,
		IsActive:       f.IsActive,
		GoogleSheetURL: f.GoogleSheetURL,
		Questions:      make([]Question, 0, len(f.Questions)),
	}
	for _, q := range f.Questions {
		dq := Question{
			ID:            Persisted(q.ID),
			QuestionText:  q.QuestionText,
			QuestionType:  q.QuestionType,
			OrderIndex:    q.OrderIndex,
			AnswerOptions: make([]Option, 0, len(q.AnswerOptions)),
		}
		for _, o := range q.AnswerOptions {
			dq.AnswerOptions = append(dq.AnswerOptions, Option{
				ID:         Persisted(o.ID),
				OptionText: o.OptionText,
				Points:     o.Points,
			})
		}
		d.Questions = append(d.Questions, dq)
	}
	return d
}

// Form builds the tree that Save hands to the store. Ids are dropped: the
// store assigns fresh ones on every save.
func (d *Draft) Form() model.Form {
	f := model.Form{
		ID:             d.FormID,
		ClientName:     d.ClientName,
		Subdomain:      d.Subdomain,
		ScoreThreshold: d.ScoreThreshold,
		RedirectGood:   d.RedirectGood,
		RedirectBad:    d.RedirectBad,
		IsActive:       d.IsActive,
		GoogleSheetURL: d.GoogleSheetURL,
		Questions:      make([]model.Question, 0, len(d.Questions)),
	}
	for _, q := range d.Questions {
		mq := model.Question{
			QuestionText:  q.QuestionText,
			QuestionType:  q.QuestionType,
			OrderIndex:    q.OrderIndex,
			AnswerOptions: make([]model.AnswerOption, 0, len(q.AnswerOptions)),
		}
		for _, o := range q.AnswerOptions {
			mq.AnswerOptions = append(mq.AnswerOptions, model.AnswerOption{
				OptionText: o.OptionText,
				Points:     o.Points,
			})
		}
		f.Questions = append(f.Questions, mq)
	}
	return f
}

// Clone returns a deep copy of d.
func (d *Draft) Clone() *Draft {
	c := *d
	c.Questions = make([]Question, len(d.Questions))
	for i, q := range d.Questions {
		opts := make([]Option, len(q.AnswerOptions))
		copy(opts, q.AnswerOptions)
		q.AnswerOptions = opts
		c.Questions[i] = q
	}
	return &c
}

// SetField updates a form-level attribute. A value of the wrong type leaves
// the draft untouched.
func (d *Draft) SetField(field Field, value any) error {
	text := map[Field]*string{
		FieldClientName:     &d.ClientName,
		FieldSubdomain:      &d.Subdomain,
		FieldRedirectGood:   &d.RedirectGood,
		FieldRedirectBad:    &d.RedirectBad,
		FieldGoogleSheetURL: &d.GoogleSheetURL,
	}
	if dst, ok := text[field]; ok {
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		*dst = s
		return nil
	}

	switch field {
	case FieldScoreThreshold:
		n, err := asInt(field, value)
		if err != nil {
			return err
		}
		d.ScoreThreshold = n
	case FieldIsActive:
		b, err := asBool(field, value)
		if err != nil {
			return err
		}
		d.IsActive = b
	default:
		return unknownField("draft.set_field", field)
	}
	return nil
}

// AddQuestion appends an empty single-choice question and returns its id.
func (d *Draft) AddQuestion() ID {
	id := Local()
	d.Questions = append(d.Questions, Question{
		ID:            id,
		QuestionType:  model.SingleChoice,
		OrderIndex:    len(d.Questions),
		AnswerOptions: []Option{},
	})
	return id
}

func (d *Draft) UpdateQuestion(id ID, field Field, value any) error {
	q, err := d.question("draft.update_question", id)
	if err != nil {
		return err
	}

	switch field {
	case FieldQuestionText:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		q.QuestionText = s
	case FieldQuestionType:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		t := model.QuestionType(s)
		if !t.Valid() {
			return errs.Validationf("draft.update_question", "unknown question_type %q", s)
		}
		q.QuestionType = t
	case FieldOrderIndex:
		n, err := asInt(field, value)
		if err != nil {
			return err
		}
		q.OrderIndex = n
	default:
		return unknownField("draft.update_question", field)
	}
	return nil
}

// DeleteQuestion removes a question with all of its options. The order_index
// of the remaining questions is left as it was.
func (d *Draft) DeleteQuestion(id ID) error {
	i := d.questionIndex(id)
	if i < 0 {
		return errs.NotFoundf("draft.delete_question", "question %s not found", id)
	}
	d.Questions = append(d.Questions[:i], d.Questions[i+1:]...)
	return nil
}

// AddOption appends an empty, zero-point option to a question.
func (d *Draft) AddOption(questionID ID) (ID, error) {
	q, err := d.question("draft.add_option", questionID)
	if err != nil {
		return ID{}, err
	}
	id := Local()
	q.AnswerOptions = append(q.AnswerOptions, Option{ID: id})
	return id, nil
}

func (d *Draft) UpdateOption(questionID, optionID ID, field Field, value any) error {
	q, err := d.question("draft.update_option", questionID)
	if err != nil {
		return err
	}
	i := optionIndex(q, optionID)
	if i < 0 {
		return errs.NotFoundf("draft.update_option", "option %s not found in question %s", optionID, questionID)
	}
	o := &q.AnswerOptions[i]

	switch field {
	case FieldOptionText:
		s, err := asString(field, value)
		if err != nil {
			return err
		}
		o.OptionText = s
	case FieldPoints:
		n, err := asInt(field, value)
		if err != nil {
			return err
		}
		o.Points = n
	default:
		return unknownField("draft.update_option", field)
	}
	return nil
}

func (d *Draft) DeleteOption(questionID, optionID ID) error {
	q, err := d.question("draft.delete_option", questionID)
	if err != nil {
		return err
	}
	i := optionIndex(q, optionID)
	if i < 0 {
		return errs.NotFoundf("draft.delete_option", "option %s not found in question %s", optionID, questionID)
	}
	q.AnswerOptions = append(q.AnswerOptions[:i], q.AnswerOptions[i+1:]...)
	return nil
}

// Saver persists a whole form tree.
type Saver interface {
	CreateForm(ctx context.Context, owner string, f *model.Form) (model.Form, error)
	ReplaceForm(ctx context.Context, owner string, f *model.Form) (model.Form, error)
}

// Save validates the draft and writes it for owner: a new form is created
// with its subtree, an existing one has its subtree replaced wholesale. On
// success the draft is rebuilt from the stored tree; on failure it is left
// exactly as it was so the save can be retried.
func (d *Draft) Save(ctx context.Context, s Saver, owner string) error {
	if owner == "" {
		return errs.New(errs.Auth, "draft.save", "no session")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	f := d.Form()
	var (
		stored model.Form
		err    error
	)
	if d.FormID == 0 {
		stored, err = s.CreateForm(ctx, owner, &f)
	} else {
		stored, err = s.ReplaceForm(ctx, owner, &f)
	}
	if err != nil {
		return err
	}

	*d = *FromForm(stored)
	return nil
}

func (d *Draft) question(code string, id ID) (*Question, error) {
	i := d.questionIndex(id)
	if i < 0 {
		return nil, errs.NotFoundf(code, "question %s not found", id)
	}
	return &d.Questions[i], nil
}

func (d *Draft) questionIndex(id ID) int {
	if id.IsZero() {
		return -1
	}
	for i := range d.Questions {
		if d.Questions[i].ID == id {
			return i
		}
	}
	return -1
}

func optionIndex(q *Question, id ID) int {
	if id.IsZero() {
		return -1
	}
	for i := range q.AnswerOptions {
		if q.AnswerOptions[i].ID == id {
			return i
		}
	}
	return -1
}
