package draft

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
)

// memSaver stores forms in memory, assigning ids the way the database does.
type memSaver struct {
	nextID  int64
	forms   map[int64]model.Form
	creates int
	saves   int
	fail    error
}

func newMemSaver() *memSaver {
	return &memSaver{nextID: 1, forms: map[int64]model.Form{}}
}

func (m *memSaver) assign(owner string, f *model.Form) model.Form {
	stored := *f
	stored.Owner = owner
	stored.Questions = nil
	for _, q := range f.Questions {
		q.ID = m.nextID
		m.nextID++
		q.FormID = stored.ID
		opts := q.AnswerOptions
		q.AnswerOptions = nil
		for _, o := range opts {
			o.ID = m.nextID
			m.nextID++
			o.QuestionID = q.ID
			q.AnswerOptions = append(q.AnswerOptions, o)
		}
		stored.Questions = append(stored.Questions, q)
	}
	stored.SortQuestions()
	m.forms[stored.ID] = stored
	return stored
}

func (m *memSaver) CreateForm(ctx context.Context, owner string, f *model.Form) (model.Form, error) {
	m.creates++
	if m.fail != nil {
		return model.Form{}, m.fail
	}
	f.ID = m.nextID
	m.nextID++
	return m.assign(owner, f), nil
}

func (m *memSaver) ReplaceForm(ctx context.Context, owner string, f *model.Form) (model.Form, error) {
	m.saves++
	if m.fail != nil {
		return model.Form{}, m.fail
	}
	if existing, ok := m.forms[f.ID]; !ok || existing.Owner != owner {
		return model.Form{}, errs.NotFoundf("mem.replace_form", "form %d not found", f.ID)
	}
	return m.assign(owner, f), nil
}

// validDraft returns a draft that passes validation: Q1 {A:30, B:10}, Q2 {C:40, D:0}.
func validDraft(t *testing.T) *Draft {
	t.Helper()

	d := New()
	d.ClientName = "Acme"
	d.Subdomain = "acme-leads"
	d.RedirectGood = "https://acme.test/good"
	d.RedirectBad = "https://acme.test/bad"

	for _, q := range []struct {
		text    string
		options map[string]int
		order   []string
	}{
		{"Budget?", map[string]int{"A": 30, "B": 10}, []string{"A", "B"}},
		{"Timeline?", map[string]int{"C": 40, "D": 0}, []string{"C", "D"}},
	} {
		qid := d.AddQuestion()
		mustOK(t, d.UpdateQuestion(qid, FieldQuestionText, q.text))
		for _, text := range q.order {
			oid, err := d.AddOption(qid)
			mustOK(t, err)
			mustOK(t, d.UpdateOption(qid, oid, FieldOptionText, text))
			mustOK(t, d.UpdateOption(qid, oid, FieldPoints, float64(q.options[text])))
		}
	}
	return d
}

func mustOK(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewDraftDefaults(t *testing.T) {
	d := New()
	if d.ScoreThreshold != DefaultThreshold || !d.IsActive || d.FormID != 0 {
		t.Errorf("unexpected defaults: %+v", d)
	}
}

func TestAddQuestion(t *testing.T) {
	d := New()
	first := d.AddQuestion()
	second := d.AddQuestion()

	if first == second {
		t.Fatal("expected distinct ids")
	}
	if first.IsPersisted() {
		t.Error("new question should carry a local id")
	}
	q := d.Questions[1]
	if q.ID != second || q.OrderIndex != 1 || q.QuestionType != model.SingleChoice ||
		q.QuestionText != "" || len(q.AnswerOptions) != 0 {
		t.Errorf("unexpected new question: %+v", q)
	}
}

func TestUpdateQuestion(t *testing.T) {
	d := New()
	id := d.AddQuestion()

	tests := []struct {
		name     string
		id       ID
		field    Field
		value    any
		wantKind errs.Kind
	}{
		{"text", id, FieldQuestionText, "Budget?", errs.Unknown},
		{"type", id, FieldQuestionType, "select", errs.Unknown},
		{"order", id, FieldOrderIndex, float64(7), errs.Unknown},
		{"bad type", id, FieldQuestionType, "checkbox", errs.Validation},
		{"text not a string", id, FieldQuestionText, 12.0, errs.Validation},
		{"fractional order", id, FieldOrderIndex, 1.5, errs.Validation},
		{"unknown field", id, FieldPoints, 1.0, errs.Validation},
		{"unknown question", Local(), FieldQuestionText, "x", errs.NotFound},
		{"zero id", ID{}, FieldQuestionText, "x", errs.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := d.UpdateQuestion(tt.id, tt.field, tt.value)
			if tt.wantKind == errs.Unknown {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errs.Is(err, tt.wantKind) {
				t.Errorf("expected %v error, got %v", tt.wantKind, err)
			}
		})
	}

	q := d.Questions[0]
	if q.QuestionText != "Budget?" || q.QuestionType != model.Dropdown || q.OrderIndex != 7 {
		t.Errorf("unexpected question after updates: %+v", q)
	}
}

func TestDeleteQuestionKeepsOrderIndexes(t *testing.T) {
	d := New()
	a := d.AddQuestion()
	b := d.AddQuestion()
	c := d.AddQuestion()

	mustOK(t, d.DeleteQuestion(a))
	if len(d.Questions) != 2 || d.Questions[0].ID != b || d.Questions[1].ID != c {
		t.Fatalf("unexpected questions after delete: %+v", d.Questions)
	}
	if d.Questions[0].OrderIndex != 1 || d.Questions[1].OrderIndex != 2 {
		t.Errorf("order indexes were renumbered: %d, %d", d.Questions[0].OrderIndex, d.Questions[1].OrderIndex)
	}

	added := d.AddQuestion()
	if d.Questions[2].ID != added || d.Questions[2].OrderIndex != 2 {
		t.Errorf("expected appended question at index 2, got %+v", d.Questions[2])
	}

	if err := d.DeleteQuestion(a); !errs.Is(err, errs.NotFound) {
		t.Errorf("deleting twice: expected NotFound, got %v", err)
	}
}

func TestOptions(t *testing.T) {
	d := New()
	qid := d.AddQuestion()

	o1, err := d.AddOption(qid)
	mustOK(t, err)
	o2, err := d.AddOption(qid)
	mustOK(t, err)

	mustOK(t, d.UpdateOption(qid, o1, FieldOptionText, "Yes"))
	mustOK(t, d.UpdateOption(qid, o1, FieldPoints, -5.0))
	mustOK(t, d.UpdateOption(qid, o2, FieldPoints, 0.0))

	opt := d.Questions[0].AnswerOptions[0]
	if opt.OptionText != "Yes" || opt.Points != -5 {
		t.Errorf("unexpected option: %+v", opt)
	}

	if err := d.UpdateOption(qid, Local(), FieldPoints, 1.0); !errs.Is(err, errs.NotFound) {
		t.Errorf("unknown option: expected NotFound, got %v", err)
	}
	if err := d.UpdateOption(qid, o1, FieldPoints, "ten"); !errs.Is(err, errs.Validation) {
		t.Errorf("bad points: expected Validation, got %v", err)
	}
	if _, err := d.AddOption(Local()); !errs.Is(err, errs.NotFound) {
		t.Errorf("unknown question: expected NotFound, got %v", err)
	}

	// an option id is scoped to its own question
	other := d.AddQuestion()
	if err := d.DeleteOption(other, o1); !errs.Is(err, errs.NotFound) {
		t.Errorf("option of another question: expected NotFound, got %v", err)
	}

	mustOK(t, d.DeleteOption(qid, o1))
	opts := d.Questions[0].AnswerOptions
	if len(opts) != 1 || opts[0].ID != o2 {
		t.Errorf("unexpected options after delete: %+v", opts)
	}
}

func TestSetField(t *testing.T) {
	d := New()
	mustOK(t, d.SetField(FieldClientName, "Acme"))
	mustOK(t, d.SetField(FieldScoreThreshold, 75.0))
	mustOK(t, d.SetField(FieldIsActive, false))
	mustOK(t, d.SetField(FieldGoogleSheetURL, "https://docs.google.com/spreadsheets/d/xyz/edit"))

	if d.ClientName != "Acme" || d.ScoreThreshold != 75 || d.IsActive || d.GoogleSheetURL == "" {
		t.Errorf("unexpected draft: %+v", d)
	}
	if err := d.SetField(FieldIsActive, "yes"); !errs.Is(err, errs.Validation) {
		t.Errorf("expected Validation, got %v", err)
	}
	if err := d.SetField(FieldQuestionText, "x"); !errs.Is(err, errs.Validation) {
		t.Errorf("question field on form: expected Validation, got %v", err)
	}
}

func TestIDJSON(t *testing.T) {
	local := Local()
	for _, id := range []ID{Persisted(42), local} {
		b, err := json.Marshal(id)
		mustOK(t, err)
		var back ID
		mustOK(t, json.Unmarshal(b, &back))
		if back != id {
			t.Errorf("round trip of %s gave %s", id, back)
		}
	}

	if b, _ := json.Marshal(Persisted(42)); string(b) != "42" {
		t.Errorf("persisted id encoded as %s", b)
	}

	parsed, err := ParseID(local.String())
	if err != nil || parsed != local {
		t.Errorf("ParseID(%q) = %v, %v", local.String(), parsed, err)
	}
	for _, bad := range []string{"", "abc", "-3", "draft:"} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("ParseID(%q) should fail", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := validDraft(t).Validate(); err != nil {
		t.Fatalf("valid draft rejected: %v", err)
	}

	d := validDraft(t)
	d.ClientName = " "
	d.Subdomain = "Not A Slug"
	d.ScoreThreshold = 101
	d.RedirectGood = "/relative"
	d.RedirectBad = "ftp://acme.test"
	d.GoogleSheetURL = "https://example.com/sheet"
	d.Questions[0].QuestionText = ""
	d.Questions[1].AnswerOptions = nil

	err := d.Validate()
	if !errs.Is(err, errs.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		t.Fatalf("expected a multierror, got %T", err)
	}
	if len(merr.Errors) != 8 {
		t.Errorf("expected 8 problems, got %d: %v", len(merr.Errors), merr.Errors)
	}

	d = validDraft(t)
	d.Questions[1].QuestionText = " Budget? "
	err = d.Validate()
	if !errors.As(err, &merr) || len(merr.Errors) != 1 {
		t.Errorf("repeated question text: expected 1 problem, got %v", err)
	}
	if err := d.Save(context.Background(), newMemSaver(), "alice"); !errs.Is(err, errs.Validation) {
		t.Errorf("repeated question text: Save() should refuse, got %v", err)
	}

	d = validDraft(t)
	d.ScoreThreshold = 0
	d.GoogleSheetURL = ""
	if err := d.Validate(); err != nil {
		t.Errorf("threshold 0 without sheet should be valid: %v", err)
	}
}

func TestSaveNewForm(t *testing.T) {
	saver := newMemSaver()
	d := validDraft(t)

	mustOK(t, d.Save(context.Background(), saver, "alice"))

	if saver.creates != 1 || saver.saves != 0 {
		t.Errorf("expected one create, got creates=%d saves=%d", saver.creates, saver.saves)
	}
	if d.FormID == 0 {
		t.Fatal("expected draft to carry the stored form id")
	}
	for _, q := range d.Questions {
		if !q.ID.IsPersisted() {
			t.Errorf("question %s still local after save", q.ID)
		}
		for _, o := range q.AnswerOptions {
			if !o.ID.IsPersisted() {
				t.Errorf("option %s still local after save", o.ID)
			}
		}
	}

	mustOK(t, d.Save(context.Background(), saver, "alice"))
	if saver.creates != 1 || saver.saves != 1 {
		t.Errorf("second save should replace: creates=%d saves=%d", saver.creates, saver.saves)
	}
}

func TestSaveIsIdempotent(t *testing.T) {
	saver := newMemSaver()
	d := validDraft(t)
	ctx := context.Background()

	mustOK(t, d.Save(ctx, saver, "alice"))
	first := d.Form()
	mustOK(t, d.Save(ctx, saver, "alice"))
	second := d.Form()

	if !reflect.DeepEqual(first, second) {
		t.Errorf("structure changed between saves:\n%+v\n%+v", first, second)
	}
}

func TestDeletedQuestionLeavesNextSave(t *testing.T) {
	saver := newMemSaver()
	d := validDraft(t)
	ctx := context.Background()
	mustOK(t, d.Save(ctx, saver, "alice"))

	mustOK(t, d.DeleteQuestion(d.Questions[0].ID))
	d.AddQuestion()
	if stored := saver.forms[d.FormID]; len(stored.Questions) != 2 || saver.saves != 0 {
		t.Fatalf("store changed before save: %+v", stored)
	}

	mustOK(t, d.DeleteQuestion(d.Questions[1].ID))
	mustOK(t, d.Save(ctx, saver, "alice"))

	stored := saver.forms[d.FormID]
	if len(stored.Questions) != 1 || stored.Questions[0].QuestionText != "Timeline?" {
		t.Errorf("unexpected stored subtree: %+v", stored.Questions)
	}
}

func TestSaveFailureLeavesDraftUnchanged(t *testing.T) {
	saver := newMemSaver()
	saver.fail = errs.Wrap(errs.Store, errors.New("connection reset"), "mem.create_form")
	d := validDraft(t)
	before := d.Clone()

	err := d.Save(context.Background(), saver, "alice")
	if !errs.Is(err, errs.Store) {
		t.Fatalf("expected Store error, got %v", err)
	}
	if !reflect.DeepEqual(before, d) {
		t.Error("draft was modified by a failed save")
	}

	saver.fail = nil
	mustOK(t, d.Save(context.Background(), saver, "alice"))
}

func TestSaveRejectsInvalidDraft(t *testing.T) {
	saver := newMemSaver()
	d := validDraft(t)
	d.Subdomain = ""

	if err := d.Save(context.Background(), saver, "alice"); !errs.Is(err, errs.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
	if saver.creates != 0 {
		t.Error("invalid draft reached the store")
	}
	if err := validDraft(t).Save(context.Background(), saver, ""); !errs.Is(err, errs.Auth) {
		t.Errorf("save without owner: expected Auth, got %v", err)
	}
}

func TestWorkspace(t *testing.T) {
	w := NewWorkspace()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	token := w.Open("alice", New())

	err := w.With("alice", token, func(d *Draft) error {
		d.AddQuestion()
		return nil
	})
	mustOK(t, err)

	if err := w.With("bob", token, func(*Draft) error { return nil }); !errs.Is(err, errs.NotFound) {
		t.Errorf("other owner: expected NotFound, got %v", err)
	}
	if err := w.Discard("bob", token); !errs.Is(err, errs.NotFound) {
		t.Errorf("other owner discard: expected NotFound, got %v", err)
	}

	var count int
	mustOK(t, w.With("alice", token, func(d *Draft) error {
		count = len(d.Questions)
		return nil
	}))
	if count != 1 {
		t.Errorf("expected edit to persist in workspace, got %d questions", count)
	}

	stale := w.Open("alice", New())
	now = now.Add(2 * time.Hour)
	mustOK(t, w.With("alice", token, func(*Draft) error { return nil }))
	if n := w.Sweep(time.Hour); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if err := w.With("alice", stale, func(*Draft) error { return nil }); !errs.Is(err, errs.NotFound) {
		t.Errorf("swept draft: expected NotFound, got %v", err)
	}

	mustOK(t, w.Discard("alice", token))
	if err := w.With("alice", token, func(*Draft) error { return nil }); !errs.Is(err, errs.NotFound) {
		t.Errorf("discarded draft: expected NotFound, got %v", err)
	}
}
