package forwarder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
)

type fakeLookup map[int64]string

func (f fakeLookup) SheetURL(ctx context.Context, formID int64) (string, error) {
	url, ok := f[formID]
	if !ok {
		return "", errs.NotFoundf("fake.sheet_url", "form %d not found", formID)
	}
	return url, nil
}

type appended struct {
	spreadsheetID string
	cellRange     string
	row           []any
}

type fakeAppender struct {
	mu   sync.Mutex
	rows []appended
	err  error
}

func (f *fakeAppender) Append(ctx context.Context, spreadsheetID, cellRange string, row []any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, appended{spreadsheetID, cellRange, row})
	return nil
}

func (f *fakeAppender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func sampleSubmission(formID int64) model.Submission {
	data := model.NewSubmittedData()
	data.Set("Budget?", "A")
	data.Set("Timeline?", "C")
	return model.Submission{
		ID:              7,
		FormID:          formID,
		CalculatedScore: 70,
		SubmittedData:   data,
		UTMParams:       map[string]string{"utm_source": "ads"},
		CreatedAt:       time.Date(2026, 3, 5, 15, 4, 5, 0, time.UTC),
	}
}

func TestSpreadsheetID(t *testing.T) {
	tests := []struct {
		url    string
		want   string
		wantOK bool
	}{
		{"https://docs.google.com/spreadsheets/d/1AbC_d-9/edit#gid=0", "1AbC_d-9", true},
		{"https://docs.google.com/spreadsheets/d/xyz", "xyz", true},
		{"https://docs.google.com/document/d/xyz/edit", "", false},
		{"https://example.com/spreadsheets/d/xyz", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := SpreadsheetID(tt.url)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("SpreadsheetID(%q) = %q, %v; want %q, %v", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestForward(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	app := &fakeAppender{}
	f := New(fakeLookup{
		1: "https://docs.google.com/spreadsheets/d/sheet-1/edit",
		2: "",
	}, app, "Leads!A1", loc)

	if err := f.Forward(context.Background(), sampleSubmission(1)); err != nil {
		t.Fatalf("Forward() error = %v", err)
	}
	if app.count() != 1 {
		t.Fatalf("expected 1 row, got %d", app.count())
	}

	got := app.rows[0]
	if got.spreadsheetID != "sheet-1" || got.cellRange != "Leads!A1" {
		t.Errorf("appended to %s %s", got.spreadsheetID, got.cellRange)
	}
	if len(got.row) != 5 {
		t.Fatalf("expected 5 cells, got %d", len(got.row))
	}
	if got.row[0] != "05/03/2026, 12:04:05" {
		t.Errorf("timestamp cell = %v", got.row[0])
	}
	if got.row[1] != int64(1) || got.row[2] != 70 {
		t.Errorf("form/score cells = %v, %v", got.row[1], got.row[2])
	}
	data := got.row[3].(string)
	if strings.Index(data, "Budget?") > strings.Index(data, "Timeline?") {
		t.Errorf("answers out of order: %s", data)
	}
	if !strings.Contains(got.row[4].(string), `"utm_source": "ads"`) {
		t.Errorf("utm cell = %v", got.row[4])
	}

	// no spreadsheet configured
	if err := f.Forward(context.Background(), sampleSubmission(2)); err != nil {
		t.Errorf("Forward() without sheet should be a no-op, got %v", err)
	}
	if app.count() != 1 {
		t.Errorf("expected no new rows, got %d", app.count())
	}

	if err := f.Forward(context.Background(), sampleSubmission(3)); !errs.Is(err, errs.NotFound) {
		t.Errorf("unknown form: expected NotFound, got %v", err)
	}

	app.err = errors.New("quota exceeded")
	if err := f.Forward(context.Background(), sampleSubmission(1)); !errs.Is(err, errs.Store) {
		t.Errorf("append failure: expected Store error, got %v", err)
	}
}

func TestRowWithEmptyMaps(t *testing.T) {
	f := New(fakeLookup{}, &fakeAppender{}, "A1", nil)
	row, err := f.Row(model.Submission{FormID: 1})
	if err != nil {
		t.Fatalf("Row() error = %v", err)
	}
	if row[3] != "{}" || row[4] != "{}" {
		t.Errorf("expected empty objects, got %v and %v", row[3], row[4])
	}
}

type recordingSender struct {
	mu   sync.Mutex
	got  []int64
	fail bool
	gate chan struct{}
}

func (s *recordingSender) Forward(ctx context.Context, sub model.Submission) error {
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, sub.ID)
	if s.fail {
		return errors.New("boom")
	}
	return nil
}

func TestQueueDeliversAndDrains(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, 10, time.Second)

	for i := int64(1); i <= 5; i++ {
		if !q.Enqueue(model.Submission{ID: i}) {
			t.Fatalf("Enqueue(%d) dropped", i)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if len(sender.got) != 5 {
		t.Errorf("expected 5 deliveries, got %v", sender.got)
	}
	if q.Enqueue(model.Submission{ID: 6}) {
		t.Error("Enqueue after Close should drop")
	}
}

func TestQueueDropsWhenFull(t *testing.T) {
	sender := &recordingSender{gate: make(chan struct{})}
	q := NewQueue(sender, 1, time.Second)

	// the worker takes the first one and blocks on the gate
	q.Enqueue(model.Submission{ID: 1})
	deadline := time.Now().Add(2 * time.Second)
	for len(q.ch) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if !q.Enqueue(model.Submission{ID: 2}) {
		t.Fatal("second submission should fit in the buffer")
	}
	if q.Enqueue(model.Submission{ID: 3}) {
		t.Error("third submission should be dropped")
	}

	close(sender.gate)
	q.Close(context.Background())
	if len(sender.got) != 2 {
		t.Errorf("expected 2 deliveries, got %v", sender.got)
	}
}

type memSubmissions struct {
	next int64
	err  error
}

func (m *memSubmissions) InsertSubmission(ctx context.Context, sub *model.Submission) error {
	if m.err != nil {
		return m.err
	}
	m.next++
	sub.ID = m.next
	sub.CreatedAt = time.Now()
	return nil
}

func TestRecorderQueuesOnlyStoredSubmissions(t *testing.T) {
	sender := &recordingSender{}
	q := NewQueue(sender, 10, time.Second)
	store := &memSubmissions{}
	r := NewRecorder(store, q)

	sub := &model.Submission{FormID: 1}
	if err := r.RecordSubmission(context.Background(), sub); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if sub.ID != 1 {
		t.Errorf("expected id to be assigned, got %d", sub.ID)
	}

	store.err = errs.Wrap(errs.Store, errors.New("disk full"), "mem.insert")
	if err := r.RecordSubmission(context.Background(), &model.Submission{FormID: 1}); !errs.Is(err, errs.Store) {
		t.Errorf("expected Store error, got %v", err)
	}

	q.Close(context.Background())
	if len(sender.got) != 1 || sender.got[0] != 1 {
		t.Errorf("expected only the stored submission to be forwarded, got %v", sender.got)
	}
}
