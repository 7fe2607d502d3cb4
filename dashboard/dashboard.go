// Package dashboard assembles the owner's overview: headline counts and the
// per-form list. The two reads are independent; each one that succeeds is
// shown even when the other fails.
package dashboard

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/mbolis/lead-scorer/model"
)

// Source provides the two aggregations the dashboard is built from.
type Source interface {
	KPIs(ctx context.Context, owner string) (model.KPIs, error)
	FormSummaries(ctx context.Context, owner string) ([]model.FormSummary, error)
}

// View is a possibly partial dashboard. A nil field means its read failed.
type View struct {
	KPIs  *model.KPIs         `json:"kpis"`
	Forms []model.FormSummary `json:"forms"`
}

// Complete reports whether both reads succeeded.
func (v View) Complete() bool {
	return v.KPIs != nil && v.Forms != nil
}

// Load issues both reads concurrently and waits for both. The returned error
// joins every failed read; the view still carries whatever succeeded.
func Load(ctx context.Context, src Source, owner string) (View, error) {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		view View
		merr *multierror.Error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		kpis, err := src.KPIs(ctx, owner)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			merr = multierror.Append(merr, err)
			return
		}
		view.KPIs = &kpis
	}()
	go func() {
		defer wg.Done()
		forms, err := src.FormSummaries(ctx, owner)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			merr = multierror.Append(merr, err)
			return
		}
		if forms == nil {
			forms = []model.FormSummary{}
		}
		view.Forms = forms
	}()
	wg.Wait()

	return view, merr.ErrorOrNil()
}

// Merge fills the failed parts of v from the last good view.
func Merge(v, lastGood View) View {
	if v.KPIs == nil {
		v.KPIs = lastGood.KPIs
	}
	if v.Forms == nil {
		v.Forms = lastGood.Forms
	}
	return v
}

// Parts of a View, as reported by Board.Load when their read fails.
const (
	PartKPIs  = "kpis"
	PartForms = "forms"
)

// Board remembers the last view served to each owner so that a failed read
// shows the previous values instead of nothing.
type Board struct {
	src Source

	mu       sync.Mutex
	lastGood map[string]View
}

func NewBoard(src Source) *Board {
	return &Board{src: src, lastGood: map[string]View{}}
}

// Load reads the owner's dashboard and returns it together with the parts
// whose read failed. A failed part keeps the value it had the last time it
// was read, or stays nil if it never was.
func (b *Board) Load(ctx context.Context, owner string) (View, []string, error) {
	v, err := Load(ctx, b.src, owner)

	var failed []string
	if v.KPIs == nil {
		failed = append(failed, PartKPIs)
	}
	if v.Forms == nil {
		failed = append(failed, PartForms)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if !v.Complete() {
		v = Merge(v, b.lastGood[owner])
	}
	if v.KPIs != nil || v.Forms != nil {
		b.lastGood[owner] = v
	}
	return v, failed, err
}
