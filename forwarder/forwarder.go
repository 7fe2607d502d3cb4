// Package forwarder relays recorded submissions to the spreadsheet
// configured on their form.
//
// Forwarding is best effort. Submissions are queued after they are stored,
// delivered by a background worker, and dropped with a log line if the
// queue is full or the spreadsheet API refuses them. Nothing here is ever
// reported back to the respondent, and nothing is retried.
package forwarder

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/log"
	"github.com/mbolis/lead-scorer/model"
)

var reSpreadsheet = regexp.MustCompile(`^https://docs\.google\.com/spreadsheets/d/([A-Za-z0-9_-]+)`)

// SpreadsheetID extracts the document id from a Google Sheets URL.
func SpreadsheetID(url string) (string, bool) {
	m := reSpreadsheet.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Appender writes one row at the end of a spreadsheet range.
type Appender interface {
	Append(ctx context.Context, spreadsheetID, cellRange string, row []any) error
}

// SheetLookup finds the spreadsheet URL of a form; "" means none.
type SheetLookup interface {
	SheetURL(ctx context.Context, formID int64) (string, error)
}

// TimeLayout renders submission times the way the spreadsheets expect them.
const TimeLayout = "02/01/2006, 15:04:05"

type Forwarder struct {
	lookup    SheetLookup
	appender  Appender
	cellRange string
	loc       *time.Location
}

func New(lookup SheetLookup, appender Appender, cellRange string, loc *time.Location) *Forwarder {
	if loc == nil {
		loc = time.UTC
	}
	return &Forwarder{
		lookup:    lookup,
		appender:  appender,
		cellRange: cellRange,
		loc:       loc,
	}
}

// Forward appends sub to its form's spreadsheet. A form without a
// spreadsheet is skipped without error.
func (f *Forwarder) Forward(ctx context.Context, sub model.Submission) error {
	url, err := f.lookup.SheetURL(ctx, sub.FormID)
	if err != nil {
		return err
	}
	if url == "" {
		log.Debugf("forwarder: form %d has no spreadsheet, skipping submission %d", sub.FormID, sub.ID)
		return nil
	}

	id, ok := SpreadsheetID(url)
	if !ok {
		return errs.Validationf("forwarder.spreadsheet_id", "cannot find a spreadsheet id in %q", url)
	}

	row, err := f.Row(sub)
	if err != nil {
		return err
	}

	err = f.appender.Append(ctx, id, f.cellRange, row)
	if err != nil {
		return errs.Wrap(errs.Store, err, "forwarder.append")
	}
	return nil
}

// Row lays sub out as [time, form id, score, answers, utm params].
func (f *Forwarder) Row(sub model.Submission) ([]any, error) {
	data := sub.SubmittedData
	if data == nil {
		data = model.NewSubmittedData()
	}
	dataJson, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "forwarder.encode_data")
	}

	utm := sub.UTMParams
	if utm == nil {
		utm = map[string]string{}
	}
	utmJson, err := json.MarshalIndent(utm, "", "  ")
	if err != nil {
		return nil, errs.Wrap(errs.Unknown, err, "forwarder.encode_utm")
	}

	return []any{
		sub.CreatedAt.In(f.loc).Format(TimeLayout),
		sub.FormID,
		sub.CalculatedScore,
		string(dataJson),
		string(utmJson),
	}, nil
}
