package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
)

// InsertSubmission durably records sub, filling in its ID and CreatedAt.
func (s *Store) InsertSubmission(ctx context.Context, sub *model.Submission) error {
	if sub.SubmittedData == nil {
		sub.SubmittedData = model.NewSubmittedData()
	}
	if sub.UTMParams == nil {
		sub.UTMParams = map[string]string{}
	}

	dataJson, err := json.Marshal(sub.SubmittedData)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.insert_submission.encode_data")
	}
	utmJson, err := json.Marshal(sub.UTMParams)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.insert_submission.encode_utm")
	}

	createdAt := time.Now().UTC()
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO submission (form_id, calculated_score, submitted_data, utm_params, created_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		sub.FormID,
		sub.CalculatedScore,
		string(dataJson),
		string(utmJson),
		createdAt,
	).Scan(&sub.ID)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.insert_submission")
	}

	sub.CreatedAt = createdAt
	return nil
}

// Submissions lists the submissions of a form of owner, newest first.
func (s *Store) Submissions(ctx context.Context, owner string, formID int64) ([]model.Submission, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM form WHERE id = ? AND owner = ?)`,
		formID,
		owner,
	).Scan(&exists)
	if err != nil {
		return nil, errs.Wrap(errs.Store, err, "db.get_submissions.form")
	}
	if !exists {
		return nil, errs.NotFoundf("db.get_submissions", "form %d not found", formID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, form_id, calculated_score, submitted_data, utm_params, created_at
		FROM submission
		WHERE form_id = ?
		ORDER BY created_at DESC, id DESC`,
		formID,
	)
	if err != nil {
		return nil, errs.Wrap(errs.Store, err, "db.get_submissions")
	}
	defer rows.Close()

	submissions := []model.Submission{}
	for rows.Next() {
		sub := model.Submission{
			SubmittedData: model.NewSubmittedData(),
			UTMParams:     map[string]string{},
		}
		var data, utm string
		err = rows.Scan(&sub.ID, &sub.FormID, &sub.CalculatedScore, &data, &utm, &sub.CreatedAt)
		if err != nil {
			return nil, errs.Wrap(errs.Store, err, "db.get_submissions.scan")
		}

		err = json.Unmarshal([]byte(data), sub.SubmittedData)
		if err != nil {
			return nil, errs.Wrap(errs.Store, err, "db.get_submissions.parse_data")
		}
		err = json.Unmarshal([]byte(utm), &sub.UTMParams)
		if err != nil {
			return nil, errs.Wrap(errs.Store, err, "db.get_submissions.parse_utm")
		}

		submissions = append(submissions, sub)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Store, err, "db.get_submissions.next")
	}
	return submissions, nil
}

// KPIs counts the forms and submissions of owner.
func (s *Store) KPIs(ctx context.Context, owner string) (model.KPIs, error) {
	k := model.KPIs{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(f.is_active), 0),
			COALESCE(SUM((SELECT COUNT(*) FROM submission s WHERE s.form_id = f.id)), 0)
		FROM form f
		WHERE f.owner = ?`,
		owner,
	).Scan(&k.TotalForms, &k.ActiveForms, &k.TotalSubmissions)
	if err != nil {
		return k, errs.Wrap(errs.Store, err, "db.get_kpis")
	}
	return k, nil
}

// FormSummaries lists the forms of owner with their submission counts.
func (s *Store) FormSummaries(ctx context.Context, owner string) ([]model.FormSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			f.id, f.client_name, f.subdomain, f.score_threshold, f.is_active,
			COUNT(s.id)
		FROM form f
		LEFT OUTER JOIN submission s ON (f.id = s.form_id)
		WHERE f.owner = ?
		GROUP BY f.id
		ORDER BY f.created_at DESC, f.id DESC`,
		owner,
	)
	if err != nil {
		return nil, errs.Wrap(errs.Store, err, "db.get_forms")
	}
	defer rows.Close()

	forms := []model.FormSummary{}
	for rows.Next() {
		f := model.FormSummary{}
		err = rows.Scan(&f.ID, &f.ClientName, &f.Subdomain, &f.ScoreThreshold, &f.IsActive, &f.SubmissionCount)
		if err != nil {
			return nil, errs.Wrap(errs.Store, err, "db.get_forms.scan")
		}
		forms = append(forms, f)
	}
	if err = rows.Err(); err != nil {
		return nil, errs.Wrap(errs.Store, err, "db.get_forms.next")
	}
	return forms, nil
}
