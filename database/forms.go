package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/model"
)

// Store holds every query the application issues.
//
// Form trees are written with full-subtree-replace semantics inside a single
// transaction, so a concurrent reader sees either the old tree or the new
// one, never an empty form. Two sessions or tabs of the same owner saving the
// same form race with last-write-wins.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db}
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const formColumns = `
	f.id, f.owner, f.client_name, f.subdomain, f.score_threshold,
	f.redirect_good_url, f.redirect_bad_url, f.is_active, f.google_sheet_url, f.created_at`

func scanForm(row interface{ Scan(...any) error }, f *model.Form) error {
	var sheetURL sql.NullString
	err := row.Scan(
		&f.ID, &f.Owner, &f.ClientName, &f.Subdomain, &f.ScoreThreshold,
		&f.RedirectGood, &f.RedirectBad, &f.IsActive, &sheetURL, &f.CreatedAt,
	)
	f.GoogleSheetURL = sheetURL.String
	return err
}

// ActiveFormBySubdomain resolves the public form at subdomain with its
// questions sorted by order_index. Inactive forms are reported as not found.
func (s *Store) ActiveFormBySubdomain(ctx context.Context, subdomain string) (model.Form, error) {
	return s.readForm(ctx, func(q queryer) (model.Form, error) {
		return getActiveForm(ctx, q, subdomain)
	})
}

// Form returns the full tree of a form belonging to owner.
func (s *Store) Form(ctx context.Context, owner string, id int64) (model.Form, error) {
	return s.readForm(ctx, func(q queryer) (model.Form, error) {
		return getForm(ctx, q, owner, id)
	})
}

// readForm runs read in one transaction, so the form row and its questions
// come from the same state of the database.
func (s *Store) readForm(ctx context.Context, read func(q queryer) (model.Form, error)) (model.Form, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.begin_tx")
	}
	defer tx.Rollback()

	return read(tx)
}

func getActiveForm(ctx context.Context, q queryer, subdomain string) (model.Form, error) {
	f := model.Form{}
	err := scanForm(q.QueryRowContext(ctx, `
		SELECT`+formColumns+`
		FROM form f
		WHERE f.subdomain = ?
			AND f.is_active`,
		subdomain,
	), &f)
	if errors.Is(err, sql.ErrNoRows) {
		return f, errs.NotFoundf("db.get_public_form", "form unavailable")
	}
	if err != nil {
		return f, errs.Wrap(errs.Store, err, "db.get_public_form")
	}

	err = loadQuestions(ctx, q, &f)
	return f, err
}

func getForm(ctx context.Context, q queryer, owner string, id int64) (model.Form, error) {
	f := model.Form{}
	err := scanForm(q.QueryRowContext(ctx, `
		SELECT`+formColumns+`
		FROM form f
		WHERE f.id = ?
			AND f.owner = ?`,
		id,
		owner,
	), &f)
	if errors.Is(err, sql.ErrNoRows) {
		return f, errs.NotFoundf("db.get_form", "form %d not found", id)
	}
	if err != nil {
		return f, errs.Wrap(errs.Store, err, "db.get_form")
	}

	err = loadQuestions(ctx, q, &f)
	return f, err
}

func loadQuestions(ctx context.Context, q queryer, f *model.Form) error {
	rows, err := q.QueryContext(ctx, `
		SELECT
			q.id, q.question_text, q.question_type, q.order_index,
			o.id, o.option_text, o.points
		FROM question q
		LEFT OUTER JOIN answer_option o ON (q.id = o.question_id)
		WHERE q.form_id = ?
		ORDER BY q.order_index, q.id, o.id`,
		f.ID,
	)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.get_form.questions")
	}
	defer rows.Close()

	f.Questions = []model.Question{}
	for rows.Next() {
		qn := model.Question{FormID: f.ID}
		var (
			optID     sql.NullInt64
			optText   sql.NullString
			optPoints sql.NullInt64
		)
		err = rows.Scan(
			&qn.ID, &qn.QuestionText, &qn.QuestionType, &qn.OrderIndex,
			&optID, &optText, &optPoints,
		)
		if err != nil {
			return errs.Wrap(errs.Store, err, "db.get_form.questions.scan")
		}

		last := len(f.Questions) - 1
		if last < 0 || f.Questions[last].ID != qn.ID {
			qn.AnswerOptions = []model.AnswerOption{}
			f.Questions = append(f.Questions, qn)
			last++
		}
		if optID.Valid {
			f.Questions[last].AnswerOptions = append(f.Questions[last].AnswerOptions, model.AnswerOption{
				ID:         optID.Int64,
				QuestionID: qn.ID,
				OptionText: optText.String,
				Points:     int(optPoints.Int64),
			})
		}
	}
	if err = rows.Err(); err != nil {
		return errs.Wrap(errs.Store, err, "db.get_form.questions.next")
	}
	return nil
}

// CreateForm inserts f and its subtree for owner, returning the stored tree.
func (s *Store) CreateForm(ctx context.Context, owner string, f *model.Form) (model.Form, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.begin_tx")
	}
	defer tx.Rollback()

	var formID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO form (
			owner, client_name, subdomain, score_threshold,
			redirect_good_url, redirect_bad_url, is_active, google_sheet_url, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		owner,
		f.ClientName,
		f.Subdomain,
		f.ScoreThreshold,
		f.RedirectGood,
		f.RedirectBad,
		f.IsActive,
		nullString(f.GoogleSheetURL),
		time.Now().UTC(),
	).Scan(&formID)
	if err != nil {
		return model.Form{}, classifyWrite(err, "db.create_form")
	}

	err = insertQuestions(ctx, tx, formID, f.Questions)
	if err != nil {
		return model.Form{}, err
	}

	stored, err := getForm(ctx, tx, owner, formID)
	if err != nil {
		return model.Form{}, err
	}

	err = tx.Commit()
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.create_form.commit")
	}
	return stored, nil
}

// ReplaceForm overwrites the form row f.ID of owner and replaces its whole
// question/option subtree with f's, in one transaction.
func (s *Store) ReplaceForm(ctx context.Context, owner string, f *model.Form) (model.Form, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.begin_tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE form
		SET
			client_name = ?,
			subdomain = ?,
			score_threshold = ?,
			redirect_good_url = ?,
			redirect_bad_url = ?,
			is_active = ?,
			google_sheet_url = ?
		WHERE id = ?
			AND owner = ?`,
		f.ClientName,
		f.Subdomain,
		f.ScoreThreshold,
		f.RedirectGood,
		f.RedirectBad,
		f.IsActive,
		nullString(f.GoogleSheetURL),
		f.ID,
		owner,
	)
	if err != nil {
		return model.Form{}, classifyWrite(err, "db.replace_form")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.replace_form.verify")
	}
	if n < 1 {
		return model.Form{}, errs.NotFoundf("db.replace_form", "form %d not found", f.ID)
	}

	// options go with their questions through ON DELETE CASCADE
	_, err = tx.ExecContext(ctx, `
		DELETE FROM question
		WHERE form_id = ?`,
		f.ID,
	)
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.replace_form.delete_questions")
	}

	err = insertQuestions(ctx, tx, f.ID, f.Questions)
	if err != nil {
		return model.Form{}, err
	}

	stored, err := getForm(ctx, tx, owner, f.ID)
	if err != nil {
		return model.Form{}, err
	}

	err = tx.Commit()
	if err != nil {
		return model.Form{}, errs.Wrap(errs.Store, err, "db.replace_form.commit")
	}
	return stored, nil
}

func insertQuestions(ctx context.Context, tx *sql.Tx, formID int64, questions []model.Question) error {
	qStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO question (form_id, question_text, question_type, order_index)
		VALUES (?, ?, ?, ?)
		RETURNING id`)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.save_form.questions.prepare")
	}
	defer qStmt.Close()

	oStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO answer_option (question_id, option_text, points)
		VALUES (?, ?, ?)`)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.save_form.options.prepare")
	}
	defer oStmt.Close()

	for _, q := range questions {
		var questionID int64
		err = qStmt.QueryRowContext(ctx, formID, q.QuestionText, q.QuestionType, q.OrderIndex).Scan(&questionID)
		if err != nil {
			return classifyWrite(err, "db.save_form.insert_question")
		}

		for _, o := range q.AnswerOptions {
			_, err = oStmt.ExecContext(ctx, questionID, o.OptionText, o.Points)
			if err != nil {
				return classifyWrite(err, "db.save_form.insert_option")
			}
		}
	}
	return nil
}

// DeleteForm removes a form of owner together with its questions, options
// and submissions.
func (s *Store) DeleteForm(ctx context.Context, owner string, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM form
		WHERE id = ?
			AND owner = ?`,
		id,
		owner,
	)
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.delete_form")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errs.Wrap(errs.Store, err, "db.delete_form.verify")
	}
	if n < 1 {
		return errs.NotFoundf("db.delete_form", "form %d not found", id)
	}
	return nil
}

// SheetURL returns the spreadsheet configured for a form, or "" if none.
func (s *Store) SheetURL(ctx context.Context, formID int64) (string, error) {
	var url sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT google_sheet_url
		FROM form
		WHERE id = ?`,
		formID,
	).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.NotFoundf("db.get_sheet_url", "form %d not found", formID)
	}
	if err != nil {
		return "", errs.Wrap(errs.Store, err, "db.get_sheet_url")
	}
	return url.String, nil
}

func classifyWrite(err error, code string) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return &errs.Error{Kind: errs.Conflict, Code: code, Msg: "subdomain already in use", Err: err}
	}
	return errs.Wrap(errs.Store, err, code)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
