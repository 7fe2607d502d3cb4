// Package scoring turns a completed answer set into a lead score and a
// qualification outcome.
//
// Score is a pure function: it never fails and never touches the store, so
// callers may run it as often as they like. Answers that are missing or that
// name an option the question does not have are ignored rather than
// rejected, because respondent state can be stale by the time it is scored.
package scoring

import (
	"github.com/mbolis/lead-scorer/model"
)

type Outcome int

const (
	Unqualified Outcome = iota
	Qualified
)

func (o Outcome) String() string {
	if o == Qualified {
		return "qualified"
	}
	return "unqualified"
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Answers maps a question id to the id of the selected option.
type Answers map[int64]int64

type Result struct {
	TotalScore    int                  `json:"total_score"`
	SubmittedData *model.SubmittedData `json:"submitted_data"`
	Outcome       Outcome              `json:"outcome"`
}

// Score sums the points of every matched answer in form's question order and
// compares the total against the form's threshold, inclusively.
func Score(form model.Form, answers Answers) Result {
	total := 0
	data := model.NewSubmittedData()

	for _, q := range form.Questions {
		optionID, ok := answers[q.ID]
		if !ok {
			continue
		}
		opt, ok := q.Option(optionID)
		if !ok {
			continue
		}
		total += opt.Points
		data.Set(q.QuestionText, opt.OptionText)
	}

	return Result{
		TotalScore:    total,
		SubmittedData: data,
		Outcome:       Decide(total, form.ScoreThreshold),
	}
}

// Decide qualifies a score that reaches the threshold.
func Decide(score, threshold int) Outcome {
	if score >= threshold {
		return Qualified
	}
	return Unqualified
}

// RedirectURL is where a respondent with outcome o is sent after submitting.
func RedirectURL(form model.Form, o Outcome) string {
	if o == Qualified {
		return form.RedirectGood
	}
	return form.RedirectBad
}
