package draft

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/mbolis/lead-scorer/errs"
	"github.com/mbolis/lead-scorer/forwarder"
)

const (
	MinThreshold = 0
	MaxThreshold = 100
)

var reSubdomain = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Validate reports every problem that would make the draft unsafe to
// publish. The returned error is classified as errs.Validation and wraps a
// *multierror.Error listing each problem.
func (d *Draft) Validate() error {
	var result *multierror.Error

	if strings.TrimSpace(d.ClientName) == "" {
		result = multierror.Append(result, fmt.Errorf("client_name is required"))
	}
	if !reSubdomain.MatchString(d.Subdomain) {
		result = multierror.Append(result, fmt.Errorf("subdomain %q must be a lowercase slug", d.Subdomain))
	}
	if d.ScoreThreshold < MinThreshold || d.ScoreThreshold > MaxThreshold {
		result = multierror.Append(result, fmt.Errorf("score_threshold must be between %d and %d", MinThreshold, MaxThreshold))
	}
	if err := checkRedirect(FieldRedirectGood, d.RedirectGood); err != nil {
		result = multierror.Append(result, err)
	}
	if err := checkRedirect(FieldRedirectBad, d.RedirectBad); err != nil {
		result = multierror.Append(result, err)
	}
	if d.GoogleSheetURL != "" {
		if _, ok := forwarder.SpreadsheetID(d.GoogleSheetURL); !ok {
			result = multierror.Append(result, fmt.Errorf("google_sheet_url is not a Google Sheets link"))
		}
	}

	// answers are recorded by question text, so it must be unique
	seen := make(map[string]int, len(d.Questions))
	for i, q := range d.Questions {
		text := strings.TrimSpace(q.QuestionText)
		if text == "" {
			result = multierror.Append(result, fmt.Errorf("question %d: question_text is required", i+1))
		} else if first, dup := seen[text]; dup {
			result = multierror.Append(result, fmt.Errorf("question %d: question_text %q repeats question %d", i+1, text, first))
		} else {
			seen[text] = i + 1
		}
		if !q.QuestionType.Valid() {
			result = multierror.Append(result, fmt.Errorf("question %d: unknown question_type %q", i+1, q.QuestionType))
		}
		if len(q.AnswerOptions) == 0 {
			result = multierror.Append(result, fmt.Errorf("question %d: at least one option is required", i+1))
		}
		for j, o := range q.AnswerOptions {
			if strings.TrimSpace(o.OptionText) == "" {
				result = multierror.Append(result, fmt.Errorf("question %d, option %d: option_text is required", i+1, j+1))
			}
		}
	}

	if result == nil {
		return nil
	}
	result.ErrorFormat = joinErrors
	return &errs.Error{
		Kind: errs.Validation,
		Code: "draft.validate",
		Msg:  result.Error(),
		Err:  result,
	}
}

func checkRedirect(field Field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	}
	return nil
}

func joinErrors(es []error) string {
	msgs := make([]string, len(es))
	for i, e := range es {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}
