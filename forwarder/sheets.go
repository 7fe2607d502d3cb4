package forwarder

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsAppender appends rows through the Google Sheets API, authenticated
// as a service account.
type SheetsAppender struct {
	values *sheets.SpreadsheetsValuesService
}

// NewSheetsAppender reads service-account credentials from credentialsFile.
func NewSheetsAppender(ctx context.Context, credentialsFile string) (*SheetsAppender, error) {
	credentials, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.Wrap(err, "forwarder.read_credentials")
	}

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsJSON(credentials),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, errors.Wrap(err, "forwarder.sheets_service")
	}

	return &SheetsAppender{values: svc.Spreadsheets.Values}, nil
}

func (a *SheetsAppender) Append(ctx context.Context, spreadsheetID, cellRange string, row []any) error {
	_, err := a.values.
		Append(spreadsheetID, cellRange, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}
