package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	ports "invoicer/internal/sheets"

	"github.com/cenkalti/backoff/v4"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Client struct {
	svc         *gsheet.Service
	maxAttempts int
	backoff     time.Duration
}

// Ensure interface conformance
var (
	_ ports.TabularStore  = (*Client)(nil)
	_ ports.BatchWriter   = (*Client)(nil)
	_ ports.FormulaReader = (*Client)(nil)
)

// Config holds service-account credentials and retry settings.
// CredentialsJSON takes precedence over CredentialsFile.
type Config struct {
	CredentialsJSON string
	CredentialsFile string
	MaxAttempts     int
	Backoff         time.Duration
}

// New creates a Sheets-backed store authenticated with a service account.
func New(ctx context.Context, cfg Config) (*Client, error) {
	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(svc, cfg), nil
}

func newClient(svc *gsheet.Service, cfg Config) *Client {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Client{svc: svc, maxAttempts: attempts, backoff: cfg.Backoff}
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	inline := strings.TrimSpace(cfg.CredentialsJSON)
	file := strings.TrimSpace(cfg.CredentialsFile)

	var credentialsJSON []byte
	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials", "json_length", len(inline))
		credentialsJSON = []byte(inline)
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		credentialsJSON = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GCP_SA_KEY, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

func (c *Client) ListTableNames(ctx context.Context, collectionID string) ([]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	var resp *gsheet.Spreadsheet
	err := c.retry(ctx, "list tables", isTransient, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Get(collectionID).
			Fields("sheets(properties(title))").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", collectionID, err)
	}
	return sheetTitles(resp), nil
}

func (c *Client) ReadRange(ctx context.Context, collectionID string, rng ports.Range) ([][]string, error) {
	return c.readValues(ctx, collectionID, rng, "FORMATTED_VALUE")
}

// ReadFormulas returns cells as entered, so hyperlink formulas come back
// verbatim instead of as their display text.
func (c *Client) ReadFormulas(ctx context.Context, collectionID string, rng ports.Range) ([][]string, error) {
	return c.readValues(ctx, collectionID, rng, "FORMULA")
}

func (c *Client) readValues(ctx context.Context, collectionID string, rng ports.Range, render string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	a1 := rng.String()
	var resp *gsheet.ValueRange
	err := c.retry(ctx, "read "+a1, isTransient, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Get(collectionID, a1).
			ValueRenderOption(render).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", a1, err)
	}
	return toRows(resp.Values), nil
}

// AppendRows is not idempotent: it is retried only when the store rejected
// the call outright with a rate limit.
func (c *Client) AppendRows(ctx context.Context, collectionID string, rng ports.Range, rows [][]string) (int, error) {
	if c.svc == nil {
		return 0, errors.New("sheets service not initialized")
	}
	if len(rows) == 0 {
		return 0, nil
	}
	a1 := rng.String()
	vr := &gsheet.ValueRange{Values: toValues(rows)}
	var resp *gsheet.AppendValuesResponse
	err := c.retry(ctx, "append "+a1, isRateLimited, func() error {
		var err error
		resp, err = c.svc.Spreadsheets.Values.Append(collectionID, a1, vr).
			ValueInputOption(ports.InputRaw.String()).
			InsertDataOption("INSERT_ROWS").
			Context(ctx).Do()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("append to %s: %w", a1, err)
	}
	if resp == nil || resp.Updates == nil {
		return len(rows), nil
	}
	return int(resp.Updates.UpdatedRows), nil
}

func (c *Client) WriteRange(ctx context.Context, collectionID string, rng ports.Range, rows [][]string, mode ports.InputMode) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	a1 := rng.String()
	vr := &gsheet.ValueRange{Values: toValues(rows)}
	err := c.retry(ctx, "write "+a1, isTransient, func() error {
		_, err := c.svc.Spreadsheets.Values.Update(collectionID, a1, vr).
			ValueInputOption(mode.String()).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", a1, err)
	}
	return nil
}

// WriteRanges issues one batch update per input mode.
func (c *Client) WriteRanges(ctx context.Context, collectionID string, writes []ports.RangeWrite) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	for _, req := range batchRequests(writes) {
		req := req
		err := c.retry(ctx, "batch write", isTransient, func() error {
			_, err := c.svc.Spreadsheets.Values.BatchUpdate(collectionID, req).Context(ctx).Do()
			return err
		})
		if err != nil {
			return fmt.Errorf("batch write (%s, %d ranges): %w", req.ValueInputOption, len(req.Data), err)
		}
	}
	return nil
}

// retry runs fn up to maxAttempts times with exponential backoff while
// retryable reports the failure as transient.
func (c *Client) retry(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	if c.backoff > 0 {
		eb.InitialInterval = c.backoff
	}
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.maxAttempts-1)), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "Sheets call failed, retrying", "op", op, "wait", wait, "error", err)
	})
}
