package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	ports "invoicer/internal/sheets"

	"google.golang.org/api/googleapi"
	gsheet "google.golang.org/api/sheets/v4"
)

// isTransient reports whether a failed call may succeed when repeated:
// rate limiting, server errors and transport failures. Other 4xx responses
// and context cancellation are permanent.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500
	}
	return true
}

func isRateLimited(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusTooManyRequests
}

func sheetTitles(s *gsheet.Spreadsheet) []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.Sheets))
	for _, sh := range s.Sheets {
		if sh == nil || sh.Properties == nil {
			continue
		}
		out = append(out, sh.Properties.Title)
	}
	return out
}

// toRows converts an API values matrix to strings. Cells are not trimmed;
// callers decide what whitespace means.
func toRows(values [][]interface{}) [][]string {
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

func cellString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func toValues(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		vals := make([]interface{}, len(row))
		for j, cell := range row {
			vals[j] = cell
		}
		out[i] = vals
	}
	return out
}

// batchRequests groups writes by input mode, keeping first-seen mode order
// and write order within each group.
func batchRequests(writes []ports.RangeWrite) []*gsheet.BatchUpdateValuesRequest {
	var out []*gsheet.BatchUpdateValuesRequest
	byMode := map[ports.InputMode]*gsheet.BatchUpdateValuesRequest{}
	for _, w := range writes {
		req, ok := byMode[w.Mode]
		if !ok {
			req = &gsheet.BatchUpdateValuesRequest{ValueInputOption: w.Mode.String()}
			byMode[w.Mode] = req
			out = append(out, req)
		}
		req.Data = append(req.Data, &gsheet.ValueRange{
			Range:  w.Range.String(),
			Values: toValues(w.Rows),
		})
	}
	return out
}
