package amqp

import (
	"encoding/json"
	"strings"
	"time"

	"invoicer/internal/core"
)

// PeriodProcessed is published after a period run completes with status ok.
type PeriodProcessed struct {
	RunID            string    `json:"run_id"`
	Period           string    `json:"period"`
	RowsWritten      int       `json:"rows_written"`
	InvoicesAssigned int       `json:"invoices_assigned"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// NewPeriodProcessed builds the event for a finished run.
func NewPeriodProcessed(run core.RunRecord) *PeriodProcessed {
	at := run.FinishedAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return &PeriodProcessed{
		RunID:            run.ID,
		Period:           run.Period,
		RowsWritten:      run.RowsWritten,
		InvoicesAssigned: run.InvoicesAssigned,
		ProcessedAt:      at,
	}
}

// ToJSON converts the message to JSON bytes
func (m *PeriodProcessed) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PeriodProcessedFromJSON decodes an event body.
func PeriodProcessedFromJSON(data []byte) (*PeriodProcessed, error) {
	var msg PeriodProcessed
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ProcessPeriodRequest asks the worker to run one accounting period. An
// empty Period means "whatever the config table has pending".
type ProcessPeriodRequest struct {
	Period         string `json:"period"`
	ForceOverwrite bool   `json:"force_overwrite"`
}

// NewProcessPeriodRequest trims period.
func NewProcessPeriodRequest(period string, force bool) *ProcessPeriodRequest {
	return &ProcessPeriodRequest{Period: strings.TrimSpace(period), ForceOverwrite: force}
}

// ToJSON converts the message to JSON bytes
func (m *ProcessPeriodRequest) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ProcessPeriodRequestFromJSON decodes a request body.
func ProcessPeriodRequestFromJSON(data []byte) (*ProcessPeriodRequest, error) {
	var msg ProcessPeriodRequest
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
