package filler

import (
	"time"

	"github.com/xkilldash9x/wp-filler/internal/mapping"
)

// Status is the outcome of one field.
type Status string

const (
	StatusFilled  Status = "filled"
	StatusSkipped Status = "skipped-no-data"
	StatusFailed  Status = "failed"
)

// FillResult records what happened to one mapped field.
type FillResult struct {
	PayloadKey string            `json:"payload_key"`
	Panel      string            `json:"panel,omitempty"`
	Type       mapping.FieldType `json:"type"`
	Status     Status            `json:"status"`
	// Detail says which key, variant or selector did the work.
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// PanelResult records the activation of one panel.
type PanelResult struct {
	Key       string `json:"key"`
	Activated bool   `json:"activated"`
	// HasData is set when at least one field of the panel had data.
	HasData bool   `json:"has_data"`
	Via     string `json:"via,omitempty"`
	Error   string `json:"error,omitempty"`
}

// FillSummary is the ordered record of a fill run.
type FillSummary struct {
	Fields []FillResult  `json:"fields"`
	Panels []PanelResult `json:"panels"`
}

// Count returns the number of fields with status s.
func (s FillSummary) Count(status Status) int {
	n := 0
	for _, f := range s.Fields {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Attempted lists the payload keys whose strategy ran, in fill order.
func (s FillSummary) Attempted() []string {
	var keys []string
	for _, f := range s.Fields {
		if f.Status != StatusSkipped {
			keys = append(keys, f.PayloadKey)
		}
	}
	return keys
}

// Result returns the outcome for a payload key.
func (s FillSummary) Result(payloadKey string) (FillResult, bool) {
	for _, f := range s.Fields {
		if f.PayloadKey == payloadKey {
			return f, true
		}
	}
	return FillResult{}, false
}

// Panel returns the activation record for a panel key.
func (s FillSummary) Panel(key string) (PanelResult, bool) {
	for _, p := range s.Panels {
		if p.Key == key {
			return p, true
		}
	}
	return PanelResult{}, false
}
