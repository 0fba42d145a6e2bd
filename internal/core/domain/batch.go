package domain

import "time"

type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchValidated  BatchStatus = "validated"
	BatchPromoted   BatchStatus = "promoted"
	BatchCanceled   BatchStatus = "canceled"
	BatchDeleted    BatchStatus = "deleted"
)

func (s BatchStatus) Terminal() bool {
	return s == BatchPromoted || s == BatchCanceled || s == BatchDeleted
}

// ClassificationMetadata is attached to a batch so the server keeps the parser
// decision next to the rows it produced.
type ClassificationMetadata struct {
	ParserID   string         `json:"parser_id,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Provider   string         `json:"provider,omitempty"`
	Log        []DecisionStep `json:"decision_log,omitempty"`
}

type Batch struct {
	ID                   string                  `json:"id"`
	Origin               string                  `json:"origin"`
	DocumentType         DocumentType            `json:"source_type"`
	Status               BatchStatus             `json:"status"`
	Classification       *ClassificationMetadata `json:"classification,omitempty"`
	RequiresConfirmation bool                    `json:"requires_confirmation"`
	ParserID             string                  `json:"parser_id,omitempty"`
	TotalItems           int                     `json:"total_items"`
	ValidItems           int                     `json:"valid_items"`
	InvalidItems         int                     `json:"invalid_items"`
	CreatedAt            time.Time               `json:"created_at"`
}

type ItemValidation string

const (
	ItemValid    ItemValidation = "valid"
	ItemInvalid  ItemValidation = "invalid"
	ItemPending  ItemValidation = "pending"
	ItemPromoted ItemValidation = "promoted"
)

type ValidationIssue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Item struct {
	ID         string            `json:"id"`
	Raw        map[string]string `json:"raw"`
	Normalized map[string]any    `json:"normalized"`
	Status     ItemValidation    `json:"status"`
	Errors     []ValidationIssue `json:"errors,omitempty"`
}

// IngestRow is one row sent to the server: the source row, its canonical form
// and any client-side flags such as dedup collisions.
type IngestRow struct {
	Raw        map[string]string `json:"raw"`
	Normalized map[string]any    `json:"normalized"`
	Flags      []string          `json:"flags,omitempty"`
}

type RowOutcome struct {
	ItemID   string            `json:"item_id"`
	Row      int               `json:"row"`
	Accepted bool              `json:"accepted"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

type IngestResult struct {
	BatchID  string       `json:"batch_id"`
	Outcomes []RowOutcome `json:"items"`
}

// Counts derives aggregate counts from per-row outcomes.
func (r IngestResult) Counts() (accepted, rejected int) {
	for _, o := range r.Outcomes {
		if o.Accepted {
			accepted++
		} else {
			rejected++
		}
	}
	return accepted, rejected
}

type PromoteOptions struct {
	Auto              bool   `json:"auto"`
	TargetWarehouseID string `json:"target_warehouse_id,omitempty"`
	CreateWarehouse   bool   `json:"create_warehouse"`
	AllowMissingPrice bool   `json:"allow_missing_price"`
	Activate          bool   `json:"activate"`
}

type PromoteResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type ConfirmationStatus struct {
	RequiresConfirmation bool   `json:"requires_confirmation"`
	Confirmed            bool   `json:"confirmed"`
	ParserID             string `json:"parser_id,omitempty"`
}

// BatchProgress is the payload of the passive progress channel.
type BatchProgress struct {
	BatchID       string  `json:"batch_id"`
	Processed     int     `json:"processed"`
	Total         int     `json:"total"`
	Status        string  `json:"status"`
	CurrentStep   string  `json:"current_step"`
	ErrorCount    int     `json:"error_count"`
	RowsPerSecond float64 `json:"rows_per_second"`
	ETASeconds    float64 `json:"eta_seconds"`
}
