package api

import (
	"github.com/shopspring/decimal"

	"github.com/MJE43/blackjack-policy/internal/blackjack"
	"github.com/MJE43/blackjack-policy/internal/store"
)

// EngineError is the JSON error envelope of every failed request.
type EngineError struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

func (e EngineError) Error() string {
	return e.Message
}

const (
	ErrTypeInvalidParams = "invalid_params"
	ErrTypeValidation    = "validation_error"

	ErrTypeNotSolved = "not_solved"
	ErrTypeNotFound  = "not_found"

	ErrTypeTimeout  = "timeout"
	ErrTypeInternal = "internal_error"
)

// ErrorCategory groups error types for logging.
type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryData       ErrorCategory = "data"
	CategorySystem     ErrorCategory = "system"
	CategoryTimeout    ErrorCategory = "timeout"
)

// GetErrorCategory returns the category for an error type.
func GetErrorCategory(errType string) ErrorCategory {
	switch errType {
	case ErrTypeInvalidParams, ErrTypeValidation:
		return CategoryValidation
	case ErrTypeNotSolved, ErrTypeNotFound:
		return CategoryData
	case ErrTypeTimeout:
		return CategoryTimeout
	default:
		return CategorySystem
	}
}

type VersionInfo struct {
	EngineVersion string `json:"engine_version"`
	GitCommit     string `json:"git_commit,omitempty"`
	BuildTime     string `json:"build_time,omitempty"`
}

// DealerRow holds the outcome distribution of one up-card, keyed by outcome
// label ("17".."21", "bust").
type DealerRow struct {
	UpCard   int                        `json:"up_card"`
	Label    string                     `json:"label"`
	Outcomes map[string]decimal.Decimal `json:"outcomes"`
}

type DealerResponse struct {
	Run           store.Run   `json:"run"`
	Rows          []DealerRow `json:"rows"`
	EngineVersion string      `json:"engine_version"`
}

type DealerRowResponse struct {
	Run           store.Run `json:"run"`
	Row           DealerRow `json:"row"`
	EngineVersion string    `json:"engine_version"`
}

// PolicyCell is one grid decision with its optimal expected cost.
type PolicyCell struct {
	UpCard int              `json:"up_card"`
	Action blackjack.Action `json:"action"`
	Cost   decimal.Decimal  `json:"cost"`
}

type PolicyRow struct {
	Label string       `json:"label"`
	Total int          `json:"total"`
	Soft  bool         `json:"soft"`
	Cells []PolicyCell `json:"cells"`
}

type PolicyResponse struct {
	Run           store.Run   `json:"run"`
	Timestep      int         `json:"timestep"`
	Horizon       int         `json:"horizon"`
	Hard          []PolicyRow `json:"hard"`
	Soft          []PolicyRow `json:"soft"`
	EngineVersion string      `json:"engine_version"`
}

type LookupResponse struct {
	Total         int              `json:"total"`
	Soft          bool             `json:"soft"`
	UpCard        int              `json:"up_card"`
	Action        blackjack.Action `json:"action"`
	Cost          decimal.Decimal  `json:"cost"`
	RunID         string           `json:"run_id"`
	EngineVersion string           `json:"engine_version"`
}

type RunsResponse struct {
	Runs          []store.Run `json:"runs"`
	EngineVersion string      `json:"engine_version"`
}
