package main

import (
	"time"

	"github.com/liamcoop/rulespec/ruleset"
)

// API request and response models

// TenantsListResponse lists tenants that own rule sets
type TenantsListResponse struct {
	Tenants []string `json:"tenants"`
}

// RuleSetsListResponse lists a tenant's definitions
type RuleSetsListResponse struct {
	RuleSets []*ruleset.Definition `json:"ruleSets"`
}

// DecideResponse is the outcome of a decision request
type DecideResponse struct {
	DecisionID string `json:"decisionId" example:"123e4567-e89b-12d3-a456-426614174000"`
	Matched    bool   `json:"matched" example:"true"`
	Result     any    `json:"result"`
	Index      int    `json:"index" example:"0"`
}

// ProbabilityResponse is one entry of a weighted distribution
type ProbabilityResponse struct {
	Result      any     `json:"result"`
	Probability float64 `json:"probability" example:"0.25"`
}

// DistributionResponse is the static distribution of a weighted rule set,
// or the eligible one when facts are posted
type DistributionResponse struct {
	Distribution []ProbabilityResponse `json:"distribution"`
}

// RecordSampleRequest records one observation. Time defaults to now.
type RecordSampleRequest struct {
	Value *float64   `json:"value" example:"420.5"`
	Time  *time.Time `json:"time,omitempty" example:"2024-01-15T10:30:00Z"`
}

// SampleResponse is a stored observation
type SampleResponse struct {
	Time  time.Time `json:"time" example:"2024-01-15T10:30:00Z"`
	Value float64   `json:"value" example:"420.5"`
}

// SeriesResponse is a windowed series
type SeriesResponse struct {
	Key     string           `json:"key" example:"latency:eu-west"`
	Window  string           `json:"window" example:"last:10"`
	Samples []SampleResponse `json:"samples"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"invalid definition"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string           `json:"status" example:"healthy"`
	TenantsLoaded int              `json:"tenantsLoaded" example:"3"`
	Counters      map[string]int64 `json:"counters,omitempty"`
	Error         string           `json:"error,omitempty"`
}
