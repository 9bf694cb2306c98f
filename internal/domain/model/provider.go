package model

import "time"

// Capability describes how a provider reports balance.
type Capability string

const (
	// CapabilityExact means the provider exposes remaining credit directly.
	CapabilityExact Capability = "exact"
	// CapabilityEstimate means the provider only reports cumulative
	// usage; balance is derived from a user-supplied total grant.
	CapabilityEstimate Capability = "estimate"
)

// Known provider slugs. These form a closed set: the adapter registry
// dispatches over them exhaustively, and adding a provider means adding
// a slug here plus a registry case.
const (
	SlugOpenRouter = "openrouter"
	SlugOpenAI     = "openai"
)

// Provider is reference data describing a third-party platform whose
// credentials can be monitored. Rows are seeded by migration and never
// deleted while referenced.
type Provider struct {
	ID         int64
	Name       string
	Slug       string
	Capability Capability
	CreatedAt  time.Time
}
