package model

import "time"

// BalanceResult is the normalized outcome of a single adapter call.
type BalanceResult struct {
	Balance    float64
	IsEstimate bool
}

// BalanceObservation is one append-only history record for a
// credential. A successful check records Balance/IsEstimate with an
// empty CheckError; a failed check records CheckError and carries no
// meaningful balance.
type BalanceObservation struct {
	ID           int64
	CredentialID int64
	Balance      float64
	IsEstimate   bool
	CheckError   string
	ObservedAt   time.Time
}

// Failed reports whether this observation records a failed check.
func (o BalanceObservation) Failed() bool {
	return o.CheckError != ""
}
