package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quotawatch/quotawatch/internal/domain/model"
)

func TestHistoryRepo_RangeOrdering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	cred := createTestCredential(t, db, "key")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of chronological order; the range query must sort.
	appendTestObservation(t, db, cred.ID, 3.0, base.Add(2*time.Hour))
	appendTestObservation(t, db, cred.ID, 1.0, base)
	appendTestObservation(t, db, cred.ID, 2.0, base.Add(time.Hour))

	obs, err := repo.Range(ctx, cred.ID, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 3)

	for i := 1; i < len(obs); i++ {
		assert.False(t, obs[i].ObservedAt.Before(obs[i-1].ObservedAt),
			"observations must be non-decreasing in timestamp")
	}
	assert.InDelta(t, 1.0, obs[0].Balance, 1e-9)
	assert.InDelta(t, 3.0, obs[2].Balance, 1e-9)
}

func TestHistoryRepo_RangeSubSecondObservations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	cred := createTestCredential(t, db, "key")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Stored timestamps are compared as TEXT; sub-second observations
	// must still sort after a whole-second lower bound and among
	// themselves chronologically.
	appendTestObservation(t, db, cred.ID, 2.0, base.Add(123*time.Millisecond))
	appendTestObservation(t, db, cred.ID, 1.0, base.Add(120*time.Millisecond))

	obs, err := repo.Range(ctx, cred.ID, base, base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, obs, 2, "whole-second bound must include sub-second observations")
	assert.InDelta(t, 1.0, obs[0].Balance, 1e-9, "earlier observation must come first")
	assert.InDelta(t, 2.0, obs[1].Balance, 1e-9)
	assert.Equal(t, base.Add(120*time.Millisecond), obs[0].ObservedAt.UTC())
}

func TestHistoryRepo_RangeBounds(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	cred := createTestCredential(t, db, "key")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	appendTestObservation(t, db, cred.ID, 1.0, base.Add(-time.Hour))
	inRange := appendTestObservation(t, db, cred.ID, 2.0, base)
	appendTestObservation(t, db, cred.ID, 3.0, base.Add(2*time.Hour))

	obs, err := repo.Range(ctx, cred.ID, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, inRange.ID, obs[0].ID)
}

func TestHistoryRepo_FailedObservationHasNoBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	cred := createTestCredential(t, db, "key")
	now := time.Now().UTC()

	failed := &model.BalanceObservation{
		CredentialID: cred.ID,
		Balance:      99.0, // must not be stored for a failed check
		CheckError:   "network error",
		ObservedAt:   now,
	}
	require.NoError(t, repo.Append(ctx, failed))

	obs, err := repo.Range(ctx, cred.ID, now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.True(t, obs[0].Failed())
	assert.Zero(t, obs[0].Balance, "failed observation must not carry a fabricated balance")
}

func TestHistoryRepo_LatestSuccessBefore(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	cred := createTestCredential(t, db, "key")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	first := appendTestObservation(t, db, cred.ID, 15.0, base)
	failed := &model.BalanceObservation{
		CredentialID: cred.ID,
		CheckError:   "timeout",
		ObservedAt:   base.Add(time.Minute),
	}
	require.NoError(t, repo.Append(ctx, failed))
	second := appendTestObservation(t, db, cred.ID, 8.0, base.Add(2*time.Minute))

	// Baseline for the second observation skips the failed row.
	prev, err := repo.LatestSuccessBefore(ctx, cred.ID, second.ID)
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, first.ID, prev.ID)

	// Latest overall.
	latest, err := repo.LatestSuccessBefore(ctx, cred.ID, 0)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, second.ID, latest.ID)

	// No prior success for the first observation.
	prev, err = repo.LatestSuccessBefore(ctx, cred.ID, first.ID)
	require.NoError(t, err)
	assert.Nil(t, prev)
}

func TestHistoryRepo_PruneOlderThan(t *testing.T) {
	db := setupTestDB(t)
	repo := NewHistoryRepo(db)
	ctx := context.Background()

	cred := createTestCredential(t, db, "key")
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	appendTestObservation(t, db, cred.ID, 1.0, base.Add(-48*time.Hour))
	appendTestObservation(t, db, cred.ID, 2.0, base.Add(-24*time.Hour))
	kept := appendTestObservation(t, db, cred.ID, 3.0, base)

	deleted, err := repo.PruneOlderThan(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	obs, err := repo.Range(ctx, cred.ID, base.Add(-72*time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, kept.ID, obs[0].ID)
}
