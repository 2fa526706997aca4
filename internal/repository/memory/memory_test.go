package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arklim/auction-registry/internal/core/domain"
	"github.com/arklim/auction-registry/internal/core/port"
	"github.com/arklim/auction-registry/internal/repository"
)

func TestRecordStoreSoftDeleteHidesRecord(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore[domain.ProductType]()
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Insert(ctx, domain.ProductType{
		RecordMeta: domain.RecordMeta{ID: "pt-1", CreatedAt: at, UpdatedAt: at},
		Code:       "TBILL",
		Name:       "Treasury bill",
	}))

	require.NoError(t, store.SoftDelete(ctx, "pt-1", at.Add(time.Hour)))

	_, err := store.Get(ctx, "pt-1", false)
	require.ErrorIs(t, err, repository.ErrNotFound)

	deleted, err := store.Get(ctx, "pt-1", true)
	require.NoError(t, err)
	require.NotNil(t, deleted.DeletedAt)
	require.True(t, deleted.DeletedAt.Equal(at.Add(time.Hour)))

	require.ErrorIs(t, store.SoftDelete(ctx, "pt-1", at.Add(2*time.Hour)), repository.ErrNotFound)
	require.ErrorIs(t, store.Replace(ctx, *deleted), repository.ErrNotFound)
}

func TestRecordStoreRejectsDuplicateNaturalKey(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore[domain.Security]()
	at := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	gilt := func(id, isin string) domain.Security {
		return domain.Security{
			RecordMeta: domain.RecordMeta{ID: id, CreatedAt: at, UpdatedAt: at},
			ISIN:       isin,
			Name:       "UK Gilt",
		}
	}

	require.NoError(t, store.Insert(ctx, gilt("sec-1", "GB00B24FF097")))
	require.ErrorIs(t, store.Insert(ctx, gilt("sec-2", "GB00B24FF097")), repository.ErrConflict)
	require.NoError(t, store.Insert(ctx, gilt("sec-2", "GB00B3KJDQ49")))

	require.ErrorIs(t, store.Replace(ctx, gilt("sec-2", "GB00B24FF097")), repository.ErrConflict)
	renamed := gilt("sec-1", "GB00B24FF097")
	renamed.Name = "UK Gilt 4.75% 2030"
	require.NoError(t, store.Replace(ctx, renamed))

	// A tombstoned record releases its key.
	require.NoError(t, store.SoftDelete(ctx, "sec-1", at.Add(time.Hour)))
	require.NoError(t, store.Insert(ctx, gilt("sec-3", "GB00B24FF097")))
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	requests := NewChangeRequestStore()
	records := NewRecordStore[domain.ProductType]()
	uow := NewUnitOfWork(requests, nil)

	boom := errors.New("boom")
	err := uow.Do(ctx, "cr-1", func(ctx context.Context, scope port.ApprovalScope) error {
		if err := scope.ChangeRequests().Create(ctx, domain.ChangeRequest{ID: "cr-1", Status: domain.ChangeRequestPending}); err != nil {
			return err
		}
		if err := records.Insert(ctx, domain.ProductType{RecordMeta: domain.RecordMeta{ID: "pt-1"}, Code: "X", Name: "X"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = requests.Get(ctx, "cr-1")
	require.ErrorIs(t, err, repository.ErrNotFound)
	_, err = records.Get(ctx, "pt-1", true)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestChangeRequestStoreMarkDecidedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewChangeRequestStore()
	require.NoError(t, store.Create(ctx, domain.ChangeRequest{ID: "cr-1", Status: domain.ChangeRequestPending}))

	decision := domain.ChangeRequestDecision{ID: "cr-1", Status: domain.ChangeRequestApproved, DecidedBy: "checker", DecidedAt: time.Now()}
	require.NoError(t, store.MarkDecided(ctx, decision))
	require.ErrorIs(t, store.MarkDecided(ctx, decision), repository.ErrConflict)

	got, err := store.Get(ctx, "cr-1")
	require.NoError(t, err)
	require.Equal(t, domain.ChangeRequestApproved, got.Status)
	require.Equal(t, "checker", *got.DecidedBy)
}

func TestChangeRequestStoreListFilters(t *testing.T) {
	ctx := context.Background()
	store := NewChangeRequestStore()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, tt := range []domain.TargetType{domain.TargetSecurity, domain.TargetProductType, domain.TargetSecurity} {
		require.NoError(t, store.Create(ctx, domain.ChangeRequest{
			ID:         string(rune('a' + i)),
			TargetType: tt,
			Status:     domain.ChangeRequestPending,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := store.List(ctx, domain.ChangeRequestFilter{TargetType: domain.TargetSecurity})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "c", got[0].ID)

	got, err = store.List(ctx, domain.ChangeRequestFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "b", got[0].ID)
}

func TestPrincipalStoreMutateLoginStateSerializes(t *testing.T) {
	ctx := context.Background()
	store := NewPrincipalStore()
	store.Put(domain.Principal{ID: "p-1", Identifier: "alice", Active: true})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.MutateLoginState(ctx, "p-1", func(state *domain.LoginSecurityState) error {
				state.FailedAttempts++
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := store.GetByIdentifier(ctx, "ALICE")
	require.NoError(t, err)
	require.Equal(t, 50, p.LoginState.FailedAttempts)
}

func TestPrincipalStoreCredentialRollback(t *testing.T) {
	ctx := context.Background()
	store := NewPrincipalStore()
	store.Put(domain.Principal{ID: "p-1", Identifier: "alice", PasswordHash: "old"})

	boom := errors.New("boom")
	err := store.Do(ctx, "p-1", func(ctx context.Context, scope port.CredentialScope) error {
		require.NoError(t, scope.Principals().UpdatePasswordHash(ctx, "p-1", "new", time.Now()))
		require.NoError(t, scope.History().Append(ctx, domain.PasswordHistoryEntry{PrincipalID: "p-1", PasswordHash: "new", SetAt: time.Now()}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := store.GetByID(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, "old", p.PasswordHash)
	history, err := store.ListRecent(ctx, "p-1", 10)
	require.NoError(t, err)
	require.Empty(t, history)
}

func TestRateLimitStoreWindow(t *testing.T) {
	ctx := context.Background()
	store := NewRateLimitStore()
	ref := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordAttempt(ctx, "k", ref.Add(-90*time.Second)))
	require.NoError(t, store.RecordAttempt(ctx, "k", ref.Add(-30*time.Second)))
	require.NoError(t, store.RecordAttempt(ctx, "k", ref.Add(-10*time.Second)))

	count, err := store.CountAttempts(ctx, "k", time.Minute, ref)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	oldest, ok, err := store.OldestAttempt(ctx, "k", time.Minute, ref)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, oldest.Equal(ref.Add(-30*time.Second)))

	require.NoError(t, store.ClearAttempts(ctx, "k"))
	count, err = store.CountAttempts(ctx, "k", time.Minute, ref)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRateLimitStoreSweepsIdleIdentifiers(t *testing.T) {
	ctx := context.Background()
	store := NewRateLimitStore().WithTTL(time.Minute)
	t0 := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 10000; i++ {
		require.NoError(t, store.RecordAttempt(ctx, fmt.Sprintf("user-%d", i), t0))
	}
	require.NoError(t, store.RecordAttempt(ctx, "recent", t0.Add(30*time.Second)))
	require.Len(t, store.attempts, 10001)

	later := t0.Add(24 * time.Hour)
	require.NoError(t, store.RecordAttempt(ctx, "fresh", later))
	require.NoError(t, store.TrimWindow(ctx, "fresh", time.Minute, later))
	count, err := store.CountAttempts(ctx, "fresh", time.Minute, later)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, store.attempts, 1)
}
