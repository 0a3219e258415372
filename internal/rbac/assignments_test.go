package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parishdesk/parishdesk/internal/shared"
)

func TestAssignRoleRejectsActiveDuplicate(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)
	ctx := context.Background()

	role := store.addRole(RoleParishioner, nil, true, StatusActive)

	_, err := assignments.AssignRole(ctx, 7, role.ID, nil, nil)
	require.NoError(t, err)

	_, err = assignments.AssignRole(ctx, 7, role.ID, nil, nil)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestAssignRoleReactivatesExpiredEdge(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)
	ctx := context.Background()

	role := store.addRole(RoleParishioner, nil, true, StatusActive)
	past := time.Now().Add(-time.Hour)
	stale := store.assign(7, role.ID, StatusActive, &past)

	edge, err := assignments.AssignRole(ctx, 7, role.ID, nil, nil)
	require.NoError(t, err)
	require.Equal(t, stale.ID, edge.ID, "the pair stays unique, the stale edge is revived")
	require.Equal(t, StatusActive, edge.Status)
	require.Nil(t, edge.ExpiresAt)
}

func TestAssignRoleUnknownRole(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)

	_, err := assignments.AssignRole(context.Background(), 7, 99, nil, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAssignRoleInactiveRoleIsNotFound(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)

	role := store.addRole("RETIRED", nil, false, StatusInactive)
	_, err := assignments.AssignRole(context.Background(), 7, role.ID, nil, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestOverrideUpsertKeyedByPair(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)
	resolver := NewResolver(store)
	ctx := context.Background()

	perm := store.addPermission(PermEventsCreate, StatusActive)

	_, err := assignments.RevokePermission(ctx, 7, perm.ID, nil, nil, nil)
	require.NoError(t, err)
	allowed, err := resolver.Check(ctx, shared.Principal{UserID: 7}, PermEventsCreate)
	require.NoError(t, err)
	require.False(t, allowed)

	// Re-granting clears the standing revoke.
	_, err = assignments.GrantPermission(ctx, 7, perm.ID, nil, nil, nil)
	require.NoError(t, err)
	allowed, err = resolver.Check(ctx, shared.Principal{UserID: 7}, PermEventsCreate)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestOverrideRejectsPastExpiry(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)

	perm := store.addPermission(PermEventsCreate, StatusActive)
	past := time.Now().Add(-time.Minute)
	_, err := assignments.GrantPermission(context.Background(), 7, perm.ID, nil, nil, &past)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestSweepExpiredDeactivatesEdgesAndOverrides(t *testing.T) {
	store := newMemoryStore()
	assignments := NewAssignments(store, store)
	ctx := context.Background()

	role := store.addRole(RoleParishioner, nil, true, StatusActive)
	perm := store.addPermission(PermEventsCreate, StatusActive)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	store.assign(1, role.ID, StatusActive, &past)
	store.assign(2, role.ID, StatusActive, &future)
	store.override(1, perm.ID, OverrideGrant, StatusActive, &past)

	n, err := assignments.SweepExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	edges, err := assignments.ListRoles(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, StatusActive, edges[0].Status)
}
