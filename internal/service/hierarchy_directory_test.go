package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

func TestOutletsForByRole(t *testing.T) {
	f := newFixture(t)
	f.store.AddEdge(domain.AssignmentEdge{Username: "do_dave", Role: domain.RoleFO, OutletCode: "OUT2"})
	dir := NewHierarchyDirectory(f.store, f.store)

	cases := []struct {
		name  string
		actor domain.Actor
		want  OutletSet
	}{
		{"vendor", vendor, OutletSet{All: true}},
		{"superuser", superuser, OutletSet{All: true}},
		{"do edges are role qualified", doPune, OutletSet{Codes: []string{"OUT1", "OUT3"}}},
		{"drsm", drsm, OutletSet{Codes: []string{"OUT1", "OUT2"}}},
		{"fo", foBob, OutletSet{Codes: []string{"OUT3"}}},
		{"fo without edges", foAlice, OutletSet{Codes: []string{}}},
		{"srh without edges", srh, OutletSet{Codes: []string{}}},
		{"ro", roOne, OutletSet{Codes: []string{"OUT1"}}},
		{"ro without home", domain.Actor{ID: "ro_x", Role: domain.RoleRO}, OutletSet{Codes: []string{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := dir.OutletsFor(context.Background(), tc.actor)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEmptyOutletSetContainsNothing(t *testing.T) {
	assert.False(t, OutletSet{}.Contains("OUT1"))
	assert.False(t, OutletSet{Codes: []string{}}.Contains("OUT1"))
	assert.True(t, OutletSet{All: true}.Contains("anything"))
	assert.True(t, OutletSet{Codes: []string{"OUT1"}}.Contains("OUT1"))
}

func TestFieldOfficerForPicksLowestUsername(t *testing.T) {
	f := newFixture(t)
	dir := NewHierarchyDirectory(f.store, f.store)

	_, found, err := dir.FieldOfficerFor(context.Background(), "OUT1")
	require.NoError(t, err)
	assert.False(t, found)

	f.addFO("fo_zed", "OUT1")
	f.addFO("fo_amy", "OUT1")
	officer, found, err := dir.FieldOfficerFor(context.Background(), "OUT1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fo_amy", officer)
}

func TestRegisteredOfficer(t *testing.T) {
	f := newFixture(t)
	dir := NewHierarchyDirectory(f.store, f.store)

	ro, found, err := dir.RegisteredOfficer(context.Background(), "OUT2", domain.RoleRO)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Mumbai", ro.City)

	_, found, err = dir.RegisteredOfficer(context.Background(), "OUT9", domain.RoleRO)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCachedDirectoryWithoutRedisDelegates(t *testing.T) {
	f := newFixture(t)
	inner := NewHierarchyDirectory(f.store, f.store)
	cached := NewCachedDirectory(inner, nil, time.Minute, nil)

	got, err := cached.OutletsFor(context.Background(), doPune)
	require.NoError(t, err)
	assert.Equal(t, []string{"OUT1", "OUT3"}, got.Codes)

	officer, found, err := cached.FieldOfficerFor(context.Background(), "OUT3")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "fo_bob", officer)
	assert.Equal(t, "hierarchy:outlets:DO:do_dave", outletScopeKey(doPune))
}
