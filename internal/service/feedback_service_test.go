package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

func seedSpread(f *fixture) {
	for _, outlet := range []string{"OUT1", "OUT1", "OUT2", "OUT3", "OUT9"} {
		f.newCase(outlet, domain.WorkflowPending)
	}
}

func outletsOf(items []domain.FeedbackCase) map[string]int {
	out := map[string]int{}
	for _, fc := range items {
		out[fc.OutletCode]++
	}
	return out
}

func TestListCasesIsAlwaysScoped(t *testing.T) {
	f := newFixture(t)
	f.addFO("fo_alice", "OUT2")
	seedSpread(f)

	cases := []struct {
		name  string
		actor domain.Actor
		want  map[string]int
	}{
		{"vendor sees everything", vendor, map[string]int{"OUT1": 2, "OUT2": 1, "OUT3": 1, "OUT9": 1}},
		{"superuser sees everything", superuser, map[string]int{"OUT1": 2, "OUT2": 1, "OUT3": 1, "OUT9": 1}},
		{"do by edges", doPune, map[string]int{"OUT1": 2, "OUT3": 1}},
		{"drsm by edges", drsm, map[string]int{"OUT1": 2, "OUT2": 1}},
		{"fo by edges", foAlice, map[string]int{"OUT2": 1}},
		{"ro home outlet", roOne, map[string]int{"OUT1": 2}},
		{"srh without edges sees nothing", srh, map[string]int{}},
		{"ro without home outlet sees nothing", domain.Actor{ID: "ro_x", Role: domain.RoleRO}, map[string]int{}},
		{"unknown role sees nothing", domain.Actor{ID: "guest", Role: "Guest"}, map[string]int{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, err := f.feedback.ListCases(context.Background(), tc.actor, CaseListFilter{Limit: 100})
			require.NoError(t, err)
			assert.Equal(t, tc.want, outletsOf(page.Items))
			assert.Equal(t, len(page.Items), page.Total)

			if tc.actor.Role.Unrestricted() {
				return
			}
			set, err := NewHierarchyDirectory(f.store, f.store).OutletsFor(context.Background(), tc.actor)
			require.NoError(t, err)
			for _, fc := range page.Items {
				assert.True(t, set.Contains(fc.OutletCode), "case %d outside scope", fc.ID)
			}
		})
	}
}

func TestListCasesScopeCannotBeWidenedByOutletFilter(t *testing.T) {
	f := newFixture(t)
	seedSpread(f)
	outside := "OUT2"

	page, err := f.feedback.ListCases(context.Background(), doPune, CaseListFilter{OutletCode: &outside})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Zero(t, page.Total)
}

func TestListCasesPaginates(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.newCase("OUT1", domain.WorkflowPending)
	}
	page, err := f.feedback.ListCases(context.Background(), vendor, CaseListFilter{Page: 2, Limit: 2, SortBy: "id"})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 2, page.Page)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].ID)
}

func TestGetCaseHidesExistenceFromRestrictedRoles(t *testing.T) {
	f := newFixture(t)
	fc := f.newCase("OUT2", domain.WorkflowPending)

	_, inaccessible := f.feedback.GetCase(context.Background(), doPune, fc.ID)
	requireCode(t, inaccessible, apperrors.CodeForbidden)

	_, missing := f.feedback.GetCase(context.Background(), doPune, 4242)
	requireCode(t, missing, apperrors.CodeForbidden)
	assert.Equal(t, inaccessible.Error(), missing.Error())

	_, err := f.feedback.GetCase(context.Background(), vendor, 4242)
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.feedback.ListHistory(context.Background(), foAlice, 4242, 10, 0)
	requireCode(t, err, apperrors.CodeForbidden)

	got, err := f.feedback.GetCase(context.Background(), doMumbai, fc.ID)
	require.NoError(t, err)
	assert.Equal(t, fc.ID, got.ID)
}

func TestListHistoryRequiresAccess(t *testing.T) {
	f := newFixture(t)
	fc := f.newCase("OUT1", domain.WorkflowPending)
	f.move(t, vendor, fc.ID, domain.WorkflowVendorVerified)

	entries, err := f.feedback.ListHistory(context.Background(), roOne, fc.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.WorkflowVendorVerified, entries[0].NewState)

	_, err = f.feedback.ListHistory(context.Background(), doMumbai, fc.ID, 10, 0)
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestDashboardCountsWithinScope(t *testing.T) {
	f := newFixture(t)
	seedSpread(f)
	f.newCase("OUT1", domain.WorkflowVendorVerified)
	f.newCase("OUT2", domain.WorkflowRejected)

	stats, err := f.feedback.Dashboard(context.Background(), doPune, CaseListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 3, stats.ByStatus[domain.OverallPending])
	assert.Equal(t, 1, stats.ByStatus[domain.OverallReviewed])
	assert.Equal(t, 0, stats.ByStatus[domain.OverallRejected])

	stats, err = f.feedback.Dashboard(context.Background(), vendor, CaseListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 1, stats.ByStatus[domain.OverallRejected])
}

func TestFilterOptionsListsVisibleOutlets(t *testing.T) {
	f := newFixture(t)

	opts, err := f.feedback.FilterOptions(context.Background(), doPune)
	require.NoError(t, err)
	codes := []string{}
	for _, o := range opts.Outlets {
		codes = append(codes, o.Code)
	}
	assert.Equal(t, []string{"OUT1", "OUT3"}, codes)
	assert.Equal(t, domain.WorkflowStatuses, opts.Statuses)

	opts, err = f.feedback.FilterOptions(context.Background(), vendor)
	require.NoError(t, err)
	assert.Len(t, opts.Outlets, 3)

	opts, err = f.feedback.FilterOptions(context.Background(), srh)
	require.NoError(t, err)
	assert.Empty(t, opts.Outlets)
}

func TestFieldOfficersForOutlet(t *testing.T) {
	f := newFixture(t)
	f.addFO("fo_bob", "OUT1")
	f.addFO("fo_alice", "OUT1")

	officers, err := f.feedback.FieldOfficers(context.Background(), doPune, "OUT1")
	require.NoError(t, err)
	require.Len(t, officers, 2)
	assert.Equal(t, "fo_alice", officers[0].Username)
	assert.Equal(t, "Bob", officers[1].FullName)

	_, err = f.feedback.FieldOfficers(context.Background(), doMumbai, "OUT1")
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.feedback.FieldOfficers(context.Background(), foAlice, "OUT1")
	requireCode(t, err, apperrors.CodeForbidden)

	officers, err = f.feedback.FieldOfficers(context.Background(), vendor, "OUT2")
	require.NoError(t, err)
	assert.Empty(t, officers)
}

func TestExportCSVWritesScopedRowsWithOffset(t *testing.T) {
	f := newFixture(t)
	comment := "queue, long"
	rating := 4
	f.store.InsertCase(domain.FeedbackCase{
		OutletCode: "OUT1",
		Phone:      "9811111111",
		Comment:    &comment,
		RatingAir:  &rating,
		CreatedAt:  time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	})
	f.store.InsertCase(domain.FeedbackCase{
		OutletCode: "OUT2",
		Phone:      "9822222222",
		CreatedAt:  time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	})

	var buf bytes.Buffer
	require.NoError(t, f.feedback.ExportCSV(context.Background(), roOne, CaseListFilter{}, &buf, 330))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, []string{"1", "2026-01-02 05:30", "9811111111", "OUT1", "4", "", "", "queue, long", "Pending", "N/A"}, rows[1])
}

func TestExportCSVPagesThroughLargeScopes(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < exportBatchSize+3; i++ {
		f.newCase("OUT1", domain.WorkflowPending)
	}
	var buf bytes.Buffer
	require.NoError(t, f.feedback.ExportCSV(context.Background(), vendor, CaseListFilter{}, &buf, 0))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, exportBatchSize+4)
}
