package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/events"
	"github.com/spec-kit/outlet-feedback/internal/observability"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

var (
	vendor    = domain.Actor{ID: "vendor_vic", Role: domain.RoleVendor}
	superuser = domain.Actor{ID: "root", Role: domain.RoleSuperuser}
	doPune    = domain.Actor{ID: "do_dave", Role: domain.RoleDO, City: "Pune"}
	doPune2   = domain.Actor{ID: "do_dina", Role: domain.RoleDO, City: "Pune"}
	doMumbai  = domain.Actor{ID: "do_mona", Role: domain.RoleDO, City: "Mumbai"}
	foAlice   = domain.Actor{ID: "fo_alice", Role: domain.RoleFO}
	foBob     = domain.Actor{ID: "fo_bob", Role: domain.RoleFO}
	roOne     = domain.Actor{ID: "ro_one", Role: domain.RoleRO, HomeOutlet: "OUT1"}
	drsm      = domain.Actor{ID: "drsm_raj", Role: domain.RoleDRSM}
	srh       = domain.Actor{ID: "srh_sam", Role: domain.RoleSRH}
)

type fixture struct {
	store    *repository.MemoryStore
	access   *AccessFilter
	workflow *WorkflowService
	feedback *FeedbackService
	metrics  *observability.Metrics

	mu       sync.Mutex
	received []events.Event
}

// newFixture seeds three outlets. OUT1 and OUT3 are in Pune, OUT2 in Mumbai.
// No FO covers OUT1 until a test adds one.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	store.AddOutlet(domain.Outlet{Code: "OUT1", Name: "Highway One", City: "Pune"})
	store.AddOutlet(domain.Outlet{Code: "OUT2", Name: "Harbour Road", City: "Mumbai"})
	store.AddOutlet(domain.Outlet{Code: "OUT3", Name: "Camp", City: "Pune"})

	store.AddOfficer(domain.Officer{Username: "ro_one", Role: domain.RoleRO, HomeOutlet: "OUT1", City: "Pune", Active: true})
	store.AddOfficer(domain.Officer{Username: "ro_two", Role: domain.RoleRO, HomeOutlet: "OUT2", City: "Mumbai", Active: true})
	store.AddOfficer(domain.Officer{Username: "ro_three", Role: domain.RoleRO, HomeOutlet: "OUT3", City: "Pune", Active: true})
	store.AddOfficer(domain.Officer{Username: "fo_alice", FullName: "Alice", Role: domain.RoleFO, City: "Pune", Active: true})
	store.AddOfficer(domain.Officer{Username: "fo_bob", FullName: "Bob", Role: domain.RoleFO, City: "Pune", Active: true})
	store.AddOfficer(domain.Officer{Username: "do_dave", Role: domain.RoleDO, City: "Pune", Active: true})

	for _, edge := range []domain.AssignmentEdge{
		{Username: "do_dave", Role: domain.RoleDO, OutletCode: "OUT1"},
		{Username: "do_dave", Role: domain.RoleDO, OutletCode: "OUT3"},
		{Username: "do_dina", Role: domain.RoleDO, OutletCode: "OUT1"},
		{Username: "do_mona", Role: domain.RoleDO, OutletCode: "OUT2"},
		{Username: "drsm_raj", Role: domain.RoleDRSM, OutletCode: "OUT1"},
		{Username: "drsm_raj", Role: domain.RoleDRSM, OutletCode: "OUT2"},
		{Username: "fo_bob", Role: domain.RoleFO, OutletCode: "OUT3"},
	} {
		store.AddEdge(edge)
	}
	return buildFixture(t, store, nil)
}

func buildFixture(t *testing.T, store *repository.MemoryStore, wrap func(HierarchyDirectory) HierarchyDirectory) *fixture {
	t.Helper()
	directory := NewHierarchyDirectory(store, store)
	engineDirectory := directory
	if wrap != nil {
		engineDirectory = wrap(directory)
	}
	access := NewAccessFilter(directory, nil)
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	f := &fixture{store: store, access: access, metrics: metrics}
	capture := func(ctx context.Context, e events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.received = append(f.received, e)
		return nil
	}
	dispatcher.Subscribe(events.EventFeedbackTransitioned, capture)
	dispatcher.Subscribe(events.EventFeedbackAssigned, capture)

	f.workflow = NewWorkflowService(WorkflowDependencies{
		FeedbackRepo: store,
		Access:       access,
		Directory:    engineDirectory,
		Dispatcher:   dispatcher,
		Metrics:      metrics,
	})
	f.feedback = NewFeedbackService(FeedbackDependencies{
		FeedbackRepo:   store,
		HistoryRepo:    store,
		OutletRepo:     store.Outlets(),
		AssignmentRepo: store,
		OfficerRepo:    store,
		Access:         access,
	})
	return f
}

func (f *fixture) addFO(username, outlet string) {
	f.store.AddEdge(domain.AssignmentEdge{Username: username, Role: domain.RoleFO, OutletCode: outlet})
}

func (f *fixture) newCase(outlet string, state domain.WorkflowStatus) *domain.FeedbackCase {
	fc := domain.FeedbackCase{
		OutletCode:     outlet,
		WorkflowStatus: state,
		OverallStatus:  overallFor(state),
		Phone:          "9800000000",
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if state == domain.WorkflowAssigned || state == domain.WorkflowActionTaken {
		officer := "fo_alice"
		fc.AssignedOfficer = &officer
	}
	return f.store.InsertCase(fc)
}

func (f *fixture) get(t *testing.T, id int64) *domain.FeedbackCase {
	t.Helper()
	fc, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return fc
}

func (f *fixture) history(t *testing.T, id int64) []domain.ReviewHistory {
	t.Helper()
	entries, err := f.store.ListByCase(context.Background(), id, 100, 0)
	require.NoError(t, err)
	return entries
}

func (f *fixture) published() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Event{}, f.received...)
}

func (f *fixture) move(t *testing.T, actor domain.Actor, id int64, target domain.WorkflowStatus) *domain.FeedbackCase {
	t.Helper()
	fc, err := f.workflow.Transition(context.Background(), actor, TransitionInput{CaseID: id, Target: target})
	require.NoError(t, err)
	return fc
}

func overallFor(state domain.WorkflowStatus) domain.OverallStatus {
	switch state {
	case domain.WorkflowVendorVerified:
		return domain.OverallReviewed
	case domain.WorkflowAssigned, domain.WorkflowActionTaken:
		return domain.OverallVerified
	case domain.WorkflowResolved:
		return domain.OverallResolved
	case domain.WorkflowRejected:
		return domain.OverallRejected
	}
	return domain.OverallPending
}

func requireCode(t *testing.T, err error, code string) *apperrors.DomainError {
	t.Helper()
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	require.Equal(t, code, domainErr.Code, "unexpected error: %v", err)
	return domainErr
}
