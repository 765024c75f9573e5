package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spec-kit/outlet-feedback/internal/domain"
)

// MemoryStore is an in-process implementation of every repository in this
// package. Case updates use optimistic restate-and-compare on Version, so a
// writer that loses a race gets ErrVersionConflict.
type MemoryStore struct {
	mu       sync.RWMutex
	nextID   int64
	cases    map[int64]*domain.FeedbackCase
	history  map[int64][]domain.ReviewHistory
	outlets  map[string]domain.Outlet
	edges    map[domain.AssignmentEdge]struct{}
	officers map[string]domain.Officer
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:    map[int64]*domain.FeedbackCase{},
		history:  map[int64][]domain.ReviewHistory{},
		outlets:  map[string]domain.Outlet{},
		edges:    map[domain.AssignmentEdge]struct{}{},
		officers: map[string]domain.Officer{},
	}
}

// AddOutlet registers an outlet.
func (m *MemoryStore) AddOutlet(outlet domain.Outlet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outlets[outlet.Code] = outlet
}

// AddEdge records an assignment edge; duplicates collapse.
func (m *MemoryStore) AddEdge(edge domain.AssignmentEdge) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges[edge] = struct{}{}
}

// AddOfficer registers an account.
func (m *MemoryStore) AddOfficer(officer domain.Officer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.officers[officer.Username] = officer
}

// InsertCase stores a new case, assigning an ID and defaults when missing.
func (m *MemoryStore) InsertCase(fc domain.FeedbackCase) *domain.FeedbackCase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fc.ID == 0 {
		m.nextID++
		fc.ID = m.nextID
	} else if fc.ID > m.nextID {
		m.nextID = fc.ID
	}
	if fc.WorkflowStatus == "" {
		fc.WorkflowStatus = domain.WorkflowPending
	}
	if fc.OverallStatus == "" {
		fc.OverallStatus = domain.OverallPending
	}
	now := time.Now().UTC()
	if fc.CreatedAt.IsZero() {
		fc.CreatedAt = now
	}
	if fc.UpdatedAt.IsZero() {
		fc.UpdatedAt = fc.CreatedAt
	}
	stored := fc.Clone()
	m.cases[stored.ID] = stored
	return stored.Clone()
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.FeedbackCase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fc, ok := m.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return fc.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context, filter FeedbackFilter) ([]domain.FeedbackCase, int, error) {
	matched := m.matching(filter)
	sortCases(matched, filter.SortBy, filter.SortDesc)

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	total := len(matched)
	if offset >= total {
		return []domain.FeedbackCase{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *MemoryStore) CountByOverallStatus(ctx context.Context, filter FeedbackFilter) (map[domain.OverallStatus]int, error) {
	counts := make(map[domain.OverallStatus]int, len(domain.OverallStatuses))
	for _, fc := range m.matching(filter) {
		counts[fc.OverallStatus]++
	}
	return counts, nil
}

func (m *MemoryStore) CountByDay(ctx context.Context, filter FeedbackFilter) ([]DailyCount, error) {
	byDay := map[time.Time]int{}
	for _, fc := range m.matching(filter) {
		created := fc.CreatedAt.UTC()
		byDay[time.Date(created.Year(), created.Month(), created.Day(), 0, 0, 0, 0, time.UTC)]++
	}
	out := make([]DailyCount, 0, len(byDay))
	for day, count := range byDay {
		out = append(out, DailyCount{Day: day, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (m *MemoryStore) CountByRating(ctx context.Context, filter FeedbackFilter, dimension domain.RatingDimension) (map[int]int, error) {
	if _, ok := ratingColumns[dimension]; !ok {
		return nil, fmt.Errorf("unknown rating dimension %q", dimension)
	}
	counts := map[int]int{}
	for _, fc := range m.matching(filter) {
		if rating := fc.Rating(dimension); rating != nil {
			counts[*rating]++
		}
	}
	return counts, nil
}

func (m *MemoryStore) UpdateWithHistory(ctx context.Context, id int64, mutate MutateFunc) (*domain.FeedbackCase, error) {
	m.mu.RLock()
	stored, ok := m.cases[id]
	if !ok {
		m.mu.RUnlock()
		return nil, ErrNotFound
	}
	working := stored.Clone()
	m.mu.RUnlock()

	baseVersion := working.Version
	entry, err := mutate(working)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cases[id].Version != baseVersion {
		return nil, ErrVersionConflict
	}
	working.ID = id
	working.Version = baseVersion + 1
	working.UpdatedAt = time.Now().UTC()
	m.cases[id] = working.Clone()
	if entry != nil {
		prepareHistory(entry, id)
		m.history[id] = append(m.history[id], *entry)
	}
	return working, nil
}

func (m *MemoryStore) ListByCase(ctx context.Context, caseID int64, limit, offset int) ([]domain.ReviewHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.history[caseID]
	limit, offset = normalizePage(limit, offset)
	if offset >= len(entries) {
		return []domain.ReviewHistory{}, nil
	}
	end := offset + limit
	if end > len(entries) {
		end = len(entries)
	}
	return append([]domain.ReviewHistory{}, entries[offset:end]...), nil
}

func (m *MemoryStore) GetByCode(ctx context.Context, code string) (*domain.Outlet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	outlet, ok := m.outlets[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &outlet, nil
}

func (m *MemoryStore) listOutlets(codes []string) []domain.Outlet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []domain.Outlet{}
	if codes == nil {
		for _, outlet := range m.outlets {
			result = append(result, outlet)
		}
	} else {
		for _, code := range codes {
			if outlet, ok := m.outlets[code]; ok {
				result = append(result, outlet)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Code < result[j].Code })
	return result
}

// Outlets adapts the store to OutletRepository; List is already taken by
// FeedbackRepository.
func (m *MemoryStore) Outlets() OutletRepository {
	return memoryOutlets{store: m}
}

type memoryOutlets struct {
	store *MemoryStore
}

func (o memoryOutlets) GetByCode(ctx context.Context, code string) (*domain.Outlet, error) {
	return o.store.GetByCode(ctx, code)
}

func (o memoryOutlets) List(ctx context.Context, codes []string) ([]domain.Outlet, error) {
	return o.store.listOutlets(codes), nil
}

func (m *MemoryStore) OutletsForUser(ctx context.Context, username string, role domain.Role) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []string{}
	for edge := range m.edges {
		if edge.Username == username && edge.Role == role {
			result = append(result, edge.OutletCode)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *MemoryStore) UsernamesForOutlet(ctx context.Context, outletCode string, role domain.Role) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []string{}
	for edge := range m.edges {
		if edge.OutletCode == outletCode && edge.Role == role {
			result = append(result, edge.Username)
		}
	}
	sort.Strings(result)
	return result, nil
}

func (m *MemoryStore) Exists(ctx context.Context, edge domain.AssignmentEdge) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.edges[edge]
	return ok, nil
}

func (m *MemoryStore) FindByOutletAndRole(ctx context.Context, outletCode string, role domain.Role) (*domain.Officer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *domain.Officer
	for _, officer := range m.officers {
		if officer.HomeOutlet != outletCode || officer.Role != role {
			continue
		}
		if found == nil || officer.Username < found.Username {
			candidate := officer
			found = &candidate
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (m *MemoryStore) ListByUsernames(ctx context.Context, usernames []string) ([]domain.Officer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []domain.Officer{}
	for _, username := range usernames {
		if officer, ok := m.officers[username]; ok {
			result = append(result, officer)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

func (m *MemoryStore) matching(filter FeedbackFilter) []domain.FeedbackCase {
	if filter.Scoped && len(filter.OutletScope) == 0 {
		return []domain.FeedbackCase{}
	}
	scope := make(map[string]struct{}, len(filter.OutletScope))
	for _, code := range filter.OutletScope {
		scope[code] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	result := []domain.FeedbackCase{}
	for _, fc := range m.cases {
		if filter.Scoped {
			if _, ok := scope[fc.OutletCode]; !ok {
				continue
			}
		}
		if !matchesFilter(fc, filter) {
			continue
		}
		result = append(result, *fc.Clone())
	}
	return result
}

func matchesFilter(fc *domain.FeedbackCase, filter FeedbackFilter) bool {
	if filter.OutletCode != nil && fc.OutletCode != *filter.OutletCode {
		return false
	}
	if len(filter.OverallStatuses) > 0 && !containsOverall(filter.OverallStatuses, fc.OverallStatus) {
		return false
	}
	if len(filter.WorkflowStatuses) > 0 && !containsWorkflow(filter.WorkflowStatuses, fc.WorkflowStatus) {
		return false
	}
	if filter.AssignedOfficer != nil && (fc.AssignedOfficer == nil || *fc.AssignedOfficer != *filter.AssignedOfficer) {
		return false
	}
	if filter.CreatedFrom != nil && fc.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && fc.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.RatingAir != nil && (fc.RatingAir == nil || *fc.RatingAir != *filter.RatingAir) {
		return false
	}
	if filter.RatingWashroom != nil && (fc.RatingWashroom == nil || *fc.RatingWashroom != *filter.RatingWashroom) {
		return false
	}
	if filter.IsTestimonial != nil && fc.IsTestimonial != *filter.IsTestimonial {
		return false
	}
	if filter.HasReceipt != nil && fc.HasReceipt != *filter.HasReceipt {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" {
			comment := ""
			if fc.Comment != nil {
				comment = strings.ToLower(*fc.Comment)
			}
			if !strings.Contains(fc.Phone, term) && !strings.Contains(comment, term) {
				return false
			}
		}
	}
	return true
}

func sortCases(cases []domain.FeedbackCase, sortBy string, desc bool) {
	column, ok := sortColumns[sortBy]
	if !ok {
		column = "created_at"
	}
	less := func(a, b domain.FeedbackCase) bool {
		switch column {
		case "updated_at":
			if !a.UpdatedAt.Equal(b.UpdatedAt) {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
		case "status":
			if a.OverallStatus != b.OverallStatus {
				return a.OverallStatus < b.OverallStatus
			}
		case "workflow_status":
			if a.WorkflowStatus != b.WorkflowStatus {
				return a.WorkflowStatus < b.WorkflowStatus
			}
		case "ro_number":
			if a.OutletCode != b.OutletCode {
				return a.OutletCode < b.OutletCode
			}
		case "created_at":
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	}
	sort.SliceStable(cases, func(i, j int) bool {
		if desc {
			return less(cases[j], cases[i])
		}
		return less(cases[i], cases[j])
	})
}

func containsOverall(values []domain.OverallStatus, target domain.OverallStatus) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsWorkflow(values []domain.WorkflowStatus, target domain.WorkflowStatus) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
