package service

import (
	"context"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/spec-kit/outlet-feedback/internal/domain"
	"github.com/spec-kit/outlet-feedback/internal/repository"
	apperrors "github.com/spec-kit/outlet-feedback/pkg/util"
)

const chartWindow = 30 * 24 * time.Hour

// RatingBucket is one slice of a rating distribution.
type RatingBucket struct {
	Name    string
	Count   int
	Percent float64
}

// RatingDistribution groups rated cases into Good, Neutral and Poor.
type RatingDistribution struct {
	Buckets []RatingBucket
	Total   int
}

// DailyComplaints counts cases per day in scope. A missing bound defaults on
// its own: from to thirty days back, to to now.
func (s *FeedbackService) DailyComplaints(ctx context.Context, actor domain.Actor, from, to *time.Time) ([]repository.DailyCount, error) {
	now := s.now().UTC()
	if from == nil {
		start := now.Add(-chartWindow)
		from = &start
	}
	if to == nil {
		to = &now
	}
	return s.countByDay(ctx, actor, repository.FeedbackFilter{CreatedFrom: from, CreatedTo: to})
}

// NotVerifiedDistribution counts Not Verified cases per day in scope. The
// thirty day window applies only when both bounds are missing.
func (s *FeedbackService) NotVerifiedDistribution(ctx context.Context, actor domain.Actor, from, to *time.Time) ([]repository.DailyCount, error) {
	if from == nil && to == nil {
		now := s.now().UTC()
		start := now.Add(-chartWindow)
		from, to = &start, &now
	}
	return s.countByDay(ctx, actor, repository.FeedbackFilter{
		OverallStatuses: []domain.OverallStatus{domain.OverallNotVerified},
		CreatedFrom:     from,
		CreatedTo:       to,
	})
}

func (s *FeedbackService) countByDay(ctx context.Context, actor domain.Actor, filter repository.FeedbackFilter) ([]repository.DailyCount, error) {
	scoped, err := s.access.Scope(ctx, actor, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	days, err := s.cases.CountByDay(ctx, scoped)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return days, nil
}

// RatingDistribution buckets the scores given for one facility within scope.
// Both bounds are optional.
func (s *FeedbackService) RatingDistribution(ctx context.Context, actor domain.Actor, dimension domain.RatingDimension, from, to *time.Time) (*RatingDistribution, error) {
	scoped, err := s.access.Scope(ctx, actor, repository.FeedbackFilter{CreatedFrom: from, CreatedTo: to})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	counts, err := s.cases.CountByRating(ctx, scoped, dimension)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return bucketRatings(counts), nil
}

var ratingOrder = map[string]int{"Good": 0, "Neutral": 1, "Poor": 2}

func ratingLabel(score int) string {
	switch {
	case score == 1:
		return "Poor"
	case score == 2:
		return "Neutral"
	case score >= 3 && score <= 5:
		return "Good"
	default:
		return strconv.Itoa(score)
	}
}

func bucketRatings(counts map[int]int) *RatingDistribution {
	byLabel := map[string]int{}
	dist := &RatingDistribution{Buckets: []RatingBucket{}}
	for score, n := range counts {
		if n <= 0 {
			continue
		}
		byLabel[ratingLabel(score)] += n
		dist.Total += n
	}
	for name, n := range byLabel {
		dist.Buckets = append(dist.Buckets, RatingBucket{
			Name:    name,
			Count:   n,
			Percent: math.Round(float64(n)/float64(dist.Total)*1000) / 10,
		})
	}
	sort.Slice(dist.Buckets, func(i, j int) bool {
		a, b := dist.Buckets[i].Name, dist.Buckets[j].Name
		ra, okA := ratingOrder[a]
		rb, okB := ratingOrder[b]
		switch {
		case okA && okB:
			return ra < rb
		case okA != okB:
			return okA
		default:
			return a < b
		}
	})
	return dist
}
