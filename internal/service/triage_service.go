package service

import (
	"context"
	"strings"
	"time"

	"github.com/music-store/support-service/internal/domain"
	"github.com/music-store/support-service/internal/repository"
	apperrors "github.com/music-store/support-service/pkg/util/errorutil"
)

// AttentionPolicy decides whether a ticket belongs in the staff
// needs-attention view. The rule is pluggable so it can be tuned without
// touching the ticket store contract.
type AttentionPolicy func(summary domain.TicketSummary, now time.Time) bool

// DefaultAttentionPolicy flags urgent tickets and active tickets nobody
// has claimed. It deliberately applies no age threshold.
func DefaultAttentionPolicy(summary domain.TicketSummary, now time.Time) bool {
	if summary.Status == domain.TicketStatusUrgent {
		return true
	}
	return !summary.Assigned() && summary.Status != domain.TicketStatusClosed
}

// TriageService computes the filtered views staff use to work the queue.
type TriageService struct {
	tickets   repository.TicketRepository
	attention AttentionPolicy
	now       func() time.Time
}

// NewTriageService constructs the service. A nil policy falls back to
// DefaultAttentionPolicy.
func NewTriageService(tickets repository.TicketRepository, attention AttentionPolicy) *TriageService {
	if attention == nil {
		attention = DefaultAttentionPolicy
	}
	return &TriageService{tickets: tickets, attention: attention, now: time.Now}
}

// DashboardStats aggregates the counters shown on the staff dashboard.
type DashboardStats struct {
	Total          int
	Urgent         int
	Unassigned     int
	NeedsAttention int
	Closed         int
}

const triageListLimit = 1000

// ListAll returns every ticket, optionally narrowed to a set of statuses.
func (s *TriageService) ListAll(ctx context.Context, caller domain.Identity, statuses []domain.TicketStatus) ([]domain.TicketSummary, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	for _, status := range statuses {
		if !domain.ValidStatus(status) {
			return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": status})
		}
	}
	return s.list(ctx, repository.TicketFilter{Statuses: statuses})
}

// Urgent returns tickets currently marked URGENT.
func (s *TriageService) Urgent(ctx context.Context, caller domain.Identity) ([]domain.TicketSummary, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	return s.list(ctx, repository.TicketFilter{Statuses: []domain.TicketStatus{domain.TicketStatusUrgent}})
}

// Unassigned returns tickets no staff member has claimed.
func (s *TriageService) Unassigned(ctx context.Context, caller domain.Identity) ([]domain.TicketSummary, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	unassigned := true
	return s.list(ctx, repository.TicketFilter{Unassigned: &unassigned})
}

// NeedsAttention applies the attention policy over the full set.
func (s *TriageService) NeedsAttention(ctx context.Context, caller domain.Identity) ([]domain.TicketSummary, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	all, err := s.list(ctx, repository.TicketFilter{})
	if err != nil {
		return nil, err
	}
	now := s.now()
	flagged := make([]domain.TicketSummary, 0, len(all))
	for _, summary := range all {
		if s.attention(summary, now) {
			flagged = append(flagged, summary)
		}
	}
	return flagged, nil
}

// Search matches the query case-insensitively against ticket subjects
// and message content.
func (s *TriageService) Search(ctx context.Context, caller domain.Identity, query string) ([]domain.TicketSummary, error) {
	if !caller.Role.IsStaff() {
		return nil, apperrors.NewForbidden("staff role required")
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperrors.NewValidationError("query required", nil)
	}
	return s.list(ctx, repository.TicketFilter{SearchTerm: &query})
}

// Stats returns the dashboard counters.
func (s *TriageService) Stats(ctx context.Context, caller domain.Identity) (DashboardStats, error) {
	if !caller.Role.IsStaff() {
		return DashboardStats{}, apperrors.NewForbidden("staff role required")
	}
	counts, err := s.tickets.Stats(ctx)
	if err != nil {
		return DashboardStats{}, apperrors.MapError(err)
	}
	flagged, err := s.NeedsAttention(ctx, caller)
	if err != nil {
		return DashboardStats{}, err
	}
	return DashboardStats{
		Total:          counts.Total,
		Urgent:         counts.Urgent,
		Unassigned:     counts.Unassigned,
		NeedsAttention: len(flagged),
		Closed:         counts.Closed,
	}, nil
}

func (s *TriageService) list(ctx context.Context, filter repository.TicketFilter) ([]domain.TicketSummary, error) {
	filter.Limit = triageListLimit
	summaries, err := s.tickets.ListSummaries(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return summaries, nil
}
