package leads

import (
	"context"
	"errors"
	"strings"
	"time"

	"lead-response/internal/calls"
	"lead-response/pkg/phone"

	"github.com/google/uuid"
)

// Service owns lead writes. Phone numbers are normalized on the way in so either
// matching strategy can find the lead later.
type Service struct {
	repo   Repository
	region string
	clock  func() time.Time
}

func NewService(repo Repository, defaultRegion string) *Service {
	return &Service{repo: repo, region: defaultRegion, clock: time.Now}
}

func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

type CreateInput struct {
	OrganizationID string
	CampaignID     string
	Name           string
	Email          string
	Phone          string
	Source         string
}

var ErrPhoneRequired = errors.New("lead phone is required")

func (s *Service) Create(ctx context.Context, in CreateInput) (Lead, error) {
	if in.OrganizationID == "" {
		return Lead{}, ErrInvalidArgument
	}
	raw := strings.TrimSpace(in.Phone)
	if raw == "" {
		return Lead{}, ErrPhoneRequired
	}
	now := s.clock().UTC()
	return s.repo.Create(ctx, Lead{
		ID:              uuid.NewString(),
		OrganizationID:  in.OrganizationID,
		CampaignID:      in.CampaignID,
		Name:            strings.TrimSpace(in.Name),
		Email:           strings.TrimSpace(in.Email),
		Phone:           raw,
		PhoneNormalized: s.normalize(raw),
		Source:          in.Source,
		Status:          StatusNew,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
}

// Update applies p to the lead. A lead owned by another organization reads as not found.
// A status in p is only applied when it moves the lead forward.
func (s *Service) Update(ctx context.Context, organizationID, id string, p Patch) (Lead, error) {
	cur, err := s.repo.Get(ctx, id)
	if err != nil {
		return Lead{}, err
	}
	if organizationID != "" && cur.OrganizationID != organizationID {
		return Lead{}, ErrNotFound
	}
	if p.Phone != nil {
		n := s.normalize(*p.Phone)
		p.PhoneNormalized = &n
	}
	if p.Status != nil && !CanAdvance(cur.Status, *p.Status) {
		p.Status = nil
	}
	p.UpdatedAt = s.clock().UTC()
	return s.repo.Update(ctx, id, p)
}

// ApplyCallOutcome advances the lead a terminal call belongs to, within the call's organization.
// It returns the status the outcome implies and whether the lead moved.
func (s *Service) ApplyCallOutcome(ctx context.Context, organizationID, leadID string, status calls.CallStatus, appointmentSet bool) (Status, bool, error) {
	if leadID == "" || organizationID == "" {
		return "", false, nil
	}
	next, ok := StatusForCall(status, appointmentSet)
	if !ok {
		return "", false, nil
	}
	advanced, err := s.repo.AdvanceStatus(ctx, organizationID, leadID, next, s.clock())
	if err != nil {
		return next, false, err
	}
	return next, advanced, nil
}

// MarkAppointmentSet is the manual path used when an appointment is booked outside a call.
// An empty organizationID skips the tenant check, as in Update.
func (s *Service) MarkAppointmentSet(ctx context.Context, organizationID, leadID string) (bool, error) {
	return s.repo.AdvanceStatus(ctx, organizationID, leadID, StatusAppointmentSet, s.clock())
}

func (s *Service) normalize(raw string) string {
	n, err := phone.NormalizeE164(raw, s.region)
	if err != nil {
		return ""
	}
	return n
}
