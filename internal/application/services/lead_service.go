package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/go-playground/validator/v10"
)

// LeadService wraps the lead mutation and history endpoints. Mutations are
// never retried automatically.
type LeadService struct {
	backend     leads.Backend
	validate    *validator.Validate
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewLeadService creates a lead service.
func NewLeadService(backend leads.Backend, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *LeadService {
	return &LeadService{
		backend:     backend,
		validate:    validator.New(),
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// History returns the updates of leadID, newest first.
func (s *LeadService) History(ctx context.Context, credential string, leadID int64) ([]leads.Update, error) {
	if leadID <= 0 {
		return nil, apperrors.Validation("A lead id is required")
	}
	updates, err := s.backend.LeadUpdates(ctx, credential, leadID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].At().After(updates[j].At())
	})
	return updates, nil
}

// Create submits a new lead and returns its id.
func (s *LeadService) Create(ctx context.Context, credential string, in leads.CreateInput) (int64, error) {
	marker := s.perfTracker.StartOperation("leads:create", "")
	defer marker.Complete()

	in.CustomerPhone = digitsOnly(in.CustomerPhone)
	if err := s.check(in); err != nil {
		marker.SetError(err)
		return 0, err
	}
	env, err := s.backend.CreateLead(ctx, credential, in)
	if err != nil {
		marker.SetError(err)
		return 0, err
	}
	s.logger.Leads().Info("Lead created", "leadId", env.LeadID, "sourceId", in.SourceID)
	marker.SetSuccess(true)
	return env.LeadID, nil
}

// Promote returns the lead id of l, first creating a lead from it when l
// is an enquiry that has not entered the lead flow yet.
func (s *LeadService) Promote(ctx context.Context, credential string, l leads.Lead, actor session.Identity) (int64, error) {
	if l.Promoted() {
		return l.LeadID, nil
	}
	in := leads.CreateInput{
		CustomerName:      l.Name,
		CustomerPhone:     l.Phone,
		CustomerEmail:     l.Email,
		InterestedProject: l.ProjectName,
		SourceID:          leads.SourceEnquiryPromotion,
		Budget:            l.Budget,
		State:             l.State,
		City:              l.City,
		AddedUserID:       actor.ID,
		AddedUserType:     int(actor.Role),
		UniquePropertyID:  l.UniquePropertyID,
		PropertySubType:   l.PropertySubType,
		PropertyFor:       l.PropertyFor,
		PropertyIn:        l.PropertyIn,
		Address:           l.Address,
		StatusID:          leads.StatusOpen,
	}
	leadID, err := s.Create(ctx, credential, in)
	if err != nil {
		return 0, err
	}
	s.logger.Leads().Info("Enquiry promoted", "rowId", l.RowID, "leadId", leadID)
	return leadID, nil
}

// Assign promotes l if needed and assigns it.
func (s *LeadService) Assign(ctx context.Context, credential string, l leads.Lead, actor session.Identity, in leads.AssignInput) (leads.Envelope, error) {
	marker := s.perfTracker.StartOperation("leads:assign", "")
	defer marker.Complete()

	leadID, err := s.Promote(ctx, credential, l, actor)
	if err != nil {
		marker.SetError(err)
		return leads.Envelope{}, err
	}
	in.LeadID = leadID
	in.AssignedByID = actor.ID
	in.AssignedByType = int(actor.Role)
	if err := s.check(in); err != nil {
		marker.SetError(err)
		return leads.Envelope{}, err
	}
	env, err := s.backend.AssignLead(ctx, credential, in)
	if err != nil {
		marker.SetError(err)
		return env, err
	}
	env.LeadID = leadID
	marker.SetSuccess(true)
	return env, nil
}

// MarkBooked records a booking.
func (s *LeadService) MarkBooked(ctx context.Context, credential string, in leads.BookingInput) (leads.Envelope, error) {
	if err := s.check(in); err != nil {
		return leads.Envelope{}, err
	}
	return s.backend.MarkBooked(ctx, credential, in)
}

// UpdateStatus moves a lead to another stage.
func (s *LeadService) UpdateStatus(ctx context.Context, credential string, in leads.StatusUpdateInput) (leads.Envelope, error) {
	if err := s.check(in); err != nil {
		return leads.Envelope{}, err
	}
	return s.backend.UpdateStatus(ctx, credential, in)
}

// check validates in and folds field errors into one validation error.
func (s *LeadService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.Wrap(apperrors.KindValidation, apperrors.CodeInvalidInput, "Invalid input", err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return apperrors.Validation("Invalid input: " + strings.Join(parts, ", "))
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s)
}
