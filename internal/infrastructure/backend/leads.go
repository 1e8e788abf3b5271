package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
	"golang.org/x/sync/errgroup"
)

const (
	pathLeadsByStatus   = "/meetCRM/v2/leads/getLeadsByStatus"
	pathEnquiries       = "/meetCRM/v2/leads/getPropertyEnquiries"
	pathTodayLeads      = "/meetCRM/v2/leads/getTodayLeads"
	pathLeadUpdates     = "/meetCRM/v2/leads/getLeadUpdatesByLeadId"
	pathCreateLead      = "/meetCRM/v2/leads/createLead"
	pathAssignLead      = "/meetCRM/v2/leads/assignLeads"
	pathBookingDone     = "/api/v1/leads/bookingdone"
	pathUpdateLeadByEmp = "/api/v1/leads/updateLeadByEmployee"
)

var _ leads.Backend = (*Client)(nil)

type statusQuery struct {
	Status int   `url:"status,omitempty"`
	UserID int64 `url:"user_id,omitempty"`
}

type leadQuery struct {
	LeadID int64 `url:"lead_id"`
}

var listMessages = statusMessages{
	unauthorized: "Unauthorized: Invalid or expired token",
	notFound:     "No leads found",
	fallback:     "Failed to fetch leads",
}

// FetchLeads fetches and normalizes the listing behind req.View. ViewAll
// fetches enquiries and today's leads concurrently; the caller deduplicates.
// A 404 from a listing endpoint is an empty list, not an error.
func (c *Client) FetchLeads(ctx context.Context, req leads.FetchRequest) ([]leads.Lead, error) {
	switch req.View {
	case leads.ViewStatus:
		return c.list(ctx, "leads_by_status", pathLeadsByStatus,
			statusQuery{Status: int(req.Status), UserID: req.UserID}, req.Credential, leads.SourceLead)
	case leads.ViewEnquiries:
		return c.list(ctx, "property_enquiries", pathEnquiries,
			userQuery{UserID: req.UserID}, req.Credential, leads.SourceEnquiry)
	case leads.ViewToday:
		return c.list(ctx, "today_leads", pathTodayLeads,
			userQuery{UserID: req.UserID}, req.Credential, leads.SourceToday)
	case leads.ViewAll:
		var enquiries, today []leads.Lead
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			enquiries, err = c.list(gctx, "property_enquiries", pathEnquiries,
				userQuery{UserID: req.UserID}, req.Credential, leads.SourceEnquiry)
			return err
		})
		g.Go(func() error {
			var err error
			today, err = c.list(gctx, "today_leads", pathTodayLeads,
				userQuery{UserID: req.UserID}, req.Credential, leads.SourceToday)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return append(today, enquiries...), nil
	default:
		return nil, apperrors.Validation(fmt.Sprintf("unknown lead view %q", req.View))
	}
}

func (c *Client) list(ctx context.Context, op, path string, q any, credential string, source leads.SourceKind) ([]leads.Lead, error) {
	raw, err := c.do(ctx, request{
		op:         op,
		method:     http.MethodGet,
		path:       path,
		query:      q,
		credential: credential,
		messages:   listMessages,
	})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return []leads.Lead{}, nil
		}
		return nil, err
	}
	return decodeLeads(raw, source)
}

// LeadUpdates returns the history entries of leadID in backend order.
func (c *Client) LeadUpdates(ctx context.Context, credential string, leadID int64) ([]leads.Update, error) {
	raw, err := c.do(ctx, request{
		op:         "lead_updates",
		method:     http.MethodGet,
		path:       pathLeadUpdates,
		query:      leadQuery{LeadID: leadID},
		credential: credential,
		messages: statusMessages{
			unauthorized: "Unauthorized: Invalid or expired token",
			notFound:     "No lead updates found",
			fallback:     "Failed to fetch lead updates",
		},
	})
	if err != nil {
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return []leads.Update{}, nil
		}
		return nil, err
	}

	list, err := unwrapList(raw)
	if err != nil {
		return nil, err
	}
	var rows []rawUpdate
	if err := decode(list, &rows); err != nil {
		return nil, err
	}
	out := make([]leads.Update, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.normalize())
	}
	return out, nil
}

type mutationReply struct {
	envelope
	LeadID flexInt `json:"lead_id"`
	Data   *struct {
		LeadID flexInt `json:"lead_id"`
	} `json:"data"`
}

// mutate posts body. With requireSuccess the reply must carry
// status "success"; otherwise any 2xx reply is accepted.
func (c *Client) mutate(ctx context.Context, op, path, credential string, body any, fallback string, requireSuccess bool) (leads.Envelope, error) {
	raw, err := c.do(ctx, request{
		op:         op,
		method:     http.MethodPost,
		path:       path,
		body:       body,
		credential: credential,
		messages: statusMessages{
			unauthorized: "Unauthorized: Invalid or expired token",
			notFound:     "Lead not found",
			fallback:     fallback,
		},
	})
	if err != nil {
		return leads.Envelope{}, err
	}

	var reply mutationReply
	if err := decode(raw, &reply); err != nil {
		return leads.Envelope{}, err
	}
	env := leads.Envelope{Status: string(reply.Status), Message: reply.text(), LeadID: int64(reply.LeadID)}
	if env.LeadID == 0 && reply.Data != nil {
		env.LeadID = int64(reply.Data.LeadID)
	}
	if requireSuccess && !strings.EqualFold(env.Status, statusSuccess) {
		msg := env.Message
		if msg == "" {
			msg = fallback
		}
		return env, apperrors.BackendRejected(msg)
	}
	return env, nil
}

// CreateLead submits a new lead. The backend answers 201 with the new lead id.
func (c *Client) CreateLead(ctx context.Context, credential string, in leads.CreateInput) (leads.Envelope, error) {
	env, err := c.mutate(ctx, "create_lead", pathCreateLead, credential, in, "Failed to insert lead", false)
	if err != nil {
		return env, err
	}
	if env.LeadID == 0 {
		return env, apperrors.BackendRejected("Lead was created without a lead id")
	}
	return env, nil
}

// AssignLead assigns a lead; status defaults to Open.
func (c *Client) AssignLead(ctx context.Context, credential string, in leads.AssignInput) (leads.Envelope, error) {
	if in.StatusID == 0 {
		in.StatusID = leads.StatusOpen
	}
	return c.mutate(ctx, "assign_lead", pathAssignLead, credential, in, "Failed to assign lead", true)
}

// MarkBooked records a booking for a lead.
func (c *Client) MarkBooked(ctx context.Context, credential string, in leads.BookingInput) (leads.Envelope, error) {
	return c.mutate(ctx, "mark_booked", pathBookingDone, credential, in, "Failed to mark lead as booked", true)
}

// UpdateStatus moves a lead to another stage.
func (c *Client) UpdateStatus(ctx context.Context, credential string, in leads.StatusUpdateInput) (leads.Envelope, error) {
	return c.mutate(ctx, "update_status", pathUpdateLeadByEmp, credential, in, "Failed to update lead", true)
}
