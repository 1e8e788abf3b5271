package leads

import "context"

// View names a list view backed by one or more listing endpoints.
type View string

const (
	ViewAll       View = "all"
	ViewStatus    View = "status"
	ViewEnquiries View = "enquiries"
	ViewToday     View = "today"
)

// Valid reports whether v is a known view.
func (v View) Valid() bool {
	switch v {
	case ViewAll, ViewStatus, ViewEnquiries, ViewToday:
		return true
	}
	return false
}

// FetchRequest parameterizes a listing fetch for an authenticated identity.
// Status is only used by ViewStatus; zero means every status.
type FetchRequest struct {
	UserID     int64
	Credential string
	View       View
	Status     Status
}

// Source fetches raw listings and normalizes them into canonical records.
type Source interface {
	FetchLeads(ctx context.Context, req FetchRequest) ([]Lead, error)
}

// CreateInput is a new lead submitted from the console.
type CreateInput struct {
	CustomerName          string `json:"customer_name" validate:"required,max=120"`
	CustomerPhone         string `json:"customer_phone_number" validate:"required,numeric,min=7,max=15"`
	CustomerEmail         string `json:"customer_email" validate:"omitempty,email"`
	InterestedProject     string `json:"interested_project_name" validate:"required"`
	InterestedProjectID   int64  `json:"interested_project_id,omitempty"`
	SourceID              int    `json:"lead_source_id" validate:"required,min=1"`
	SourceUserID          int64  `json:"lead_source_user_id,omitempty" validate:"required_if=SourceID 6"`
	Budget                string `json:"budget,omitempty"`
	State                 string `json:"state,omitempty"`
	City                  string `json:"city,omitempty"`
	AddedUserID           int64  `json:"lead_added_user_id" validate:"required"`
	AddedUserType         int    `json:"lead_added_user_type" validate:"required"`
	AssignedUserType      int    `json:"assigned_user_type,omitempty" validate:"required_if=SourceID 6"`
	AssignedID            int64  `json:"assigned_id,omitempty" validate:"required_if=SourceID 6"`
	AssignedName          string `json:"assigned_name,omitempty" validate:"required_if=SourceID 6"`
	AssignedEmpNumber     string `json:"assigned_emp_number,omitempty" validate:"required_if=SourceID 6"`
	AssignedPriority      string `json:"assigned_priority,omitempty"`
	FollowupFeedback      string `json:"follow_up_feedback,omitempty"`
	UniquePropertyID      string `json:"unique_property_id,omitempty"`
	PropertySubType       string `json:"property_sub_type,omitempty"`
	PropertyFor           string `json:"property_for,omitempty"`
	PropertyIn            string `json:"property_in,omitempty"`
	Address               string `json:"google_address,omitempty"`
	StatusID              Status `json:"status_id,omitempty"`
	LeadPropertyReference string `json:"lead_property_reference,omitempty"`
}

// SourceReferral is the lead source that must name its assignee up front.
const SourceReferral = 6

// SourceEnquiryPromotion is the lead source used when an enquiry is promoted.
const SourceEnquiryPromotion = 3

// AssignInput assigns a lead to an employee.
type AssignInput struct {
	LeadID           int64  `json:"lead_id" validate:"required,min=1"`
	AssignedUserType int    `json:"assigned_user_type" validate:"required"`
	AssignedID       int64  `json:"assigned_id" validate:"required"`
	AssignedName     string `json:"assigned_name" validate:"required"`
	AssignedPhone    string `json:"assigned_emp_number" validate:"required"`
	AssignedPriority string `json:"assigned_priority,omitempty"`
	FollowupFeedback string `json:"followup_feedback,omitempty"`
	NextAction       string `json:"next_action,omitempty"`
	StatusID         Status `json:"status_id,omitempty"`
	AssignedByID     int64  `json:"lead_added_user_id" validate:"required"`
	AssignedByType   int    `json:"lead_added_user_type" validate:"required"`
}

// BookingInput marks a lead as booked.
type BookingInput struct {
	LeadID     int64  `json:"lead_id" validate:"required,min=1"`
	PropertyID string `json:"property_id" validate:"required"`
	FlatNumber string `json:"flat_number,omitempty"`
	FloorNo    string `json:"floor_number,omitempty"`
	BlockNo    string `json:"block_number,omitempty"`
	Asset      string `json:"asset,omitempty"`
	Sqft       string `json:"sqft,omitempty"`
	Budget     string `json:"budget,omitempty"`
	EmployeeID int64  `json:"user_id" validate:"required"`
}

// StatusUpdateInput moves a lead to another stage with feedback.
type StatusUpdateInput struct {
	LeadID        int64  `json:"lead_id" validate:"required,min=1"`
	Status        Status `json:"status_id" validate:"required,min=1,max=8"`
	Feedback      string `json:"feedback" validate:"required"`
	NextAction    string `json:"next_action,omitempty"`
	EmployeeID    int64  `json:"updated_by_emp_id" validate:"required"`
	EmployeeType  int    `json:"updated_by_emp_type" validate:"required"`
	EmployeeName  string `json:"updated_by_emp_name,omitempty"`
	EmployeePhone string `json:"updated_emp_phone,omitempty"`
}

// Envelope is the status/message reply of mutation endpoints.
type Envelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	LeadID  int64  `json:"lead_id,omitempty"`
}

// Backend is the mutation and history surface of the CRM backend.
type Backend interface {
	Source
	LeadUpdates(ctx context.Context, credential string, leadID int64) ([]Update, error)
	CreateLead(ctx context.Context, credential string, in CreateInput) (Envelope, error)
	AssignLead(ctx context.Context, credential string, in AssignInput) (Envelope, error)
	MarkBooked(ctx context.Context, credential string, in BookingInput) (Envelope, error)
	UpdateStatus(ctx context.Context, credential string, in StatusUpdateInput) (Envelope, error)
}
