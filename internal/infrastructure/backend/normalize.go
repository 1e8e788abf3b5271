package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/leads"
)

// rawLead is the union of the enquiry and lead shapes the listing
// endpoints return. Field synonyms are resolved in normalize.
type rawLead struct {
	ID               flexInt    `json:"id"`
	LeadID           flexInt    `json:"lead_id"`
	UniquePropertyID flexString `json:"unique_property_id"`

	FullName     flexString `json:"fullname"`
	CustomerName flexString `json:"customer_name"`
	Email        flexString `json:"email"`
	CustEmail    flexString `json:"customer_email"`
	Mobile       flexString `json:"mobile"`
	CustPhone    flexString `json:"customer_phone_number"`
	UserDetails  *struct {
		ID     flexInt    `json:"id"`
		Name   flexString `json:"name"`
		Email  flexString `json:"email"`
		Mobile flexString `json:"mobile"`
	} `json:"userDetails"`

	PropertyName    flexString `json:"property_name"`
	InterestedName  flexString `json:"interested_project_name"`
	ProjectName     flexString `json:"project_name"`
	SubType         flexString `json:"sub_type"`
	PropertySubtype flexString `json:"property_subtype"`
	PropertyFor     flexString `json:"property_for"`
	PropertyIn      flexString `json:"property_in"`
	GoogleAddress   flexString `json:"google_address"`

	StateID flexString `json:"state_id"`
	State   flexString `json:"state"`
	CityID  flexString `json:"city_id"`
	City    flexString `json:"city"`

	PropertyCost flexString `json:"property_cost"`
	Budget       flexString `json:"budget"`

	AssignedUserType flexInt    `json:"assigned_user_type"`
	AssignedID       flexInt    `json:"assigned_id"`
	AssignedName     flexString `json:"assigned_name"`
	AssignedPhone    flexString `json:"assigned_emp_number"`
	AssignedPriority flexString `json:"assigned_priority"`

	StatusID     flexInt    `json:"status_id"`
	LeadSourceID flexInt    `json:"lead_source_id"`
	Feedback     flexString `json:"follow_up_feedback"`
	NextAction   flexString `json:"next_action"`

	CreatedAt   flexString `json:"created_at"`
	CreatedDate flexString `json:"created_date"`
	UpdatedAt   flexString `json:"updated_at"`
	UpdatedDate flexString `json:"updated_date"`
}

// normalize maps one source record into the canonical lead shape. The
// *_at timestamps are preferred over their *_date synonyms when both are set.
func (r rawLead) normalize(source leads.SourceKind) leads.Lead {
	var udName, udEmail, udMobile flexString
	if r.UserDetails != nil {
		udName, udEmail, udMobile = r.UserDetails.Name, r.UserDetails.Email, r.UserDetails.Mobile
	}

	created := firstNonEmpty(r.CreatedAt, r.CreatedDate)
	updated := firstNonEmpty(r.UpdatedAt, r.UpdatedDate)
	status := leads.Status(r.StatusID)
	if status == 0 && source == leads.SourceEnquiry {
		status = leads.StatusOpen
	}

	return leads.Lead{
		RowID:            int64(r.ID),
		LeadID:           int64(r.LeadID),
		UniquePropertyID: strings.TrimSpace(string(r.UniquePropertyID)),
		Name:             firstNonEmpty(r.FullName, r.CustomerName, udName),
		Phone:            firstNonEmpty(r.Mobile, r.CustPhone, udMobile),
		Email:            firstNonEmpty(r.Email, r.CustEmail, udEmail),
		ProjectName:      firstNonEmpty(r.PropertyName, r.InterestedName, r.ProjectName),
		PropertySubType:  firstNonEmpty(r.SubType, r.PropertySubtype),
		PropertyFor:      string(r.PropertyFor),
		PropertyIn:       string(r.PropertyIn),
		Address:          string(r.GoogleAddress),
		Assignment: leads.Assignment{
			Role:       int(r.AssignedUserType),
			EmployeeID: int64(r.AssignedID),
			Name:       string(r.AssignedName),
			Phone:      string(r.AssignedPhone),
			Priority:   string(r.AssignedPriority),
		},
		Status:     status,
		Budget:     firstNonEmpty(r.Budget, r.PropertyCost),
		State:      strings.TrimSpace(firstNonEmpty(r.State, r.StateID)),
		City:       strings.TrimSpace(firstNonEmpty(r.City, r.CityID)),
		CreatedAt:  created,
		UpdatedAt:  updated,
		CreatedDay: leads.NormalizeDay(created),
		UpdatedDay: leads.NormalizeDay(updated),
		SourceID:   int(r.LeadSourceID),
		Source:     source,
		Feedback:   string(r.Feedback),
		NextAction: string(r.NextAction),
	}
}

// unwrapList accepts either a bare JSON array or an object carrying the
// array under results, data, leads or updates.
func unwrapList(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), nil
	}
	if trimmed[0] == '[' {
		return trimmed, nil
	}
	var obj map[string]json.RawMessage
	if err := decode(trimmed, &obj); err != nil {
		return nil, err
	}
	for _, key := range []string{"results", "data", "leads", "updates"} {
		if v, ok := obj[key]; ok && len(bytes.TrimSpace(v)) > 0 && bytes.TrimSpace(v)[0] == '[' {
			return v, nil
		}
	}
	return json.RawMessage("[]"), nil
}

func decodeLeads(raw []byte, source leads.SourceKind) ([]leads.Lead, error) {
	list, err := unwrapList(raw)
	if err != nil {
		return nil, err
	}
	var rows []rawLead
	if err := decode(list, &rows); err != nil {
		return nil, err
	}
	out := make([]leads.Lead, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.normalize(source))
	}
	return out, nil
}

type rawUpdate struct {
	UpdateID   flexInt    `json:"update_id"`
	LeadID     flexInt    `json:"lead_id"`
	Date       flexString `json:"update_date"`
	Time       flexString `json:"update_time"`
	Feedback   flexString `json:"feedback"`
	NextAction flexString `json:"next_action"`
	EmpType    flexInt    `json:"updated_by_emp_type"`
	EmpID      flexInt    `json:"updated_by_emp_id"`
	EmpName    flexString `json:"updated_by_emp_name"`
	StatusID   flexInt    `json:"status_id"`
}

func (r rawUpdate) normalize() leads.Update {
	return leads.Update{
		ID:           int64(r.UpdateID),
		LeadID:       int64(r.LeadID),
		Status:       leads.Status(r.StatusID),
		Feedback:     string(r.Feedback),
		NextAction:   string(r.NextAction),
		Date:         string(r.Date),
		Time:         string(r.Time),
		EmployeeID:   int64(r.EmpID),
		EmployeeName: string(r.EmpName),
		EmployeeRole: int(r.EmpType),
	}
}
