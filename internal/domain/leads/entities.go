// Package leads holds the canonical lead record and the pure stages of the
// lead consolidation pipeline: deduplication, filtering and pagination.
package leads

import (
	"strconv"
	"time"
)

// Status is one of the ordered lead stages.
type Status int

const (
	StatusOpen Status = iota + 1
	StatusFollowUp
	StatusInProgress
	StatusSiteVisitScheduled
	StatusSiteVisitDone
	StatusWon
	StatusLost
	StatusRevoked
)

var statusNames = map[Status]string{
	StatusOpen:               "Open",
	StatusFollowUp:           "Follow Up",
	StatusInProgress:         "In Progress",
	StatusSiteVisitScheduled: "Site Visit Scheduled",
	StatusSiteVisitDone:      "Site Visit Done",
	StatusWon:                "Won",
	StatusLost:               "Lost",
	StatusRevoked:            "Revoked",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown (" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the eight known stages.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Statuses lists every stage in order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusFollowUp, StatusInProgress, StatusSiteVisitScheduled,
		StatusSiteVisitDone, StatusWon, StatusLost, StatusRevoked}
}

// SourceKind records which listing endpoint produced a record.
type SourceKind string

const (
	SourceEnquiry SourceKind = "enquiry"
	SourceLead    SourceKind = "lead"
	SourceToday   SourceKind = "today"
)

// Assignment is the employee a lead is currently assigned to.
type Assignment struct {
	Role       int    `json:"role"`
	EmployeeID int64  `json:"employeeId"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Priority   string `json:"priority,omitempty"`
}

// Lead is the canonical record every source shape is normalized into.
type Lead struct {
	RowID            int64      `json:"rowId"`
	LeadID           int64      `json:"leadId,omitempty"`
	UniquePropertyID string     `json:"uniquePropertyId"`
	Name             string     `json:"name"`
	Phone            string     `json:"phone"`
	Email            string     `json:"email"`
	ProjectName      string     `json:"projectName"`
	PropertySubType  string     `json:"propertySubType,omitempty"`
	PropertyFor      string     `json:"propertyFor,omitempty"`
	PropertyIn       string     `json:"propertyIn,omitempty"`
	Address          string     `json:"address,omitempty"`
	Assignment       Assignment `json:"assignment"`
	Status           Status     `json:"status"`
	Budget           string     `json:"budget,omitempty"`
	State            string     `json:"state"`
	City             string     `json:"city"`
	CreatedAt        string     `json:"createdAt"`
	UpdatedAt        string     `json:"updatedAt"`
	CreatedDay       string     `json:"createdDay"`
	UpdatedDay       string     `json:"updatedDay"`
	SourceID         int        `json:"sourceId,omitempty"`
	Source           SourceKind `json:"source"`
	Feedback         string     `json:"feedback,omitempty"`
	NextAction       string     `json:"nextAction,omitempty"`
}

// Promoted reports whether the enquiry has entered the lead-tracking flow.
func (l Lead) Promoted() bool { return l.LeadID > 0 }

// Update is one immutable history entry of a lead.
type Update struct {
	ID           int64  `json:"id"`
	LeadID       int64  `json:"leadId"`
	Status       Status `json:"status"`
	Feedback     string `json:"feedback"`
	NextAction   string `json:"nextAction"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	EmployeeID   int64  `json:"employeeId"`
	EmployeeName string `json:"employeeName"`
	EmployeeRole int    `json:"employeeRole"`
}

// At returns the moment of the update, or the zero time when unparseable.
func (u Update) At() time.Time {
	if t, ok := ParseTimestamp(u.Date + " " + u.Time); ok {
		return t
	}
	if t, ok := ParseTimestamp(u.Date); ok {
		return t
	}
	return time.Time{}
}
