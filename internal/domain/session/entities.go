// Package session contains the console session domain: identities, the
// authentication state machine's states, OTP challenge state and the
// persisted session record.
package session

import (
	"strconv"
	"time"
)

// Role is the numeric designation code carried by an employee identity.
type Role int

const (
	RoleAdmin             Role = 1
	RoleChannelPartner    Role = 3
	RoleSalesManager      Role = 4
	RoleTelecaller        Role = 5
	RoleMarketingExecutor Role = 6
	RoleReceptionist      Role = 7
)

var roleNames = map[Role]string{
	RoleAdmin:             "Admin",
	RoleChannelPartner:    "Channel Partner",
	RoleSalesManager:      "Sales Manager",
	RoleTelecaller:        "Telecallers",
	RoleMarketingExecutor: "Marketing Executors",
	RoleReceptionist:      "Receptionists",
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "Role " + strconv.Itoa(int(r))
}

// AssignableRoles are the roles a lead can be assigned to, in display order.
func AssignableRoles() []Role {
	return []Role{RoleChannelPartner, RoleSalesManager, RoleTelecaller, RoleMarketingExecutor, RoleReceptionist}
}

// Identity is an employee profile, either pending (unconfirmed) or confirmed.
type Identity struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Mobile    string `json:"mobile"`
	Role      Role   `json:"user_type"`
	Email     string `json:"email,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Pincode   string `json:"pincode,omitempty"`
	PhotoURL  string `json:"photo,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	UpdatedBy string `json:"updated_by,omitempty"`
	Date      string `json:"created_date,omitempty"`
	Time      string `json:"created_time,omitempty"`
	CRMAccess int    `json:"crm_access"`
}

// HasCRMAccess reports whether the identity may use the console.
func (i Identity) HasCRMAccess() bool { return i.CRMAccess == 1 }

// State is a node of the authentication state machine.
type State string

const (
	StateAnonymous     State = "anonymous"
	StateLoggingIn     State = "logging_in"
	StateAwaitingOtp   State = "awaiting_otp"
	StateAuthenticated State = "authenticated"
	StateError         State = "error"
)

// Channel is the delivery channel for a one-time code.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Valid reports whether c is a known delivery channel.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// Challenge is the externally visible OTP challenge state. The code itself
// is never part of it.
type Challenge struct {
	Sent         bool      `json:"sent"`
	Verified     bool      `json:"verified"`
	Channel      Channel   `json:"channel,omitempty"`
	Mobile       string    `json:"mobile,omitempty"`
	DispatchedAt time.Time `json:"dispatchedAt,omitempty"`
}

// Snapshot is a read-only copy of a console session's auth state.
type Snapshot struct {
	State                State     `json:"state"`
	Authenticated        bool      `json:"authenticated"`
	Identity             *Identity `json:"identity"`
	Credential           string    `json:"-"`
	PendingIdentity      *Identity `json:"pendingIdentity"`
	HasPendingCredential bool      `json:"hasPendingCredential"`
	Challenge            Challenge `json:"challenge"`
	LastError            string    `json:"lastError,omitempty"`
	LastErrorMessage     string    `json:"lastErrorMessage,omitempty"`
}
