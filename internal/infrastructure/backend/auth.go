package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
)

const (
	pathLogin       = "/meetCRM/v2/auth/authCRMLogin"
	pathSendOTP     = "/auth/v1/sendBothOtps"
	pathUserByID    = "/meetCRM/v2/auth/authenticate"
	pathEmpProfile  = "/user/v1/getEmpProfile"
	statusSuccess   = "success"
	statusNotExists = "false"
)

// rawIdentity is the user shape shared by the login, authenticate and
// profile endpoints.
type rawIdentity struct {
	ID        flexInt    `json:"id"`
	UserID    flexInt    `json:"user_id"`
	Name      flexString `json:"name"`
	Mobile    flexString `json:"mobile"`
	UserType  flexInt    `json:"user_type"`
	Email     flexString `json:"email"`
	City      flexString `json:"city"`
	State     flexString `json:"state"`
	Pincode   flexString `json:"pincode"`
	Photo     flexString `json:"photo"`
	CreatedBy flexString `json:"created_by"`
	UpdatedBy flexString `json:"updated_by"`
	Date      flexString `json:"created_date"`
	Time      flexString `json:"created_time"`
	CRMAccess flexInt    `json:"crm_access"`
}

func (r rawIdentity) identity() session.Identity {
	id := int64(r.ID)
	if id == 0 {
		id = int64(r.UserID)
	}
	return session.Identity{
		ID:        id,
		Name:      string(r.Name),
		Mobile:    string(r.Mobile),
		Role:      session.Role(r.UserType),
		Email:     string(r.Email),
		City:      string(r.City),
		State:     string(r.State),
		Pincode:   string(r.Pincode),
		PhotoURL:  string(r.Photo),
		CreatedBy: string(r.CreatedBy),
		UpdatedBy: string(r.UpdatedBy),
		Date:      string(r.Date),
		Time:      string(r.Time),
		CRMAccess: int(r.CRMAccess),
	}
}

// LoginResult is the candidate identity returned by the login endpoint and
// the credential that becomes valid once the OTP is confirmed.
type LoginResult struct {
	Identity    session.Identity
	AccessToken string
}

// Login starts a mobile-number login.
func (c *Client) Login(ctx context.Context, mobile string) (LoginResult, error) {
	raw, err := c.do(ctx, request{
		op:     "login",
		method: http.MethodPost,
		path:   pathLogin,
		body:   map[string]string{"mobile": mobile},
		messages: statusMessages{
			unauthorized: "Invalid mobile number",
			notFound:     "User not found",
			fallback:     "Login failed",
		},
	})
	if err != nil {
		return LoginResult{}, err
	}

	var resp struct {
		envelope
		UserDetails rawIdentity `json:"user_details"`
		AccessToken string      `json:"accessToken"`
	}
	if err := decode(raw, &resp); err != nil {
		return LoginResult{}, err
	}
	if !strings.EqualFold(string(resp.Status), statusSuccess) {
		msg := resp.text()
		if msg == "" {
			msg = "Login failed"
		}
		return LoginResult{}, apperrors.BackendRejected(msg)
	}
	return LoginResult{Identity: resp.UserDetails.identity(), AccessToken: resp.AccessToken}, nil
}

// SendOTP asks the backend to deliver a code and returns it in its
// encrypted "ivHex:encHex" form.
func (c *Client) SendOTP(ctx context.Context, mobile, countryCode string, channel session.Channel) (string, error) {
	raw, err := c.do(ctx, request{
		op:     "send_otp",
		method: http.MethodPost,
		path:   pathSendOTP,
		body: map[string]string{
			"mobile":      mobile,
			"countryCode": countryCode,
			"channel":     string(channel),
		},
		messages: statusMessages{
			unauthorized: "Unauthorized: Invalid or expired token",
			notFound:     "Mobile number not registered",
			fallback:     "Failed to send OTP",
		},
	})
	if err != nil {
		appErr := apperrors.From(err)
		if appErr.Kind == apperrors.KindNetwork {
			return "", appErr
		}
		return "", apperrors.OtpSendFailed(appErr.Message, err)
	}

	var resp struct {
		envelope
		OTP string `json:"otp"`
	}
	if err := decode(raw, &resp); err != nil {
		return "", apperrors.OtpSendFailed("Unexpected response from server", err)
	}
	if resp.Status != "" && !strings.EqualFold(string(resp.Status), statusSuccess) {
		msg := resp.text()
		if msg == "" {
			msg = "Failed to send OTP"
		}
		return "", apperrors.OtpSendFailed(msg, nil)
	}
	if resp.OTP == "" {
		return "", apperrors.OtpSendFailed("No OTP received from server", nil)
	}
	return resp.OTP, nil
}

type userQuery struct {
	UserID int64 `url:"user_id"`
}

// UserByID fetches the authoritative identity of userID using credential.
func (c *Client) UserByID(ctx context.Context, userID int64, credential string) (session.Identity, error) {
	raw, err := c.do(ctx, request{
		op:         "user_by_id",
		method:     http.MethodGet,
		path:       pathUserByID,
		query:      userQuery{UserID: userID},
		credential: credential,
		messages: statusMessages{
			unauthorized: "Unauthorized: Invalid or expired token",
			notFound:     "User not found",
			fallback:     "Failed to fetch user",
		},
	})
	if err != nil {
		return session.Identity{}, err
	}

	var resp struct {
		envelope
		Data rawIdentity `json:"data"`
	}
	if err := decode(raw, &resp); err != nil {
		return session.Identity{}, err
	}
	if strings.EqualFold(string(resp.Status), statusNotExists) {
		return session.Identity{}, apperrors.New(apperrors.KindNotFound, apperrors.CodeNotFound, "User not found")
	}
	identity := resp.Data.identity()
	if identity.ID == 0 {
		identity.ID = userID
	}
	return identity, nil
}

// EmployeeProfile fetches the full employee profile of userID.
func (c *Client) EmployeeProfile(ctx context.Context, userID int64, credential string) (session.Identity, error) {
	raw, err := c.do(ctx, request{
		op:         "employee_profile",
		method:     http.MethodGet,
		path:       pathEmpProfile,
		query:      userQuery{UserID: userID},
		credential: credential,
		messages: statusMessages{
			unauthorized: "Unauthorized: Invalid or expired token",
			notFound:     "Profile not found",
			fallback:     "Failed to fetch profile",
		},
	})
	if err != nil {
		return session.Identity{}, err
	}

	var resp struct {
		Data *rawIdentity `json:"data"`
		rawIdentity
	}
	if err := decode(raw, &resp); err != nil {
		return session.Identity{}, err
	}
	profile := resp.rawIdentity
	if resp.Data != nil {
		profile = *resp.Data
	}
	identity := profile.identity()
	if identity.ID == 0 {
		identity.ID = userID
	}
	return identity, nil
}
