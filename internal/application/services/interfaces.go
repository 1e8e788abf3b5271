package services

import (
	"context"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/backend"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
)

// AuthBackend is the subset of the CRM backend the session components use.
type AuthBackend interface {
	Login(ctx context.Context, mobile string) (backend.LoginResult, error)
	SendOTP(ctx context.Context, mobile, countryCode string, channel session.Channel) (string, error)
	UserByID(ctx context.Context, userID int64, credential string) (session.Identity, error)
	EmployeeProfile(ctx context.Context, userID int64, credential string) (session.Identity, error)
}

// Notifier pushes user-visible notifications to a console session.
type Notifier interface {
	Notify(sessionID string, n messaging.Notification)
}

type discardNotifier struct{}

func (discardNotifier) Notify(string, messaging.Notification) {}

var _ AuthBackend = (*backend.Client)(nil)
