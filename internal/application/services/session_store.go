// Package services provides application-level orchestration services.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
)

var errSuperseded = apperrors.InvalidState("The request was superseded by a newer one")

// SessionStore is the authentication state machine of one console session.
// All fields are guarded by mu. Backend calls are made with mu released and
// their results are applied only if the generation they started under is
// still current. Storage writes happen under mu so the persisted record
// always follows the in-memory order of transitions.
type SessionStore struct {
	id          string
	storage     session.Storage
	auth        AuthBackend
	otp         *OTPController
	notifier    Notifier
	region      string
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker

	mu                sync.Mutex
	state             session.State
	identity          *session.Identity
	credential        string
	pendingIdentity   *session.Identity
	pendingCredential string
	challenge         session.Challenge
	countryCode       string
	codeDigest        []byte
	lastError         apperrors.Code
	lastErrorMessage  string
	generation        uint64
	dispatchSeq       uint64
}

// NewSessionStore creates an Anonymous store. Call Hydrate before use.
func NewSessionStore(
	id string,
	storage session.Storage,
	auth AuthBackend,
	otp *OTPController,
	notifier Notifier,
	region string,
	logger *logging.ChanneledLogger,
	perfTracker *performance.Tracker,
) *SessionStore {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &SessionStore{
		id:          id,
		storage:     storage,
		auth:        auth,
		otp:         otp,
		notifier:    notifier,
		region:      region,
		logger:      logger,
		perfTracker: perfTracker,
		state:       session.StateAnonymous,
	}
}

// ID returns the console session id the store belongs to.
func (s *SessionStore) ID() string { return s.id }

// Hydrate loads the persisted record. A corrupted record is cleared and the
// store stays Anonymous.
func (s *SessionStore) Hydrate(ctx context.Context) error {
	record, err := s.storage.Load(ctx, s.id)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case errors.Is(err, session.ErrRecordNotFound):
		s.resetLocked()
		return nil
	case errors.Is(err, session.ErrRecordCorrupted):
		s.logger.Storage().Warn("Discarding corrupted session record", "sessionId", logging.MaskID(s.id))
		s.resetLocked()
		if clearErr := s.storage.Clear(ctx, s.id); clearErr != nil {
			return clearErr
		}
		return nil
	case err != nil:
		s.resetLocked()
		return err
	}

	s.resetLocked()
	if record.Authenticated && record.Credential != nil && record.Identity != nil {
		identity := *record.Identity
		s.identity = &identity
		s.credential = *record.Credential
		s.state = session.StateAuthenticated
		s.logger.Auth().Debug("Session restored from storage", "sessionId", logging.MaskID(s.id), "userId", identity.ID)
	}
	return nil
}

// BeginLogin validates mobile, starts a backend login and, when the backend
// accepts it, dispatches the one-time code over channel.
func (s *SessionStore) BeginLogin(ctx context.Context, mobile string, channel session.Channel) error {
	marker := s.perfTracker.StartOperation("auth:begin_login", s.id)
	defer marker.Complete()

	if channel == "" {
		channel = session.ChannelSMS
	}
	if !channel.Valid() {
		err := apperrors.Validation("Unsupported delivery channel")
		marker.SetError(err)
		return err
	}
	number, err := ParseMobile(mobile, s.region)
	if err != nil {
		marker.SetError(err)
		return err
	}

	s.mu.Lock()
	if s.state != session.StateAnonymous && s.state != session.StateError {
		state := s.state
		s.mu.Unlock()
		err := apperrors.InvalidState("A login cannot start while the session is " + string(state))
		marker.SetError(err)
		return err
	}
	s.generation++
	gen := s.generation
	s.state = session.StateLoggingIn
	s.pendingIdentity = nil
	s.pendingCredential = ""
	s.challenge = session.Challenge{}
	s.codeDigest = nil
	s.clearErrorLocked()
	s.mu.Unlock()

	s.logger.Auth().Info("Login started", "sessionId", logging.MaskID(s.id), "mobile", logging.MaskMobile(number.National))
	result, err := s.auth.Login(ctx, number.National)

	s.mu.Lock()
	if s.generation != gen {
		s.mu.Unlock()
		s.logger.Auth().Debug("Discarding superseded login result", "sessionId", logging.MaskID(s.id))
		marker.SetError(errSuperseded)
		return errSuperseded
	}
	if err != nil {
		s.state = session.StateError
		appErr := s.setErrorLocked(err)
		s.mu.Unlock()
		s.logger.LogAuthOperation("begin_login", s.id, number.National, false, map[string]any{"code": appErr.Code})
		s.notifyError(appErr)
		marker.SetError(appErr)
		return appErr
	}
	identity := result.Identity
	s.pendingIdentity = &identity
	s.pendingCredential = result.AccessToken
	s.state = session.StateAwaitingOtp
	s.challenge = session.Challenge{Channel: channel, Mobile: number.National}
	s.countryCode = number.CountryCode
	s.mu.Unlock()

	s.logger.LogAuthOperation("begin_login", s.id, number.National, true, nil)

	if err := s.otp.Dispatch(ctx, s, mobile, channel); err != nil {
		if err == errSuperseded && s.awaitingOtp(gen) {
			// A resend issued while the first code was in flight owns the
			// challenge now.
			marker.SetSuccess(true)
			return nil
		}
		marker.SetError(err)
		return err
	}
	marker.SetSuccess(true)
	return nil
}

// SubmitOtp compares code with the active challenge. A match confirms the
// pending identity and persists it; a mismatch keeps the session waiting.
func (s *SessionStore) SubmitOtp(ctx context.Context, code string) error {
	marker := s.perfTracker.StartOperation("auth:submit_otp", s.id)
	defer marker.Complete()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != session.StateAwaitingOtp || !s.challenge.Sent || s.codeDigest == nil {
		err := apperrors.InvalidState("No one-time code is pending for this session")
		marker.SetError(err)
		return err
	}

	if !s.otp.Verify(s.codeDigest, code) {
		appErr := s.setErrorLocked(apperrors.ErrOtpMismatch)
		s.logger.OTP().Info("One-time code mismatch", "sessionId", logging.MaskID(s.id))
		s.notifyError(appErr)
		marker.SetError(appErr)
		return appErr
	}

	identity := *s.pendingIdentity
	credential := s.pendingCredential
	record := session.Record{Authenticated: true, Credential: &credential, Identity: &identity}
	if err := s.storage.Save(ctx, s.id, record); err != nil {
		s.logger.LogError(logging.ChannelStorage, "save_session", err, s.id, nil)
		appErr := apperrors.Wrap(apperrors.KindServer, apperrors.CodeServerFailure, "Could not save the session", err)
		s.setErrorLocked(appErr)
		marker.SetError(appErr)
		return appErr
	}

	s.generation++
	s.identity = &identity
	s.credential = credential
	s.pendingIdentity = nil
	s.pendingCredential = ""
	s.challenge = session.Challenge{}
	s.codeDigest = nil
	s.state = session.StateAuthenticated
	s.clearErrorLocked()

	s.logger.LogAuthOperation("submit_otp", s.id, identity.Mobile, true, map[string]any{"userId": identity.ID})
	s.notifier.Notify(s.id, messaging.Notification{Level: messaging.LevelSuccess, Message: "OTP verified successfully"})
	marker.SetSuccess(true)
	return nil
}

// Logout clears every field and the persisted record.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.resetLocked()
	if err := s.storage.Clear(ctx, s.id); err != nil {
		s.logger.LogError(logging.ChannelStorage, "clear_session", err, s.id, nil)
		return err
	}
	s.logger.Auth().Info("Logged out", "sessionId", logging.MaskID(s.id))
	s.notifier.Notify(s.id, messaging.Notification{Level: messaging.LevelInfo, Message: "Logged out"})
	return nil
}

// ForceExpire drops an Authenticated session whose credential is no longer
// valid. It reports whether a transition happened.
func (s *SessionStore) ForceExpire(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forceExpireLocked(ctx)
}

func (s *SessionStore) forceExpireLocked(ctx context.Context) bool {
	if s.state != session.StateAuthenticated {
		return false
	}
	s.generation++
	s.resetLocked()
	appErr := s.setErrorLocked(apperrors.ErrTokenExpired)
	if err := s.storage.Clear(ctx, s.id); err != nil {
		s.logger.LogError(logging.ChannelStorage, "clear_session", err, s.id, nil)
	}
	s.logger.Auth().Info("Session expired", "sessionId", logging.MaskID(s.id))
	s.notifier.Notify(s.id, messaging.Notification{Level: messaging.LevelWarning, Message: "Your session has expired. Please sign in again.", Code: string(appErr.Code)})
	return true
}

// AdoptCredential promotes a verified URL credential to a confirmed,
// persisted session.
func (s *SessionStore) AdoptCredential(ctx context.Context, identity session.Identity, credential string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := session.Record{Authenticated: true, Credential: &credential, Identity: &identity}
	if err := s.storage.Save(ctx, s.id, record); err != nil {
		s.logger.LogError(logging.ChannelStorage, "save_session", err, s.id, nil)
		return err
	}
	s.generation++
	s.resetLocked()
	s.identity = &identity
	s.credential = credential
	s.state = session.StateAuthenticated
	s.logger.Auth().Info("Credential adopted", "sessionId", logging.MaskID(s.id), "userId", identity.ID)
	return nil
}

// RefreshProfile reloads the confirmed identity from the employee profile
// endpoint. An auth failure expires the session.
func (s *SessionStore) RefreshProfile(ctx context.Context) (session.Identity, error) {
	marker := s.perfTracker.StartOperation("auth:refresh_profile", s.id)
	defer marker.Complete()

	s.mu.Lock()
	if s.state != session.StateAuthenticated {
		s.mu.Unlock()
		err := apperrors.InvalidState("The session is not signed in")
		marker.SetError(err)
		return session.Identity{}, err
	}
	gen := s.generation
	current := *s.identity
	credential := s.credential
	s.mu.Unlock()

	profile, err := s.auth.EmployeeProfile(ctx, current.ID, credential)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		marker.SetError(errSuperseded)
		return session.Identity{}, errSuperseded
	}
	if err != nil {
		appErr := apperrors.From(err)
		if appErr.Kind == apperrors.KindAuth {
			s.forceExpireLocked(ctx)
		} else {
			s.setErrorLocked(appErr)
			s.notifyError(appErr)
		}
		marker.SetError(appErr)
		return session.Identity{}, appErr
	}

	merged := mergeProfile(current, profile)
	record := session.Record{Authenticated: true, Credential: &credential, Identity: &merged}
	if err := s.storage.Save(ctx, s.id, record); err != nil {
		s.logger.LogError(logging.ChannelStorage, "save_session", err, s.id, nil)
		marker.SetError(err)
		return session.Identity{}, err
	}
	s.identity = &merged
	s.clearErrorLocked()
	marker.SetSuccess(true)
	return merged, nil
}

// mergeProfile overlays the non-empty fields of profile on current.
func mergeProfile(current, profile session.Identity) session.Identity {
	out := current
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Name, profile.Name)
	set(&out.Mobile, profile.Mobile)
	set(&out.Email, profile.Email)
	set(&out.City, profile.City)
	set(&out.State, profile.State)
	set(&out.Pincode, profile.Pincode)
	set(&out.PhotoURL, profile.PhotoURL)
	set(&out.CreatedBy, profile.CreatedBy)
	set(&out.UpdatedBy, profile.UpdatedBy)
	set(&out.Date, profile.Date)
	set(&out.Time, profile.Time)
	if profile.Role != 0 {
		out.Role = profile.Role
	}
	if profile.CRMAccess != 0 {
		out.CRMAccess = profile.CRMAccess
	}
	return out
}

// Snapshot returns a copy of the current state.
func (s *SessionStore) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := session.Snapshot{
		State:                s.state,
		Authenticated:        s.state == session.StateAuthenticated,
		Credential:           s.credential,
		HasPendingCredential: s.pendingCredential != "",
		Challenge:            s.challenge,
		LastError:            string(s.lastError),
		LastErrorMessage:     s.lastErrorMessage,
	}
	if s.identity != nil {
		identity := *s.identity
		snap.Identity = &identity
	}
	if s.pendingIdentity != nil {
		pending := *s.pendingIdentity
		snap.PendingIdentity = &pending
	}
	return snap
}

// Record returns the subset of the state that is persisted.
func (s *SessionStore) Record() session.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != session.StateAuthenticated {
		return session.Record{}
	}
	credential := s.credential
	identity := *s.identity
	return session.Record{Authenticated: true, Credential: &credential, Identity: &identity}
}

// beginDispatch registers a new dispatch attempt for the active challenge.
func (s *SessionStore) beginDispatch(mobile, countryCode string, channel session.Channel) (seq, gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != session.StateAwaitingOtp {
		return 0, 0, apperrors.InvalidState("No login is waiting for a one-time code")
	}
	s.dispatchSeq++
	if !s.challenge.Sent {
		s.challenge.Channel = channel
		s.challenge.Mobile = mobile
		s.countryCode = countryCode
	}
	return s.dispatchSeq, s.generation, nil
}

// completeDispatch installs the digest of a delivered code unless a newer
// dispatch or a state change superseded it.
func (s *SessionStore) completeDispatch(seq, gen uint64, mobile, countryCode string, channel session.Channel, digest []byte, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.dispatchSeq || gen != s.generation || s.state != session.StateAwaitingOtp {
		return false
	}
	s.challenge = session.Challenge{Sent: true, Channel: channel, Mobile: mobile, DispatchedAt: at}
	s.countryCode = countryCode
	s.codeDigest = digest
	s.clearErrorLocked()
	return true
}

// failDispatch records a dispatch failure. An already delivered challenge
// stays valid; without one the login cannot continue and ends in Error.
func (s *SessionStore) failDispatch(seq, gen uint64, err error) (*apperrors.Error, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.dispatchSeq || gen != s.generation {
		return nil, false
	}
	if s.state == session.StateAwaitingOtp && !s.challenge.Sent {
		s.state = session.StateError
		s.pendingIdentity = nil
		s.pendingCredential = ""
		s.challenge = session.Challenge{}
		s.codeDigest = nil
	}
	return s.setErrorLocked(err), true
}

// awaitingOtp reports whether the login started under gen is still waiting
// for its code.
func (s *SessionStore) awaitingOtp(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen && s.state == session.StateAwaitingOtp
}

// challengeTarget returns where the active challenge was sent, in
// international form.
func (s *SessionStore) challengeTarget() (string, session.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != session.StateAwaitingOtp || s.challenge.Mobile == "" {
		return "", "", apperrors.InvalidState("No login is waiting for a one-time code")
	}
	return "+" + s.countryCode + s.challenge.Mobile, s.challenge.Channel, nil
}

// cancelChallenge abandons a login in progress.
func (s *SessionStore) cancelChallenge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == session.StateAuthenticated {
		return apperrors.InvalidState("The session is already signed in")
	}
	s.generation++
	s.resetLocked()
	return nil
}

// credentials returns the confirmed identity and credential, if any.
func (s *SessionStore) credentials() (session.Identity, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != session.StateAuthenticated {
		return session.Identity{}, "", false
	}
	return *s.identity, s.credential, true
}

func (s *SessionStore) resetLocked() {
	s.state = session.StateAnonymous
	s.identity = nil
	s.credential = ""
	s.pendingIdentity = nil
	s.pendingCredential = ""
	s.challenge = session.Challenge{}
	s.countryCode = ""
	s.codeDigest = nil
	s.clearErrorLocked()
}

func (s *SessionStore) setErrorLocked(err error) *apperrors.Error {
	appErr := apperrors.From(err)
	s.lastError = appErr.Code
	s.lastErrorMessage = appErr.Message
	return appErr
}

func (s *SessionStore) clearErrorLocked() {
	s.lastError = ""
	s.lastErrorMessage = ""
}

func (s *SessionStore) notifyError(appErr *apperrors.Error) {
	s.notifier.Notify(s.id, messaging.Notification{Level: messaging.LevelError, Message: appErr.Message, Code: string(appErr.Code)})
}
