package services

import (
	"context"
	"strings"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
)

// ResendCooldown is the advisory wait before offering a resend. Resend
// itself never rejects a call made sooner.
const ResendCooldown = 30 * time.Second

// OTPController dispatches one-time codes and installs them on a
// SessionStore's challenge. It holds no per-session state.
//
// Known limitation: the backend returns the code itself (encrypted with a
// shared static secret) and verification is a local comparison. Anyone who
// holds the secret and observes the send-OTP response can sign in. Only a
// bcrypt digest of the code is kept in memory and nothing is persisted.
type OTPController struct {
	auth        AuthBackend
	cipher      *security.OTPCipher
	sendTimeout time.Duration
	notifier    Notifier
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
	now         func() time.Time
}

// NewOTPController creates a controller. sendTimeout bounds each send call.
func NewOTPController(auth AuthBackend, cipher *security.OTPCipher, sendTimeout time.Duration, notifier Notifier, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *OTPController {
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &OTPController{
		auth:        auth,
		cipher:      cipher,
		sendTimeout: sendTimeout,
		notifier:    notifier,
		logger:      logger,
		perfTracker: perfTracker,
		now:         time.Now,
	}
}

// Dispatch sends a code to mobile over channel and stores its digest on
// store's challenge. A response that arrives after a newer dispatch was
// issued, or after the login was cancelled, is discarded.
func (c *OTPController) Dispatch(ctx context.Context, store *SessionStore, mobile string, channel session.Channel) error {
	marker := c.perfTracker.StartOperation("otp:dispatch", store.ID())
	defer marker.Complete()

	number, err := ParseMobile(mobile, store.region)
	if err != nil {
		marker.SetError(err)
		return err
	}
	if !channel.Valid() {
		err := apperrors.Validation("Unsupported delivery channel")
		marker.SetError(err)
		return err
	}

	seq, gen, err := store.beginDispatch(number.National, number.CountryCode, channel)
	if err != nil {
		marker.SetError(err)
		return err
	}

	sendCtx := ctx
	if c.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, c.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	payload, err := c.auth.SendOTP(sendCtx, number.National, number.CountryCode, channel)
	if err != nil {
		return c.fail(store, seq, gen, err, marker)
	}

	code, err := c.cipher.Decrypt(payload)
	if err != nil {
		return c.fail(store, seq, gen, apperrors.OtpDecryptFailed(err), marker)
	}
	digest, err := security.DigestCode(code)
	if err != nil {
		return c.fail(store, seq, gen, apperrors.Wrap(apperrors.KindServer, apperrors.CodeServerFailure, apperrors.MsgServer, err), marker)
	}

	if !store.completeDispatch(seq, gen, number.National, number.CountryCode, channel, digest, c.now().UTC()) {
		c.logger.OTP().Debug("Discarding superseded one-time code", "sessionId", logging.MaskID(store.ID()), "seq", seq)
		marker.SetError(errSuperseded)
		return errSuperseded
	}

	c.logger.OTP().Info("One-time code dispatched",
		"sessionId", logging.MaskID(store.ID()),
		"mobile", logging.MaskMobile(number.National),
		"channel", channel,
		"duration", time.Since(start))
	c.notifier.Notify(store.ID(), messaging.Notification{Level: messaging.LevelSuccess, Message: "OTP sent to " + number.National})
	marker.SetSuccess(true)
	return nil
}

func (c *OTPController) fail(store *SessionStore, seq, gen uint64, err error, marker *performance.Marker) error {
	appErr, current := store.failDispatch(seq, gen, err)
	if !current {
		c.logger.OTP().Debug("Discarding superseded dispatch failure", "sessionId", logging.MaskID(store.ID()), "seq", seq)
		marker.SetError(errSuperseded)
		return errSuperseded
	}
	c.logger.LogError(logging.ChannelOTP, "dispatch", appErr, store.ID(), map[string]any{"code": appErr.Code})
	c.notifier.Notify(store.ID(), messaging.Notification{Level: messaging.LevelError, Message: appErr.Message, Code: string(appErr.Code)})
	marker.SetError(appErr)
	return appErr
}

// Resend dispatches a fresh code to the mobile and channel of the active
// challenge. Until the new code arrives the previous one stays valid.
func (c *OTPController) Resend(ctx context.Context, store *SessionStore) error {
	mobile, channel, err := store.challengeTarget()
	if err != nil {
		return err
	}
	c.logger.OTP().Debug("Resending one-time code", "sessionId", logging.MaskID(store.ID()), "channel", channel)
	return c.Dispatch(ctx, store, mobile, channel)
}

// Cancel abandons the login in progress and returns the store to Anonymous.
func (c *OTPController) Cancel(_ context.Context, store *SessionStore) error {
	if err := store.cancelChallenge(); err != nil {
		return err
	}
	c.logger.OTP().Info("Login cancelled", "sessionId", logging.MaskID(store.ID()))
	return nil
}

// Verify compares an entered code against a challenge digest.
func (c *OTPController) Verify(digest []byte, code string) bool {
	return security.CodeMatches(digest, strings.TrimSpace(code))
}

// NextResendAt returns when the advisory cooldown of challenge ends.
func NextResendAt(challenge session.Challenge) time.Time {
	if !challenge.Sent || challenge.DispatchedAt.IsZero() {
		return time.Time{}
	}
	return challenge.DispatchedAt.Add(ResendCooldown)
}
