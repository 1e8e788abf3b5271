package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
)

func TestOTPController_DecryptFailure(t *testing.T) {
	h := newHarness(t)
	h.auth.set(func(f *fakeAuth) { f.sendPayload = "not-a-sealed-code" })

	err := h.store.BeginLogin(context.Background(), "9876543210", session.ChannelWhatsApp)
	if !errors.Is(err, apperrors.OtpDecryptFailed(nil)) {
		t.Fatalf("BeginLogin() error = %v, want OtpDecryptFailed", err)
	}
	snap := h.store.Snapshot()
	if snap.State != session.StateError || snap.LastError != string(apperrors.CodeOtpDecryptFailed) {
		t.Fatalf("state = %s lastError = %q", snap.State, snap.LastError)
	}
	if snap.HasPendingCredential || snap.PendingIdentity != nil {
		t.Error("pending identity must be dropped when no code was delivered")
	}
}

func TestOTPController_SendFailureOnLogin(t *testing.T) {
	h := newHarness(t)
	h.auth.set(func(f *fakeAuth) { f.sendErr = apperrors.OtpSendFailed("Too many requests", nil) })

	err := h.store.BeginLogin(context.Background(), "9876543210", session.ChannelSMS)
	if !errors.Is(err, apperrors.OtpSendFailed("", nil)) {
		t.Fatalf("BeginLogin() error = %v, want OtpSendFailed", err)
	}
	if got := h.store.Snapshot().State; got != session.StateError {
		t.Fatalf("state = %s, want Error", got)
	}
	if n := h.notifier.last(); n.Code != string(apperrors.CodeOtpSendFailed) {
		t.Errorf("notification = %+v", n)
	}
}

func TestOTPController_ResendTargetsChallenge(t *testing.T) {
	h := newHarness(t)
	if err := h.store.BeginLogin(context.Background(), "98765 43210", session.ChannelWhatsApp); err != nil {
		t.Fatalf("BeginLogin() error = %v", err)
	}
	h.auth.set(func(f *fakeAuth) { f.sendPayload = sealCode(t, "9090") })

	if err := h.otp.Resend(context.Background(), h.store); err != nil {
		t.Fatalf("Resend() error = %v", err)
	}
	h.auth.mu.Lock()
	mobiles, codes := append([]string(nil), h.auth.sendMobiles...), append([]string(nil), h.auth.sendCodes...)
	h.auth.mu.Unlock()
	if len(mobiles) != 2 || mobiles[1] != "9876543210" || codes[1] != "91" {
		t.Fatalf("send calls = %v %v", mobiles, codes)
	}
	if ch := h.store.Snapshot().Challenge.Channel; ch != session.ChannelWhatsApp {
		t.Errorf("channel = %s, want whatsapp", ch)
	}

	if err := h.store.SubmitOtp(context.Background(), "4821"); !errors.Is(err, apperrors.ErrOtpMismatch) {
		t.Fatalf("old code after resend: SubmitOtp() error = %v, want mismatch", err)
	}
	if err := h.store.SubmitOtp(context.Background(), "9090"); err != nil {
		t.Fatalf("SubmitOtp() error = %v", err)
	}
}

func TestOTPController_ResendFailureKeepsPreviousCode(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.auth.set(func(f *fakeAuth) { f.sendErr = apperrors.NetworkUnavailable(nil) })

	err := h.otp.Resend(context.Background(), h.store)
	if !errors.Is(err, apperrors.ErrNetworkUnavailable) {
		t.Fatalf("Resend() error = %v, want NetworkUnavailable", err)
	}
	snap := h.store.Snapshot()
	if snap.State != session.StateAwaitingOtp || snap.LastError != string(apperrors.CodeNetworkUnavailable) {
		t.Fatalf("state = %s lastError = %q", snap.State, snap.LastError)
	}
	if err := h.store.SubmitOtp(context.Background(), "4821"); err != nil {
		t.Fatalf("SubmitOtp() with the previous code error = %v", err)
	}
}

func TestOTPController_SupersededDispatchIsDiscarded(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	stale := sealCode(t, "1111")
	fresh := sealCode(t, "2222")
	releaseStale := make(chan struct{})
	h.auth.set(func(f *fakeAuth) {
		f.sendHook = func(ctx context.Context, call int) (string, error) {
			if call == 2 {
				<-releaseStale
				return stale, nil
			}
			return fresh, nil
		}
	})

	first := make(chan error, 1)
	go func() { first <- h.otp.Resend(context.Background(), h.store) }()
	waitFor(t, func() bool { return h.auth.sendCalls.Load() == 2 })

	if err := h.otp.Resend(context.Background(), h.store); err != nil {
		t.Fatalf("second Resend() error = %v", err)
	}
	close(releaseStale)
	if err := <-first; !errors.Is(err, errSuperseded) {
		t.Fatalf("first Resend() error = %v, want superseded", err)
	}

	if err := h.store.SubmitOtp(context.Background(), "1111"); !errors.Is(err, apperrors.ErrOtpMismatch) {
		t.Fatalf("stale code: SubmitOtp() error = %v, want mismatch", err)
	}
	if err := h.store.SubmitOtp(context.Background(), "2222"); err != nil {
		t.Fatalf("SubmitOtp() error = %v", err)
	}
}

func TestOTPController_ResendWithoutChallenge(t *testing.T) {
	h := newHarness(t)
	err := h.otp.Resend(context.Background(), h.store)
	if !errors.Is(err, apperrors.InvalidState("")) {
		t.Fatalf("Resend() error = %v, want InvalidState", err)
	}
	if h.auth.sendCalls.Load() != 0 {
		t.Error("no send may happen without a login in progress")
	}
}

func TestOTPController_CancelAfterAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.authenticate(t, mustToken(t, testIdentity.ID, time.Hour))
	if err := h.otp.Cancel(context.Background(), h.store); err == nil {
		t.Fatal("Cancel() on an authenticated session error = nil")
	}
	if got := h.store.Snapshot().State; got != session.StateAuthenticated {
		t.Errorf("state = %s, want Authenticated", got)
	}
}

func TestNextResendAt(t *testing.T) {
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		challenge session.Challenge
		want      time.Time
	}{
		{name: "not sent", challenge: session.Challenge{}, want: time.Time{}},
		{name: "sent", challenge: session.Challenge{Sent: true, DispatchedAt: at}, want: at.Add(30 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextResendAt(tt.challenge); !got.Equal(tt.want) {
				t.Errorf("NextResendAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

// A resend issued while the login's first code is still in flight replaces
// that code; the login itself still succeeds whichever send lands first.
func TestOTPController_ResendDuringLoginDispatch(t *testing.T) {
	tests := []struct {
		name        string
		resendFirst bool
	}{
		{name: "login send completes first"},
		{name: "resend completes first", resendFirst: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			initial := sealCode(t, "1111")
			fresh := sealCode(t, "2222")
			releaseInitial := make(chan struct{})
			releaseResend := make(chan struct{})
			h.auth.set(func(f *fakeAuth) {
				f.sendHook = func(ctx context.Context, call int) (string, error) {
					if call == 1 {
						<-releaseInitial
						return initial, nil
					}
					<-releaseResend
					return fresh, nil
				}
			})

			loginDone := make(chan error, 1)
			go func() {
				loginDone <- h.store.BeginLogin(context.Background(), "9876543210", session.ChannelSMS)
			}()
			waitFor(t, func() bool { return h.auth.sendCalls.Load() == 1 })

			resendDone := make(chan error, 1)
			go func() { resendDone <- h.otp.Resend(context.Background(), h.store) }()
			waitFor(t, func() bool { return h.auth.sendCalls.Load() == 2 })

			if tt.resendFirst {
				close(releaseResend)
				if err := <-resendDone; err != nil {
					t.Fatalf("Resend() error = %v", err)
				}
				close(releaseInitial)
				if err := <-loginDone; err != nil {
					t.Fatalf("BeginLogin() error = %v", err)
				}
			} else {
				close(releaseInitial)
				if err := <-loginDone; err != nil {
					t.Fatalf("BeginLogin() error = %v", err)
				}
				if got := h.store.Snapshot().State; got != session.StateAwaitingOtp {
					t.Fatalf("state while resend is in flight = %s, want AwaitingOtp", got)
				}
				close(releaseResend)
				if err := <-resendDone; err != nil {
					t.Fatalf("Resend() error = %v", err)
				}
			}

			snap := h.store.Snapshot()
			if snap.State != session.StateAwaitingOtp || !snap.Challenge.Sent || snap.PendingIdentity == nil {
				t.Fatalf("snapshot = %+v, want AwaitingOtp with a delivered challenge", snap)
			}
			if err := h.store.SubmitOtp(context.Background(), "1111"); !errors.Is(err, apperrors.ErrOtpMismatch) {
				t.Fatalf("replaced code: SubmitOtp() error = %v, want mismatch", err)
			}
			if err := h.store.SubmitOtp(context.Background(), "2222"); err != nil {
				t.Fatalf("SubmitOtp() error = %v", err)
			}
		})
	}
}

// When the resend that replaced the login's first code fails, no code was
// ever delivered and the login ends in Error.
func TestOTPController_FailedResendDuringLoginDispatch(t *testing.T) {
	h := newHarness(t)
	initial := sealCode(t, "1111")
	releaseInitial := make(chan struct{})
	h.auth.set(func(f *fakeAuth) {
		f.sendHook = func(ctx context.Context, call int) (string, error) {
			if call == 1 {
				<-releaseInitial
				return initial, nil
			}
			return "", apperrors.OtpSendFailed("Too many requests", nil)
		}
	})

	loginDone := make(chan error, 1)
	go func() {
		loginDone <- h.store.BeginLogin(context.Background(), "9876543210", session.ChannelSMS)
	}()
	waitFor(t, func() bool { return h.auth.sendCalls.Load() == 1 })

	if err := h.otp.Resend(context.Background(), h.store); !errors.Is(err, apperrors.OtpSendFailed("", nil)) {
		t.Fatalf("Resend() error = %v, want OtpSendFailed", err)
	}
	close(releaseInitial)
	if err := <-loginDone; !errors.Is(err, errSuperseded) {
		t.Fatalf("BeginLogin() error = %v, want superseded", err)
	}
	snap := h.store.Snapshot()
	if snap.State != session.StateError || snap.PendingIdentity != nil {
		t.Fatalf("snapshot = %+v, want Error without a pending identity", snap)
	}
}
