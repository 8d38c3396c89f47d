package credflow

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/credflow/internal/audit"
)

const (
	auditEventValidationRejected     = "validation_rejected"
	auditEventSubmitInFlightRejected = "submit_in_flight_rejected"
	auditEventSignInSuccess          = "sign_in_success"
	auditEventSignInFailure          = "sign_in_failure"
	auditEventSignUpSuccess          = "sign_up_success"
	auditEventSignUpFailure          = "sign_up_failure"
	auditEventPasswordResetSent      = "password_reset_sent"
	auditEventPasswordResetFailure   = "password_reset_failure"
	auditEventSocialSignInSuccess    = "social_sign_in_success"
	auditEventSocialSignInFailure    = "social_sign_in_failure"
	auditEventModeChanged            = "mode_changed"
)

// AuditErrorCode is the stable error label written into AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrEmailInvalid     AuditErrorCode = "email_invalid"
	auditErrPasswordEmpty    AuditErrorCode = "password_empty"
	auditErrPasswordMismatch AuditErrorCode = "password_mismatch"
	auditErrInFlight         AuditErrorCode = "in_flight"
	auditErrSocialDisabled   AuditErrorCode = "social_disabled"
	auditErrUnknownProvider  AuditErrorCode = "unknown_provider"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	mode FlowMode,
	success bool,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if metadata == nil {
			metadata = make(map[string]string, 1)
		}
		metadata["user_agent"] = ua
	}

	event := audit.Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		FormID:    formIDFromContext(ctx),
		Mode:      mode.String(),
		Subject:   subject,
		IP:        ClientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return AuditErrorCode(authErr.Kind.String())
	}

	switch {
	case errors.Is(err, ErrEmailInvalid):
		return auditErrEmailInvalid
	case errors.Is(err, ErrPasswordEmpty):
		return auditErrPasswordEmpty
	case errors.Is(err, ErrPasswordMismatch):
		return auditErrPasswordMismatch
	case errors.Is(err, ErrSubmitInFlight):
		return auditErrInFlight
	case errors.Is(err, ErrSocialDisabled):
		return auditErrSocialDisabled
	case errors.Is(err, ErrUnknownProvider):
		return auditErrUnknownProvider
	default:
		return AuditErrorCode(authErrorKindOf(err).String())
	}
}
