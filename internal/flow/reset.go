package flow

import (
	"context"
	"log/slog"

	"github.com/propertyhub/authgateway/internal/provider"
	"github.com/propertyhub/authgateway/internal/validation"
)

const (
	resetSentMessage = "Password reset email sent! Check your inbox."
	resetDoneMessage = "Your password has been reset. You can now sign in."
)

// ResetConfirmer completes a password reset started by ResetPassword.
type ResetConfirmer interface {
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) error
}

// ResetPassword validates email and asks the provider to send a reset email.
// It returns false and a display message on failure, or true and a
// confirmation message.
func ResetPassword(ctx context.Context, idp provider.Provider, email string, logger *slog.Logger) (bool, string) {
	if logger == nil {
		logger = slog.Default()
	}
	email = validation.Sanitize(email)
	if res := validation.ValidateEmail(email); !res.Valid {
		return false, res.First()
	}
	err := guard(func() error {
		return idp.ResetPassword(ctx, email)
	})
	if err != nil {
		code, _ := provider.CodeOf(err)
		logger.WarnContext(ctx, "password reset failed", slog.String("code", code.String()), slog.Any("error", err))
		return false, resetMessages.translate(err)
	}
	return true, resetSentMessage
}

// ConfirmPasswordReset validates the new password pair and hands the token to
// rc. It returns a display message and, when the form itself is invalid,
// field errors keyed like the sign-up form.
func ConfirmPasswordReset(ctx context.Context, rc ResetConfirmer, token, password, confirmPassword string, logger *slog.Logger) (bool, string, map[string]string) {
	if logger == nil {
		logger = slog.Default()
	}
	if token == "" {
		return false, resetConfirmMessages.messages[provider.CodeInvalidActionCode], nil
	}
	errs := make(map[string]string)
	if res := validation.ValidatePassword(password); !res.Valid {
		errs[FieldPassword] = res.First()
	}
	if res := validation.ValidateConfirmPassword(password, confirmPassword); !res.Valid {
		errs[FieldConfirmPassword] = res.First()
	}
	if len(errs) > 0 {
		return false, "", errs
	}

	err := guard(func() error {
		return rc.ConfirmPasswordReset(ctx, token, password)
	})
	if err != nil {
		code, _ := provider.CodeOf(err)
		logger.WarnContext(ctx, "password reset confirmation failed", slog.String("code", code.String()), slog.Any("error", err))
		return false, resetConfirmMessages.translate(err), nil
	}
	return true, resetDoneMessage, nil
}
