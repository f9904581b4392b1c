package audit

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	pkgctx "github.com/baechuer/magiclink/services/signin-service/internal/pkg/context"
)

const ActionLogout = "logout"

// Logger provides structured audit logging for sign-in business events
type Logger struct {
	log zerolog.Logger
}

// New creates a new audit logger
func New(log zerolog.Logger) *Logger {
	return &Logger{
		log: log.With().Bool("audit", true).Logger(),
	}
}

// Record writes one audit entry. Fields named "email" are masked.
// Actions ending in "_failed" are logged at warn level.
func (l *Logger) Record(action string, fields map[string]string) {
	evt := l.log.Info()
	if strings.HasSuffix(action, "_failed") {
		evt = l.log.Warn()
	}
	evt = evt.Str("action", action)
	for k, v := range fields {
		if k == "email" {
			v = maskEmail(v)
		}
		evt = evt.Str(k, v)
	}
	evt.Msg("audit")
}

// Logout logs a user logout
func (l *Logger) Logout(ctx context.Context, userID string) {
	l.Record(ActionLogout, map[string]string{
		"user_id":    userID,
		"request_id": pkgctx.GetRequestID(ctx),
	})
}

// maskEmail partially masks email for privacy in logs
func maskEmail(email string) string {
	if len(email) < 5 {
		return "***"
	}
	at := strings.IndexByte(email, '@')
	if at < 0 {
		return email[:2] + "***"
	}
	if at < 2 {
		return email[:1] + "***" + email[at:]
	}
	return email[:2] + "***" + email[at:]
}
