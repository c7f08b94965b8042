package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mpi/mpi/internal/platform/auth"
)

// AuditEntry represents an audit log entry produced by the middleware.
// It captures who accessed what, when, from where, and the action type.
type AuditEntry struct {
	UserID     string
	UserRoles  []string
	Resource   string
	PatientRef string
	Action     string // link, seed, read, create
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	Timestamp  time.Time
	RequestID  string
	StatusCode int
}

// AuditRecorder is the interface that the audit middleware uses to persist
// audit entries. It decouples the middleware from any concrete store so
// that tests can provide a mock implementation.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit returns Echo middleware that intercepts requests touching patient
// demographics, extracts the authenticated user from JWT claims, and logs
// the access. Record-linkage services carry PII for every patient in the
// index, so every read or write of that data is logged.
//
// If no AuditRecorder is provided, it falls back to structured zerolog
// logging only.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path

			if !isAuditablePath(path) {
				return next(c)
			}

			// Execute the handler first so we capture the response status.
			err := next(c)

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				Path:       path,
				Method:     req.Method,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}

			ctx := req.Context()
			entry.UserID = auth.UserIDFromContext(ctx)
			entry.UserRoles = auth.RolesFromContext(ctx)

			if rid, ok := c.Get("request_id").(string); ok {
				entry.RequestID = rid
			}

			entry.Action = auditAction(req.Method, path)
			entry.Resource = extractResource(path)
			entry.PatientRef = extractPatientRef(path)

			if len(recorders) > 0 && recorders[0] != nil {
				if recErr := recorders[0].RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("resource", entry.Resource).
				Str("patient_ref", entry.PatientRef).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("pii_access")

			return err
		}
	}
}

// isAuditablePath returns true for paths that read or write patient PII.
func isAuditablePath(path string) bool {
	for _, prefix := range []string{"/link", "/seed", "/patient", "/person"} {
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

// auditAction maps a request to an audit action code. Linkage and seeding
// get their own codes since they touch many records at once.
func auditAction(method, path string) string {
	if method == http.MethodPost {
		switch {
		case path == "/link" || strings.HasPrefix(path, "/link/"):
			return "link"
		case path == "/seed" || strings.HasPrefix(path, "/seed/"):
			return "seed"
		}
		return "create"
	}
	return "read"
}

// extractResource parses the resource kind from a URL path:
//
//   - /patient/<ref> -> patient
//   - /person/<ref>  -> person
//   - /link          -> link
func extractResource(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segments) > 0 && segments[0] != "" {
		return segments[0]
	}
	return "unknown"
}

// extractPatientRef finds a patient or person reference in the request path.
func extractPatientRef(path string) string {
	for _, prefix := range []string{"/patient/", "/person/"} {
		if strings.HasPrefix(path, prefix) {
			segments := strings.Split(strings.TrimPrefix(path, prefix), "/")
			if len(segments) > 0 && isUUIDLike(segments[0]) {
				return segments[0]
			}
		}
	}
	return ""
}

// isUUIDLike checks if a string parses as a UUID.
func isUUIDLike(s string) bool {
	if s == "" {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
