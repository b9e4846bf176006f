package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/platform/auth"
)

const apiPrefix = "/api/v1/"

// AuditEntry records who touched which console resource and how.
type AuditEntry struct {
	Timestamp    time.Time
	RequestID    string
	UserID       string
	UserRoles    []string
	Action       string // read, create, update, delete
	ResourceType string
	ResourceID   string
	Method       string
	Path         string
	IPAddress    string
	UserAgent    string
	StatusCode   int
}

// AuditRecorder persists audit entries in addition to the log line.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// Audit logs one "console_audit" line per /api/v1/ request after the
// handler ran, and hands the entry to recorder when one is given.
// Reads are logged at debug level, writes at info.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, apiPrefix) {
				return next(c)
			}

			err := next(c)

			ctx := req.Context()
			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				UserID:     auth.UserIDFromContext(ctx),
				UserRoles:  auth.RolesFromContext(ctx),
				Action:     httpMethodToAction(req.Method),
				Method:     req.Method,
				Path:       req.URL.Path,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				StatusCode: c.Response().Status,
			}
			entry.RequestID, _ = c.Get("request_id").(string)
			entry.ResourceType, entry.ResourceID = auditTarget(req.URL.Path)

			if recorder != nil {
				if recErr := recorder.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			evt := logger.Info()
			if entry.Action == "read" {
				evt = logger.Debug()
			}
			evt.
				Str("type", "console_audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Strs("user_roles", entry.UserRoles).
				Str("action", entry.Action).
				Str("resource_type", entry.ResourceType).
				Str("resource_id", entry.ResourceID).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("console_access")

			return err
		}
	}
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// auditTarget names what a console path operates on:
//
//	/api/v1/resources/Patient/123 -> Patient, 123
//	/api/v1/resources/Patient     -> Patient, ""
//	/api/v1/settings/defaults     -> settings, ""
func auditTarget(path string) (resourceType, id string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, apiPrefix), "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	if segments[0] != "resources" {
		return segments[0], ""
	}
	if len(segments) > 1 {
		resourceType = segments[1]
	}
	if len(segments) > 2 {
		id = segments[2]
	}
	if resourceType == "" {
		resourceType = "unknown"
	}
	return resourceType, id
}
