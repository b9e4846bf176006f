package console

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/vincemic/ai-fhir-pit/internal/mapping"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhir"
	"github.com/vincemic/ai-fhir-pit/internal/platform/fhirclient"
	"github.com/vincemic/ai-fhir-pit/internal/settings"
)

// Outcome maps err to a status code and OperationOutcome body.
//
//	form field errors          422
//	bad input                  400
//	FHIR server 404            404
//	other FHIR server failures 502
//	no server configured       503
//	deadline exceeded          504
func Outcome(err error) (int, *fhir.OperationOutcome) {
	var fe *mapping.FieldError
	if errors.As(err, &fe) {
		switch {
		case errors.Is(fe.Err, mapping.ErrMissingRequiredField):
			return http.StatusUnprocessableEntity, fhir.RequiredFieldOutcome(fe.Field)
		case errors.Is(fe.Err, mapping.ErrInvalidJSONPayload):
			outcome := fhir.StructureOutcome(fe.Error())
			outcome.Issue[0].Expression = []string{fe.Field}
			return http.StatusUnprocessableEntity, outcome
		default:
			return http.StatusUnprocessableEntity, fhir.ValidationOutcome(fe.Field, fe.Error())
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok {
			msg = http.StatusText(he.Code)
		}
		return he.Code, fhir.NewOperationOutcome(fhir.IssueSeverityError, issueCodeFor(he.Code), msg)
	}

	switch {
	case errors.Is(err, ErrInvalidResourceType), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrForeignLink),
		errors.Is(err, settings.ErrInvalid), errors.Is(err, mapping.ErrInvalidMode),
		errors.Is(err, fhirclient.ErrIDRequired), errors.Is(err, fhirclient.ErrReferenceRequired):
		return http.StatusBadRequest, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeInvalid, err.Error())
	case errors.Is(err, fhirclient.ErrNoServer):
		return http.StatusServiceUnavailable, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeProcessing, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout, "FHIR server did not answer in time")
	}

	var se *fhirclient.ServerError
	if errors.As(err, &se) {
		if se.NotFound() {
			return http.StatusNotFound, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotFound, se.Message)
		}
		if se.StatusCode == 0 {
			return http.StatusBadGateway, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTransient, se.Message)
		}
		return http.StatusBadGateway, fhir.UpstreamOutcome(se.StatusCode, se.Message)
	}

	return http.StatusInternalServerError, fhir.ErrorOutcome("internal server error")
}

func issueCodeFor(status int) string {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fhir.IssueTypeSecurity
	case http.StatusNotFound:
		return fhir.IssueTypeNotFound
	case http.StatusMethodNotAllowed:
		return fhir.IssueTypeNotSupported
	case http.StatusTooManyRequests:
		return fhir.IssueTypeThrottled
	case http.StatusRequestEntityTooLarge:
		return "too-costly"
	}
	if status >= 500 {
		return fhir.IssueTypeException
	}
	return fhir.IssueTypeInvalid
}

// ErrorHandler renders every error as an OperationOutcome. Install it as
// echo's HTTPErrorHandler.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, outcome := Outcome(err)
		if status >= 500 {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Int("status", status).Msg("request failed")
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, outcome)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write error response")
		}
	}
}
