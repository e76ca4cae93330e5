package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
)

// apiError replaces huma's problem document for the errors huma raises before a handler
// runs, such as malformed JSON or a field of the wrong type. It carries the same
// success/error pair as every handler response.
type apiError struct {
	status  int
	Success bool                `json:"success"`
	Message string              `json:"error" doc:"Human-readable reason"`
	Detail  string              `json:"detail,omitempty"`
	Errors  []*huma.ErrorDetail `json:"errors,omitempty"`
}

func (e *apiError) Error() string {
	return e.Message
}

func (e *apiError) GetStatus() int {
	return e.status
}

func init() {
	huma.NewError = newAPIError
}

func newAPIError(status int, msg string, errs ...error) huma.StatusError {
	details := make([]*huma.ErrorDetail, 0, len(errs))
	for _, err := range errs {
		if err == nil {
			continue
		}
		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			details = append(details, detailer.ErrorDetail())
			continue
		}
		details = append(details, &huma.ErrorDetail{Message: err.Error()})
	}

	if msg == "" {
		msg = stdhttp.StatusText(status)
	}
	message := msg
	if len(details) > 0 {
		message = msg + ": " + details[0].Error()
	}

	return &apiError{
		status:  status,
		Message: message,
		Detail:  msg,
		Errors:  details,
	}
}
