package website

import (
	"context"
	"errors"
	"net/http"

	"git.handmade.network/hmn/discuss/src/models"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorStatus struct {
	target error
	status int
	code   string
}

// Checked in order; the first match wins.
var errorStatuses = []errorStatus{
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrSelfVote, http.StatusForbidden, "self_vote"},
	{models.ErrTopicLocked, http.StatusConflict, "topic_locked"},
	{models.ErrDuplicateSolution, http.StatusConflict, "duplicate_solution"},
	{models.ErrDepthExceeded, http.StatusUnprocessableEntity, "depth_exceeded"},
	{models.ErrReplyDeleted, http.StatusUnprocessableEntity, "reply_deleted"},
	{models.ErrAlreadySoftDeleted, http.StatusUnprocessableEntity, "already_deleted"},
	{models.ErrAlreadyHardDeleted, http.StatusUnprocessableEntity, "already_purged"},
	{models.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{models.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
	{errUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
	{context.Canceled, http.StatusGatewayTimeout, "canceled"},
}

var (
	errBadRequest      = errors.New("bad request")
	errUnauthenticated = errors.New("missing or invalid " + UserHeader + " header")
)

func statusForError(err error) (int, string) {
	for _, s := range errorStatuses {
		if errors.Is(err, s.target) {
			return s.status, s.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

/*
Turns a service error into a JSON error response. Client errors carry their
message back to the caller; anything that maps to a 500 is hidden from the
caller and logged with its stack instead.
*/
func (c *RequestContext) ErrorResponse(err error) ResponseData {
	status, code := statusForError(err)
	body := apiError{Code: code, Message: err.Error()}

	var res ResponseData
	if status == http.StatusInternalServerError {
		body.Message = "There was a problem handling your request."
		res.Errors = append(res.Errors, err)
	}
	res.StatusCode = status
	res.WriteJson(struct {
		Error apiError `json:"error"`
	}{body}, c.Perf)
	return res
}

func FourOhFour(c *RequestContext) ResponseData {
	return c.ErrorResponse(models.ErrNotFound)
}
