package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/shortpoint/webhook-dispatcher/model"
)

func outputJSON(c *Context, w io.Writer, o interface{}) {
	encoder := json.NewEncoder(w)
	err := encoder.Encode(o)
	if err != nil {
		c.Logger.WithError(err).Error("failed to encode result")
	}
}

// errToStatus maps the error taxonomy onto response codes: validation failures
// are the caller's fault, missing records are missing, everything else is ours.
func errToStatus(err error) int {
	switch {
	case model.IsInvalidInput(err):
		return http.StatusBadRequest
	case model.IsNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// teamIDForRequest extracts the acting team set by the gateway in front of the
// dispatcher. Team-scoped handlers refuse requests without one.
func teamIDForRequest(c *Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	teamID := r.Header.Get(model.TeamIDHeader)
	if teamID == "" {
		c.Logger.Debugf("Rejecting team-scoped request without %s", model.TeamIDHeader)
		w.WriteHeader(http.StatusBadRequest)
		return "", false
	}

	return teamID, true
}

func parseInt(u *url.URL, name string, defaultValue int) (int, error) {
	valueStr := u.Query().Get(name)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s as integer", name)
	}

	return value, nil
}

func parseBool(u *url.URL, name string, defaultValue bool) (bool, error) {
	valueStr := u.Query().Get(name)
	if valueStr == "" {
		return defaultValue, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, errors.Wrapf(err, "failed to parse %s as boolean", name)
	}

	return value, nil
}

// parseBoolPointer distinguishes an absent parameter from an explicit false.
func parseBoolPointer(u *url.URL, name string) (*bool, error) {
	valueStr := u.Query().Get(name)
	if valueStr == "" {
		return nil, nil
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s as boolean", name)
	}

	return &value, nil
}

func parsePaging(u *url.URL) (model.Paging, error) {
	page, err := parseInt(u, "page", 0)
	if err != nil {
		return model.Paging{}, err
	}
	if page < 0 {
		page = 0
	}

	perPage, err := parseInt(u, "limit", model.DefaultPerPage)
	if err != nil {
		return model.Paging{}, err
	}
	if perPage <= 0 {
		perPage = model.DefaultPerPage
	}
	if perPage > model.MaxPerPage {
		perPage = model.MaxPerPage
	}

	includeDeleted, err := parseBool(u, "include_deleted", false)
	if err != nil {
		return model.Paging{}, err
	}

	return model.Paging{
		Page:           page,
		PerPage:        perPage,
		IncludeDeleted: includeDeleted,
	}, nil
}
