package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/mux"

	"shipyard_report/editor"
	"shipyard_report/report"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.WithError(err).Warn("encode response")
	}
}

// statusFor maps an error to its HTTP status and the body shown to the user.
func statusFor(err error) (int, ErrorResponse) {
	var verr *report.ValidationError
	var cerr *report.ConstraintViolationError
	plain := ErrorResponse{Message: err.Error()}
	switch {
	case errors.As(err, &verr):
		msg, detail := report.Describe(err)
		return http.StatusBadRequest, ErrorResponse{Message: msg, Detail: detail}
	case errors.As(err, &cerr):
		msg, detail := report.Describe(err)
		return http.StatusConflict, ErrorResponse{Message: msg, Detail: detail}
	case report.IsAborted(err):
		return http.StatusConflict, ErrorResponse{Detail: err.Error(), Aborted: true}
	case errors.Is(err, editor.ErrRowNotFound), errors.Is(err, editor.ErrLineNotFound), errors.Is(err, editor.ErrOperatorNotFound):
		return http.StatusNotFound, plain
	case errors.Is(err, editor.ErrReadOnly), errors.Is(err, editor.ErrStatusForbidden):
		return http.StatusForbidden, plain
	case errors.Is(err, editor.ErrNotLoaded), errors.Is(err, editor.ErrSaveInProgress), errors.Is(err, editor.ErrClosed):
		return http.StatusConflict, plain
	}
	msg, detail := report.Describe(err)
	return http.StatusInternalServerError, ErrorResponse{Message: msg, Detail: detail}
}

func writeError(w http.ResponseWriter, err error) {
	status, body := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: msg})
}

// decodeBody reads an optional JSON body into target.
func decodeBody(r *http.Request, target any) error {
	err := json.NewDecoder(r.Body).Decode(target)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func pathInt(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)[name])
	return n, err == nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("request")
	})
}

// workspace returns the session's workspace, opening one when needed.
func (a *app) workspace(w http.ResponseWriter, r *http.Request) *editor.Workspace {
	session, _ := a.sessions.Get(r, sessionName)
	id, _ := session.Values["workspace_id"].(string)
	ws := a.workspaces.Open(id, currentUser(r))
	if ws.ID != id {
		session.Values["workspace_id"] = ws.ID
		if err := session.Save(r, w); err != nil {
			log.WithError(err).Warn("store workspace id")
		}
	}
	return ws
}

func (a *app) operatorsHandler(w http.ResponseWriter, r *http.Request) {
	recs, err := a.backend.ListOperators(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	ops := make([]report.Operator, len(recs))
	for i, rec := range recs {
		ops[i] = report.Operator{ID: rec.ID, Label: editor.OperatorLabel(rec)}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (a *app) loadWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := report.Key{
		AuthorID: q.Get("author_id"),
		CrewRole: report.CrewRole(strings.ToUpper(strings.TrimSpace(q.Get("crew_role")))),
	}
	if key.AuthorID == "" {
		key.AuthorID = currentUser(r).ID
	}
	if key.CrewRole != "" && !key.CrewRole.Valid() {
		writeError(w, &report.ValidationError{Invalid: []string{"crew_role"}})
		return
	}
	date, err := report.NormalizeDate(q.Get("date"))
	if err != nil {
		writeError(w, &report.ValidationError{Invalid: []string{"date"}})
		return
	}
	key.Date = date

	ws := a.workspace(w, r)
	snap, err := ws.Load(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *app) currentWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.workspace(w, r).Snapshot())
}

func (a *app) closeWorkspaceHandler(w http.ResponseWriter, r *http.Request) {
	session, _ := a.sessions.Get(r, sessionName)
	if id, ok := session.Values["workspace_id"].(string); ok {
		a.workspaces.Close(id)
		delete(session.Values, "workspace_id")
		session.Save(r, w)
	}
	w.WriteHeader(http.StatusNoContent)
}

// respond writes the snapshot a workspace operation returned, or its error.
func respond(w http.ResponseWriter, snap editor.Snapshot, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *app) updateHeaderHandler(w http.ResponseWriter, r *http.Request) {
	var req HeaderRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "Invalid JSON")
		return
	}
	snap, err := a.workspace(w, r).UpdateHeader(editor.HeaderPatch{
		SiteCode:     req.SiteCode,
		ContractCode: req.ContractCode,
		TotalOutput:  req.TotalOutput,
	})
	respond(w, snap, err)
}

func (a *app) addRowHandler(w http.ResponseWriter, r *http.Request) {
	var req RowRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "Invalid JSON")
		return
	}
	snap, err := a.workspace(w, r).AddRow(req.template())
	respond(w, snap, err)
}

func (a *app) removeRowHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	snap, err := a.workspace(w, r).RemoveRow(index)
	respond(w, snap, err)
}

func (a *app) updateCellHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	var req CellRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON")
		return
	}
	snap, err := a.workspace(w, r).UpdateCell(index, req.Field, req.Value)
	respond(w, snap, err)
}

func (a *app) addOperatorHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	var req OperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OperatorID == "" {
		badRequest(w, "operator_id is required")
		return
	}
	snap, err := a.workspace(w, r).AddOperator(r.Context(), index, req.OperatorID)
	respond(w, snap, err)
}

func (a *app) removeOperatorHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	snap, err := a.workspace(w, r).RemoveOperator(index, mux.Vars(r)["operatorId"])
	respond(w, snap, err)
}

func (a *app) toggleOperatorHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OperatorID == "" {
		badRequest(w, "operator_id is required")
		return
	}
	snap, err := a.workspace(w, r).ToggleOperator(r.Context(), index, req.OperatorID, req.Action)
	respond(w, snap, err)
}

func (a *app) setHoursHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	line, ok := pathInt(r, "line")
	if !ok {
		badRequest(w, "Invalid line index")
		return
	}
	var req HoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON")
		return
	}
	snap, err := a.workspace(w, r).SetHours(index, line, req.RawHoursText)
	respond(w, snap, err)
}

func (a *app) setLegacyHoursHandler(w http.ResponseWriter, r *http.Request) {
	index, ok := pathInt(r, "index")
	if !ok {
		badRequest(w, "Invalid row index")
		return
	}
	var req LegacyHoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "Invalid JSON")
		return
	}
	snap, err := a.workspace(w, r).SetLegacyHours(index, req.Value)
	respond(w, snap, err)
}

func (a *app) saveHandler(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if err := decodeBody(r, &req); err != nil {
		badRequest(w, "Invalid JSON")
		return
	}
	res, snap, err := a.workspace(w, r).Save(r.Context(), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{Result: res, Workspace: snap})
}

func (a *app) returnedInboxHandler(w http.ResponseWriter, r *http.Request) {
	notifier := a.workspace(w, r).Inbox()
	if err := notifier.Refresh(r.Context()); err != nil {
		log.WithError(err).Warn("returned inbox refresh failed")
	}
	writeJSON(w, http.StatusOK, notifier.State())
}

func (a *app) rosterHandler(w http.ResponseWriter, r *http.Request) {
	site := strings.TrimSpace(r.URL.Query().Get("site"))
	date, err := report.NormalizeDate(r.URL.Query().Get("date"))
	if err != nil || site == "" || date == "" {
		badRequest(w, "site and date are required")
		return
	}
	snap, ok := editor.ReadRoster(a.cache, site, date)
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: "No roster for this site and date"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
