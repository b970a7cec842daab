package web

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"eventsched/internal/ics"
	"eventsched/internal/model"
	"eventsched/internal/query"
)

// eventRequest is the body of create and update calls. Times are RFC 3339
// or local "2006-01-02T15:04".
type eventRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Start       string `json:"start"`
	End         string `json:"end"`
}

type recurrenceRequest struct {
	Interval model.Interval `json:"interval"`
	Count    int            `json:"count"`
	EndDate  *model.Date    `json:"end_date,omitempty"`
}

type recurringRequest struct {
	eventRequest
	recurrenceRequest
}

type seriesResponse struct {
	Event model.Event `json:"event"`
	IDs   []int       `json:"ids"`
}

type restoreRequest struct {
	Name   string `json:"name"`
	Append bool   `json:"append"`
}

// maxImportBytes bounds an uploaded calendar.
const maxImportBytes = 16 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok", "events": len(s.cat.List())}
	if err := s.cat.PersistErr(); err != nil {
		resp["status"] = "degraded"
		resp["persist_error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, query.SortByStart(s.cat.List()))
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, ok := s.cat.Find(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %d not found", id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) parseEventRequest(req eventRequest) (time.Time, time.Time, error) {
	start, err := s.parseTime("start", req.Start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := s.parseTime("end", req.End)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	start, end, err := s.parseEventRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, err := s.cat.Create(req.Title, req.Description, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.markPersist(w)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	start, end, err := s.parseEventRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ok, err := s.cat.Update(id, req.Title, req.Description, start, end)
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %d not found", id))
		return
	}
	s.markPersist(w)
	e, _ := s.cat.Find(id)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.cat.Delete(id) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %d not found", id))
		return
	}
	s.markPersist(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	start, end, err := s.parseEventRequest(req.eventRequest)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	e, ids, err := s.cat.CreateRecurring(req.Title, req.Description, start, end,
		req.Interval, req.Count, req.EndDate)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.markPersist(w)
	writeJSON(w, http.StatusCreated, seriesResponse{Event: e, IDs: ids})
}

func (s *Server) handleGenerateRecurrence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req recurrenceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	ids, err := s.cat.GenerateRecurrence(id, req.Interval, req.Count, req.EndDate)
	if err != nil {
		writeErr(w, err)
		return
	}
	s.markPersist(w)
	e, _ := s.cat.Find(id)
	writeJSON(w, http.StatusCreated, seriesResponse{Event: e, IDs: ids})
}

func (s *Server) handleGetRecurrence(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec, ok := s.cat.Recurrence(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("event %d anchors no recurrence", id))
		return
	}
	writeJSON(w, http.StatusOK, spec)
}

func (s *Server) handleListRecurrences(w http.ResponseWriter, _ *http.Request) {
	specs := s.cat.Recurrences()
	if specs == nil {
		specs = []model.RecurrenceSpec{}
	}
	writeJSON(w, http.StatusOK, specs)
}

// handleSearch runs exactly one of the date, range and title searches.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, from, to, title := q.Get("date"), q.Get("from"), q.Get("to"), q.Get("title")

	modes := 0
	for _, set := range []bool{date != "", from != "" || to != "", title != ""} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		writeError(w, http.StatusBadRequest, "give exactly one of date, from/to or title")
		return
	}

	events := s.cat.List()
	var out []model.Event
	switch {
	case date != "":
		d, err := model.ParseDate(date)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out = query.SearchByDate(events, d)
	case title != "":
		out = query.SearchByTitle(events, title)
	default:
		if from == "" || to == "" {
			writeError(w, http.StatusBadRequest, "from and to are both required")
			return
		}
		fd, err := model.ParseDate(from)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		td, err := model.ParseDate(to)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out = query.SearchByDateRange(events, fd, td)
	}
	writeJSON(w, http.StatusOK, query.SortByStart(out))
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, err := s.parseTime("start", q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := s.parseTime("end", q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, query.SortByStart(query.CheckConflicts(s.cat.List(), start, end)))
}

func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	minutes := parseIntDefault(r.URL.Query().Get("minutes"), 60)
	if minutes < 0 {
		writeError(w, http.StatusBadRequest, "minutes must not be negative")
		return
	}
	out := query.Upcoming(s.cat.List(), s.now().In(s.loc), time.Duration(minutes)*time.Minute)
	writeJSON(w, http.StatusOK, query.SortByStart(out))
}

func (s *Server) handleBackup(w http.ResponseWriter, _ *http.Request) {
	path, err := s.backup.Write()
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"name": filepath.Base(path)})
}

// handleRestore only reads files from the configured backup directory.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	name := filepath.Base(strings.TrimSpace(req.Name))
	if name == "." || name == string(filepath.Separator) || name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := s.cat.Restore(filepath.Join(s.cfg.Backup.Dir, name), req.Append); err != nil {
		writeErr(w, err)
		return
	}
	s.markPersist(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"events":      len(s.cat.List()),
		"recurrences": len(s.cat.Recurrences()),
		"next_id":     s.cat.NextID(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if err := ics.Export(&buf, query.SortByStart(s.cat.List()), s.now()); err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="events.ics"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	cfg := ics.PlanConfig{MaxOccurrencesPerEvent: s.cfg.Recurrence.MaxOccurrences}
	sum, err := ics.Import(s.cat, bytes.NewReader(body), s.loc, cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.markPersist(w)
	writeJSON(w, http.StatusOK, sum)
}
