package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tapestry/api/internal/entity"
	"tapestry/api/internal/export"
	"tapestry/api/internal/notify"
	"tapestry/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/events" {
		s.handleEvents(w, r)
		return
	}

	segments := splitPath(r.URL.Path)
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "documents" {
		// Writes require the shared sync token.
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			token := strings.TrimSpace(r.Header.Get("x-tapestry-sync-token"))
			if token == "" || token != s.service.SyncToken() {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
		}
		s.handleDocuments(w, r, segments[2:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	resp := s.service.Search(search.Query{
		Text:             q.Get("q"),
		FilterType:       search.ResultType(q.Get("type")),
		FilterDocumentID: q.Get("documentId"),
		Limit:            limit,
		Offset:           offset,
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents streams document-changed notifications as server-sent events.
func (s *HTTPServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.service.notifier == nil {
		writeError(w, http.StatusServiceUnavailable, "EVENTS_UNAVAILABLE", "Change notifications not configured", nil)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := make(chan notify.Event, 16)
	err := s.service.notifier.Subscribe(ctx, func(e notify.Event) {
		select {
		case events <- e:
		default:
		}
	})
	if err != nil {
		log.Printf("[app] events subscribe: %v", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			payload, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: document-changed\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// handleDocuments routes everything under /api/documents. rest holds the
// path segments after "documents".
func (s *HTTPServer) handleDocuments(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	author := authorName(r)

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			items, err := s.service.ListDocuments(ctx)
			s.respond(w, map[string]any{"documents": items}, err)
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.CreateDocument(ctx, body.Title, author)
			s.respondStatus(w, http.StatusCreated, doc, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	documentID := rest[0]
	rest = rest[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			doc, err := s.service.GetDocument(ctx, documentID)
			s.respond(w, doc, err)
		case http.MethodPut:
			var body struct {
				Content string `json:"content"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			doc, err := s.service.SaveDocument(ctx, documentID, body.Content, author)
			s.respond(w, doc, err)
		case http.MethodDelete:
			err := s.service.DeleteDocument(ctx, documentID)
			s.respond(w, map[string]any{"ok": true}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	switch rest[0] {
	case "title":
		if r.Method != http.MethodPut {
			break
		}
		var body struct {
			Title string `json:"title"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.RenameDocument(ctx, documentID, body.Title, author)
		s.respond(w, doc, err)
		return

	case "tree":
		if r.Method != http.MethodGet {
			break
		}
		nodes, err := s.service.Tree(ctx, documentID)
		s.respond(w, map[string]any{"roots": nodes}, err)
		return

	case "graph":
		if r.Method != http.MethodGet {
			break
		}
		g, err := s.service.Graph(ctx, documentID)
		s.respond(w, g, err)
		return

	case "verify":
		if r.Method != http.MethodGet {
			break
		}
		result, err := s.service.Verify(ctx, documentID)
		if err != nil {
			s.respond(w, nil, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":       result.OK(),
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
		return

	case "export":
		if r.Method != http.MethodPost {
			break
		}
		s.handleExport(w, r, documentID)
		return

	case "history":
		if r.Method != http.MethodGet {
			break
		}
		if len(rest) == 2 {
			text, err := s.service.Snapshot(ctx, documentID, rest[1])
			s.respond(w, map[string]any{"hash": rest[1], "content": text}, err)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		commits, err := s.service.History(ctx, documentID, limit)
		s.respond(w, map[string]any{"commits": commits}, err)
		return

	case "restore":
		if r.Method != http.MethodPost {
			break
		}
		var body struct {
			Hash string `json:"hash"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		doc, err := s.service.Restore(ctx, documentID, body.Hash, author)
		s.respond(w, doc, err)
		return

	case "objects":
		s.handleDataObjects(w, r, documentID, rest[1:], author)
		return
	case "tags", "tag-groups":
		s.handleTags(w, r, documentID, rest, author)
		return
	case "flows":
		s.handleFlows(w, r, documentID, rest[1:], author)
		return
	case "tests":
		s.handleTests(w, r, documentID, rest[1:], author)
		return
	case "hub-notes":
		s.handleHubNotes(w, r, documentID, rest[1:], author)
		return
	case "connectors":
		s.handleConnectors(w, r, documentID, rest[1:], author)
		return
	case "loops":
		s.handleLoops(w, r, documentID, rest[1:], author)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, documentID string) {
	var body struct {
		Format       string `json:"format"`
		IncludeGraph bool   `json:"includeGraph"`
		Upload       bool   `json:"upload"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	res, err := s.service.Export(r.Context(), documentID, export.Request{
		Format:       export.Format(body.Format),
		IncludeGraph: body.IncludeGraph,
		Upload:       body.Upload,
	})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	w.Header().Set("Content-Type", res.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+res.Filename+`"`)
	if res.ObjectURL != "" {
		w.Header().Set("X-Export-Object", res.ObjectURL)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.Data)
}

func (s *HTTPServer) handleDataObjects(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			objects, err := s.service.ListDataObjects(ctx, documentID)
			s.respond(w, objects, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			obj, err := s.service.CreateDataObject(ctx, documentID, author, body.Name)
			s.respondStatus(w, http.StatusCreated, obj, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	objectID := rest[0]
	if len(rest) == 2 && rest[1] == "attributes" && r.Method == http.MethodPut {
		var body struct {
			Attributes []entity.Attribute `json:"attributes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err := s.service.SetDataObjectAttributes(ctx, documentID, author, objectID, body.Attributes)
		s.respond(w, map[string]any{"ok": true}, err)
		return
	}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.RenameDataObject(ctx, documentID, author, objectID, body.Name)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case http.MethodDelete:
			err := s.service.DeleteDataObject(ctx, documentID, author, objectID)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleTags covers both /tags and /tag-groups. rest starts with the
// resource name.
func (s *HTTPServer) handleTags(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()
	resource := rest[0]
	rest = rest[1:]

	if resource == "tags" && len(rest) == 0 && r.Method == http.MethodGet {
		tags, err := s.service.ListTags(ctx, documentID)
		s.respond(w, tags, err)
		return
	}

	if resource == "tag-groups" {
		switch {
		case len(rest) == 0 && r.Method == http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			group, err := s.service.CreateTagGroup(ctx, documentID, author, body.Name)
			s.respondStatus(w, http.StatusCreated, group, err)
			return
		case len(rest) == 1 && r.Method == http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.RenameTagGroup(ctx, documentID, author, rest[0], body.Name)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case len(rest) == 1 && r.Method == http.MethodDelete:
			err := s.service.DeleteTagGroup(ctx, documentID, author, rest[0])
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}

	if resource == "tags" {
		switch {
		case len(rest) == 0 && r.Method == http.MethodPost:
			var body struct {
				GroupID string `json:"groupId"`
				Name    string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			tag, err := s.service.CreateTag(ctx, documentID, author, body.GroupID, body.Name)
			s.respondStatus(w, http.StatusCreated, tag, err)
			return
		case len(rest) == 2 && rest[1] == "group" && r.Method == http.MethodPut:
			var body struct {
				GroupID string `json:"groupId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.MoveTag(ctx, documentID, author, rest[0], body.GroupID)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case len(rest) == 1 && r.Method == http.MethodPut:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.RenameTag(ctx, documentID, author, rest[0], body.Name)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case len(rest) == 1 && r.Method == http.MethodDelete:
			err := s.service.DeleteTag(ctx, documentID, author, rest[0])
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleFlows(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			flows, err := s.service.ListSystemFlows(ctx, documentID)
			s.respond(w, flows, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			flow, err := s.service.CreateSystemFlow(ctx, documentID, author, body.Name)
			s.respondStatus(w, http.StatusCreated, flow, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	flowID := rest[0]
	if len(rest) == 2 && rest[1] == "name" && r.Method == http.MethodPut {
		var body struct {
			Name string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err := s.service.RenameSystemFlow(ctx, documentID, author, flowID, body.Name)
		s.respond(w, map[string]any{"ok": true}, err)
		return
	}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodGet:
			flow, err := s.service.GetSystemFlow(ctx, documentID, flowID)
			s.respond(w, flow, err)
			return
		case http.MethodPut:
			var flow entity.SystemFlow
			if err := decodeBody(r, &flow); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			flow.ID = flowID
			err := s.service.SaveSystemFlow(ctx, documentID, author, flow)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case http.MethodDelete:
			err := s.service.DeleteSystemFlow(ctx, documentID, author, flowID)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleTests(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			tests, err := s.service.ListTestDefinitions(ctx, documentID)
			s.respond(w, tests, err)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			test, err := s.service.CreateTestDefinition(ctx, documentID, author, body.Name)
			s.respondStatus(w, http.StatusCreated, test, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	testID := rest[0]
	if len(rest) == 2 && rest[1] == "attach" && r.Method == http.MethodPost {
		var body struct {
			LineIndex int `json:"lineIndex"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		err := s.service.AttachTestDefinition(ctx, documentID, author, testID, body.LineIndex)
		s.respond(w, map[string]any{"ok": true}, err)
		return
	}
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Name  string   `json:"name"`
				Steps []string `json:"steps"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.UpdateTestDefinition(ctx, documentID, author, testID, body.Name, body.Steps)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case http.MethodDelete:
			err := s.service.DeleteTestDefinition(ctx, documentID, author, testID)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleHubNotes(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			notes, err := s.service.ListHubNotes(ctx, documentID)
			s.respond(w, notes, err)
		case http.MethodPost:
			var body struct {
				LineIndex int    `json:"lineIndex"`
				Text      string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			note, err := s.service.CreateHubNote(ctx, documentID, author, body.LineIndex, body.Text)
			s.respondStatus(w, http.StatusCreated, note, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	noteID := rest[0]
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Text string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.UpdateHubNote(ctx, documentID, author, noteID, body.Text)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case http.MethodDelete:
			err := s.service.DeleteHubNote(ctx, documentID, author, noteID)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleConnectors(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			labels, err := s.service.ListConnectorLabels(ctx, documentID)
			s.respond(w, map[string]any{"labels": labels}, err)
		case http.MethodPost:
			var body struct {
				FromLine int    `json:"fromLine"`
				ToLine   int    `json:"toLine"`
				Label    string `json:"label"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			label, err := s.service.CreateConnectorLabel(ctx, documentID, author, body.FromLine, body.ToLine, body.Label)
			s.respondStatus(w, http.StatusCreated, label, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	labelID := rest[0]
	if len(rest) == 1 {
		switch r.Method {
		case http.MethodPut:
			var body struct {
				Label string `json:"label"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			err := s.service.RenameConnectorLabel(ctx, documentID, author, labelID, body.Label)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		case http.MethodDelete:
			err := s.service.DeleteConnectorLabel(ctx, documentID, author, labelID)
			s.respond(w, map[string]any{"ok": true}, err)
			return
		}
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleLoops(w http.ResponseWriter, r *http.Request, documentID string, rest []string, author string) {
	ctx := r.Context()

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			targets, err := s.service.ListLoopTargets(ctx, documentID)
			s.respond(w, map[string]any{"loops": targets}, err)
		case http.MethodPut:
			var body struct {
				LineIndex   int    `json:"lineIndex"`
				TargetIndex int    `json:"targetIndex"`
				Label       string `json:"label"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			number, err := s.service.SetLoopTarget(ctx, documentID, author, body.LineIndex, body.TargetIndex, body.Label)
			s.respond(w, map[string]any{"number": number}, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && r.Method == http.MethodDelete {
		number, err := strconv.Atoi(rest[0])
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", "loop number must be an integer", nil)
			return
		}
		err = s.service.ClearLoopTarget(ctx, documentID, author, number)
		s.respond(w, map[string]any{"ok": true}, err)
		return
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// respond writes payload on success or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, payload any, err error) {
	s.respondStatus(w, http.StatusOK, payload, err)
}

func (s *HTTPServer) respondStatus(w http.ResponseWriter, status int, payload any, err error) {
	if err != nil {
		st, code, message, details := mapError(err)
		writeError(w, st, code, message, details)
		return
	}
	writeJSON(w, status, payload)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Author, X-Request-ID, x-tapestry-sync-token")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// authorName reads the display name attached by the editor frontend.
func authorName(r *http.Request) string {
	name := strings.TrimSpace(r.Header.Get("X-Author"))
	if name == "" {
		return "anonymous"
	}
	return name
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
