package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/models"
	apperrors "github.com/TFMV/ontograph/pkg/errors"
	"github.com/TFMV/ontograph/render"
)

const (
	maxBodyBytes   = 1 << 20
	maxExportBytes = 16 << 20
	// eventInterval bounds how often a stream sends snapshots.
	eventInterval = 50 * time.Millisecond
)

// decodeJSON reads an optional JSON body into v and validates it.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && optional {
			return nil
		}
		return apperrors.NewValidation(fmt.Sprintf("invalid request body: %v", err))
	}
	if err := s.validate.Struct(v); err != nil {
		return apperrors.NewValidation(err.Error())
	}
	return nil
}

func (s *Server) session(r *http.Request) (*Session, error) {
	return s.sessions.Get(chi.URLParam(r, "graphID"))
}

// node resolves the session and the node named in the path.
func (s *Server) node(r *http.Request) (*Session, *models.Node, error) {
	sess, err := s.session(r)
	if err != nil {
		return nil, nil, err
	}
	id := chi.URLParam(r, "nodeID")
	n := sess.Graph.NodeByID(id)
	if n == nil {
		return nil, nil, apperrors.NewNotFound(fmt.Sprintf("node %s not found", id))
	}
	return sess, n, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Sessions: s.sessions.Len()}
	if b, ok := s.service.(interface{ State() string }); ok {
		resp.Backend = b.State()
		if resp.Backend == "open" {
			resp.Status = "degraded"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List()
	out := make([]GraphSummary, 0, len(list))
	for _, sess := range list {
		out = append(out, summarize(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var req CreateGraphRequest
	if err := s.decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess, err := s.createSession(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/graphs/"+sess.ID)
	writeJSON(w, http.StatusCreated, describe(sess))
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

func (s *Server) handleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Remove(chi.URLParam(r, "graphID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetForces(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// fields absent from the body keep their current values
	forces := sess.Graph.Forces()
	if err := s.decodeJSON(w, r, &forces, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	sess.Graph.SetForces(forces)
	s.logger.Debug("forces updated", zap.String("graph_id", sess.ID), zap.Any("forces", forces))
	writeJSON(w, http.StatusOK, forces)
}

func (s *Server) handleExpand(w http.ResponseWriter, r *http.Request) {
	sess, n, err := s.node(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ExpandRequest
	if err := s.decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}

	if d := r.URL.Query().Get("depth"); d != "" {
		depth, perr := strconv.Atoi(d)
		if perr != nil || depth < 1 || depth > 5 {
			s.writeError(w, r, apperrors.NewValidation("depth must be between 1 and 5"))
			return
		}
		if !sess.Graph.Dynamic() {
			s.writeError(w, r, apperrors.NewValidation(fmt.Sprintf("nodes of a %s graph cannot be expanded", sess.Kind)))
			return
		}
		err = sess.Explorer.ExpandDepth(r.Context(), n, depth)
	} else {
		err = sess.Explorer.Expand(r.Context(), n, req.Predicates)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

func (s *Server) handleCollapse(w http.ResponseWriter, r *http.Request) {
	sess, n, err := s.node(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Explorer.Collapse(n); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess))
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	sess, n, err := s.node(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req ExpandRequest
	if err := s.decodeJSON(w, r, &req, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	expanded, err := sess.Explorer.Toggle(r.Context(), n, req.Predicates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ToggleResponse{Expanded: expanded, Graph: sess.Graph.Snapshot()})
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req PinRequest
	if err := s.decodeJSON(w, r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Graph.Pin(chi.URLParam(r, "nodeID"), *req.X, *req.Y); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnpin(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := sess.Graph.Unpin(chi.URLParam(r, "nodeID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// renderOptions reads format, width, height and labels from the query.
func (s *Server) renderOptions(r *http.Request, format string) (*render.OutputOptions, error) {
	q := r.URL.Query()
	if f := q.Get("format"); f != "" {
		format = f
	}
	opts := render.NewDefaultOptions(format)
	opts.Theme = s.currentTheme()
	opts.Background = s.cfg.Theme.Background

	for key, dst := range map[string]*float64{"width": &opts.Width, "height": &opts.Height} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 {
			return nil, apperrors.NewValidation(fmt.Sprintf("invalid %s %q", key, v))
		}
		*dst = f
	}
	if v := q.Get("labels"); v != "" {
		show, err := strconv.ParseBool(v)
		if err != nil {
			return nil, apperrors.NewValidation(fmt.Sprintf("invalid labels %q", v))
		}
		opts.ShowLabels = show
		opts.ShowLinkLabels = show
	}
	return opts, nil
}

var contentTypes = map[string]string{
	"svg":  "image/svg+xml",
	"json": "application/json",
	"dot":  "text/vnd.graphviz",
}

func (s *Server) renderSession(w http.ResponseWriter, r *http.Request, format string, fixed bool) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.renderOptions(r, format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if fixed {
		opts.Format = format
	}
	renderer, err := render.GetRenderer(opts.Format)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out, err := renderer.Render(sess.Graph.Snapshot(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentTypes[strings.ToLower(opts.Format)])
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (s *Server) handleSVG(w http.ResponseWriter, r *http.Request) {
	s.renderSession(w, r, "svg", true)
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	s.renderSession(w, r, "svg", false)
}

// handleExportGraph renders the graph as SVG and returns it with styles
// inlined, as a data URI.
func (s *Server) handleExportGraph(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := s.renderOptions(r, "svg")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts.Format = "svg"
	doc, err := render.Render(sess.Graph.Snapshot(), opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	uri, err := s.exporter.Export(doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{DataURI: uri})
}

// handleExportDocument inlines a client-supplied SVG, sent raw or as an
// ExportRequest.
func (s *Server) handleExportDocument(w http.ResponseWriter, r *http.Request) {
	var doc []byte
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req ExportRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExportBytes))
		if err := dec.Decode(&req); err != nil {
			s.writeError(w, r, apperrors.NewValidation(fmt.Sprintf("invalid request body: %v", err)))
			return
		}
		if err := s.validate.Struct(&req); err != nil {
			s.writeError(w, r, apperrors.NewValidation(err.Error()))
			return
		}
		doc = []byte(req.SVG)
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxExportBytes))
		if err != nil {
			s.writeError(w, r, apperrors.NewValidation(fmt.Sprintf("reading body: %v", err)))
			return
		}
		doc = body
	}

	uri, err := s.exporter.Export(doc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExportResponse{DataURI: uri})
}

// handleEvents streams snapshots as server-sent events: one on connect,
// then one per burst of graph changes, until the client leaves or the
// graph is closed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rc := http.NewResponseController(w)
	// the stream outlives the server's write timeout
	_ = rc.SetWriteDeadline(time.Time{})

	events, unsubscribe := sess.Graph.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(typ graph.EventType) bool {
		data, err := json.Marshal(sess.Graph.Snapshot())
		if err != nil {
			s.logger.Error("encoding snapshot", zap.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", typ, data); err != nil {
			return false
		}
		return rc.Flush() == nil
	}
	if !send("snapshot") {
		return
	}

	ticker := time.NewTicker(eventInterval)
	defer ticker.Stop()
	var pending graph.EventType
	for {
		select {
		case <-r.Context().Done():
			return
		case <-sess.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			// a structural change outranks ticks in the same burst
			if pending != graph.EventStructure {
				pending = ev.Type
			}
		case <-ticker.C:
			if pending == "" {
				continue
			}
			if !send(pending) {
				return
			}
			pending = ""
		}
	}
}
