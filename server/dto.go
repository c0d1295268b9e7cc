package server

import (
	"time"

	"github.com/TFMV/ontograph/explore"
	"github.com/TFMV/ontograph/graph"
	"github.com/TFMV/ontograph/models"
)

// CreateGraphRequest opens a graph session.
type CreateGraphRequest struct {
	Kind   string           `json:"kind" validate:"required,oneof=data explore model uml"`
	Root   *models.Resource `json:"root" validate:"required"`
	Width  float64          `json:"width,omitempty" validate:"gte=0"`
	Height float64          `json:"height,omitempty" validate:"gte=0"`
	// Depth expands dynamic graphs this many levels from the root.
	Depth int `json:"depth,omitempty" validate:"gte=0,lte=5"`
	// Settle runs the simulation synchronously before the first response.
	Settle int `json:"settle,omitempty" validate:"gte=0,lte=5000"`
}

// ExpandRequest restricts an expansion to a set of predicate IRIs.
type ExpandRequest struct {
	Predicates []string `json:"predicates,omitempty" validate:"dive,required"`
}

// PinRequest fixes a node at a position.
type PinRequest struct {
	X *float64 `json:"x" validate:"required"`
	Y *float64 `json:"y" validate:"required"`
}

// ExportRequest carries an SVG document to inline.
type ExportRequest struct {
	SVG string `json:"svg" validate:"required"`
}

// GraphResponse describes a session and its current state.
type GraphResponse struct {
	ID        string          `json:"id"`
	Kind      explore.Kind    `json:"kind"`
	Root      string          `json:"root,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Forces    graph.Forces    `json:"forces"`
	Graph     *graph.Snapshot `json:"graph,omitempty"`
}

// GraphSummary is a list entry.
type GraphSummary struct {
	ID        string       `json:"id"`
	Kind      explore.Kind `json:"kind"`
	Root      string       `json:"root,omitempty"`
	Nodes     int          `json:"nodes"`
	Links     int          `json:"links"`
	CreatedAt time.Time    `json:"created_at"`
	LastUsed  time.Time    `json:"last_used"`
}

// ToggleResponse reports which way a toggle went.
type ToggleResponse struct {
	Expanded bool            `json:"expanded"`
	Graph    *graph.Snapshot `json:"graph"`
}

// ExportResponse carries an inlined SVG as a data URI.
type ExportResponse struct {
	DataURI string `json:"data_uri"`
}

// HealthResponse is served on /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
	Backend  string `json:"backend,omitempty"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type"`
	// Counts and Predicates are set when an expansion is over the threshold.
	Counts     map[string]int `json:"counts,omitempty"`
	Predicates []string       `json:"predicates,omitempty"`
	Total      int            `json:"total,omitempty"`
	Threshold  int            `json:"threshold,omitempty"`
}

func summarize(s *Session) GraphSummary {
	nodes, links := s.Graph.Len()
	return GraphSummary{
		ID:        s.ID,
		Kind:      s.Kind,
		Root:      rootIRI(s),
		Nodes:     nodes,
		Links:     links,
		CreatedAt: s.CreatedAt,
		LastUsed:  s.LastUsed(),
	}
}

func describe(s *Session) GraphResponse {
	return GraphResponse{
		ID:        s.ID,
		Kind:      s.Kind,
		Root:      rootIRI(s),
		CreatedAt: s.CreatedAt,
		Forces:    s.Graph.Forces(),
		Graph:     s.Graph.Snapshot(),
	}
}

func rootIRI(s *Session) string {
	if r := s.Explorer.Root(); r != nil {
		return r.Resource.Value
	}
	return ""
}
