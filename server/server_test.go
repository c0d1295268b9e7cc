package server

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TFMV/ontograph/config"
	"github.com/TFMV/ontograph/export"
	"github.com/TFMV/ontograph/ingest"
	"github.com/TFMV/ontograph/metrics"
)

const zoo = "http://example.org/zoo#"

type testNode struct {
	ID       string `json:"id"`
	Resource struct {
		Value string `json:"value"`
	} `json:"resource"`
	Open bool     `json:"open"`
	Fx   *float64 `json:"fx"`
}

type testGraph struct {
	ID    string `json:"id"`
	Kind  string `json:"kind"`
	Root  string `json:"root"`
	Graph struct {
		Nodes []testNode `json:"nodes"`
		Links []struct {
			Source string `json:"source"`
			Target string `json:"target"`
		} `json:"links"`
	} `json:"graph"`
}

func (g *testGraph) node(t *testing.T, iri string) testNode {
	t.Helper()
	for _, n := range g.Graph.Nodes {
		if n.Resource.Value == iri {
			return n
		}
	}
	t.Fatalf("node %s not in graph", iri)
	return testNode{}
}

func newTestServer(t *testing.T, mutate func(*config.Config), opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	ds, err := ingest.LoadDataset("../ingest/testdata/zoo.json")
	require.NoError(t, err)

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	opts = append([]Option{WithLogger(zap.NewNop())}, opts...)
	srv, err := New(cfg, ds, opts...)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, ts
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func createGraph(t *testing.T, ts *httptest.Server, kind, root string) testGraph {
	t.Helper()
	body := `{"kind":"` + kind + `","root":{"kind":"iri","value":"` + root + `"}}`
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/graphs", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var g testGraph
	decode(t, resp, &g)
	return g
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp := do(t, http.MethodGet, ts.URL+"/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var h HealthResponse
	decode(t, resp, &h)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 0, h.Sessions)
	assert.Empty(t, h.Backend)
}

func TestGraphLifecycle(t *testing.T) {
	_, ts := newTestServer(t, nil)

	g := createGraph(t, ts, "data", zoo+"rex")
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, "data", g.Kind)
	assert.Equal(t, zoo+"rex", g.Root)
	assert.Len(t, g.Graph.Nodes, 4)
	assert.Len(t, g.Graph.Links, 3)
	assert.True(t, g.node(t, zoo+"rex").Open)

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/graphs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []GraphSummary
	decode(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, g.ID, list[0].ID)
	assert.Equal(t, 4, list[0].Nodes)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/graphs/"+g.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodDelete, ts.URL+"/api/v1/graphs/"+g.ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/graphs/"+g.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var e ErrorResponse
	decode(t, resp, &e)
	assert.Equal(t, "not_found", e.Type)
}

func TestCreateGraphErrors(t *testing.T) {
	_, ts := newTestServer(t, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"bad kind", `{"kind":"tree","root":{"kind":"iri","value":"` + zoo + `rex"}}`, http.StatusBadRequest},
		{"missing root", `{"kind":"data"}`, http.StatusBadRequest},
		{"unknown field", `{"kind":"data","root":{"kind":"iri","value":"` + zoo + `rex"},"colour":1}`, http.StatusBadRequest},
		{"literal root", `{"kind":"data","root":{"kind":"literal","value":"Rex"}}`, http.StatusBadRequest},
		{"unknown root", `{"kind":"data","root":{"kind":"iri","value":"` + zoo + `unicorn"}}`, http.StatusNotFound},
		{"not json", `kind=data`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/api/v1/graphs", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestExpandOverThreshold(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Graph.Threshold = 2 })

	g := createGraph(t, ts, "data", zoo+"rex")
	require.Len(t, g.Graph.Nodes, 1, "root stays closed when over the threshold")
	rex := g.node(t, zoo+"rex")
	assert.False(t, rex.Open)

	base := ts.URL + "/api/v1/graphs/" + g.ID + "/nodes/" + rex.ID
	resp := do(t, http.MethodPost, base+"/expand", "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var e ErrorResponse
	decode(t, resp, &e)
	assert.Equal(t, "too_many_links", e.Type)
	assert.Equal(t, 3, e.Total)
	assert.Equal(t, 2, e.Threshold)
	assert.Len(t, e.Predicates, 3)
	assert.Equal(t, 1, e.Counts[zoo+"hasOwner"])

	resp = do(t, http.MethodPost, base+"/expand", `{"predicates":["`+zoo+`hasOwner"]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &g)
	assert.Len(t, g.Graph.Nodes, 2)
	g.node(t, zoo+"alice")

	resp = do(t, http.MethodPost, base+"/collapse", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &g)
	assert.Len(t, g.Graph.Nodes, 1)
	assert.Empty(t, g.Graph.Links)
}

func TestExpandDepth(t *testing.T) {
	_, ts := newTestServer(t, nil)

	g := createGraph(t, ts, "explore", zoo+"alice")
	alice := g.node(t, zoo+"alice")
	base := ts.URL + "/api/v1/graphs/" + g.ID + "/nodes/" + alice.ID

	resp := do(t, http.MethodPost, base+"/collapse", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/expand?depth=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &g)
	assert.True(t, g.node(t, zoo+"Person").Open)

	resp = do(t, http.MethodPost, base+"/expand?depth=9", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToggle(t *testing.T) {
	_, ts := newTestServer(t, nil)

	g := createGraph(t, ts, "explore", zoo+"rex")
	url := ts.URL + "/api/v1/graphs/" + g.ID + "/nodes/" + g.node(t, zoo+"rex").ID + "/toggle"

	resp := do(t, http.MethodPost, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr struct {
		Expanded bool `json:"expanded"`
		Graph    struct {
			Nodes []testNode `json:"nodes"`
		} `json:"graph"`
	}
	decode(t, resp, &tr)
	assert.False(t, tr.Expanded)
	assert.Len(t, tr.Graph.Nodes, 1)

	resp = do(t, http.MethodPost, url, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &tr)
	assert.True(t, tr.Expanded)
	assert.Len(t, tr.Graph.Nodes, 4)
}

func TestStaticGraphRejectsExpansion(t *testing.T) {
	_, ts := newTestServer(t, nil)

	g := createGraph(t, ts, "model", zoo+"rex")
	require.NotEmpty(t, g.Graph.Nodes)
	url := ts.URL + "/api/v1/graphs/" + g.ID + "/nodes/" + g.Graph.Nodes[0].ID

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, url+"/expand", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPost, url+"/collapse", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodPost, ts.URL+"/api/v1/graphs/"+g.ID+"/nodes/nope/expand", "").StatusCode)
}

func TestPin(t *testing.T) {
	_, ts := newTestServer(t, nil)

	g := createGraph(t, ts, "data", zoo+"rex")
	dog := g.node(t, zoo+"Dog")
	url := ts.URL + "/api/v1/graphs/" + g.ID + "/nodes/" + dog.ID + "/pin"

	resp := do(t, http.MethodPut, url, `{"x":120,"y":-40}`)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, ts.URL+"/api/v1/graphs/"+g.ID, "")
	var after testGraph
	decode(t, resp, &after)
	pinned := after.node(t, zoo+"Dog")
	require.NotNil(t, pinned.Fx)
	assert.Equal(t, 120.0, *pinned.Fx)

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPut, url, `{"x":1}`).StatusCode)
	assert.Equal(t, http.StatusNotFound,
		do(t, http.MethodPut, ts.URL+"/api/v1/graphs/"+g.ID+"/nodes/nope/pin", `{"x":1,"y":2}`).StatusCode)

	resp = do(t, http.MethodDelete, url, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, http.MethodGet, ts.URL+"/api/v1/graphs/"+g.ID, "")
	var released testGraph
	decode(t, resp, &released)
	assert.Nil(t, released.node(t, zoo+"Dog").Fx)
}

func TestSetForces(t *testing.T) {
	_, ts := newTestServer(t, nil)
	g := createGraph(t, ts, "data", zoo+"rex")
	url := ts.URL + "/api/v1/graphs/" + g.ID + "/forces"

	resp := do(t, http.MethodPut, url, `{"link_distance":150}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f map[string]float64
	decode(t, resp, &f)
	assert.Equal(t, 150.0, f["link_distance"])
	assert.Equal(t, -50.0, f["charge_multiplier"])

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPut, url, `{"link_distance":0}`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodPut, url, `{"charge_multiplier":10}`).StatusCode)
}

func TestRender(t *testing.T) {
	_, ts := newTestServer(t, nil)
	g := createGraph(t, ts, "data", zoo+"rex")
	base := ts.URL + "/api/v1/graphs/" + g.ID

	resp := do(t, http.MethodGet, base+"/svg?width=640&height=480", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `viewBox="0 0 640 480"`)
	assert.Contains(t, string(body), ">Rex</text>")

	resp = do(t, http.MethodGet, base+"/render?format=dot", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "digraph G {"))

	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, base+"/render?format=png", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, http.MethodGet, base+"/svg?width=wide", "").StatusCode)
}

func TestExport(t *testing.T) {
	_, ts := newTestServer(t, nil)
	g := createGraph(t, ts, "data", zoo+"rex")

	resp := do(t, http.MethodGet, ts.URL+"/api/v1/graphs/"+g.ID+"/export", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out ExportResponse
	decode(t, resp, &out)
	require.True(t, strings.HasPrefix(out.DataURI, export.DataURIPrefix))
	doc, err := export.DecodeDataURI(out.DataURI)
	require.NoError(t, err)
	assert.NotContains(t, string(doc), "<style")
	assert.Contains(t, string(doc), `style="`)

	svg := `<svg width="10" height="10"><style>rect { fill: #123456; }</style><rect width="1" height="1"/></svg>`

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/v1/export", strings.NewReader(svg))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/svg+xml")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusOK, raw.StatusCode)
	decode(t, raw, &out)
	doc, err = export.DecodeDataURI(out.DataURI)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "fill: #123456")

	payload, err := json.Marshal(ExportRequest{SVG: svg})
	require.NoError(t, err)
	resp = do(t, http.MethodPost, ts.URL+"/api/v1/export", string(payload))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, ts.URL+"/api/v1/export", `{"svg":"<div>no</div>"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionLimit(t *testing.T) {
	_, ts := newTestServer(t, func(c *config.Config) { c.Server.MaxSessions = 1 })

	createGraph(t, ts, "data", zoo+"rex")
	body := `{"kind":"data","root":{"kind":"iri","value":"` + zoo + `alice"}}`
	resp := do(t, http.MethodPost, ts.URL+"/api/v1/graphs", body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestApplyConfig(t *testing.T) {
	srv, ts := newTestServer(t, nil)
	g := createGraph(t, ts, "data", zoo+"rex")
	url := ts.URL + "/api/v1/graphs/" + g.ID + "/nodes/" + g.node(t, zoo+"rex").ID

	cfg := config.Default()
	cfg.Graph.Threshold = 1
	srv.ApplyConfig(cfg)

	require.Equal(t, http.StatusOK, do(t, http.MethodPost, url+"/collapse", "").StatusCode)
	assert.Equal(t, http.StatusConflict, do(t, http.MethodPost, url+"/expand", "").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil, WithMetrics(metrics.NewCollector()))
	createGraph(t, ts, "data", zoo+"rex")

	resp := do(t, http.MethodGet, ts.URL+"/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ontograph_graphs_active 1")
	assert.Contains(t, string(body), `ontograph_http_requests_total{method="POST"`)
	assert.Contains(t, string(body), `ontograph_expansions_total{kind="data",result="ok"} 1`)
}

func TestEvents(t *testing.T) {
	_, ts := newTestServer(t, nil)
	g := createGraph(t, ts, "data", zoo+"rex")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/graphs/"+g.ID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	next := func() (string, string) {
		var event, data string
		for sc.Scan() {
			line := sc.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && event != "":
				return event, data
			}
		}
		return "", ""
	}

	event, data := next()
	require.Equal(t, "snapshot", event)
	var snap struct {
		Nodes []json.RawMessage `json:"nodes"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &snap))
	assert.Len(t, snap.Nodes, 4)

	pin := do(t, http.MethodPut, ts.URL+"/api/v1/graphs/"+g.ID+"/nodes/"+g.node(t, zoo+"Dog").ID+"/pin", `{"x":1,"y":2}`)
	require.Equal(t, http.StatusNoContent, pin.StatusCode)

	found := false
	for !found {
		event, _ = next()
		require.NotEmpty(t, event, "stream ended before the structural change")
		found = event == "structure"
	}

	// closing the graph ends the stream
	del := do(t, http.MethodDelete, ts.URL+"/api/v1/graphs/"+g.ID, "")
	require.Equal(t, http.StatusNoContent, del.StatusCode)
	for event != "" {
		event, _ = next()
	}
	assert.NoError(t, ctx.Err())
}
