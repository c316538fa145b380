package visualization

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/explorer"
	"github.com/nvandessel/protomech/internal/logging"
)

// DefaultAddr lets the OS pick a free port on the loopback interface.
const DefaultAddr = "localhost:0"

// Server serves the explorer API and the rendered circuit page.
type Server struct {
	session    *explorer.Session
	addrWanted string
	logger     *slog.Logger
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a server for session listening on addr (DefaultAddr
// when empty).
func NewServer(session *explorer.Session, addr string, logger *slog.Logger) *Server {
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		session:    session,
		addrWanted: addr,
		logger:     logging.OrDefault(logger),
	}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /api/dataset", s.handleDataset)
	mux.HandleFunc("GET /api/features/{layer}/{latent}", s.handleFeature)
	mux.HandleFunc("GET /api/features/{layer}/{latent}/influences", s.handleInfluences)
	mux.HandleFunc("GET /api/features/{layer}/{latent}/alignment", s.handleAlignment)
	mux.HandleFunc("GET /api/layers/{layer}/ranking", s.handleRanking)
	mux.HandleFunc("GET /api/weights", s.handleWeights)
	mux.HandleFunc("GET /api/circuit", s.handleCircuit)
	mux.HandleFunc("POST /api/circuit/nodes", s.requireJSON(s.handleAddNode))
	mux.HandleFunc("POST /api/circuit/edges", s.requireJSON(s.handleAddEdge))
	mux.HandleFunc("DELETE /api/circuit/nodes/{id}", s.handleRemoveNode)
	mux.HandleFunc("DELETE /api/circuit/edges/{id}", s.handleRemoveEdge)
	mux.HandleFunc("POST /api/circuit/select", s.requireJSON(s.handleSelect))
	return mux
}

// requireJSON rejects bodies not sent as application/json. Browsers send
// text/plain and form posts cross-origin without a preflight.
func (s *Server) requireJSON(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mt != "application/json" {
			s.writeError(w, http.StatusUnsupportedMediaType, errors.New("Content-Type must be application/json"))
			return
		}
		next(w, r)
	}
}

// ListenAndServe starts the HTTP server and blocks until the context is
// cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addrWanted)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	// Graceful shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Debug("http server listening", "addr", s.addr)
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("encoding response: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// pathInts parses non-negative integer path values.
func pathInts(r *http.Request, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(r.PathValue(name))
		if err != nil || v < 0 {
			return nil, fmt.Errorf("invalid %s %q", name, r.PathValue(name))
		}
		out[i] = v
	}
	return out, nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	c := s.session.Circuit()
	report := s.session.Analyze()
	html, err := RenderHTML("protomech: "+s.session.Dir(), c.Nodes, c.Edges, &report)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.session.Info())
}

func (s *Server) handleFeature(w http.ResponseWriter, r *http.Request) {
	ids, err := pathInts(r, "layer", "latent")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.Feature(ids[0], ids[1]))
}

func (s *Server) handleInfluences(w http.ResponseWriter, r *http.Request) {
	ids, err := pathInts(r, "layer", "latent")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	dir := constants.Direction(r.URL.Query().Get("direction"))
	if dir == "" {
		dir = constants.DirectionIncoming
	}
	edges, err := s.session.Influences(ids[0], ids[1], dir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"layer":     ids[0],
		"latent":    ids[1],
		"direction": dir,
		"edges":     edges,
	})
}

func (s *Server) handleAlignment(w http.ResponseWriter, r *http.Request) {
	ids, err := pathInts(r, "layer", "latent")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res := s.session.Alignment(ids[0], ids[1])
	rows := make([]map[string]any, len(res.Rows))
	for i, row := range res.Rows {
		rows[i] = map[string]any{
			"row":     row,
			"aligned": row.Padded(constants.GapChar),
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_length": res.TotalLength,
		"center":       res.Center,
		"rows":         rows,
	})
}

func (s *Server) handleRanking(w http.ResponseWriter, r *http.Request) {
	ids, err := pathInts(r, "layer")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.session.RankLayer(ids[0], limit))
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	percent := 0.0
	if v := r.URL.Query().Get("percent"); v != "" {
		p, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid percent %q", v))
			return
		}
		percent = p
	}
	s.writeJSON(w, http.StatusOK, s.session.Weights(percent))
}

func (s *Server) handleCircuit(w http.ResponseWriter, r *http.Request) {
	format, err := ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	c := s.session.Circuit()
	switch format {
	case FormatDOT:
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		w.Write([]byte(RenderDOT(c.Nodes, c.Edges)))
	case FormatSVG:
		var buf bytes.Buffer
		if err := RenderSVG(&buf, c.Nodes, c.Edges); err != nil {
			s.writeError(w, http.StatusConflict, err)
			return
		}
		w.Header().Set("Content-Type", "image/svg+xml")
		w.Write(buf.Bytes())
	case FormatHTML:
		s.handleIndex(w, r)
	default:
		report := s.session.Analyze()
		out := RenderJSON(c.Nodes, c.Edges, &report)
		out["state"] = c.State
		out["selection"] = c.Selection
		s.writeJSON(w, http.StatusOK, out)
	}
}

type addNodeRequest struct {
	Layer    int  `json:"layer"`
	Latent   int  `json:"latent"`
	Position *int `json:"position,omitempty"`
	// Children makes a composite node.
	Children []circuit.FeatureRef `json:"children,omitempty"`
	Name     string               `json:"name,omitempty"`
}

func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	var req addNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	var (
		node    circuit.Node
		created = true
	)
	if len(req.Children) > 0 {
		node = s.session.AddComposite(req.Children)
	} else {
		if req.Layer < 0 || req.Latent < 0 {
			s.writeError(w, http.StatusBadRequest, errors.New("layer and latent must be non-negative"))
			return
		}
		pos := -1
		if req.Position != nil {
			pos = *req.Position
		}
		node, created = s.session.AddNamedFeature(req.Layer, req.Latent, pos, req.Name)
	}
	if len(req.Children) > 0 && req.Name != "" && s.session.Rename(node.ID, req.Name) {
		node, _ = nodeByID(s.session.Circuit(), node.ID)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, map[string]any{"node": node, "created": created})
}

func nodeByID(c explorer.Circuit, id int) (circuit.Node, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return circuit.Node{}, false
}

type addEdgeRequest struct {
	From   int      `json:"from"`
	To     int      `json:"to"`
	Weight *float64 `json:"weight,omitempty"`
}

func (s *Server) handleAddEdge(w http.ResponseWriter, r *http.Request) {
	var req addEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	edge, created, ok := s.session.Link(req.From, req.To, req.Weight)
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("cannot link %d to %d", req.From, req.To))
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	s.writeJSON(w, status, map[string]any{"edge": edge, "created": created})
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	ids, err := pathInts(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.session.RemoveNodes(ids) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("node %d not found", ids[0]))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveEdge(w http.ResponseWriter, r *http.Request) {
	ids, err := pathInts(r, "id")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if s.session.RemoveEdges(ids) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("edge %d not found", ids[0]))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type selectRequest struct {
	Kind     circuit.Kind `json:"kind"`
	ID       int          `json:"id"`
	Additive bool         `json:"additive"`
	// Clear empties the selection and ignores the other fields.
	Clear bool `json:"clear"`
	// Delete removes the selection after applying the click.
	Delete bool `json:"delete"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}

	if req.Clear {
		s.session.ClearSelection()
		s.writeJSON(w, http.StatusOK, map[string]any{"selection": s.session.Circuit().Selection})
		return
	}
	if req.Kind != circuit.KindNode && req.Kind != circuit.KindEdge {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid kind %q (want node or edge)", req.Kind))
		return
	}

	sel, ok := s.session.Select(req.Kind, req.ID, req.Additive)
	deleted := false
	if req.Delete {
		deleted = s.session.DeleteSelection()
		sel = s.session.Circuit().Selection
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"selection": sel, "found": ok, "deleted": deleted})
}
