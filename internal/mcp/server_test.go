package mcp

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/protomech/internal/dataset"
	"github.com/nvandessel/protomech/internal/explorer"
	"github.com/nvandessel/protomech/internal/models"
	"github.com/nvandessel/protomech/internal/store"
)

// testDataset is a four-residue sequence with two layers. Feature (0, 2)
// peaks at position 1 and feeds feature (1, 5) with an average weight of
// 0.6.
func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		Dir:      "fixture",
		Sequence: "MKVL",
		Activations: []models.ActivationSample{
			{Layer: 0, Position: 0, Value: 0.5, Latent: 2},
			{Layer: 0, Position: 1, Value: 1.5, Latent: 2},
			{Layer: 0, Position: 1, Value: 0.2, Latent: 3},
			{Layer: 1, Position: 2, Value: 0.7, Latent: 5},
		},
		Influences: []models.InfluenceSample{
			{SrcPosition: 1, SrcLayer: 0, SrcLatent: 2, TgtPosition: 2, TgtLayer: 1, TgtLatent: 5, Weight: 0.8},
			{SrcPosition: 0, SrcLayer: 0, SrcLatent: 2, TgtPosition: 2, TgtLayer: 1, TgtLatent: 5, Weight: 0.4},
		},
		Top: &dataset.TopActivations{Layers: map[string]map[string][]dataset.TopRecord{
			"0": {"2": {
				{Sequence: "AAKVL", Activations: []float64{0, 0, 0, 2.0, 0}, Score: 2.0, Entry: "P1", EntryName: "ABC_HUMAN", ProteinNames: "Alpha"},
			}},
		}},
	}
}

// setupTestServer returns a server over a fresh session with an in-memory
// snapshot store. Audit entries and exports land under the returned dir.
func setupTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	tmpDir := t.TempDir()

	session, err := explorer.New(testDataset(), explorer.Options{Store: store.NewInMemoryStore()})
	if err != nil {
		t.Fatalf("explorer.New() error = %v", err)
	}

	server, err := NewServer(&Config{
		Name:       "test-server",
		Version:    "v1.0.0",
		Session:    session,
		StateDir:   filepath.Join(tmpDir, "state"),
		ExportDirs: []string{filepath.Join(tmpDir, "exports")},
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server, tmpDir
}

func TestNewServer(t *testing.T) {
	server, tmpDir := setupTestServer(t)

	if server.server == nil {
		t.Error("Server.server is nil")
	}
	if server.session == nil {
		t.Error("Server.session is nil")
	}
	if got, want := server.audit.Path(), filepath.Join(tmpDir, "state", AuditFile); got != want {
		t.Errorf("audit path = %q, want %q", got, want)
	}
}

func TestNewServer_RequiresSession(t *testing.T) {
	if _, err := NewServer(&Config{Name: "x"}); err == nil {
		t.Error("NewServer without a session should fail")
	}
	if _, err := NewServer(nil); err == nil {
		t.Error("NewServer(nil) should fail")
	}
}

func TestNewServer_DefaultExportDirs(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	session, err := explorer.New(testDataset(), explorer.Options{})
	if err != nil {
		t.Fatal(err)
	}
	server, err := NewServer(&Config{Name: "x", Session: session})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	defer server.Close()

	if len(server.exportDirs) != 2 || server.exportDirs[1] != filepath.Join("fixture", "exports") {
		t.Errorf("exportDirs = %v", server.exportDirs)
	}
	if server.audit != nil {
		t.Error("audit log should be disabled without a state dir")
	}
}

func TestNewServer_HasRateLimiters(t *testing.T) {
	server, _ := setupTestServer(t)

	for _, tool := range []string{
		"protomech_influences", "protomech_align", "protomech_rank_layer",
		"protomech_add_feature", "protomech_remove_nodes", "protomech_circuit",
		"protomech_save", "protomech_restore", "protomech_export",
	} {
		if _, ok := server.toolLimiters[tool]; !ok {
			t.Errorf("missing rate limiter for %s", tool)
		}
	}
}

func TestClose(t *testing.T) {
	server, _ := setupTestServer(t)
	if err := server.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	// Second close is a no-op.
	if err := server.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

// connect wires a client to the server over in-memory transports.
func connect(t *testing.T, server *Server) *sdk.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := sdk.NewInMemoryTransports()

	ss, err := server.server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func TestServer_ListsTools(t *testing.T) {
	server, _ := setupTestServer(t)
	cs := connect(t, server)

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)

	want := []string{
		"protomech_add_feature", "protomech_align", "protomech_circuit",
		"protomech_export", "protomech_influences", "protomech_rank_layer",
		"protomech_remove_nodes", "protomech_restore", "protomech_save",
	}
	if len(names) != len(want) {
		t.Fatalf("tools = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("tools[%d] = %s, want %s", i, names[i], want[i])
		}
	}
}

func TestServer_CallToolOverTransport(t *testing.T) {
	server, _ := setupTestServer(t)
	cs := connect(t, server)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "protomech_add_feature",
		Arguments: map[string]any{"layer": 0, "latent": 2},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError {
		t.Fatalf("add_feature returned a tool error: %+v", res.Content)
	}
	if n := len(server.session.Circuit().Nodes); n != 1 {
		t.Errorf("circuit has %d nodes after add_feature, want 1", n)
	}

	res, err = cs.CallTool(ctx, &sdk.CallToolParams{
		Name:      "protomech_influences",
		Arguments: map[string]any{"layer": 0, "latent": 2, "direction": "sideways"},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError {
		t.Error("an invalid direction should come back as a tool error")
	}
}
