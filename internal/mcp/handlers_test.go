package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/protomech/internal/ratelimit"
	"github.com/nvandessel/protomech/internal/store"
)

func intPtr(i int) *int { return &i }

func TestHandleInfluences(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      InfluencesInput
		wantErr   bool
		wantCount int
		wantDir   string
	}{
		{"default direction", InfluencesInput{Layer: 1, Latent: 5}, false, 1, "incoming"},
		{"outgoing", InfluencesInput{Layer: 0, Latent: 2, Direction: "outgoing"}, false, 1, "outgoing"},
		{"nothing earlier", InfluencesInput{Layer: 0, Latent: 2}, false, 0, "incoming"},
		{"bad direction", InfluencesInput{Layer: 0, Latent: 2, Direction: "up"}, true, 0, ""},
		{"negative layer", InfluencesInput{Layer: -1, Latent: 2}, true, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := server.handleInfluences(ctx, nil, tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if out.Count != tt.wantCount || len(out.Edges) != tt.wantCount {
				t.Errorf("count = %d (%d edges), want %d", out.Count, len(out.Edges), tt.wantCount)
			}
			if out.Direction != tt.wantDir {
				t.Errorf("direction = %q, want %q", out.Direction, tt.wantDir)
			}
			if out.Edges == nil {
				t.Error("edges should never be nil")
			}
		})
	}
}

func TestHandleInfluences_Weights(t *testing.T) {
	server, _ := setupTestServer(t)
	_, out, err := server.handleInfluences(context.Background(), nil, InfluencesInput{Layer: 1, Latent: 5})
	if err != nil {
		t.Fatal(err)
	}
	e := out.Edges[0]
	if e.Feature.Layer != 0 || e.Feature.Latent != 2 || e.Count != 2 {
		t.Errorf("edge = %+v, want (0, 2) over 2 samples", e)
	}
	if diff := e.AvgWeight - 0.6; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("avg weight = %v, want 0.6", e.AvgWeight)
	}
}

func TestHandleAlign(t *testing.T) {
	server, _ := setupTestServer(t)

	_, out, err := server.handleAlign(context.Background(), nil, AlignInput{Layer: 0, Latent: 2})
	if err != nil {
		t.Fatalf("handleAlign: %v", err)
	}
	if out.Count != 2 || len(out.Rows) != 2 {
		t.Fatalf("rows = %+v, want wild type and one record", out.Rows)
	}
	if out.Center != 3 || out.TotalLength != 6 {
		t.Errorf("center/length = %d/%d, want 3/6", out.Center, out.TotalLength)
	}
	wt := out.Rows[0]
	if !wt.Reference || wt.Aligned != "--MKVL" {
		t.Errorf("wild type row = %+v", wt)
	}
	if top := out.Rows[1]; top.Aligned != "AAKVL-" || top.Rank != 1 {
		t.Errorf("top row = %+v", top)
	}
	for _, row := range out.Rows {
		if len(row.Aligned) != out.TotalLength {
			t.Errorf("row %q has width %d, want %d", row.Name, len(row.Aligned), out.TotalLength)
		}
	}
}

func TestHandleRankLayer(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleRankLayer(ctx, nil, RankLayerInput{Layer: 0})
	if err != nil {
		t.Fatal(err)
	}
	if out.Count != 2 || out.Latents[0].Latent != 2 || out.Latents[0].Max != 1.5 {
		t.Errorf("ranking = %+v", out.Latents)
	}

	_, out, err = server.handleRankLayer(ctx, nil, RankLayerInput{Layer: 0, Limit: 1})
	if err != nil || out.Count != 1 {
		t.Errorf("limited ranking = %+v, %v", out, err)
	}

	_, out, err = server.handleRankLayer(ctx, nil, RankLayerInput{Layer: 9})
	if err != nil || out.Latents == nil || out.Count != 0 {
		t.Errorf("unknown layer = %+v, %v", out, err)
	}

	if _, _, err := server.handleRankLayer(ctx, nil, RankLayerInput{Layer: -1}); err == nil {
		t.Error("negative layer should fail")
	}
}

func TestHandleAddFeature(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleAddFeature(ctx, nil, AddFeatureInput{Layer: 0, Latent: 2})
	if err != nil {
		t.Fatalf("handleAddFeature: %v", err)
	}
	if !out.Created || out.Node.Position != 1 || out.Node.Residue != "K" {
		t.Errorf("first add = %+v, want a node at the peak (1, K)", out)
	}

	_, out, err = server.handleAddFeature(ctx, nil, AddFeatureInput{Layer: 1, Latent: 5, Position: intPtr(2), Name: "sink"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Node.Name != "sink" || out.NodeCount != 2 || out.EdgeCount != 1 {
		t.Errorf("second add = %+v, want a named node auto-linked to the first", out)
	}

	_, out, err = server.handleAddFeature(ctx, nil, AddFeatureInput{Layer: 0, Latent: 2, Position: intPtr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if out.Created || !strings.Contains(out.Message, "already") {
		t.Errorf("duplicate add = %+v", out)
	}

	_, out, err = server.handleAddFeature(ctx, nil, AddFeatureInput{Layer: 1, Latent: 5, Name: "renamed"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Created || out.Node.Name != "sink" {
		t.Errorf("duplicate add with a name = %+v, want the existing node unchanged", out.Node)
	}

	long := "  " + strings.Repeat("x", 120)
	_, out, err = server.handleAddFeature(ctx, nil, AddFeatureInput{Layer: 0, Latent: 3, Name: long})
	if err != nil {
		t.Fatal(err)
	}
	if out.Node.Name != strings.Repeat("x", 80) {
		t.Errorf("reported name = %q, want the stored (trimmed, truncated) name", out.Node.Name)
	}

	if _, _, err := server.handleAddFeature(ctx, nil, AddFeatureInput{Layer: 0, Latent: 2, Position: intPtr(-3)}); err == nil {
		t.Error("negative position should fail")
	}
}

func TestHandleRemoveNodes(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()
	a, _ := server.session.AddFeature(0, 2, -1)
	server.session.AddFeature(1, 5, -1)

	_, out, err := server.handleRemoveNodes(ctx, nil, RemoveNodesInput{IDs: []int{a.ID, 99}})
	if err != nil {
		t.Fatal(err)
	}
	if out.Removed != 1 || out.NodeCount != 1 || out.EdgeCount != 0 {
		t.Errorf("remove = %+v, want one node removed with its edge", out)
	}

	if _, _, err := server.handleRemoveNodes(ctx, nil, RemoveNodesInput{}); err == nil {
		t.Error("empty ids should fail")
	}
}

func TestHandleCircuit(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()
	server.session.AddFeature(0, 2, -1)
	server.session.AddFeature(1, 5, -1)

	tests := []struct {
		format string
		check  func(t *testing.T, out CircuitOutput)
	}{
		{"", func(t *testing.T, out CircuitOutput) {
			graph, ok := out.Graph.(map[string]interface{})
			if !ok || graph["node_count"] != 2 {
				t.Errorf("json graph = %#v", out.Graph)
			}
		}},
		{"dot", func(t *testing.T, out CircuitOutput) {
			if s, _ := out.Graph.(string); !strings.Contains(s, "n1 -- n0") {
				t.Errorf("dot graph = %v", out.Graph)
			}
		}},
		{"svg", func(t *testing.T, out CircuitOutput) {
			if s, _ := out.Graph.(string); !strings.Contains(s, "<svg") {
				t.Errorf("svg graph = %v", out.Graph)
			}
		}},
		{"html", func(t *testing.T, out CircuitOutput) {
			if s, _ := out.Graph.(string); !strings.Contains(s, "protomech: fixture") {
				t.Errorf("html graph missing title")
			}
		}},
	}

	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			_, out, err := server.handleCircuit(ctx, nil, CircuitInput{Format: tt.format})
			if err != nil {
				t.Fatalf("handleCircuit: %v", err)
			}
			if out.NodeCount != 2 || out.EdgeCount != 1 || out.State != "populated" {
				t.Errorf("counts = %d/%d state %s", out.NodeCount, out.EdgeCount, out.State)
			}
			tt.check(t, out)
		})
	}

	if _, _, err := server.handleCircuit(ctx, nil, CircuitInput{Format: "png"}); err == nil {
		t.Error("unknown format should fail")
	}
}

func TestHandleCircuit_EmptySVG(t *testing.T) {
	server, _ := setupTestServer(t)
	if _, _, err := server.handleCircuit(context.Background(), nil, CircuitInput{Format: "svg"}); err == nil {
		t.Error("svg of an empty circuit should fail")
	}
}

func TestHandleSaveRestore(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()
	server.session.AddFeature(0, 2, -1)
	server.session.AddFeature(1, 5, -1)

	_, saved, err := server.handleSave(ctx, nil, SaveInput{Name: "two-nodes"})
	if err != nil {
		t.Fatalf("handleSave: %v", err)
	}
	if saved.NodeCount != 2 || saved.EdgeCount != 1 {
		t.Errorf("save = %+v", saved)
	}

	server.session.ClearCircuit()

	_, restored, err := server.handleRestore(ctx, nil, RestoreInput{Name: "two-nodes"})
	if err != nil {
		t.Fatalf("handleRestore: %v", err)
	}
	if restored.NodeCount != 2 || restored.EdgeCount != 1 {
		t.Errorf("restore = %+v", restored)
	}

	if _, _, err := server.handleRestore(ctx, nil, RestoreInput{Name: "missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("restore missing error = %v, want ErrNotFound", err)
	}
	if _, _, err := server.handleSave(ctx, nil, SaveInput{Name: "../escape"}); err == nil {
		t.Error("invalid name should fail")
	}
}

func TestHandleExport(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	ctx := context.Background()
	server.session.AddFeature(0, 2, -1)

	t.Run("default path", func(t *testing.T) {
		_, out, err := server.handleExport(ctx, nil, ExportInput{Format: "dot"})
		if err != nil {
			t.Fatalf("handleExport: %v", err)
		}
		if filepath.Dir(out.Path) != filepath.Join(tmpDir, "exports") || !strings.HasPrefix(filepath.Base(out.Path), "fixture-") || filepath.Ext(out.Path) != ".dot" {
			t.Errorf("path = %s", out.Path)
		}
		data, err := os.ReadFile(out.Path)
		if err != nil {
			t.Fatal(err)
		}
		if len(data) != out.SizeBytes || !strings.Contains(string(data), "graph circuit") {
			t.Errorf("export content = %s", data)
		}
	})

	t.Run("explicit path", func(t *testing.T) {
		path := filepath.Join(tmpDir, "exports", "mine.svg")
		_, out, err := server.handleExport(ctx, nil, ExportInput{Format: "svg", OutputPath: path})
		if err != nil {
			t.Fatalf("handleExport: %v", err)
		}
		if out.Path != path || out.Format != "svg" {
			t.Errorf("out = %+v", out)
		}
		if strings.Contains(out.Message, tmpDir) {
			t.Errorf("message leaks the full path: %s", out.Message)
		}
	})

	t.Run("outside export dirs", func(t *testing.T) {
		server.toolLimiters = ratelimit.NewToolLimiters()
		_, _, err := server.handleExport(ctx, nil, ExportInput{OutputPath: filepath.Join(tmpDir, "elsewhere.json")})
		if err == nil || !strings.Contains(err.Error(), "rejected") {
			t.Errorf("error = %v, want path rejection", err)
		}
	})
}

func TestHandleExport_RateLimited(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()
	server.session.AddFeature(0, 2, -1)

	var lastErr error
	for i := 0; i < 5; i++ {
		_, _, lastErr = server.handleExport(ctx, nil, ExportInput{Format: "json"})
	}
	if lastErr == nil || !strings.Contains(lastErr.Error(), "rate limit") {
		t.Errorf("error after burst = %v, want rate limit", lastErr)
	}
}

func TestToolCallsAreAudited(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	server.handleInfluences(ctx, nil, InfluencesInput{Layer: 0, Latent: 2, Direction: "up"})
	server.handleSave(ctx, nil, SaveInput{Name: "private-name"})

	entries := readAuditEntries(t, server.audit.Path())
	if len(entries) != 2 {
		t.Fatalf("got %d audit entries, want 2", len(entries))
	}
	if entries[0].Tool != "protomech_influences" || entries[0].Status != "error" || entries[0].Params["direction"] != "up" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Status != "success" || entries[1].Params["name"] != "(set)" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestHandleCircuitResource(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	result, err := server.handleCircuitResource(ctx, &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Contents[0].Text, "empty") {
		t.Errorf("empty circuit text = %s", result.Contents[0].Text)
	}

	node, _ := server.session.AddFeature(0, 2, -1)
	server.session.Rename(node.ID, "entry")
	server.session.AddFeature(1, 5, -1)

	result, err = server.handleCircuitResource(ctx, &sdk.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	text := result.Contents[0].Text
	for _, want := range []string{"2 nodes, 1 edges, 1 components", "L1/3 (entry)", "+0.600"} {
		if !strings.Contains(text, want) {
			t.Errorf("resource text missing %q:\n%s", want, text)
		}
	}
}

func TestHandleFeatureResource(t *testing.T) {
	server, _ := setupTestServer(t)
	ctx := context.Background()

	req := &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: "protomech://features/0/2"}}
	result, err := server.handleFeatureResource(ctx, req)
	if err != nil {
		t.Fatalf("handleFeatureResource: %v", err)
	}
	text := result.Contents[0].Text
	for _, want := range []string{"# Feature L1/3", "position 1 (K)", "## Outgoing", "L2/6: +0.600 (2 samples)"} {
		if !strings.Contains(text, want) {
			t.Errorf("resource text missing %q:\n%s", want, text)
		}
	}

	for _, uri := range []string{"protomech://features/x/2", "protomech://features/0", "other://features/0/2", "protomech://features/0/-1"} {
		req := &sdk.ReadResourceRequest{Params: &sdk.ReadResourceParams{URI: uri}}
		if _, err := server.handleFeatureResource(ctx, req); err == nil {
			t.Errorf("URI %q should be rejected", uri)
		}
	}
}
