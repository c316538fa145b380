package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/protomech/internal/activation"
	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/influence"
	"github.com/nvandessel/protomech/internal/models"
	"github.com/nvandessel/protomech/internal/pathutil"
	"github.com/nvandessel/protomech/internal/ratelimit"
	"github.com/nvandessel/protomech/internal/sanitize"
	"github.com/nvandessel/protomech/internal/store"
	"github.com/nvandessel/protomech/internal/visualization"
)

// Resource URIs.
const (
	circuitResourceURI    = "protomech://circuit"
	featureResourcePrefix = "protomech://features/"
)

// registerTools registers all protomech MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_influences",
		Description: "List the features connected to a feature by aggregated virtual weights, in earlier layers (incoming) or later layers (outgoing), strongest first",
	}, s.handleInfluences)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_align",
		Description: "Align the wild type and a feature's top activating sequences on their activation peaks",
	}, s.handleAlign)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_rank_layer",
		Description: "Rank the latents of a layer by their peak activation over the sequence",
	}, s.handleRankLayer)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_add_feature",
		Description: "Add a feature to the circuit; edges to features already in it are derived from the virtual weights",
	}, s.handleAddFeature)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_remove_nodes",
		Description: "Remove nodes from the circuit together with their edges",
	}, s.handleRemoveNodes)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_circuit",
		Description: "Render the current circuit as JSON (with PageRank), DOT (Graphviz), SVG or a self-contained HTML page",
	}, s.handleCircuit)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_save",
		Description: "Save the current circuit under a name",
	}, s.handleSave)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_restore",
		Description: "Replace the current circuit with a saved one",
	}, s.handleRestore)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "protomech_export",
		Description: "Write the rendered circuit to a file in an exports directory",
	}, s.handleExport)
}

// registerResources registers MCP resources for auto-loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         circuitResourceURI,
		Name:        "protomech-circuit",
		Description: "The circuit under construction: its features, edges and most central nodes.",
		MIMEType:    "text/markdown",
	}, s.handleCircuitResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: featureResourcePrefix + "{layer}/{latent}",
		Name:        "protomech-feature",
		Description: "Activation profile and strongest influences of one feature.",
		MIMEType:    "text/markdown",
	}, s.handleFeatureResource)
}

// handleCircuitResource summarizes the circuit as markdown.
func (s *Server) handleCircuitResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	c := s.session.Circuit()
	report := s.session.Analyze()

	var sb strings.Builder
	sb.WriteString("# Circuit\n\n")
	if len(c.Nodes) == 0 {
		sb.WriteString("The circuit is empty. Add features with protomech_add_feature.\n")
	} else {
		sb.WriteString(fmt.Sprintf("%d nodes, %d edges, %d components\n\n", len(c.Nodes), len(c.Edges), len(report.Components)))
		sb.WriteString("## Nodes by centrality\n\n")
		labels := make(map[int]string, len(c.Nodes))
		for _, n := range c.Nodes {
			label := visualization.NodeLabel(n)
			if sub := sanitize.Text(visualization.NodeSubtitle(n)); sub != "" {
				label += " (" + sub + ")"
			}
			labels[n.ID] = label
		}
		for _, sc := range report.Scores {
			sb.WriteString(fmt.Sprintf("- #%d %s: pagerank %.3f, degree %d\n", sc.ID, labels[sc.ID], sc.PageRank, sc.Degree))
		}
		sb.WriteString("\n## Edges\n\n")
		for _, e := range c.Edges {
			weight := "user"
			if e.Weight != nil {
				weight = fmt.Sprintf("%+.3f", *e.Weight)
			}
			sb.WriteString(fmt.Sprintf("- #%d -> #%d: %s\n", e.From, e.To, weight))
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      circuitResourceURI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleFeatureResource describes one feature.
// URI format: protomech://features/{layer}/{latent}
func (s *Server) handleFeatureResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	layer, latent, err := parseFeatureURI(uri)
	if err != nil {
		return nil, err
	}

	f := s.session.Feature(layer, latent)
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Feature L%d/%d\n\n", layer+1, latent+1))
	if f.Active == 0 {
		sb.WriteString("Not active anywhere in the sequence.\n")
	} else {
		sb.WriteString(fmt.Sprintf("**Peak:** position %d", f.Peak))
		if f.PeakAA != "" {
			sb.WriteString(" (" + f.PeakAA + ")")
		}
		sb.WriteString(fmt.Sprintf(", value %.3f\n", f.MaxValue))
		sb.WriteString(fmt.Sprintf("**Active positions:** %d\n", f.Active))
	}

	for _, dir := range []constants.Direction{constants.DirectionIncoming, constants.DirectionOutgoing} {
		edges, err := s.session.Influences(layer, latent, dir)
		if err != nil {
			return nil, err
		}
		if len(edges) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("\n## %s\n\n", strings.ToUpper(dir.String()[:1])+dir.String()[1:]))
		if len(edges) > 5 {
			edges = edges[:5]
		}
		for _, e := range edges {
			sb.WriteString(fmt.Sprintf("- L%d/%d: %+.3f (%d samples)\n", e.Feature.Layer+1, e.Feature.Latent+1, e.AvgWeight, e.Count))
		}
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

func parseFeatureURI(uri string) (layer, latent int, err error) {
	if !strings.HasPrefix(uri, featureResourcePrefix) {
		return 0, 0, fmt.Errorf("invalid URI format: %s", uri)
	}
	parts := strings.Split(strings.TrimPrefix(uri, featureResourcePrefix), "/")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid URI format: %s", uri)
	}
	if layer, err = strconv.Atoi(parts[0]); err != nil || layer < 0 {
		return 0, 0, fmt.Errorf("invalid layer in %s", uri)
	}
	if latent, err = strconv.Atoi(parts[1]); err != nil || latent < 0 {
		return 0, 0, fmt.Errorf("invalid latent in %s", uri)
	}
	return layer, latent, nil
}

func validateFeature(layer, latent int) error {
	if layer < 0 {
		return fmt.Errorf("'layer' must be non-negative, got %d", layer)
	}
	if latent < 0 {
		return fmt.Errorf("'latent' must be non-negative, got %d", latent)
	}
	return nil
}

// handleInfluences implements the protomech_influences tool.
func (s *Server) handleInfluences(ctx context.Context, req *sdk.CallToolRequest, args InfluencesInput) (_ *sdk.CallToolResult, _ InfluencesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_influences", start, retErr, auditParams{
			"layer": args.Layer, "latent": args.Latent, "direction": args.Direction, "limit": args.Limit,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_influences"); err != nil {
		return nil, InfluencesOutput{}, err
	}
	if err := validateFeature(args.Layer, args.Latent); err != nil {
		return nil, InfluencesOutput{}, err
	}

	dir := constants.Direction(args.Direction)
	if dir == "" {
		dir = constants.DirectionIncoming
	}
	edges, err := s.session.Influences(args.Layer, args.Latent, dir)
	if err != nil {
		return nil, InfluencesOutput{}, err
	}

	if edges == nil {
		edges = []influence.Edge{}
	}
	total := len(edges)
	if args.Limit > 0 && len(edges) > args.Limit {
		edges = edges[:args.Limit]
	}

	return nil, InfluencesOutput{
		Feature:   models.FeatureKey{Layer: args.Layer, Latent: args.Latent},
		Direction: dir.String(),
		Edges:     edges,
		Count:     len(edges),
		Total:     total,
	}, nil
}

// handleAlign implements the protomech_align tool.
func (s *Server) handleAlign(ctx context.Context, req *sdk.CallToolRequest, args AlignInput) (_ *sdk.CallToolResult, _ AlignOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_align", start, retErr, auditParams{
			"layer": args.Layer, "latent": args.Latent,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_align"); err != nil {
		return nil, AlignOutput{}, err
	}
	if err := validateFeature(args.Layer, args.Latent); err != nil {
		return nil, AlignOutput{}, err
	}

	res := s.session.Alignment(args.Layer, args.Latent)
	rows := make([]AlignedRow, 0, len(res.Rows))
	for _, row := range res.Rows {
		rows = append(rows, AlignedRow{
			Name:        sanitize.Text(row.Name),
			Entry:       sanitize.Text(row.Entry),
			ProteinName: sanitize.Text(row.ProteinName),
			Aligned:     row.Padded(constants.GapChar),
			Peak:        row.Peak,
			Score:       row.Score,
			Rank:        row.Rank,
			Reference:   row.Reference,
		})
	}

	return nil, AlignOutput{
		Center:      res.Center,
		TotalLength: res.TotalLength,
		Rows:        rows,
		Count:       len(rows),
	}, nil
}

// handleRankLayer implements the protomech_rank_layer tool.
func (s *Server) handleRankLayer(ctx context.Context, req *sdk.CallToolRequest, args RankLayerInput) (_ *sdk.CallToolResult, _ RankLayerOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_rank_layer", start, retErr, auditParams{
			"layer": args.Layer, "limit": args.Limit,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_rank_layer"); err != nil {
		return nil, RankLayerOutput{}, err
	}
	if args.Layer < 0 {
		return nil, RankLayerOutput{}, fmt.Errorf("'layer' must be non-negative, got %d", args.Layer)
	}

	latents := s.session.RankLayer(args.Layer, args.Limit)
	if latents == nil {
		latents = []activation.LatentPeak{}
	}
	return nil, RankLayerOutput{
		Layer:   args.Layer,
		Latents: latents,
		Count:   len(latents),
	}, nil
}

// handleAddFeature implements the protomech_add_feature tool.
func (s *Server) handleAddFeature(ctx context.Context, req *sdk.CallToolRequest, args AddFeatureInput) (_ *sdk.CallToolResult, _ AddFeatureOutput, retErr error) {
	start := time.Now()
	defer func() {
		params := auditParams{"layer": args.Layer, "latent": args.Latent}
		if args.Position != nil {
			params["position"] = *args.Position
		}
		if args.Name != "" {
			params["name"] = args.Name
		}
		s.auditTool("protomech_add_feature", start, retErr, params)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_add_feature"); err != nil {
		return nil, AddFeatureOutput{}, err
	}
	if err := validateFeature(args.Layer, args.Latent); err != nil {
		return nil, AddFeatureOutput{}, err
	}

	position := -1
	if args.Position != nil {
		if *args.Position < 0 {
			return nil, AddFeatureOutput{}, fmt.Errorf("'position' must be non-negative, got %d", *args.Position)
		}
		position = *args.Position
	}

	node, created := s.session.AddNamedFeature(args.Layer, args.Latent, position, args.Name)

	c := s.session.Circuit()
	msg := fmt.Sprintf("Added L%d/%d as node %d", args.Layer+1, args.Latent+1, node.ID)
	if !created {
		msg = fmt.Sprintf("L%d/%d is already node %d", args.Layer+1, args.Latent+1, node.ID)
	}

	return nil, AddFeatureOutput{
		Node:      node,
		Created:   created,
		NodeCount: len(c.Nodes),
		EdgeCount: len(c.Edges),
		Message:   msg,
	}, nil
}

// handleRemoveNodes implements the protomech_remove_nodes tool.
func (s *Server) handleRemoveNodes(ctx context.Context, req *sdk.CallToolRequest, args RemoveNodesInput) (_ *sdk.CallToolResult, _ RemoveNodesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_remove_nodes", start, retErr, auditParams{
			"ids": args.IDs, "count": len(args.IDs),
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_remove_nodes"); err != nil {
		return nil, RemoveNodesOutput{}, err
	}
	if len(args.IDs) == 0 {
		return nil, RemoveNodesOutput{}, fmt.Errorf("'ids' parameter is required")
	}

	removed := s.session.RemoveNodes(args.IDs)
	c := s.session.Circuit()
	return nil, RemoveNodesOutput{
		Removed:   removed,
		NodeCount: len(c.Nodes),
		EdgeCount: len(c.Edges),
		Message:   fmt.Sprintf("Removed %d of %d nodes", removed, len(args.IDs)),
	}, nil
}

// handleCircuit implements the protomech_circuit tool.
func (s *Server) handleCircuit(ctx context.Context, req *sdk.CallToolRequest, args CircuitInput) (_ *sdk.CallToolResult, _ CircuitOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_circuit", start, retErr, auditParams{
			"format": args.Format,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_circuit"); err != nil {
		return nil, CircuitOutput{}, err
	}

	format, err := visualization.ParseFormat(args.Format)
	if err != nil {
		return nil, CircuitOutput{}, err
	}

	c := s.session.Circuit()
	out := CircuitOutput{
		Format:    string(format),
		State:     string(c.State),
		NodeCount: len(c.Nodes),
		EdgeCount: len(c.Edges),
	}

	switch format {
	case visualization.FormatJSON:
		report := s.session.Analyze()
		out.Graph = visualization.RenderJSON(c.Nodes, c.Edges, &report)
	case visualization.FormatDOT:
		out.Graph = visualization.RenderDOT(c.Nodes, c.Edges)
	default:
		report := s.session.Analyze()
		data, err := visualization.Render(format, s.title(), c.Nodes, c.Edges, &report)
		if err != nil {
			return nil, CircuitOutput{}, fmt.Errorf("render %s: %w", format, err)
		}
		out.Graph = string(data)
	}
	return nil, out, nil
}

// handleSave implements the protomech_save tool.
func (s *Server) handleSave(ctx context.Context, req *sdk.CallToolRequest, args SaveInput) (_ *sdk.CallToolResult, _ SaveOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_save", start, retErr, auditParams{
			"name": args.Name,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_save"); err != nil {
		return nil, SaveOutput{}, err
	}
	if err := store.ValidateName(args.Name); err != nil {
		return nil, SaveOutput{}, err
	}

	if err := s.session.Save(ctx, args.Name); err != nil {
		return nil, SaveOutput{}, err
	}
	c := s.session.Circuit()
	return nil, SaveOutput{
		Name:      args.Name,
		NodeCount: len(c.Nodes),
		EdgeCount: len(c.Edges),
		Message:   fmt.Sprintf("Saved %d nodes, %d edges as %q", len(c.Nodes), len(c.Edges), args.Name),
	}, nil
}

// handleRestore implements the protomech_restore tool.
func (s *Server) handleRestore(ctx context.Context, req *sdk.CallToolRequest, args RestoreInput) (_ *sdk.CallToolResult, _ RestoreOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_restore", start, retErr, auditParams{
			"name": args.Name,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_restore"); err != nil {
		return nil, RestoreOutput{}, err
	}
	if err := store.ValidateName(args.Name); err != nil {
		return nil, RestoreOutput{}, err
	}

	if err := s.session.Restore(ctx, args.Name); err != nil {
		return nil, RestoreOutput{}, err
	}
	c := s.session.Circuit()
	return nil, RestoreOutput{
		Name:      args.Name,
		NodeCount: len(c.Nodes),
		EdgeCount: len(c.Edges),
		Message:   fmt.Sprintf("Restored %q: %d nodes, %d edges", args.Name, len(c.Nodes), len(c.Edges)),
	}, nil
}

// handleExport implements the protomech_export tool.
func (s *Server) handleExport(ctx context.Context, req *sdk.CallToolRequest, args ExportInput) (_ *sdk.CallToolResult, _ ExportOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("protomech_export", start, retErr, auditParams{
			"format": args.Format, "output_path": args.OutputPath,
		})
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "protomech_export"); err != nil {
		return nil, ExportOutput{}, err
	}

	format, err := visualization.ParseFormat(args.Format)
	if err != nil {
		return nil, ExportOutput{}, err
	}

	outputPath := args.OutputPath
	if outputPath == "" {
		outputPath, err = s.exportDirs.Default(filepath.Base(s.session.Dir()), start, format.Ext())
		if err != nil {
			return nil, ExportOutput{}, err
		}
	} else if err := s.exportDirs.ValidateExport(outputPath, format.Ext()); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("export path rejected: %w", err)
	}

	c := s.session.Circuit()
	report := s.session.Analyze()
	data, err := visualization.Render(format, s.title(), c.Nodes, c.Edges, &report)
	if err != nil {
		return nil, ExportOutput{}, fmt.Errorf("render %s: %w", format, err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0700); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("creating export directory: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		return nil, ExportOutput{}, fmt.Errorf("writing export: %w", err)
	}

	return nil, ExportOutput{
		Path:      outputPath,
		Format:    string(format),
		SizeBytes: len(data),
		Message:   fmt.Sprintf("Exported %d nodes, %d edges to %s", len(c.Nodes), len(c.Edges), pathutil.RedactPath(outputPath)),
	}, nil
}

func (s *Server) title() string {
	return "protomech: " + filepath.Base(s.session.Dir())
}
