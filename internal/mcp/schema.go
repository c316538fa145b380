// Package mcp provides an MCP (Model Context Protocol) server for protomech.
package mcp

import (
	"github.com/nvandessel/protomech/internal/activation"
	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/influence"
	"github.com/nvandessel/protomech/internal/models"
)

// InfluencesInput defines the input for the protomech_influences tool.
type InfluencesInput struct {
	Layer     int    `json:"layer" jsonschema:"Zero-based layer of the feature"`
	Latent    int    `json:"latent" jsonschema:"Latent index of the feature"`
	Direction string `json:"direction,omitempty" jsonschema:"incoming (earlier layers, default) or outgoing (later layers)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum number of edges to return (default: all)"`
}

// InfluencesOutput defines the output for the protomech_influences tool.
type InfluencesOutput struct {
	Feature   models.FeatureKey `json:"feature" jsonschema:"The queried feature"`
	Direction string            `json:"direction" jsonschema:"Direction that was followed"`
	Edges     []influence.Edge  `json:"edges" jsonschema:"Neighbors strongest first"`
	Count     int               `json:"count" jsonschema:"Number of edges returned"`
	Total     int               `json:"total" jsonschema:"Number of edges before the limit"`
}

// AlignInput defines the input for the protomech_align tool.
type AlignInput struct {
	Layer  int `json:"layer" jsonschema:"Zero-based layer of the feature"`
	Latent int `json:"latent" jsonschema:"Latent index of the feature"`
}

// AlignedRow is one row of a peak alignment as text.
type AlignedRow struct {
	Name        string  `json:"name"`
	Entry       string  `json:"entry,omitempty"`
	ProteinName string  `json:"protein_name,omitempty"`
	Aligned     string  `json:"aligned"`
	Peak        int     `json:"peak"`
	Score       float64 `json:"score,omitempty"`
	Rank        int     `json:"rank,omitempty"`
	Reference   bool    `json:"reference,omitempty"`
}

// AlignOutput defines the output for the protomech_align tool.
type AlignOutput struct {
	Center      int          `json:"center" jsonschema:"Column every peak lands on"`
	TotalLength int          `json:"total_length" jsonschema:"Width of every aligned row"`
	Rows        []AlignedRow `json:"rows" jsonschema:"Wild type first, then top activating sequences"`
	Count       int          `json:"count" jsonschema:"Number of rows"`
}

// RankLayerInput defines the input for the protomech_rank_layer tool.
type RankLayerInput struct {
	Layer int `json:"layer" jsonschema:"Zero-based layer to rank"`
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of latents (default: all)"`
}

// RankLayerOutput defines the output for the protomech_rank_layer tool.
type RankLayerOutput struct {
	Layer   int                     `json:"layer"`
	Latents []activation.LatentPeak `json:"latents" jsonschema:"Latents by peak activation, strongest first"`
	Count   int                     `json:"count"`
}

// AddFeatureInput defines the input for the protomech_add_feature tool.
type AddFeatureInput struct {
	Layer    int    `json:"layer" jsonschema:"Zero-based layer of the feature"`
	Latent   int    `json:"latent" jsonschema:"Latent index of the feature"`
	Position *int   `json:"position,omitempty" jsonschema:"Sequence position it was picked at (default: the feature's peak)"`
	Name     string `json:"name,omitempty" jsonschema:"Display name for the node"`
}

// AddFeatureOutput defines the output for the protomech_add_feature tool.
type AddFeatureOutput struct {
	Node      circuit.Node `json:"node" jsonschema:"The feature's node"`
	Created   bool         `json:"created" jsonschema:"False when the feature already had a node"`
	NodeCount int          `json:"node_count"`
	EdgeCount int          `json:"edge_count"`
	Message   string       `json:"message"`
}

// RemoveNodesInput defines the input for the protomech_remove_nodes tool.
type RemoveNodesInput struct {
	IDs []int `json:"ids" jsonschema:"Node ids to remove; their edges go with them"`
}

// RemoveNodesOutput defines the output for the protomech_remove_nodes tool.
type RemoveNodesOutput struct {
	Removed   int    `json:"removed"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	Message   string `json:"message"`
}

// CircuitInput defines the input for the protomech_circuit tool.
type CircuitInput struct {
	Format string `json:"format,omitempty" jsonschema:"Output format: json (default), dot, svg or html"`
}

// CircuitOutput defines the output for the protomech_circuit tool.
type CircuitOutput struct {
	Format    string      `json:"format"`
	State     string      `json:"state" jsonschema:"empty or populated"`
	Graph     interface{} `json:"graph" jsonschema:"The rendered circuit"`
	NodeCount int         `json:"node_count"`
	EdgeCount int         `json:"edge_count"`
}

// SaveInput defines the input for the protomech_save tool.
type SaveInput struct {
	Name string `json:"name" jsonschema:"Snapshot name: letters, digits, '.', '_' and '-'"`
}

// SaveOutput defines the output for the protomech_save tool.
type SaveOutput struct {
	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	Message   string `json:"message"`
}

// RestoreInput defines the input for the protomech_restore tool.
type RestoreInput struct {
	Name string `json:"name" jsonschema:"Snapshot to restore; replaces the current circuit"`
}

// RestoreOutput defines the output for the protomech_restore tool.
type RestoreOutput struct {
	Name      string `json:"name"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
	Message   string `json:"message"`
}

// ExportInput defines the input for the protomech_export tool.
type ExportInput struct {
	Format     string `json:"format,omitempty" jsonschema:"Output format: json (default), dot, svg or html"`
	OutputPath string `json:"output_path,omitempty" jsonschema:"File to write, inside an exports directory (default: generated under ~/.protomech/exports)"`
}

// ExportOutput defines the output for the protomech_export tool.
type ExportOutput struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	SizeBytes int    `json:"size_bytes"`
	Message   string `json:"message"`
}
