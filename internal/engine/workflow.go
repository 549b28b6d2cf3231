package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

const loadImageClass = "LoadImage"

// Node is one entry of an API-format workflow graph.
type Node struct {
	ClassType string         `json:"class_type"`
	Inputs    map[string]any `json:"inputs"`
	Meta      map[string]any `json:"_meta,omitempty"`
}

// Graph is a workflow keyed by node id, exactly as the engine's /prompt expects it.
type Graph map[string]*Node

var ErrEmptyGraph = errors.New("workflow graph has no nodes")

func LoadGraph(path string) (Graph, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}
	var g Graph
	if err := json.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("decode workflow %s: %w", path, err)
	}
	if len(g) == 0 {
		return nil, ErrEmptyGraph
	}
	return g, nil
}

// Clone deep-copies the graph so a submission never mutates the loaded template.
func (g Graph) Clone() Graph {
	b, err := json.Marshal(g)
	if err != nil {
		return nil
	}
	var out Graph
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// WithImage returns a copy whose first LoadImage node (lowest id) reads filename.
// found is false when the graph has no LoadImage node.
func (g Graph) WithImage(filename string) (out Graph, found bool) {
	out = g.Clone()
	ids := make([]string, 0, len(out))
	for id := range out {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		n := out[id]
		if n == nil || n.ClassType != loadImageClass {
			continue
		}
		if n.Inputs == nil {
			n.Inputs = map[string]any{}
		}
		n.Inputs["image"] = filename
		return out, true
	}
	return out, false
}
