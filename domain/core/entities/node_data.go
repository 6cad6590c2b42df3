package entities

import (
	"fmt"

	pkgerrors "mindsync/pkg/errors"
)

// NodeData is the full payload of a mind-map node as carried by create
// operations and document snapshots.
type NodeData struct {
	ID         string   `json:"id"`
	Text       string   `json:"text"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	ParentID   string   `json:"parent_id,omitempty"`
	FontSize   int      `json:"fontSize,omitempty"`
	FontWeight string   `json:"fontWeight,omitempty"`
	Color      string   `json:"color,omitempty"`
	Collapsed  bool     `json:"collapsed,omitempty"`
	Children   []string `json:"children,omitempty"`

	// Extra carries unknown fields from newer clients so they survive a
	// round trip through this replica.
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Copy returns an independent clone of the node data.
func (d *NodeData) Copy() *NodeData {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Children != nil {
		clone.Children = make([]string, len(d.Children))
		copy(clone.Children, d.Children)
	}
	if d.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(d.Extra))
		for k, v := range d.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

// NodePatch is the partial payload of an update operation. Nil fields mean
// the author expressed no opinion about that field.
type NodePatch struct {
	Text       *string  `json:"text,omitempty"`
	X          *float64 `json:"x,omitempty"`
	Y          *float64 `json:"y,omitempty"`
	ParentID   *string  `json:"parent_id,omitempty"`
	FontSize   *int     `json:"fontSize,omitempty"`
	FontWeight *string  `json:"fontWeight,omitempty"`
	Color      *string  `json:"color,omitempty"`
	Collapsed  *bool    `json:"collapsed,omitempty"`

	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Copy returns an independent clone of the patch.
func (p *NodePatch) Copy() *NodePatch {
	if p == nil {
		return nil
	}
	clone := NodePatch{}
	if p.Text != nil {
		v := *p.Text
		clone.Text = &v
	}
	if p.X != nil {
		v := *p.X
		clone.X = &v
	}
	if p.Y != nil {
		v := *p.Y
		clone.Y = &v
	}
	if p.ParentID != nil {
		v := *p.ParentID
		clone.ParentID = &v
	}
	if p.FontSize != nil {
		v := *p.FontSize
		clone.FontSize = &v
	}
	if p.FontWeight != nil {
		v := *p.FontWeight
		clone.FontWeight = &v
	}
	if p.Color != nil {
		v := *p.Color
		clone.Color = &v
	}
	if p.Collapsed != nil {
		v := *p.Collapsed
		clone.Collapsed = &v
	}
	if p.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(p.Extra))
		for k, v := range p.Extra {
			clone.Extra[k] = v
		}
	}
	return &clone
}

// IsEmpty reports whether the patch carries no field at all.
func (p *NodePatch) IsEmpty() bool {
	if p == nil {
		return true
	}
	return p.Text == nil && p.X == nil && p.Y == nil && p.ParentID == nil &&
		p.FontSize == nil && p.FontWeight == nil &&
		p.Color == nil && p.Collapsed == nil && len(p.Extra) == 0
}

// DocumentState is the resolved view of a mind map: a version counter plus
// the full node map. The sync core never persists it directly; the
// persistence collaborator owns durable storage.
type DocumentState struct {
	ID      string               `json:"id"`
	Version int64                `json:"version"`
	Nodes   map[string]*NodeData `json:"nodes"`
}

// Validate enforces the structural invariants of a document: every
// parent_id resolves to an existing node, every listed child exists, and
// node ids are unique within the map keyspace.
func (s *DocumentState) Validate() error {
	for id, node := range s.Nodes {
		if node == nil {
			return pkgerrors.NewValidationError(fmt.Sprintf("node %s has no data", id))
		}
		if node.ID != "" && node.ID != id {
			return pkgerrors.NewValidationError(
				fmt.Sprintf("node %s is stored under key %s", node.ID, id))
		}
		if node.ParentID != "" {
			if _, ok := s.Nodes[node.ParentID]; !ok {
				return pkgerrors.NewValidationError(
					fmt.Sprintf("node %s references missing parent %s", id, node.ParentID))
			}
		}
		for _, childID := range node.Children {
			if _, ok := s.Nodes[childID]; !ok {
				return pkgerrors.NewValidationError(
					fmt.Sprintf("node %s lists missing child %s", id, childID))
			}
		}
	}
	return nil
}
