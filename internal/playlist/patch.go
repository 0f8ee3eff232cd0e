package playlist

import (
	"encoding/json"
	"fmt"
)

// Field is one optional attribute of a node update. An unset field leaves
// the node untouched; a set field with a nil Value clears it.
type Field struct {
	Set   bool
	Value *string
}

func Value(s string) Field { return Field{Set: true, Value: strPtr(s)} }

func Null() Field { return Field{Set: true} }

func fieldOf(p *string) Field { return Field{Set: true, Value: clonePtr(p)} }

// NodePatch is a sparse update of a Node.
type NodePatch struct {
	ID       Field
	Hash     Field
	Next     Field
	Previous Field
}

// FullNode turns a node into an update that sets every field.
func FullNode(n Node) *NodePatch {
	return &NodePatch{
		ID:       Value(n.ID),
		Hash:     Value(n.Hash),
		Next:     fieldOf(n.Next),
		Previous: fieldOf(n.Previous),
	}
}

func (p *NodePatch) applyTo(n *Node) {
	if p.ID.Set {
		n.ID = ""
		if p.ID.Value != nil {
			n.ID = *p.ID.Value
		}
	}
	if p.Next.Set {
		n.Next = clonePtr(p.Next.Value)
	}
	if p.Previous.Set {
		n.Previous = clonePtr(p.Previous.Value)
	}
}

func (p *NodePatch) overlay(o *NodePatch) {
	if o.ID.Set {
		p.ID = o.ID
	}
	if o.Hash.Set {
		p.Hash = o.Hash
	}
	if o.Next.Set {
		p.Next = o.Next
	}
	if o.Previous.Set {
		p.Previous = o.Previous
	}
}

func (p *NodePatch) clone() *NodePatch {
	c := &NodePatch{}
	c.overlay(p)
	return c
}

var nodePatchKeys = []string{"id", "hash", "next", "previous"}

func (p *NodePatch) fields() []*Field {
	return []*Field{&p.ID, &p.Hash, &p.Next, &p.Previous}
}

func (p NodePatch) MarshalJSON() ([]byte, error) {
	out := make(map[string]*string, 4)
	for i, f := range p.fields() {
		if f.Set {
			out[nodePatchKeys[i]] = f.Value
		}
	}
	return json.Marshal(out)
}

func (p *NodePatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = NodePatch{}
	fields := p.fields()
	for i, key := range nodePatchKeys {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if string(v) == "null" {
			*fields[i] = Null()
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("node patch field %q: %w", key, err)
		}
		*fields[i] = Value(s)
	}
	return nil
}

// Changes maps an order hash to its update. A present key with a nil value
// is a tombstone; an absent key is unaffected.
type Changes map[string]*NodePatch

// Merge overlays other onto c field by field. Tombstones in other win.
func (c Changes) Merge(other Changes) Changes {
	for hash, np := range other {
		if np == nil {
			c[hash] = nil
			continue
		}
		if cur, ok := c[hash]; ok && cur != nil {
			cur.overlay(np)
			continue
		}
		c[hash] = np.clone()
	}
	return c
}

// Patch is the unit exchanged between peers: a sparse diff of the view, or a
// full replacement when ShouldFlush is set.
type Patch struct {
	ShouldFlush bool    `json:"shouldFlush"`
	Changes     Changes `json:"patch"`
}

func (p Patch) IsEmpty() bool {
	return !p.ShouldFlush && len(p.Changes) == 0
}
