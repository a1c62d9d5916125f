package plan

import (
	"fmt"
	"io"
	"strings"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/util"
	"github.com/goccy/go-json"
)

/*
The plan module describes queries as a tree of "plan nodes". The plan nodes
mirror the structure of the executor nodes, but carry only declarative data
(command text, criteria text, limits) so that plans can be written by hand,
stored as JSON, and manipulated without the executor's dependencies on data
managers and buffers. The executor compiles a plan tree to a tree of
producers.
*/

////////////////////////////////////////////////////////////////////////////////

// NodeType is the type of a plan node.
type NodeType int

const (
	// Access is a leaf reading a command's results from a source.
	Access NodeType = iota
	// Select filters and projects its child.
	Select
	// Limit limits and offsets its child.
	Limit
)

// String returns a string representation of the node type.
func (n NodeType) String() string {
	switch n {
	case Access:
		return "access"
	case Select:
		return "select"
	case Limit:
		return "limit"
	default:
		return fmt.Sprintf("nodetype(%d)", int(n))
	}
}

// ParseNodeType parses a node type name.
func ParseNodeType(s string) (NodeType, error) {
	switch strings.ToLower(s) {
	case "access":
		return Access, nil
	case "select":
		return Select, nil
	case "limit":
		return Limit, nil
	default:
		return 0, fmt.Errorf("unrecognized node type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (n NodeType) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (n *NodeType) UnmarshalText(data []byte) error {
	t, err := ParseNodeType(string(data))
	if err != nil {
		return err
	}
	*n = t
	return nil
}

// Node represents a plan node.
type Node struct {
	Type     NodeType `json:"type"`
	ID       int      `json:"id,omitempty"`
	Children []*Node  `json:"children,omitempty"`

	// access
	Source    string       `json:"source,omitempty"`
	Command   string       `json:"command,omitempty"`
	Projected batch.Schema `json:"projected,omitempty"`

	// select
	Criteria   string           `json:"criteria,omitempty"`
	Elements   []string         `json:"elements,omitempty"`
	Subqueries map[string]*Node `json:"subqueries,omitempty"`

	// limit
	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`
}

// Load decodes a JSON plan and validates it. Nodes without an explicit ID are
// numbered in pre-order.
func Load(r io.Reader) (*Node, error) {
	node := &Node{}
	if err := json.NewDecoder(r).Decode(node); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}
	if err := node.Validate(); err != nil {
		return nil, err
	}
	Number(node)
	return node, nil
}

// Number assigns IDs to the nodes of a tree that lack one, in pre-order,
// starting above the largest ID already present.
func Number(node *Node) {
	next := 0
	Traverse(node, func(n *Node) {
		next = max(next, n.ID)
	}, nil)
	next++
	Traverse(node, func(n *Node) {
		if n.ID == 0 {
			n.ID = next
			next++
		}
	}, nil)
}

// OutputElements returns the elements produced by the node. A select node
// without elements produces the elements of its child.
func (n *Node) OutputElements() (batch.Schema, error) {
	switch n.Type {
	case Access:
		return n.Projected, nil
	case Select, Limit:
		if len(n.Children) != 1 {
			return nil, fmt.Errorf("%s node requires exactly one child, got %d", n.Type, len(n.Children))
		}
		inputs, err := n.Children[0].OutputElements()
		if err != nil {
			return nil, err
		}
		if n.Type == Limit || len(n.Elements) == 0 {
			return inputs, nil
		}
		return inputs.Select(n.Elements...)
	default:
		return nil, fmt.Errorf("unrecognized node type %s", n.Type)
	}
}

// Validate checks that each node carries the fields its type requires.
func (n *Node) Validate() error {
	var err error
	Traverse(n, func(n *Node) {
		if err != nil {
			return
		}
		err = n.validate()
	}, nil)
	return err
}

func (n *Node) validate() error {
	switch n.Type {
	case Access:
		if n.Source == "" || n.Command == "" {
			return fmt.Errorf("access node requires a source and a command")
		}
		if len(n.Children) > 0 {
			return fmt.Errorf("access node may not have children")
		}
		if len(n.Projected) == 0 {
			return fmt.Errorf("access node requires projected elements")
		}
	case Select:
		if len(n.Children) != 1 {
			return fmt.Errorf("select node requires exactly one child, got %d", len(n.Children))
		}
		if n.Criteria == "" {
			return fmt.Errorf("select node requires criteria")
		}
		for name, sub := range n.Subqueries {
			if sub == nil {
				return fmt.Errorf("subquery %s is empty", name)
			}
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("invalid subquery %s: %w", name, err)
			}
		}
	case Limit:
		if len(n.Children) != 1 {
			return fmt.Errorf("limit node requires exactly one child, got %d", len(n.Children))
		}
		if n.Limit == nil && n.Offset == nil {
			return fmt.Errorf("limit node requires a limit or an offset")
		}
	default:
		return fmt.Errorf("unrecognized node type %s", n.Type)
	}
	return nil
}

// Traverse a plan tree, executing pre and post-order transformations.
// Subquery plans are visited after the children of their select node.
func Traverse(n *Node, pre func(n *Node), post func(n *Node)) {
	if pre != nil {
		pre(n)
	}
	for _, c := range n.Children {
		Traverse(c, pre, post)
	}
	for _, name := range util.Okeys(n.Subqueries) {
		Traverse(n.Subqueries[name], pre, post)
	}
	if post != nil {
		post(n)
	}
}

// String returns a string representation of the node.
func (n Node) String() string {
	children := make([]string, len(n.Children))
	for i, c := range n.Children {
		children[i] = c.String()
	}
	childrenTerm := ""
	if len(children) > 0 {
		childrenTerm = " " + strings.Join(children, " ")
	}
	switch n.Type {
	case Access:
		return fmt.Sprintf("[access (%s %q %s)]", n.Source, n.Command, strings.Join(n.Projected.Names(), ","))
	case Select:
		args := []string{fmt.Sprintf("%q", n.Criteria)}
		if len(n.Elements) > 0 {
			args = append(args, strings.Join(n.Elements, ","))
		}
		for _, name := range util.Okeys(n.Subqueries) {
			args = append(args, fmt.Sprintf("$%s=%s", name, n.Subqueries[name]))
		}
		return fmt.Sprintf("[select (%s)%s]", strings.Join(args, " "), childrenTerm)
	case Limit:
		limit := -1
		if n.Limit != nil {
			limit = *n.Limit
		}
		if n.Offset != nil && *n.Offset > 0 {
			return fmt.Sprintf("[limit %d offset %d%s]", limit, *n.Offset, childrenTerm)
		}
		return fmt.Sprintf("[limit %d%s]", limit, childrenTerm)
	}
	return fmt.Sprintf("[%s%s]", n.Type, childrenTerm)
}
