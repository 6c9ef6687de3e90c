// Package keytree rebuilds a nested, directory-like view from the flat key
// namespace of the object store.
package keytree

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/maauso/videoreview-api/internal/storage"
)

// Separator is the conventional path separator inside object keys.
const Separator = "/"

// ErrConflict is returned when a path is both a file and a directory.
var ErrConflict = errors.New("keytree: path is both a file and a directory")

// ConflictError reports the key that collided with an existing node.
type ConflictError struct {
	// Key is the object key being inserted when the conflict was detected.
	Key string
	// Path is the segment path that is used both as a leaf and as a directory.
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("keytree: key %q conflicts at %q: path is both a file and a directory", e.Key, e.Path)
}

// Unwrap allows errors.Is(err, ErrConflict).
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// Kind tags a Node as a directory or a leaf.
type Kind int

const (
	// Directory is an intermediate node with children.
	Directory Kind = iota
	// Leaf is a terminal node representing a stored object.
	Leaf
)

// Node is a tagged variant: either a Directory holding children or a Leaf.
type Node struct {
	Kind     Kind
	Children Tree
}

// Tree maps a path segment to its node.
type Tree map[string]*Node

// IsLeaf returns true if the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n.Kind == Leaf
}

// MarshalJSON encodes directories as objects and leaves as null.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.IsLeaf() {
		return []byte("null"), nil
	}
	if n.Children == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(n.Children)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (n *Node) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Node{Kind: Leaf}
		return nil
	}
	children := Tree{}
	if err := json.Unmarshal(data, &children); err != nil {
		return err
	}
	*n = Node{Kind: Directory, Children: children}
	return nil
}

// UnmarshalJSON restores nil map values as leaves, since encoding/json
// does not call Node.UnmarshalJSON for a JSON null.
func (t *Tree) UnmarshalJSON(data []byte) error {
	raw := map[string]*Node{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if v == nil {
			raw[k] = &Node{Kind: Leaf}
		}
	}
	*t = raw
	return nil
}

// Build constructs a Tree from keys. Empty segments are ignored, so a key
// ending in the separator is a directory marker. It fails with a
// *ConflictError when one key needs a leaf where another needs a directory.
func Build(keys []string) (Tree, error) {
	root := Tree{}
	for _, key := range keys {
		if err := insert(root, key); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func insert(root Tree, key string) error {
	segments := splitKey(key)
	if len(segments) == 0 {
		return nil
	}
	dirMarker := strings.HasSuffix(key, Separator)

	level := root
	for i, seg := range segments {
		last := i == len(segments)-1
		wantLeaf := last && !dirMarker
		path := strings.Join(segments[:i+1], Separator)

		node, exists := level[seg]
		switch {
		case !exists && wantLeaf:
			level[seg] = &Node{Kind: Leaf}
			return nil
		case !exists:
			node = &Node{Kind: Directory, Children: Tree{}}
			level[seg] = node
		case node.IsLeaf() && wantLeaf:
			// Same key listed twice.
			return nil
		case node.IsLeaf() || wantLeaf:
			return &ConflictError{Key: key, Path: path}
		}
		level = node.Children
	}
	return nil
}

func splitKey(key string) []string {
	parts := strings.Split(key, Separator)
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// Builder lists the object store and builds the tree on every call.
type Builder struct {
	store storage.ObjectStore
}

// NewBuilder creates a Builder over store.
func NewBuilder(store storage.ObjectStore) *Builder {
	return &Builder{store: store}
}

// ListTree fetches the complete key set and returns it as a Tree.
// The result is a fresh view of the store at call time.
func (b *Builder) ListTree(ctx context.Context) (Tree, error) {
	keys, err := storage.ListAllKeys(ctx, b.store)
	if err != nil {
		return nil, err
	}
	return Build(keys)
}
