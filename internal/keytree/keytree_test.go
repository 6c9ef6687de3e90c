package keytree

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/videoreview-api/internal/storage"
)

func leaf() *Node { return &Node{Kind: Leaf} }

func dir(children Tree) *Node { return &Node{Kind: Directory, Children: children} }

func TestBuild_Empty(t *testing.T) {
	tree, err := Build(nil)
	require.NoError(t, err)
	assert.NotNil(t, tree)
	assert.Empty(t, tree)
}

func TestBuild_UsersAndFiles(t *testing.T) {
	tree, err := Build([]string{"alice/a.mp4", "alice/b.mp4", "bob/c.mov"})
	require.NoError(t, err)

	want := Tree{
		"alice": dir(Tree{"a.mp4": leaf(), "b.mp4": leaf()}),
		"bob":   dir(Tree{"c.mov": leaf()}),
	}
	assert.Equal(t, want, tree)
}

func TestBuild_DeepAndTopLevelKeys(t *testing.T) {
	tree, err := Build([]string{"root.mp4", "a/b/c/d.mkv", "a/b/e.avi"})
	require.NoError(t, err)

	want := Tree{
		"root.mp4": leaf(),
		"a": dir(Tree{
			"b": dir(Tree{
				"c":     dir(Tree{"d.mkv": leaf()}),
				"e.avi": leaf(),
			}),
		}),
	}
	assert.Equal(t, want, tree)
}

func TestBuild_DuplicateKeys(t *testing.T) {
	tree, err := Build([]string{"alice/a.mp4", "alice/a.mp4"})
	require.NoError(t, err)
	assert.Equal(t, Tree{"alice": dir(Tree{"a.mp4": leaf()})}, tree)
}

func TestBuild_DirectoryMarkersAndEmptySegments(t *testing.T) {
	tree, err := Build([]string{"alice/", "carol//x.mp4", "/bob/c.mov", "", "/"})
	require.NoError(t, err)

	want := Tree{
		"alice": dir(Tree{}),
		"bob":   dir(Tree{"c.mov": leaf()}),
		"carol": dir(Tree{"x.mp4": leaf()}),
	}
	assert.Equal(t, want, tree)
}

func TestBuild_Conflicts(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		path string
	}{
		{"leaf then directory", []string{"alice", "alice/a.mp4"}, "alice"},
		{"directory then leaf", []string{"alice/a.mp4", "alice"}, "alice"},
		{"nested", []string{"a/b/c.mp4", "a/b/c.mp4/d.mp4"}, "a/b/c.mp4"},
		{"marker against leaf", []string{"a/b", "a/b/"}, "a/b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.keys)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConflict)

			var conflict *ConflictError
			require.True(t, errors.As(err, &conflict))
			assert.Equal(t, tt.keys[1], conflict.Key)
			assert.Equal(t, tt.path, conflict.Path)
			assert.Contains(t, conflict.Error(), tt.path)
		})
	}
}

func TestNode_IsLeaf(t *testing.T) {
	tree, err := Build([]string{"alice/a.mp4", "alice/empty/"})
	require.NoError(t, err)

	alice := tree["alice"]
	require.NotNil(t, alice)
	assert.False(t, alice.IsLeaf())
	assert.True(t, alice.Children["a.mp4"].IsLeaf())
	assert.False(t, alice.Children["empty"].IsLeaf())
}

func TestTree_JSON(t *testing.T) {
	tree, err := Build([]string{"alice/a.mp4", "alice/empty/", "bob/c.mov"})
	require.NoError(t, err)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t, `{"alice":{"a.mp4":null,"empty":{}},"bob":{"c.mov":null}}`, string(data))

	var decoded Tree
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, tree, decoded)
}

func TestBuilder_ListTree_EmptyStore(t *testing.T) {
	b := NewBuilder(storage.NewMemoryStore(0))

	tree, err := b.ListTree(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tree)

	data, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestBuilder_ListTree(t *testing.T) {
	store := storage.NewMemoryStore(1)
	ctx := context.Background()
	for _, k := range []string{"alice/a.mp4", "alice/b.mp4", "bob/c.mov"} {
		require.NoError(t, store.PutObject(ctx, k, strings.NewReader("x"), 1, "video/mp4"))
	}
	b := NewBuilder(store)

	first, err := b.ListTree(ctx)
	require.NoError(t, err)
	second, err := b.ListTree(ctx)
	require.NoError(t, err)

	assert.Equal(t, Tree{
		"alice": dir(Tree{"a.mp4": leaf(), "b.mp4": leaf()}),
		"bob":   dir(Tree{"c.mov": leaf()}),
	}, first)
	assert.Equal(t, first, second)
}

func TestBuilder_ListTree_ConcurrentWithWrites(t *testing.T) {
	store := storage.NewMemoryStore(2)
	ctx := context.Background()
	b := NewBuilder(store)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_ = store.PutObject(ctx, "user/"+strings.Repeat("x", i+1)+".mp4", strings.NewReader("x"), 1, "")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := b.ListTree(ctx)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	tree, err := b.ListTree(ctx)
	require.NoError(t, err)
	assert.Len(t, tree["user"].Children, 50)
}

func TestBuilder_ListTree_StoreError(t *testing.T) {
	b := NewBuilder(failingStore{})

	_, err := b.ListTree(context.Background())
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, io.Reader, int64, string) error {
	return storage.ErrUnavailable
}

func (failingStore) ListObjects(context.Context, string) (storage.Page, error) {
	return storage.Page{}, storage.ErrUnavailable
}

func (failingStore) GetObject(context.Context, string) (*storage.Object, error) {
	return nil, storage.ErrUnavailable
}
