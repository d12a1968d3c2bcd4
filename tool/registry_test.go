package tool

import (
	"context"
	"encoding/json"
	"testing"

	ai "github.com/spetersoncode/dylan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testArgs struct {
	Query string `json:"query" jsonschema:"description=Search query"`
}

type calcArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func echo(ctx context.Context, args testArgs) (string, error) {
	return "result: " + args.Query, nil
}

func remote(name, source string) RemoteTool {
	return RemoteTool{
		Tool:   ai.Tool{Name: name, Description: "remote " + name},
		Source: source,
		Handler: func(ctx context.Context, call ai.ToolCall) (string, error) {
			return source + ":" + call.Name, nil
		},
	}
}

func TestRegistryAdd(t *testing.T) {
	t.Run("registers tools in order", func(t *testing.T) {
		registry := NewRegistry().Add(
			Func("search", "Search the web", echo),
			Func("calc", "Calculate sum", func(ctx context.Context, args calcArgs) (string, error) {
				return "calc result", nil
			}),
		)

		assert.Equal(t, 2, registry.Len())
		assert.Equal(t, []string{"search", "calc"}, registry.Names())

		d, ok := registry.Lookup("search")
		require.True(t, ok)
		assert.Equal(t, "Search the web", d.Tool.Description)
		assert.Equal(t, OriginNative, d.Origin)
		assert.Empty(t, d.Source)
	})

	t.Run("panics on duplicate tool name", func(t *testing.T) {
		assert.Panics(t, func() {
			NewRegistry().Add(
				Func("dupe", "First", echo),
				Func("dupe", "Duplicate", echo),
			)
		})
	})
}

func TestRegister(t *testing.T) {
	t.Run("rejects duplicates", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, RegisterFunc(r, "search", "Search", echo))

		err := RegisterFunc(r, "search", "Search again", echo)
		var dup *ErrToolAlreadyRegistered
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "search", dup.Name)
		assert.Equal(t, "tool: already registered: search", err.Error())
	})

	t.Run("rejects schemas that do not compile", func(t *testing.T) {
		r := NewRegistry()
		err := r.Register(ai.Tool{Name: "broken", Parameters: json.RawMessage(`{"type": 12}`)}, nil)

		var invalid *ErrInvalidSchema
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "broken", invalid.Name)
		assert.Zero(t, r.Len())
	})

	t.Run("unregister removes the tool and keeps order", func(t *testing.T) {
		r := NewRegistry().Add(
			Func("a", "A", echo),
			Func("b", "B", echo),
			Func("c", "C", echo),
		)
		r.Unregister("b")
		r.Unregister("missing")

		assert.Equal(t, []string{"a", "c"}, r.Names())
		_, ok := r.Lookup("b")
		assert.False(t, ok)
	})
}

func TestFunc(t *testing.T) {
	reg := Func("search", "Search the web", echo)

	assert.Equal(t, "search", reg.Tool.Name)
	var schema map[string]any
	require.NoError(t, json.Unmarshal(reg.Tool.Parameters, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.Contains(t, schema["properties"], "query")

	out, err := reg.Handler(context.Background(), ai.ToolCall{Arguments: `{"query":"go"}`})
	require.NoError(t, err)
	assert.Equal(t, "result: go", out)

	_, err = reg.Handler(context.Background(), ai.ToolCall{Arguments: `{"query":`})
	require.Error(t, err)
	assert.True(t, isInvalidArguments(err))
}

func TestReplaceRemote(t *testing.T) {
	t.Run("lists natives first then remotes", func(t *testing.T) {
		r := NewRegistry().Add(Func("calculator", "Calc", echo))
		rejected := r.ReplaceRemote([]RemoteTool{remote("maps_geo", "amap"), remote("maps_route", "amap")})

		assert.Empty(t, rejected)
		assert.Equal(t, []string{"calculator", "maps_geo", "maps_route"}, r.Names())
		assert.Equal(t, 2, r.RemoteCount())

		d, ok := r.Lookup("maps_geo")
		require.True(t, ok)
		assert.Equal(t, OriginRemote, d.Origin)
		assert.Equal(t, "amap", d.Source)
	})

	t.Run("natives take precedence over remotes", func(t *testing.T) {
		r := NewRegistry().Add(Func("search", "Native search", echo))
		rejected := r.ReplaceRemote([]RemoteTool{remote("search", "web")})

		assert.Equal(t, []string{"search"}, rejected)
		assert.Equal(t, []string{"search"}, r.Names())

		res := r.Dispatch(context.Background(), ai.ToolCall{ID: "1", Name: "search", Arguments: `{"query":"x"}`})
		assert.Equal(t, "result: x", res.Content)
	})

	t.Run("first remote server wins on collisions", func(t *testing.T) {
		r := NewRegistry()
		rejected := r.ReplaceRemote([]RemoteTool{remote("lookup", "first"), remote("lookup", "second")})

		assert.Equal(t, []string{"lookup"}, rejected)
		d, ok := r.Lookup("lookup")
		require.True(t, ok)
		assert.Equal(t, "first", d.Source)
	})

	t.Run("replacement swaps the whole subset", func(t *testing.T) {
		r := NewRegistry()
		r.ReplaceRemote([]RemoteTool{remote("old_a", "s"), remote("old_b", "s")})
		r.ReplaceRemote([]RemoteTool{remote("new", "s")})

		assert.Equal(t, []string{"new"}, r.Names())
		_, ok := r.Lookup("old_a")
		assert.False(t, ok)

		r.ReplaceRemote(nil)
		assert.Zero(t, r.Len())
	})

	t.Run("native registered after a snapshot shadows the remote", func(t *testing.T) {
		r := NewRegistry()
		r.ReplaceRemote([]RemoteTool{remote("clash", "s")})
		r.MustRegister(ai.Tool{Name: "clash"}, func(ctx context.Context, call ai.ToolCall) (string, error) {
			return "native", nil
		})

		assert.Equal(t, []string{"clash"}, r.Names())
		res := r.Dispatch(context.Background(), ai.ToolCall{ID: "1", Name: "clash"})
		assert.Equal(t, "native", res.Content)
	})
}
