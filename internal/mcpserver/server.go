// Package mcpserver exposes an Instance to an agent over the Model Context
// Protocol, grounded on cmd/agent.go's framing of an agent-facing surface
// over the engine (there the surface was mount metadata for a semantic
// filesystem; here it is four tools over a config tree). This is a thin
// collaborator: it drives Instance and the Loader through the same
// SafeInstance façade a concurrent mount surface would use, and adds no
// engine behavior of its own.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/agentic-research/configtree/internal/instance"
	"github.com/agentic-research/configtree/internal/loader"
	"github.com/agentic-research/configtree/internal/node"
	"github.com/agentic-research/configtree/internal/reference"
	"github.com/agentic-research/configtree/internal/value"
)

// rootDelegate adapts a SafeInstance to reference.Delegate: each call
// takes the tree lock for its own duration, same discipline SafeInstance
// imposes on every other accessor.
type rootDelegate struct{ safe *instance.SafeInstance }

func (d rootDelegate) PathValue(path string) (string, error) {
	var out string
	err := d.safe.WithRoot(func(root *node.Node) error {
		v, verr := root.PathValue(path)
		out = v
		return verr
	})
	return out, err
}

func (d rootDelegate) LiveChoices(path string) ([]string, error) { return d.LiveKeys(path) }

func (d rootDelegate) LiveKeys(path string) ([]string, error) {
	var out []string
	err := d.safe.WithRoot(func(root *node.Node) error {
		v, verr := root.LiveKeys(path)
		out = v
		return verr
	})
	return out, err
}

func (d rootDelegate) ReplaceFollow(path string) (map[string]string, error) {
	var out map[string]string
	err := d.safe.WithRoot(func(root *node.Node) error {
		v, verr := root.ReplaceFollow(path)
		out = v
		return verr
	})
	return out, err
}

// New builds an MCP server exposing safe as the "load", "dump",
// "describe" and "keys" tools. A CachingResolver wraps safe's root so
// repeated "keys" calls across a session (an agent re-checking the same
// follow_keys_from/refer_to path while filling in a form) don't re-walk
// the tree each time; every "load", successful or not, invalidates the
// whole cache since a DSL program can touch an unbounded set of collection
// paths.
func New(safe *instance.SafeInstance, name, version string) *server.MCPServer {
	srv := server.NewMCPServer(name, version)
	refs := reference.New(rootDelegate{safe: safe})

	srv.AddTool(
		mcp.NewTool("load",
			mcp.WithDescription("Run a config-tree DSL program against the live tree (spec.md §4.4)."),
			mcp.WithString("program", mcp.Required(), mcp.Description("Whitespace-separated Loader command sequence.")),
			mcp.WithString("check", mcp.Description("yes (default, raises on failure), skip, or no.")),
		),
		loadHandler(safe, refs),
	)

	srv.AddTool(
		mcp.NewTool("dump",
			mcp.WithDescription("Render the whole tree as a DSL program that reproduces it (spec.md §8's round-trip property)."),
		),
		dumpHandler(safe),
	)

	srv.AddTool(
		mcp.NewTool("describe",
			mcp.WithDescription("Resolve an element's gist and any configured help text."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Dotted element path from the tree root.")),
		),
		describeHandler(safe),
	)

	srv.AddTool(
		mcp.NewTool("keys",
			mcp.WithDescription("List the live key set of a hash/list, or the live choice set of a reference leaf's refer_to target."),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to a hash, list, or refer_to target collection.")),
		),
		keysHandler(refs),
	)

	return srv
}

func loadHandler(safe *instance.SafeInstance, refs *reference.CachingResolver) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		program, err := req.RequireString("program")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		check := checkMode(req.GetString("check", "yes"))

		// Invalidate unconditionally: a program that fails partway through
		// (e.g. CheckYes rejecting a later command) still leaves whatever
		// commands ran before it applied, so a cached "keys" result from
		// before this call can be stale even on the error path.
		err = safe.Load(program, loader.Options{Check: check})
		refs.InvalidateAll()
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("ok, needs_save=%d", safe.NeedsSave())), nil
	}
}

func keysHandler(refs *reference.CachingResolver) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		keys, kerr := refs.LiveKeys(path)
		if kerr != nil {
			return mcp.NewToolResultError(kerr.Error()), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%v", keys)), nil
	}
}

func dumpHandler(safe *instance.SafeInstance) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(safe.Dump()), nil
	}
}

func describeHandler(safe *instance.SafeInstance) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := req.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var gist string
		walkErr := safe.WithRoot(func(root *node.Node) error {
			g, gerr := root.DescribeAt(path)
			gist = g
			return gerr
		})
		if walkErr != nil {
			return mcp.NewToolResultError(walkErr.Error()), nil
		}
		return mcp.NewToolResultText(gist), nil
	}
}

func checkMode(s string) value.CheckMode {
	switch s {
	case "skip":
		return value.CheckSkip
	case "no":
		return value.CheckNo
	default:
		return value.CheckYes
	}
}
