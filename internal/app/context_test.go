package app

import (
	"context"
	"errors"
	"os"
	"testing"

	"bountygraph/internal/config"
	"bountygraph/internal/engine"
)

func TestInitWorkspaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	wrote, err := InitWorkspace(ctx, dir)
	if err != nil || !wrote {
		t.Fatalf("first init: wrote=%v err=%v", wrote, err)
	}
	if _, err := os.Stat(config.Path(dir)); err != nil {
		t.Fatalf("config not written: %v", err)
	}
	wrote, err = InitWorkspace(ctx, dir)
	if err != nil || wrote {
		t.Fatalf("second init: wrote=%v err=%v", wrote, err)
	}
}

func TestResolveGraph(t *testing.T) {
	ctx := context.Background()
	rt, err := Open(ctx, Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close(ctx)

	if _, err := ResolveGraph(ctx, rt.Engine, "", "alice"); !errors.Is(err, engine.ErrGraphNotFound) {
		t.Fatalf("expected graph not found, got %v", err)
	}
	alice, err := rt.Engine.InitializeGraph(ctx, engine.InitializeGraphOptions{Authority: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	g, err := ResolveGraph(ctx, rt.Engine, "", "")
	if err != nil || g.Address != alice.Address {
		t.Fatalf("single graph fallback: %v", err)
	}
	bob, err := rt.Engine.InitializeGraph(ctx, engine.InitializeGraphOptions{Authority: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ResolveGraph(ctx, rt.Engine, "", "carol"); err == nil {
		t.Fatalf("expected ambiguity error with two graphs")
	}
	g, err = ResolveGraph(ctx, rt.Engine, "", "bob")
	if err != nil || g.Address != bob.Address {
		t.Fatalf("signer graph: %v", err)
	}
	g, err = ResolveGraph(ctx, rt.Engine, alice.Address, "bob")
	if err != nil || g.Address != alice.Address {
		t.Fatalf("explicit graph: %v", err)
	}
}
