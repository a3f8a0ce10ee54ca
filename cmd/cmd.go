// Package cmd provides CLI command implementations for the DKG fusion
// engine.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/Benny93/dkg-go/internal/diagnostics"
	"github.com/Benny93/dkg-go/internal/graph"
	"github.com/Benny93/dkg-go/internal/ingestwatch"
	"github.com/Benny93/dkg-go/internal/provenance"
	"github.com/Benny93/dkg-go/internal/query"
	"github.com/Benny93/dkg-go/internal/snapshot"
	"github.com/Benny93/dkg-go/internal/stage"
	"github.com/Benny93/dkg-go/internal/timing"
	"github.com/Benny93/dkg-go/internal/updater"
	"github.com/Benny93/dkg-go/internal/view"
	"github.com/Benny93/dkg-go/mcp"
)

// Version is set at build time via ldflags.
var Version = "dev"

// workspace bundles the opened snapshot and reconstructed in-memory
// state a command needs; Close releases the underlying database.
type workspace struct {
	snap     *snapshot.Store
	store    *graph.Store
	ledger   *provenance.Ledger
	pipeline *stage.Pipeline
}

func openWorkspace(ctx context.Context, root string, readOnly bool) (*workspace, error) {
	dbPath := filepath.Join(root, ".dkg", "snapshot")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("no snapshot found at %s. Run 'dkg-go ingest' first", dbPath)
	}

	snap, err := snapshot.Open(dbPath, readOnly)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}

	loaded, err := snap.Load(ctx)
	if err != nil {
		_ = snap.Close()
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	return &workspace{snap: snap, store: loaded.Store, ledger: loaded.Ledger, pipeline: loaded.Pipeline}, nil
}

func (w *workspace) Close() error {
	return w.snap.Close()
}

// IngestCmd opens (or creates) a workspace snapshot and runs the Stage
// Pipeline against it.
type IngestCmd struct {
	Path string `arg:"" optional:"" default:"." help:"Path to a design workspace"`
}

// Run executes the ingest command.
func (c *IngestCmd) Run() error {
	ctx := context.Background()
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("accessing %s: %w", root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}

	dkgDir := filepath.Join(root, ".dkg")
	if err := os.MkdirAll(dkgDir, 0o755); err != nil {
		return fmt.Errorf("creating .dkg directory: %w", err)
	}
	dbPath := filepath.Join(dkgDir, "snapshot")

	snap, err := snapshot.Open(dbPath, false)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = snap.Close() }()

	loaded, err := snap.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	diag := diagnostics.NewLog()
	upd := updater.New(loaded.Store, loaded.Ledger)
	upd.SetDiagnostics(diag)
	pipeline := stage.New(loaded.Store, upd, diag)
	for _, stg := range loaded.Pipeline.CompletedStages() {
		pipeline.MarkCompleted(stg)
	}

	pipeline.SetProgress(func(stg provenance.Stage, ingestorName string, progress float64) {
		fmt.Printf("\r\033[K%s: %s (%.0f%%)", stg, ingestorName, progress*100)
	})

	present, err := ingestwatch.ScanStages(root, ingestwatch.DefaultStageExtensions)
	if err != nil {
		return fmt.Errorf("scanning artifacts: %w", err)
	}

	color.Green("Ingesting %s", root)
	if err := pipeline.RunAll(ctx); err != nil {
		return fmt.Errorf("running pipeline: %w", err)
	}
	fmt.Println()

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if err := snap.Save(ctx, loaded.Store, loaded.Ledger, pipeline, timestamp); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	color.Green("Ingest complete")
	fmt.Printf("  Nodes:       %d\n", loaded.Store.NodeCount())
	fmt.Printf("  Edges:       %d\n", loaded.Store.EdgeCount())
	fmt.Printf("  Diagnostics: %d\n", len(diag.Entries()))
	for stg, has := range present {
		if has {
			fmt.Printf("  Artifacts present for stage %q\n", stg)
		}
	}

	return nil
}

// SearchCmd searches nodes in the knowledge graph.
type SearchCmd struct {
	Class      string  `help:"Restrict to one entity class"`
	Name       string  `help:"Shell-wildcard pattern against local name"`
	HierPrefix string  `help:"Hierarchy path prefix"`
	SlackMax   *float64 `help:"Only nodes with slack at or below this value"`
	Limit      int     `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the search command.
func (c *SearchCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	eng := query.New(ws.store)
	filter := query.NodeFilter{NamePattern: c.Name, HierPrefix: c.HierPrefix, SlackMax: c.SlackMax}
	if c.Class != "" {
		class := graph.EntityClass(c.Class)
		filter.Class = &class
	}

	results := eng.SearchNodes(filter)
	if len(results) > c.Limit && c.Limit > 0 {
		results = results[:c.Limit]
	}
	printNodes(results)
	return nil
}

// NameSearchCmd runs a ranked name search against the attached name
// index.
type NameSearchCmd struct {
	Query string `arg:"" help:"Substring/token query"`
	Limit int    `short:"n" default:"20" help:"Maximum results"`
}

// Run executes the name-search command.
func (c *NameSearchCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	idx := query.NewNameIndex(ws.snap.DB())
	eng := query.New(ws.store)
	eng.SetNameIndex(idx)

	results, err := eng.SearchByName(c.Query, c.Limit)
	if err != nil {
		return fmt.Errorf("searching by name: %w", err)
	}
	printNodes(results)
	return nil
}

func printNodes(nodes []*graph.Node) {
	if len(nodes) == 0 {
		fmt.Println("No results found")
		return
	}
	for i, n := range nodes {
		fmt.Printf("%d. %s (%s)\n", i+1, n.HierPath, n.Class)
		if n.Slack != nil {
			fmt.Printf("   slack: %.3f\n", *n.Slack)
		}
	}
}

// ContextCmd shows the local neighborhood of a node.
type ContextCmd struct {
	NodeID string `arg:"" help:"Node id to inspect"`
	Depth  int    `short:"d" default:"2" help:"Fanout/fanin depth"`
}

// Run executes the context command.
func (c *ContextCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	n := ws.store.GetNode(c.NodeID)
	if n == nil {
		fmt.Printf("Node '%s' not found.\n", c.NodeID)
		return nil
	}

	eng := query.New(ws.store)
	fmt.Printf("## Context for: **%s** (%s)\n\n", n.HierPath, n.Class)

	fanin := eng.Fanin(c.NodeID, c.Depth)
	if len(fanin) > 0 {
		fmt.Printf("### Upstream (%d)\n", len(fanin))
		for _, u := range fanin {
			fmt.Printf("- %s (%s)\n", u.HierPath, u.Class)
		}
		fmt.Println()
	}

	fanout := eng.Fanout(c.NodeID, c.Depth)
	if len(fanout) > 0 {
		fmt.Printf("### Downstream (%d)\n", len(fanout))
		for _, d := range fanout {
			fmt.Printf("- %s (%s)\n", d.HierPath, d.Class)
		}
		fmt.Println()
	}

	return nil
}

// CriticalCmd lists the most timing-critical nodes.
type CriticalCmd struct {
	Threshold float64 `default:"0" help:"Slack threshold"`
	Top       int     `short:"n" default:"10" help:"Maximum results"`
}

// Run executes the critical command.
func (c *CriticalCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	eng := query.New(ws.store)
	nodes := eng.CriticalNodes(c.Threshold, c.Top)
	if len(nodes) == 0 {
		fmt.Println("No critical nodes found")
		return nil
	}
	for i, n := range nodes {
		fmt.Printf("%d. %s (%s) slack=%.3f\n", i+1, n.HierPath, n.Class, *n.Slack)
	}
	return nil
}

// ViewCmd builds and summarizes a SuperGraph.
type ViewCmd struct {
	Kind    string `default:"connectivity" enum:"structural,connectivity,physical" help:"View kind"`
	Context string `default:"design" enum:"design,simulation" help:"Engineering context"`
}

// Run executes the view command.
func (c *ViewCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	builder := view.New(ws.store)
	sg, err := builder.Build(ctx, view.ViewKind(c.Kind), view.Context(c.Context))
	if err != nil {
		return fmt.Errorf("building view: %w", err)
	}

	byClass := make(map[view.SuperClass]int)
	for _, sn := range sg.Nodes {
		byClass[sn.Class]++
	}

	fmt.Printf("## View: %s / %s\n\n", c.Kind, c.Context)
	fmt.Printf("SuperNodes: %d\n", len(sg.Nodes))
	fmt.Printf("SuperEdges: %d\n", len(sg.Edges))
	for class, n := range byClass {
		fmt.Printf("  %s: %d\n", class, n)
	}
	return nil
}

// AlertsCmd lists timing alerts against a default connectivity view.
type AlertsCmd struct {
	ClockPeriodNs float64 `default:"10" help:"Clock period in nanoseconds"`
}

// Run executes the alerts command.
func (c *AlertsCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	builder := view.New(ws.store)
	sg, err := builder.Build(ctx, view.ViewConnectivity, view.ContextDesign)
	if err != nil {
		return fmt.Errorf("building view: %w", err)
	}

	agg := timing.New(ws.store)
	alerts := agg.GenerateAlerts(sg, c.ClockPeriodNs)
	if len(alerts) == 0 {
		color.Green("No timing alerts")
		return nil
	}
	for _, a := range alerts {
		fmt.Printf("[%s] %s: %s\n", a.Severity, a.EntityRef, a.Reason)
	}
	return nil
}

// WatchCmd watches a design workspace and re-runs affected stages.
type WatchCmd struct {
	Path string `arg:"" optional:"" default:"." help:"Path to a design workspace"`
}

// Run executes the watch command.
func (c *WatchCmd) Run() error {
	root, err := filepath.Abs(c.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	dbPath := filepath.Join(root, ".dkg", "snapshot")
	snap, err := snapshot.Open(dbPath, false)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer func() { _ = snap.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loaded, err := snap.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}

	diag := diagnostics.NewLog()
	upd := updater.New(loaded.Store, loaded.Ledger)
	upd.SetDiagnostics(diag)
	pipeline := stage.New(loaded.Store, upd, diag)
	for _, stg := range loaded.Pipeline.CompletedStages() {
		pipeline.MarkCompleted(stg)
	}

	w := ingestwatch.New(root, pipeline, diag)
	fmt.Printf("Watching %s for artifact changes (Ctrl+C to stop)\n", root)

	go func() {
		<-osSignalChannel()
		fmt.Println("\nStopping watch...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		return fmt.Errorf("watch error: %w", err)
	}

	timestamp := time.Now().UTC().Format(time.RFC3339)
	if err := snap.Save(context.Background(), loaded.Store, loaded.Ledger, pipeline, timestamp); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	fmt.Println("Watch stopped.")
	return nil
}

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom file path for configuration"`
}

// Run executes the setup command.
func (c *SetupCmd) Run() error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	if !c.Qwen && !c.Claude && !c.Cursor {
		return c.outputDefaultConfig()
	}

	if !c.Local && !c.Global {
		c.Local = true
	}

	if c.Qwen {
		if err := c.setupClient("qwen", "mcp.json"); err != nil {
			return err
		}
	}
	if c.Claude {
		if err := c.setupClient("claude", "settings.json"); err != nil {
			return err
		}
	}
	if c.Cursor {
		if err := c.setupClient("cursor", "mcp.json"); err != nil {
			return err
		}
	}

	return nil
}

func (c *SetupCmd) outputDefaultConfig() error {
	config := generateMCPConfig()

	if c.Format == "json" {
		jsonBytes, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Println("# Add this to your MCP client configuration:")
		fmt.Println()
		for key, value := range config {
			fmt.Printf("%s: %s\n", key, toJSON(value))
		}
	}

	return nil
}

func (c *SetupCmd) setupClient(client, localFileName string) error {
	config := generateMCPConfig()

	if c.Global {
		globalPath := getGlobalConfigPath(client)
		if err := writeConfig(globalPath, config, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created global %s MCP config at %s", client, globalPath)
	}

	if c.Local {
		var localPath string
		if c.FilePath != "" {
			localPath = filepath.Join(c.FilePath, localFileName)
		} else {
			localPath = getLocalConfigPath(".", client, localFileName)
		}
		if err := writeConfig(localPath, config, c.Format); err != nil {
			return err
		}
		color.Green("✓ Created local %s MCP config at %s", client, localPath)
	}

	return nil
}

func generateMCPConfig() map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"dkg-go": map[string]any{
				"command": "dkg-go",
				"args":    []string{"serve", "--watch"},
			},
		},
	}
}

func getLocalConfigPath(basePath, client, fileName string) string {
	return filepath.Join(basePath, getClientConfigDir(client), fileName)
}

func getGlobalConfigPath(client string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, getClientConfigDir(client), "global", "mcp.json")
}

func getClientConfigDir(client string) string {
	switch client {
	case "qwen":
		return ".qwen"
	case "claude":
		return ".claude"
	case "cursor":
		return ".cursor"
	default:
		return ".qwen"
	}
}

func writeConfig(configPath string, config map[string]any, format string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	var content []byte
	var err error

	if format == "json" {
		content, err = json.MarshalIndent(config, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		content = append(content, '\n')
	} else {
		var sb strings.Builder
		sb.WriteString("# MCP configuration for the DKG fusion engine\n")
		sb.WriteString("# Generated by dkg-go setup\n\n")
		for key, value := range config {
			sb.WriteString(fmt.Sprintf("%s: %s\n", key, toJSON(value)))
		}
		content = []byte(sb.String())
	}

	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// MCPCmd starts the MCP server (stdio transport, no watch).
type MCPCmd struct{}

// Run executes the mcp command.
func (c *MCPCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	server := mcp.NewServer(ws.store, ws.snap.DB())
	return server.Run(ctx, os.Stdin, os.Stdout)
}

// ServeCmd starts the MCP server with optional artifact watching.
type ServeCmd struct {
	Watch bool `short:"w" help:"Enable artifact watching"`
}

// Run executes the serve command.
func (c *ServeCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", !c.Watch)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	server := mcp.NewServer(ws.store, ws.snap.DB())

	if c.Watch {
		fmt.Fprintln(os.Stderr, "Starting MCP server with artifact watching...")

		root, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting working directory: %w", err)
		}

		watchCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		diag := diagnostics.NewLog()
		upd := updater.New(ws.store, ws.ledger)
		upd.SetDiagnostics(diag)
		pipeline := stage.New(ws.store, upd, diag)
		for _, stg := range ws.pipeline.CompletedStages() {
			pipeline.MarkCompleted(stg)
		}
		watcher := ingestwatch.New(root, pipeline, diag)

		go func() {
			if err := watcher.Run(watchCtx); err != nil && err != context.Canceled {
				fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
			}
		}()

		fmt.Fprintln(os.Stderr, "Artifact watching enabled")
	} else {
		fmt.Fprintln(os.Stderr, "Starting MCP server...")
	}

	return server.Run(ctx, os.Stdin, os.Stdout)
}

// StatusCmd shows snapshot status for the current workspace.
type StatusCmd struct{}

// Run executes the status command.
func (c *StatusCmd) Run() error {
	ctx := context.Background()
	ws, err := openWorkspace(ctx, ".", true)
	if err != nil {
		return err
	}
	defer func() { _ = ws.Close() }()

	fmt.Println("Snapshot status")
	fmt.Printf("  Nodes:            %d\n", ws.store.NodeCount())
	fmt.Printf("  Edges:            %d\n", ws.store.EdgeCount())
	fmt.Printf("  Completed stages: %v\n", ws.pipeline.CompletedStages())
	return nil
}

// CleanCmd deletes the snapshot for the current workspace.
type CleanCmd struct {
	Force bool `short:"f" help:"Skip confirmation"`
}

// Run executes the clean command.
func (c *CleanCmd) Run() error {
	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	dkgDir := filepath.Join(root, ".dkg")
	if _, err := os.Stat(dkgDir); os.IsNotExist(err) {
		return fmt.Errorf("no snapshot found at %s. Nothing to clean", dkgDir)
	}

	if !c.Force {
		fmt.Printf("Delete snapshot at %s? [y/N] ", dkgDir)
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := os.RemoveAll(dkgDir); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}

	color.Green("Deleted %s", dkgDir)
	return nil
}

// Helper functions

func osSignalChannel() <-chan os.Signal {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	return sigChan
}

func toJSON(v any) string {
	bytes, _ := json.Marshal(v)
	return string(bytes)
}

// CLI is the root Kong command structure.
type CLI struct {
	Version kong.VersionFlag `help:"Show version information"`
	Verbose bool             `short:"v" help:"Enable verbose output"`
	Quiet   bool             `short:"q" help:"Suppress non-essential output"`

	Ingest     IngestCmd     `cmd:"" help:"Run the stage pipeline over a design workspace"`
	Search     SearchCmd     `cmd:"" help:"Search nodes by class/name/hierarchy/slack"`
	NameSearch NameSearchCmd `cmd:"" name:"name-search" help:"Ranked name search via the name index"`
	Context    ContextCmd    `cmd:"" help:"Show the local neighborhood of a node"`
	Critical   CriticalCmd   `cmd:"" help:"List the most timing-critical nodes"`
	View       ViewCmd       `cmd:"" help:"Build and summarize a SuperGraph view"`
	Alerts     AlertsCmd     `cmd:"" help:"List timing alerts"`
	Watch      WatchCmd      `cmd:"" help:"Watch a workspace and re-run affected stages"`
	Setup      SetupCmd      `cmd:"" help:"Configure MCP for Claude Code / Cursor / Qwen"`
	MCP        MCPCmd        `cmd:"" help:"Start MCP server (stdio transport)"`
	Serve      ServeCmd      `cmd:"" help:"Start MCP server with optional artifact watching"`
	Status     StatusCmd     `cmd:"" help:"Show snapshot status for current workspace"`
	Clean      CleanCmd      `cmd:"" help:"Delete the snapshot for current workspace"`
}

// NewCLI creates a new CLI instance.
func NewCLI() *CLI {
	return &CLI{}
}

// Execute parses command-line arguments and executes the selected command.
func (c *CLI) Execute(args []string) error {
	kongCtx := kong.Parse(c,
		kong.Name("dkg-go"),
		kong.Description("Design knowledge graph fusion engine"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version": Version,
		},
	)

	return kongCtx.Run()
}
