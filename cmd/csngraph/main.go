package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dusk-indust/csngraph/internal/cache"
	"github.com/dusk-indust/csngraph/internal/config"
	"github.com/dusk-indust/csngraph/internal/csn"
	"github.com/dusk-indust/csngraph/internal/export"
	"github.com/dusk-indust/csngraph/internal/facade"
	"github.com/dusk-indust/csngraph/internal/graph"
	"github.com/dusk-indust/csngraph/internal/mcptools"
)

// CLI flags parsed from command line.
type cliFlags struct {
	SchemaSource string
	RegistryURL  string
	Product      string
	DatabaseDSN  string
	Kind         string
	Scope        string
	Backend      string
	Format       string
	Rebuild      bool
	Status       bool
	ClearCache   bool
	ServeMCP     bool
	MCPAddr      string
	Verbose      bool
	Version      bool
}

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var flags cliFlags

	fs := flag.NewFlagSet("csngraph", flag.ContinueOnError)
	fs.StringVar(&flags.SchemaSource, "schema", "", "CSN schema source: file, directory, or http(s) URL")
	fs.StringVar(&flags.RegistryURL, "registry-url", "", "base URL of a CSN registry for product lookups")
	fs.StringVar(&flags.Product, "product", "", "data product name resolved against the registry")
	fs.StringVar(&flags.DatabaseDSN, "dsn", "", "Postgres connection string for instance data and the persistent cache")
	fs.StringVar(&flags.Kind, "kind", "schema", "graph kind: schema, data, or hybrid")
	fs.StringVar(&flags.Scope, "scope", "default", "graph scope")
	fs.StringVar(&flags.Backend, "backend", "", "query backend: in-memory or property-graph")
	fs.StringVar(&flags.Format, "format", "json", "export format: json or mermaid")
	fs.BoolVar(&flags.Rebuild, "rebuild", false, "discard the cached graph and build it fresh")
	fs.BoolVar(&flags.Status, "status", false, "print cache status for the selected graph and exit")
	fs.BoolVar(&flags.ClearCache, "clear-cache", false, "remove every cached graph and exit")
	fs.BoolVar(&flags.ServeMCP, "serve-mcp", false, "run as MCP server for agentic clients")
	fs.StringVar(&flags.MCPAddr, "mcp-addr", "", "MCP server listen address")
	fs.BoolVar(&flags.Verbose, "verbose", false, "enable verbose output")
	fs.BoolVar(&flags.Version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if flags.Version {
		fmt.Println(version)
		return nil
	}

	cfg, err := config.Load(".")
	if err != nil {
		return err
	}
	applyFlags(cfg, flags)

	if flags.Product != "" && cfg.RegistryURL == "" {
		return fmt.Errorf("-product requires a registry URL (-registry-url or csngraph.yml)")
	}
	if cfg.SchemaSource == "" && flags.Product == "" {
		return fmt.Errorf("a schema source is required (-schema, -product, or csngraph.yml)")
	}

	level := log.InfoLevel
	if cfg.Verbose {
		level = log.DebugLevel
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Level:           level,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.DatabaseDSN != "" {
		pool, err = pgxpool.New(ctx, cfg.DatabaseDSN)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
	}

	store, err := openStore(ctx, pool)
	if err != nil {
		return err
	}

	var reader graph.TableReader
	if pool != nil {
		reader = graph.NewSQLTableReader(pool, cfg.DatabaseSchema, cfg.SQLReadTimeout())
	}

	loader := csn.NewLoader(csn.Options{
		Lenient:     cfg.Lenient,
		HTTPTimeout: cfg.HTTPTimeout(),
	})

	f := facade.New(loader, reader, store, facade.Options{
		SchemaSource:         cfg.SchemaSource,
		RegistryURL:          cfg.RegistryURL,
		Product:              flags.Product,
		Backend:              cfg.Backend,
		AllowBackendFallback: cfg.FallbackAllowed(),
		Build: graph.DataBuildOptions{
			MaxRecordsPerEntity: cfg.MaxRecordsPerEntity,
			InferenceMode:       graph.InferenceMode(cfg.InferenceMode),
			KeepFloatingTables:  cfg.FloatingKept(),
		},
		BuildTimeout: cfg.PathQueryTimeout(),
		Logger:       logger,
	})
	defer f.Close()

	if flags.ServeMCP {
		svc := mcptools.NewGraphService(f)
		logger.Info("serving MCP", "addr", cfg.MCPAddr)
		return mcptools.RunMCPServer(ctx, svc, cfg.MCPAddr)
	}
	if flags.ClearCache {
		removed, err := f.ClearCache(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d cache entries\n", removed)
		return nil
	}

	kind, err := parseKind(flags.Kind)
	if err != nil {
		return err
	}

	if flags.Status {
		return runStatus(ctx, f, kind, flags.Scope)
	}

	var g *graph.Graph
	if flags.Rebuild {
		g, err = f.Rebuild(ctx, kind, flags.Scope)
	} else {
		g, err = f.LoadGraph(ctx, kind, flags.Scope)
	}
	if err != nil {
		return err
	}

	switch flags.Format {
	case "json":
		data, err := export.GenerateJSON(g)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case "mermaid":
		fmt.Print(export.GenerateMermaid(g))
	default:
		return fmt.Errorf("unknown format %q (want json or mermaid)", flags.Format)
	}
	return nil
}

// applyFlags overlays command-line flags on the file configuration.
func applyFlags(cfg *config.Config, flags cliFlags) {
	if flags.SchemaSource != "" {
		cfg.SchemaSource = flags.SchemaSource
	}
	if flags.RegistryURL != "" {
		cfg.RegistryURL = flags.RegistryURL
	}
	if flags.DatabaseDSN != "" {
		cfg.DatabaseDSN = flags.DatabaseDSN
	}
	if flags.Backend != "" {
		cfg.Backend = flags.Backend
	}
	if flags.MCPAddr != "" {
		cfg.MCPAddr = flags.MCPAddr
	}
	if flags.Verbose {
		cfg.Verbose = true
	}
}

// openStore picks the cache backend: Postgres when a pool is available,
// in-memory otherwise.
func openStore(ctx context.Context, pool *pgxpool.Pool) (cache.Store, error) {
	if pool == nil {
		return cache.NewMemStore(), nil
	}
	return cache.NewPGStore(ctx, pool)
}

func parseKind(s string) (graph.Kind, error) {
	switch s {
	case "schema":
		return graph.KindSchema, nil
	case "data":
		return graph.KindData, nil
	case "hybrid":
		return graph.KindHybrid, nil
	default:
		return "", fmt.Errorf("unknown graph kind %q (want schema, data, or hybrid)", s)
	}
}

func runStatus(ctx context.Context, f *facade.Facade, kind graph.Kind, scope string) error {
	st, err := f.GraphStatus(ctx, kind, scope)
	if err != nil {
		return err
	}
	fmt.Printf("graph:    %s\n", st.Key)
	fmt.Printf("backend:  %s\n", st.Backend)
	if !st.Cached {
		fmt.Println("cached:   no")
		return nil
	}
	fmt.Println("cached:   yes")
	fmt.Printf("built:    %s\n", st.BuiltAt.Format(time.RFC3339))
	fmt.Printf("digest:   %s\n", st.InputsDigest)
	fmt.Printf("nodes:    %d\n", st.NodeCount)
	fmt.Printf("edges:    %d\n", st.EdgeCount)
	for _, w := range st.Warnings {
		fmt.Printf("warning:  %s\n", w)
	}
	return nil
}
