package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"previewkit/internal/bundler"
	"previewkit/internal/config"
	"previewkit/internal/graph"
	"previewkit/internal/logging"
	"previewkit/internal/preview"
	"previewkit/internal/project"
	"previewkit/internal/registry"
	"previewkit/internal/server"
	"previewkit/internal/shim"
	"previewkit/internal/vfs"
)

var version = "0.3.0"

var (
	// Global flags
	cfgPath string
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "previewkit",
	Short: "previewkit - in-memory bundler and preview server for AI-generated mobile apps",
	Long: `previewkit turns a set of TypeScript/TSX source files into a single
self-contained browser bundle, without ever touching disk.

It resolves imports against an in-memory file system, lowers TSX to
plain JavaScript, shims the react-native surface onto the DOM, and
serves the result as a runnable HTML preview. Build problems come back
as structured diagnostics instead of a broken page.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("PREVIEWKIT_DEBUG") == "1" {
			verbose = true
		}
		var err error
		logger, err = logging.Init(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd runs the HTTP preview server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the preview HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		b, r, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg.Server.Addr, project.NewMemoryStore(), b, r)
		logging.L(logging.CategoryBoot).Info("starting",
			zap.String("version", version),
			zap.String("addr", cfg.Server.Addr))
		return srv.Run(ctx)
	},
}

var (
	buildEntry string
	buildOut   string
)

// buildCmd bundles a directory once and writes the result.
var buildCmd = &cobra.Command{
	Use:   "build <dir>",
	Short: "Bundle a source directory once and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		b, _, err := buildPipeline(cfg)
		if err != nil {
			return err
		}

		snapshot, err := snapshotDir(args[0])
		if err != nil {
			return err
		}

		art, err := b.Build(cmd.Context(), snapshot, buildEntry)
		if err != nil {
			return err
		}
		if !art.OK() {
			for _, d := range art.Diagnostics {
				fmt.Fprintln(os.Stderr, d.String())
			}
			return fmt.Errorf("build failed with %d diagnostic(s)", len(art.Diagnostics))
		}

		if buildOut == "" || buildOut == "-" {
			fmt.Println(art.Code)
			return nil
		}
		return os.WriteFile(buildOut, []byte(art.Code), 0o644)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the previewkit version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("previewkit %s\n", version)
	},
}

// buildPipeline wires registry, graph builder, bundler and renderer
// from config.
func buildPipeline(cfg *config.Config) (*bundler.Bundler, *preview.Renderer, error) {
	var reg *registry.Client
	if cfg.Registry.BaseURL != "" {
		timeout, err := cfg.RegistryTimeout()
		if err != nil {
			return nil, nil, err
		}
		reg, err = registry.NewClient(cfg.Registry.BaseURL, timeout, cfg.Registry.CacheSize)
		if err != nil {
			return nil, nil, err
		}
	}

	builder, err := graph.NewBuilder(shim.NewTable(), reg, cfg.Build.ModuleCacheSize, cfg.Build.Workers)
	if err != nil {
		return nil, nil, err
	}
	b, err := bundler.New(builder, cfg.Build.ArtifactCacheSize, cfg.Build.DiagnosticCap)
	if err != nil {
		return nil, nil, err
	}
	r, err := preview.NewRenderer()
	if err != nil {
		return nil, nil, err
	}
	return b, r, nil
}

// bundleExtensions lists the file types loaded into the VFS by the
// build command.
var bundleExtensions = map[string]bool{
	".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".mjs": true, ".cjs": true, ".json": true,
}

// snapshotDir reads a directory tree into an immutable snapshot.
func snapshotDir(dir string) (*vfs.Snapshot, error) {
	store := vfs.NewStore()
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && p != dir {
				return filepath.SkipDir
			}
			if d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !bundleExtensions[filepath.Ext(p)] {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		store.Put("/"+filepath.ToSlash(rel), string(content))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	return store.Snapshot(), nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to previewkit.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	buildCmd.Flags().StringVar(&buildEntry, "entry", "", "entry module path (default: probe /App.tsx and friends)")
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "", "output file (default: stdout)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
