package skhub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prethora/skhub/pickle"
)

// Concurrency constants for the load command.
const (
	// DefaultConcurrency is the default number of models loaded at once.
	DefaultConcurrency = 4

	// MaxConcurrency is the maximum allowed number of models loaded at once.
	MaxConcurrency = 16
)

// cliState holds the global flags and the configuration they produce.
type cliState struct {
	jsonOutput      bool
	quiet           bool
	verbose         bool
	configPath      string
	metricsTextfile string

	// cfg is the Config passed to NewCommand, merged with the config file.
	cfg Config

	// opts are the LoaderOptions passed to NewCommand plus the ones
	// derived from flags.
	opts []LoaderOption

	// defaults are the load options read from the config file.
	defaults []LoadOption
}

// loader creates a Loader. A progress bar is drawn on w while decoding
// when progress is set.
func (s *cliState) loader(w io.Writer, progress bool) *Loader {
	opts := append([]LoaderOption(nil), s.opts...)
	if progress && !s.quiet && !s.jsonOutput {
		opts = append(opts, WithReadHook(progressHook(w)))
	}
	return NewLoader(s.cfg, opts...)
}

// NewCommand creates a Cobra command tree for loading models from the Hub.
// The returned command should be added to a parent CLI's root command.
//
// Commands provided:
//   - hub load <repo-id>... [--filename] [--method] [--revision] [--concurrency]
//   - hub fetch <repo-id> --filename <file> [--revision]
//   - hub decode <path> [--method]
//   - hub list [--cache-dir]
//
// Global flags: --json, --quiet, --verbose, --config, --metrics-textfile
func NewCommand(cfg Config, opts ...LoaderOption) *cobra.Command {
	state := &cliState{}

	cmd := &cobra.Command{
		Use:   "hub",
		Short: "Load models from the Hugging Face Hub",
		Long:  "Fetch scikit-learn style model files from the Hugging Face Hub and decode joblib and pickle files.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip setup for help commands
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			return state.setup(cfg, opts)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if state.metricsTextfile == "" {
				return nil
			}
			if err := prometheus.WriteToTextfile(state.metricsTextfile, prometheus.DefaultGatherer); err != nil {
				return fmt.Errorf("writing metrics: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVar(&state.jsonOutput, "json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolVarP(&state.quiet, "quiet", "q", false, "Suppress non-essential output")
	cmd.PersistentFlags().BoolVarP(&state.verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "Path to a YAML configuration file")
	cmd.PersistentFlags().StringVar(&state.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	// Add subcommands
	cmd.AddCommand(loadCmd(state))
	cmd.AddCommand(fetchCmd(state))
	cmd.AddCommand(decodeCmd(state))
	cmd.AddCommand(listCmd(state))

	return cmd
}

// setup reads the config file and builds the logger.
func (s *cliState) setup(cfg Config, opts []LoaderOption) error {
	s.cfg = cfg
	s.defaults = nil
	if s.configPath != "" {
		fc, err := LoadConfigFile(s.configPath)
		if err != nil {
			return err
		}
		s.cfg = fc.Config(cfg)
		s.defaults = fc.LoadOptions()
	}

	var (
		logger *zap.Logger
		err    error
	)
	if s.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	s.opts = append([]LoaderOption{WithLogger(NewZapLogger(logger))}, opts...)
	if s.metricsTextfile != "" {
		s.opts = append(s.opts, WithMetrics())
	}
	return nil
}

// refFlags are the flags naming a file in a repository.
type refFlags struct {
	filename string
	revision string
	cacheDir string
}

func (f *refFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.filename, "filename", "f", "", "File to fetch from the repository")
	cmd.Flags().StringVarP(&f.revision, "revision", "r", "", "Branch, tag or commit (default \"main\")")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "", "Override the hub cache directory")
}

// loadOptions returns the config file defaults overridden by the flags
// set on cmd.
func (f *refFlags) loadOptions(cmd *cobra.Command, defaults []LoadOption) []LoadOption {
	opts := append([]LoadOption(nil), defaults...)
	if cmd.Flags().Changed("filename") {
		opts = append(opts, WithFilename(f.filename))
	}
	if cmd.Flags().Changed("revision") {
		opts = append(opts, WithRevision(f.revision))
	}
	if cmd.Flags().Changed("cache-dir") {
		opts = append(opts, WithCacheDir(f.cacheDir))
	}
	return opts
}

// loadResult is the outcome of loading one model.
type loadResult struct {
	RepoID   string              `json:"repo_id"`
	Filename string              `json:"filename"`
	Revision string              `json:"revision,omitempty"`
	Method   SerializationMethod `json:"method"`
	Type     string              `json:"type"`
	Model    json.RawMessage     `json:"model,omitempty"`
}

func loadCmd(state *cliState) *cobra.Command {
	var (
		ref         refFlags
		method      SerializationMethod
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "load <repo-id>...",
		Short: "Fetch and decode models",
		Long:  "Fetch a file from each repository and decode it. Prints a summary, or the decoded models with --json.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := ref.loadOptions(cmd, state.defaults)
			if cmd.Flags().Changed("method") {
				opts = append(opts, WithSerializationMethod(method))
			}

			if concurrency < 1 {
				concurrency = 1
			}
			if concurrency > MaxConcurrency {
				concurrency = MaxConcurrency
			}

			// One progress bar at a time.
			loader := state.loader(cmd.ErrOrStderr(), len(args) == 1 || concurrency == 1)

			results := make([]loadResult, len(args))
			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(concurrency)
			for i, repoID := range args {
				g.Go(func() error {
					h := loader.HubLoader(repoID, opts...)
					v, err := h.Load(ctx)
					if err != nil {
						return fmt.Errorf("loading %s: %w", repoID, err)
					}
					result := loadResult{
						RepoID:   h.RepoID,
						Filename: h.Filename,
						Revision: h.Revision,
						Method:   h.SerializationMethod,
						Type:     describeValue(v),
					}
					if state.jsonOutput {
						if result.Model, err = pickle.MarshalJSON(v); err != nil {
							return fmt.Errorf("encoding %s: %w", repoID, err)
						}
					}
					results[i] = result
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return outputLoadResults(cmd.OutOrStdout(), results, state.jsonOutput)
		},
	}

	ref.register(cmd)
	cmd.Flags().VarP(&method, "method", "m", "Serialization method: joblib or pickle (default joblib)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", DefaultConcurrency, "Number of models loaded at once")
	return cmd
}

func fetchCmd(state *cliState) *cobra.Command {
	var ref refFlags

	cmd := &cobra.Command{
		Use:   "fetch <repo-id>",
		Short: "Download a model file",
		Long:  "Download a file from a repository, or find it in the cache, and print its local path.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newLoadConfig()
			for _, opt := range ref.loadOptions(cmd, state.defaults) {
				opt(c)
			}
			mref := ModelRef{
				RepoID:   args[0],
				Filename: c.filename,
				Revision: c.revision,
				CacheDir: c.cacheDir,
			}

			path, err := state.loader(cmd.ErrOrStderr(), false).Fetch(cmd.Context(), mref)
			if err != nil {
				return err
			}
			info, err := os.Stat(path)
			if err != nil {
				return err
			}
			return outputFetchResult(cmd.OutOrStdout(), path, info.Size(), state.jsonOutput, state.quiet)
		},
	}

	ref.register(cmd)
	return cmd
}

func decodeCmd(state *cliState) *cobra.Command {
	var method SerializationMethod

	cmd := &cobra.Command{
		Use:   "decode <path>",
		Short: "Decode a local model file",
		Long:  "Decode a local joblib or pickle file and print it as JSON.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("method") {
				c := newLoadConfig()
				for _, opt := range state.defaults {
					opt(c)
				}
				method = c.method
			}

			v, err := state.loader(cmd.ErrOrStderr(), true).Decode(args[0], method)
			if err != nil {
				return fmt.Errorf("decoding %s: %w", args[0], err)
			}
			data, err := pickle.MarshalJSON(v)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := json.Indent(&buf, data, "", "  "); err != nil {
				return err
			}
			buf.WriteByte('\n')
			_, err = buf.WriteTo(cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().VarP(&method, "method", "m", "Serialization method: joblib or pickle (default joblib)")
	return cmd
}

func listCmd(state *cliState) *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached model files",
		Long:  "List the model files stored in the hub cache directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := state.cacheDir(cacheDir)
			if err != nil {
				return err
			}
			files, err := ListCached(dir)
			if err != nil {
				return err
			}
			return outputCachedFiles(cmd.OutOrStdout(), files, state.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Override the hub cache directory")
	return cmd
}

// cacheDir returns the hub cache directory, override taking precedence
// over the environment and the configuration.
func (s *cliState) cacheDir(override string) (string, error) {
	cfg := ApplyEnv(s.cfg)
	if override != "" {
		cfg.CacheDir = override
	}
	return resolveCacheDir(ModelRef{}, cfg)
}

// progressHook draws a byte progress bar on w for every decoded file.
func progressHook(w io.Writer) ReadHook {
	return func(size int64, r io.Reader) io.Reader {
		bar := progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("decoding"),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
		return io.TeeReader(r, bar)
	}
}

// describeValue returns a short description of a decoded model.
func describeValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case *pickle.Object:
		return x.Class.String()
	case *pickle.Class:
		return "class " + x.String()
	case *pickle.NDArray:
		if x.Dtype == nil {
			return fmt.Sprintf("ndarray %v", x.Shape)
		}
		return fmt.Sprintf("ndarray[%s] %v", x.Dtype, x.Shape)
	case *pickle.Dict:
		return fmt.Sprintf("dict (%d items)", x.Len())
	case *pickle.List:
		return fmt.Sprintf("list (%d items)", x.Len())
	case pickle.Tuple:
		return fmt.Sprintf("tuple (%d items)", len(x))
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Output helpers

func outputLoadResults(w io.Writer, results []loadResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tFILE\tMETHOD\tTYPE")
	for _, r := range results {
		model := r.RepoID
		if r.Revision != "" {
			model += "@" + r.Revision
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", model, r.Filename, r.Method, r.Type)
	}
	return tw.Flush()
}

func outputFetchResult(w io.Writer, path string, size int64, asJSON, quiet bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Path string `json:"path"`
			Size int64  `json:"size"`
		}{path, size})
	}

	if quiet {
		fmt.Fprintln(w, path)
		return nil
	}
	fmt.Fprintf(w, "%s (%s)\n", path, humanize.Bytes(uint64(size)))
	return nil
}

func outputCachedFiles(w io.Writer, files []CachedFile, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(files)
	}

	if len(files) == 0 {
		fmt.Fprintln(w, "No cached models")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tFILE\tREVISION\tSIZE\tMODIFIED")
	for _, f := range files {
		revision := f.Commit
		if len(revision) > 12 {
			revision = revision[:12]
		}
		if len(f.Revisions) > 0 {
			revision = f.Revisions[0]
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			f.RepoID,
			f.Filename,
			revision,
			humanize.Bytes(uint64(f.Size)),
			humanize.Time(f.ModTime),
		)
	}
	return tw.Flush()
}
