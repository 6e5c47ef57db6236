package skhub

import (
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// LoadOption configures a single load operation.
type LoadOption func(*loadConfig)

// loadConfig holds the parameters of a load operation.
type loadConfig struct {
	// filename is the file to fetch from the repository.
	filename string

	// method selects the decoder.
	method SerializationMethod

	// revision is the repository revision.
	revision string

	// cacheDir overrides the loader's cache directory.
	cacheDir string
}

// newLoadConfig returns a loadConfig with default values.
func newLoadConfig() *loadConfig {
	return &loadConfig{
		method: Joblib,
	}
}

// WithFilename sets the file to fetch from the repository.
func WithFilename(filename string) LoadOption {
	return func(c *loadConfig) {
		c.filename = filename
	}
}

// WithSerializationMethod selects the decoder.
// Default is Joblib. Invalid values are reported when the load runs.
func WithSerializationMethod(method SerializationMethod) LoadOption {
	return func(c *loadConfig) {
		c.method = method
	}
}

// WithRevision sets the repository revision: a branch, tag or commit hash.
// Default is "main".
func WithRevision(revision string) LoadOption {
	return func(c *loadConfig) {
		c.revision = revision
	}
}

// WithCacheDir overrides the cache directory for this load.
func WithCacheDir(dir string) LoadOption {
	return func(c *loadConfig) {
		c.cacheDir = dir
	}
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig)

// loaderConfig holds configuration for Loader construction.
type loaderConfig struct {
	fetcher        Fetcher
	joblibDecoder  Decoder
	pickleDecoder  Decoder
	logger         Logger
	metrics        bool
	readHook       ReadHook
	tracerProvider trace.TracerProvider
}

// newLoaderConfig returns a loaderConfig with default values.
func newLoaderConfig() *loaderConfig {
	return &loaderConfig{
		tracerProvider: otel.GetTracerProvider(),
	}
}

// WithFetcher replaces the hub fetcher.
// Useful for testing, or for resolving models from another source.
func WithFetcher(f Fetcher) LoaderOption {
	return func(c *loaderConfig) {
		c.fetcher = f
	}
}

// WithJoblibDecoder replaces the decoder used for Joblib.
func WithJoblibDecoder(d Decoder) LoaderOption {
	return func(c *loaderConfig) {
		c.joblibDecoder = d
	}
}

// WithPickleDecoder replaces the decoder used for Pickle.
func WithPickleDecoder(d Decoder) LoaderOption {
	return func(c *loaderConfig) {
		c.pickleDecoder = d
	}
}

// WithLogger sets a logger for diagnostic output.
// If not set, logging is disabled.
func WithLogger(logger Logger) LoaderOption {
	return func(c *loaderConfig) {
		c.logger = logger
	}
}

// WithMetrics records fetch and decode durations as Prometheus metrics
// in the default registry.
func WithMetrics() LoaderOption {
	return func(c *loaderConfig) {
		c.metrics = true
	}
}

// WithReadHook installs a hook on the default decoders, called with the
// size of every file before it is decoded. The returned reader is decoded
// instead of the file. It has no effect on decoders set with
// WithJoblibDecoder or WithPickleDecoder.
func WithReadHook(hook ReadHook) LoaderOption {
	return func(c *loaderConfig) {
		c.readHook = hook
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) LoaderOption {
	return func(c *loaderConfig) {
		c.tracerProvider = tp
	}
}

// ReadHook wraps the reader of a file about to be decoded.
// size is the file size in bytes.
type ReadHook func(size int64, r io.Reader) io.Reader

// Logger is the interface for diagnostic logging.
// Compatible with slog, zap, logrus, and other structured loggers.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, keysAndValues ...any)
}
