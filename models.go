package skhub

import (
	"context"

	"github.com/prethora/skhub/joblib"
	"github.com/prethora/skhub/pickle"
)

// Fetcher resolves a model reference to a local file path.
type Fetcher interface {
	// Fetch returns the path of the file named by ref, downloading it if
	// it is not cached yet.
	Fetch(ctx context.Context, ref ModelRef) (string, error)
}

// Decoder decodes a model file.
type Decoder interface {
	// Decode reads the file at path and returns the decoded value.
	Decode(path string) (any, error)
}

// Ensure the default collaborators implement their interfaces.
var (
	_ Fetcher = (*hubFetcher)(nil)
	_ Decoder = (*FileDecoder)(nil)
)

// NewLoader creates a Loader with the given configuration.
// Without options it fetches from the Hub and decodes with packages joblib
// and pickle.
func NewLoader(cfg Config, opts ...LoaderOption) *Loader {
	lcfg := newLoaderConfig()
	for _, opt := range opts {
		opt(lcfg)
	}

	fetcher := lcfg.fetcher
	if fetcher == nil {
		fetcher = NewHubFetcher(cfg, lcfg.logger)
	}
	joblibDecoder := lcfg.joblibDecoder
	if joblibDecoder == nil {
		joblibDecoder = NewFileDecoder(joblib.Decode, lcfg.readHook)
	}
	pickleDecoder := lcfg.pickleDecoder
	if pickleDecoder == nil {
		pickleDecoder = NewFileDecoder(pickle.Decode, lcfg.readHook)
	}

	if lcfg.metrics {
		fetcher = NewMetricsFetcher(fetcher)
		joblibDecoder = NewMetricsDecoder(joblibDecoder, Joblib)
		pickleDecoder = NewMetricsDecoder(pickleDecoder, Pickle)
	}

	return &Loader{
		fetcher:       fetcher,
		joblibDecoder: joblibDecoder,
		pickleDecoder: pickleDecoder,
		logger:        lcfg.logger,
		tracer:        lcfg.tracerProvider.Tracer("github.com/prethora/skhub"),
	}
}

// LoadModel fetches a file from a Hub repository and decodes it with the
// default Loader.
//
// The serialization method defaults to Joblib. Any method other than Joblib
// or Pickle fails with ErrInvalidArgument before anything is fetched, so an
// invalid method is reported even when the fetch would also have failed.
// Errors from the fetch and decode steps are returned unchanged.
func LoadModel(ctx context.Context, repoID string, opts ...LoadOption) (any, error) {
	return NewLoader(Config{}).LoadModel(ctx, repoID, opts...)
}

// HubLoader holds the parameters of a load and performs it on demand.
// Fields are used verbatim; an invalid SerializationMethod is only reported
// by Load.
type HubLoader struct {
	// RepoID is the repository identifier, e.g., "org/model-a".
	RepoID string

	// Filename is the file to fetch from the repository.
	Filename string

	// SerializationMethod selects the decoder.
	SerializationMethod SerializationMethod

	// Revision is the repository revision. Empty means "main".
	Revision string

	// CacheDir overrides the cache directory.
	CacheDir string

	// loader performs the load. May be nil.
	loader *Loader
}

// NewHubLoader returns a HubLoader that uses the default Loader.
func NewHubLoader(repoID string, opts ...LoadOption) *HubLoader {
	return newHubLoader(nil, repoID, opts)
}

func newHubLoader(l *Loader, repoID string, opts []LoadOption) *HubLoader {
	c := newLoadConfig()
	for _, opt := range opts {
		opt(c)
	}
	return &HubLoader{
		RepoID:              repoID,
		Filename:            c.filename,
		SerializationMethod: c.method,
		Revision:            c.revision,
		CacheDir:            c.cacheDir,
		loader:              l,
	}
}

// Load fetches and decodes the model. Every call repeats both steps.
// The method is checked first, as in LoadModel.
func (h *HubLoader) Load(ctx context.Context) (any, error) {
	l := h.loader
	if l == nil {
		l = NewLoader(Config{})
	}
	return l.load(ctx, h.ref(), h.SerializationMethod)
}

func (h *HubLoader) ref() ModelRef {
	return ModelRef{
		RepoID:   h.RepoID,
		Filename: h.Filename,
		Revision: h.Revision,
		CacheDir: h.CacheDir,
	}
}
