package skhub

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Loader fetches model files and decodes them.
// It holds no mutable state and is safe for concurrent use.
type Loader struct {
	// fetcher resolves references to local paths.
	fetcher Fetcher

	// joblibDecoder and pickleDecoder serve Joblib and Pickle.
	joblibDecoder Decoder
	pickleDecoder Decoder

	// logger receives diagnostic messages. May be nil.
	logger Logger

	tracer trace.Tracer
}

// LoadModel fetches a file from a Hub repository and decodes it.
// See the package-level LoadModel.
func (l *Loader) LoadModel(ctx context.Context, repoID string, opts ...LoadOption) (any, error) {
	c := newLoadConfig()
	for _, opt := range opts {
		opt(c)
	}
	ref := ModelRef{
		RepoID:   repoID,
		Filename: c.filename,
		Revision: c.revision,
		CacheDir: c.cacheDir,
	}
	return l.load(ctx, ref, c.method)
}

// HubLoader returns a HubLoader bound to l.
func (l *Loader) HubLoader(repoID string, opts ...LoadOption) *HubLoader {
	return newHubLoader(l, repoID, opts)
}

// Fetch resolves ref to a local path without decoding it.
func (l *Loader) Fetch(ctx context.Context, ref ModelRef) (string, error) {
	return l.fetcher.Fetch(ctx, ref)
}

// Decode decodes a local file with the decoder selected by method.
func (l *Loader) Decode(path string, method SerializationMethod) (any, error) {
	dec, err := l.decoder(method)
	if err != nil {
		return nil, err
	}
	return dec.Decode(path)
}

// load is the single code path behind LoadModel and HubLoader.Load.
func (l *Loader) load(ctx context.Context, ref ModelRef, method SerializationMethod) (any, error) {
	ctx, span := l.tracer.Start(ctx, "Loader.LoadModel", trace.WithAttributes(
		attribute.String("repo_id", ref.RepoID),
		attribute.String("filename", ref.Filename),
		attribute.String("revision", ref.Revision),
		attribute.String("serialization_method", method.String()),
	))
	defer span.End()

	v, err := l.fetchAndDecode(ctx, ref, method)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return v, nil
}

func (l *Loader) fetchAndDecode(ctx context.Context, ref ModelRef, method SerializationMethod) (any, error) {
	// An invalid method fails before anything is fetched.
	dec, err := l.decoder(method)
	if err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Debug("fetching model", "ref", ref.String())
	}
	path, err := l.fetcher.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}

	if l.logger != nil {
		l.logger.Debug("decoding model", "path", path, "method", method.String())
	}
	v, err := dec.Decode(path)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (l *Loader) decoder(method SerializationMethod) (Decoder, error) {
	switch method {
	case Joblib:
		return l.joblibDecoder, nil
	case Pickle:
		return l.pickleDecoder, nil
	default:
		return nil, fmt.Errorf("%w, got %s", ErrInvalidArgument, method)
	}
}
