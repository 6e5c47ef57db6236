// Package skhub loads scikit-learn style model artifacts from the Hugging
// Face Hub.
//
// The package serves two primary use cases:
//
//  1. Programmatic API - LoadModel fetches a file from a Hub repository and
//     decodes it in one call. HubLoader stores the same parameters and
//     performs the identical fetch and decode every time Load is called.
//     Both go through a Loader, which can be configured with a custom
//     Fetcher, custom Decoders, a Logger and Prometheus metrics.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach a "hub"
//     subcommand tree to their Cobra root command, providing commands like
//     "mytool hub load org/model --filename model.joblib".
//
// # Serialization Methods
//
// Two formats are supported, selected with SerializationMethod:
//   - Joblib (the default): files written by joblib.dump, optionally
//     compressed with zlib, gzip, bz2, xz, lzma or lz4.
//   - Pickle: files written by pickle.dump.
//
// Decoded values are plain Go values and the types of package pickle; no
// Python code is executed.
//
// # Errors
//
// An unknown serialization method yields ErrInvalidArgument before anything
// is downloaded. Errors from the Fetcher and the Decoder are returned
// unchanged, so callers can inspect them with errors.Is and errors.As.
//
// # Thread Safety
//
// A Loader holds no mutable state; LoadModel and HubLoader.Load can be
// called concurrently from multiple goroutines.
//
// # Storage
//
// Downloads are cached by the Hub client in $HF_HOME/hub, or
// ~/.cache/huggingface/hub when HF_HOME is unset. The location can be
// overridden per call with WithCacheDir, through Config.CacheDir or the
// SKHUB_CACHE_DIR environment variable.
package skhub
