package skhub

import (
	"fmt"
	"strconv"

	"github.com/spf13/pflag"
)

// Config configures the hub client used by a Loader.
type Config struct {
	// CacheDir overrides the hub cache directory.
	// If empty, uses $HF_HOME/hub or ~/.cache/huggingface/hub.
	// Can also be set via environment variable: SKHUB_CACHE_DIR
	CacheDir string

	// Token authenticates requests to private repositories.
	// If empty, the token stored by the hub client is used.
	// Can also be set via environment variable: HF_TOKEN
	Token string

	// Endpoint overrides the Hub base URL, e.g., "https://hf-mirror.com".
	// If empty, uses https://huggingface.co.
	// Can also be set via environment variable: HF_ENDPOINT
	Endpoint string

	// Progress enables the hub client's download progress bar.
	Progress bool
}

// ModelRef identifies a file in a Hub model repository.
type ModelRef struct {
	// RepoID is the repository identifier, e.g., "org/model-a".
	RepoID string

	// Filename is the path of the file within the repository, e.g., "model.joblib".
	Filename string

	// Revision is a branch, tag or commit hash. Empty means "main".
	Revision string

	// CacheDir overrides the cache directory for this reference only.
	CacheDir string
}

// String returns the canonical string form: "repo/filename@revision".
// The revision suffix is omitted when Revision is empty.
func (r ModelRef) String() string {
	s := r.RepoID
	if r.Filename != "" {
		s += "/" + r.Filename
	}
	if r.Revision != "" {
		s += "@" + r.Revision
	}
	return s
}

// SerializationMethod selects the format a model file is decoded with.
type SerializationMethod int

const (
	// Joblib decodes files written by joblib.dump. It is the zero value.
	Joblib SerializationMethod = iota

	// Pickle decodes files written by pickle.dump.
	Pickle
)

// String returns "joblib" or "pickle".
func (m SerializationMethod) String() string {
	switch m {
	case Joblib:
		return "joblib"
	case Pickle:
		return "pickle"
	}
	return "SerializationMethod(" + strconv.Itoa(int(m)) + ")"
}

// ParseSerializationMethod parses "joblib" or "pickle".
// Returns ErrInvalidArgument for any other value, including "".
func ParseSerializationMethod(s string) (SerializationMethod, error) {
	switch s {
	case "joblib":
		return Joblib, nil
	case "pickle":
		return Pickle, nil
	}
	return 0, fmt.Errorf("%w, got %q", ErrInvalidArgument, s)
}

var _ pflag.Value = (*SerializationMethod)(nil)

// Set implements pflag.Value.
func (m *SerializationMethod) Set(s string) error {
	parsed, err := ParseSerializationMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Type implements pflag.Value.
func (m *SerializationMethod) Type() string {
	return "method"
}

// MarshalText implements encoding.TextMarshaler.
func (m SerializationMethod) MarshalText() ([]byte, error) {
	switch m {
	case Joblib, Pickle:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("%w, got %s", ErrInvalidArgument, m)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *SerializationMethod) UnmarshalText(text []byte) error {
	return m.Set(string(text))
}
