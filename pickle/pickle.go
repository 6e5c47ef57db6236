// Package pickle decodes Python pickle streams (protocols 0 to 5) into Go
// values.
//
// Python built-in types map onto Go types: None is nil, bool is bool, int
// is int64 (or *big.Int when it does not fit), float is float64, str is
// string, bytes and bytearray are []byte, list is *List, tuple is Tuple,
// dict is *Dict and set is *Set. numpy dtypes and arrays decode to *Dtype
// and *NDArray. Instances of any other class decode to *Object, which keeps
// the class name, the constructor arguments and the attribute dict, so a
// pickled scikit-learn estimator can be inspected without Python.
//
// No Python code is ever executed: callables found in the stream are
// either implemented here or recorded as *Class.
package pickle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrInvalidPickle indicates malformed or truncated pickle data.
	ErrInvalidPickle = errors.New("pickle: invalid pickle data")

	// ErrUnsupported indicates a valid pickle feature this package does
	// not implement.
	ErrUnsupported = errors.New("pickle: unsupported feature")
)

// Decode reads a single pickle from r.
func Decode(r io.Reader) (any, error) {
	return NewUnpickler(r).Load()
}

// Load reads the pickle stored in the file at path.
func Load(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}
