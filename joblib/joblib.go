// Package joblib decodes files written by joblib.dump.
//
// A joblib file is a pickle stream, optionally compressed as a whole, in
// which every numpy array is replaced by a NumpyArrayWrapper followed by
// the array bytes written outside of the pickle opcodes. Decode returns
// the same Go values as package pickle, with wrapped arrays resolved to
// *pickle.NDArray.
package joblib

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"

	"github.com/prethora/skhub/pickle"
)

// ErrUnsupported indicates a joblib file layout this package cannot read.
var ErrUnsupported = errors.New("joblib: unsupported file format")

// Compression identifies the compressor applied to a joblib file.
type Compression int

// Compressors recognized by DetectCompression.
const (
	None Compression = iota
	Zlib
	Gzip
	BZ2
	XZ
	LZMA
	LZ4
	// LegacyZFile is the "ZF" header format of joblib < 0.10.
	LegacyZFile
)

var compressionNames = map[Compression]string{
	None:        "none",
	Zlib:        "zlib",
	Gzip:        "gzip",
	BZ2:         "bz2",
	XZ:          "xz",
	LZMA:        "lzma",
	LZ4:         "lz4",
	LegacyZFile: "zfile",
}

func (c Compression) String() string {
	if name, ok := compressionNames[c]; ok {
		return name
	}
	return "Compression(" + strconv.Itoa(int(c)) + ")"
}

// File prefixes, as checked by joblib.numpy_pickle_utils._detect_compressor.
var (
	zlibPrefix  = []byte{0x78}
	gzipPrefix  = []byte{0x1f, 0x8b}
	bz2Prefix   = []byte("BZh")
	xzPrefix    = []byte{0xfd, '7', 'z', 'X', 'Z'}
	lzmaPrefix  = []byte{0x5d, 0x00, 0x00}
	lz4Prefix   = []byte{0x04, 0x22, 0x4d, 0x18}
	zfilePrefix = []byte("ZF")
)

// zfileLengthSize is len(hex(2**64)), the width of the legacy length field.
const zfileLengthSize = 19

// DetectCompression identifies the compressor from the first bytes of a
// file.
func DetectCompression(prefix []byte) Compression {
	switch {
	case bytes.HasPrefix(prefix, zfilePrefix):
		return LegacyZFile
	case bytes.HasPrefix(prefix, zlibPrefix):
		return Zlib
	case bytes.HasPrefix(prefix, gzipPrefix):
		return Gzip
	case bytes.HasPrefix(prefix, bz2Prefix):
		return BZ2
	case bytes.HasPrefix(prefix, xzPrefix):
		return XZ
	case bytes.HasPrefix(prefix, lzmaPrefix):
		return LZMA
	case bytes.HasPrefix(prefix, lz4Prefix):
		return LZ4
	}
	return None
}

// Load decodes the joblib file at path.
func Load(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	v, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return v, nil
}

// Decode decodes a joblib stream.
func Decode(r io.Reader) (any, error) {
	br := bufio.NewReader(r)
	prefix, err := br.Peek(len(xzPrefix))
	if err != nil && len(prefix) == 0 {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty file", pickle.ErrInvalidPickle)
		}
		return nil, err
	}

	stream, closer, err := decompress(DetectCompression(prefix), br)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	u := pickle.NewUnpickler(bufio.NewReader(stream))
	u.FindClass = findClass
	u.AfterBuild = func(obj any) (any, bool, error) {
		w, ok := obj.(*arrayWrapper)
		if !ok {
			return nil, false, nil
		}
		arr, err := w.read(u)
		if err != nil {
			return nil, false, err
		}
		return arr, true, nil
	}
	return u.Load()
}

func decompress(c Compression, r *bufio.Reader) (io.Reader, io.Closer, error) {
	switch c {
	case None:
		return r, nil, nil
	case Zlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening zlib stream: %w", err)
		}
		return zr, zr, nil
	case Gzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
		}
		return gr, gr, nil
	case BZ2:
		return bzip2.NewReader(r), nil, nil
	case XZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening xz stream: %w", err)
		}
		return xr, nil, nil
	case LZMA:
		lr, err := lzma.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("opening lzma stream: %w", err)
		}
		return lr, nil, nil
	case LZ4:
		return lz4.NewReader(r), nil, nil
	case LegacyZFile:
		return openZFile(r)
	}
	return nil, nil, fmt.Errorf("%w: compression %s", ErrUnsupported, c)
}

// openZFile skips the "ZF" header of joblib < 0.10 files: the prefix, the
// hex encoded uncompressed length padded to zfileLengthSize, and an
// optional trailing space.
func openZFile(r *bufio.Reader) (io.Reader, io.Closer, error) {
	header := make([]byte, len(zfilePrefix)+zfileLengthSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, fmt.Errorf("%w: truncated ZF header", pickle.ErrInvalidPickle)
	}
	field := strings.TrimSpace(string(header[len(zfilePrefix):]))
	if _, err := strconv.ParseUint(strings.TrimPrefix(field, "0x"), 16, 64); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid ZF length %q", pickle.ErrInvalidPickle, field)
	}
	if next, err := r.Peek(1); err == nil && next[0] == ' ' {
		r.Discard(1)
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("opening zlib stream: %w", err)
	}
	return zr, zr, nil
}

func findClass(module, name string) (any, error) {
	switch module {
	case "joblib.numpy_pickle", "sklearn.externals.joblib.numpy_pickle":
		switch name {
		case "NumpyArrayWrapper":
			return wrapperClass{}, nil
		case "NDArrayWrapper", "ZNDArrayWrapper":
			return nil, fmt.Errorf("%w: %s arrays are stored in separate files", ErrUnsupported, name)
		}
	}
	return nil, nil
}
