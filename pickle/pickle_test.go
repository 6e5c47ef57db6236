package pickle_test

import (
	"bufio"
	"encoding/binary"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prethora/skhub/pickle"
)

// shortUnicode encodes s with SHORT_BINUNICODE.
func shortUnicode(s string) string {
	return string([]byte{0x8c, byte(len(s))}) + s
}

// binUnicode encodes s with BINUNICODE.
func binUnicode(s string) string {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	return "X" + string(n[:]) + s
}

// frame wraps body in a protocol 4 FRAME.
func frame(body string) string {
	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], uint64(len(body)))
	return "\x95" + string(n[:]) + body
}

func decodeString(t *testing.T, data string) any {
	t.Helper()
	v, err := pickle.Decode(strings.NewReader(data))
	require.NoError(t, err)
	return v
}

func TestDecodeScalars(t *testing.T) {
	big64, _ := new(big.Int).SetString("18446744073709551616", 10)

	tests := []struct {
		name string
		data string
		want any
	}{
		{name: "none", data: "\x80\x02N.", want: nil},
		{name: "true", data: "\x80\x02\x88.", want: true},
		{name: "false", data: "\x80\x02\x89.", want: false},
		{name: "protocol 0 bool", data: "I01\n.", want: true},
		{name: "protocol 0 int", data: "I-42\n.", want: int64(-42)},
		{name: "protocol 0 long", data: "L12345678901234567890L\n.", want: mustBig("12345678901234567890")},
		{name: "protocol 0 float", data: "F0.25\n.", want: 0.25},
		{name: "binint1", data: "K\xff.", want: int64(255)},
		{name: "binint2", data: "M\x00\x01.", want: int64(256)},
		{name: "binint", data: "J\xfe\xff\xff\xff.", want: int64(-2)},
		{name: "long1 negative", data: "\x8a\x01\xff.", want: int64(-1)},
		{name: "long1 zero", data: "\x8a\x00.", want: int64(0)},
		{name: "long1 big", data: "\x8a\x09\x00\x00\x00\x00\x00\x00\x00\x00\x01.", want: big64},
		{name: "binfloat", data: "G?\xf8\x00\x00\x00\x00\x00\x00.", want: 1.5},
		{name: "py2 str escapes", data: "S'caf\\xe9\\n'\n.", want: "café\n"},
		{name: "py2 short binstring", data: "U\x03ab\xe9.", want: "abé"},
		{name: "raw unicode escape", data: "Vcaf\\u00e9\n.", want: "café"},
		{name: "binunicode", data: binUnicode("héllo") + ".", want: "héllo"},
		{name: "short binbytes", data: "C\x03abc.", want: []byte("abc")},
		{name: "codecs encode", data: "\x80\x02c_codecs\nencode\nq\x00X\x03\x00\x00\x00abcq\x01X\x06\x00\x00\x00latin1q\x02\x86q\x03Rq\x04.", want: []byte("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decodeString(t, tt.data))
		})
	}
}

func mustBig(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func TestDecodeContainers(t *testing.T) {
	t.Run("protocol 0 tuple", func(t *testing.T) {
		v := decodeString(t, "(Va\np0\nI1\ntp1\n.")
		assert.Equal(t, pickle.Tuple{"a", int64(1)}, v)
	})

	t.Run("protocol 2 dict of list", func(t *testing.T) {
		v := decodeString(t, "\x80\x02}q\x00X\x07\x00\x00\x00weightsq\x01]q\x02(K\x01K\x02K\x03es.")
		d, ok := v.(*pickle.Dict)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, []any{"weights"}, d.Keys())
		assert.Equal(t, &pickle.List{int64(1), int64(2), int64(3)}, d.MustGet("weights"))
	})

	t.Run("memoized references are shared", func(t *testing.T) {
		v := decodeString(t, "\x80\x02]q\x00h\x00\x86q\x01.")
		pair, ok := v.(pickle.Tuple)
		require.True(t, ok, "got %T", v)
		require.Len(t, pair, 2)
		assert.Same(t, pair[0], pair[1])
	})

	t.Run("dict keeps insertion order", func(t *testing.T) {
		v := decodeString(t, "\x80\x02}(K\x03X\x01\x00\x00\x00cK\x01X\x01\x00\x00\x00aK\x02X\x01\x00\x00\x00bu.")
		d := v.(*pickle.Dict)
		assert.Equal(t, []any{int64(3), int64(1), int64(2)}, d.Keys())
		assert.Equal(t, "a", d.MustGet(int64(1)))
	})

	t.Run("set", func(t *testing.T) {
		v := decodeString(t, "\x80\x04\x8f(K\x01K\x02K\x01\x90.")
		s, ok := v.(*pickle.Set)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, []any{int64(1), int64(2)}, s.Items())
	})

	t.Run("frozenset", func(t *testing.T) {
		v := decodeString(t, "\x80\x04(K\x01K\x02\x91.")
		s, ok := v.(*pickle.FrozenSet)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, 2, s.Len())
	})

	t.Run("framed protocol 4", func(t *testing.T) {
		v := decodeString(t, "\x80\x04"+frame(shortUnicode("hello")+"\x94."))
		assert.Equal(t, "hello", v)
	})

	t.Run("ordered dict", func(t *testing.T) {
		v := decodeString(t, "\x80\x02ccollections\nOrderedDict\n)R(X\x01\x00\x00\x00aK\x01u.")
		d, ok := v.(*pickle.Dict)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, int64(1), d.MustGet("a"))
	})
}

func TestDecodeObject(t *testing.T) {
	data := "\x80\x04" +
		shortUnicode("sklearn.linear_model") + "\x94" +
		shortUnicode("LinearRegression") + "\x94" +
		"\x93\x94)\x81\x94}\x94(" +
		shortUnicode("fit_intercept") + "\x94\x88" +
		shortUnicode("n_features_in_") + "\x94K\x03" +
		"ub."

	v := decodeString(t, data)
	obj, ok := v.(*pickle.Object)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "sklearn.linear_model.LinearRegression", obj.Class.String())

	fit, ok := obj.Attr("fit_intercept")
	require.True(t, ok)
	assert.Equal(t, true, fit)
	n, ok := obj.Attr("n_features_in_")
	require.True(t, ok)
	assert.Equal(t, int64(3), n)

	_, ok = obj.Attr("coef_")
	assert.False(t, ok)
}

func TestDecodeProtocol0Object(t *testing.T) {
	// copy_reg._reconstructor(Model, object, None) followed by a dict BUILD.
	data := "ccopy_reg\n_reconstructor\np0\n(cmymodule\nModel\np1\nc__builtin__\nobject\np2\nNtp3\nRp4\n(dp5\nVname\np6\nVtree\np7\nsb."

	v := decodeString(t, data)
	obj, ok := v.(*pickle.Object)
	require.True(t, ok, "got %T", v)
	assert.Equal(t, "mymodule.Model", obj.Class.String())
	name, _ := obj.Attr("name")
	assert.Equal(t, "tree", name)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{name: "empty", data: "", want: pickle.ErrInvalidPickle},
		{name: "truncated", data: "\x80\x02K", want: pickle.ErrInvalidPickle},
		{name: "missing stop", data: "\x80\x02K\x01", want: pickle.ErrInvalidPickle},
		{name: "unknown opcode", data: "\xff.", want: pickle.ErrInvalidPickle},
		{name: "stack underflow", data: ".", want: pickle.ErrInvalidPickle},
		{name: "missing mark", data: "K\x01t.", want: pickle.ErrInvalidPickle},
		{name: "missing memo", data: "h\x05.", want: pickle.ErrInvalidPickle},
		{name: "not callable", data: "K\x01)R.", want: pickle.ErrInvalidPickle},
		{name: "unquoted string", data: "Sabc\n.", want: pickle.ErrInvalidPickle},
		{name: "future protocol", data: "\x80\x06N.", want: pickle.ErrUnsupported},
		{name: "persistent id", data: "P1\n.", want: pickle.ErrUnsupported},
		{name: "out-of-band buffer", data: "\x80\x05\x97.", want: pickle.ErrUnsupported},
		{name: "extension registry", data: "\x80\x02\x82\x01.", want: pickle.ErrUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pickle.Decode(strings.NewReader(tt.data))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUnpickler(t *testing.T) {
	t.Run("consecutive pickles", func(t *testing.T) {
		u := pickle.NewUnpickler(bufio.NewReader(strings.NewReader("K\x01.\x80\x02K\x02.tail")))

		first, err := u.Load()
		require.NoError(t, err)
		assert.Equal(t, int64(1), first)

		second, err := u.Load()
		require.NoError(t, err)
		assert.Equal(t, int64(2), second)
		assert.Equal(t, 2, u.Protocol())

		rest, err := io.ReadAll(u.RawReader())
		require.NoError(t, err)
		assert.Equal(t, "tail", string(rest))
	})

	t.Run("find class hook", func(t *testing.T) {
		u := pickle.NewUnpickler(strings.NewReader("\x80\x02cpkg\nThing\n)R."))
		u.FindClass = func(module, name string) (any, error) {
			if module == "pkg" {
				return &pickle.Class{Module: "renamed", Name: name}, nil
			}
			return nil, nil
		}
		v, err := u.Load()
		require.NoError(t, err)
		obj, ok := v.(*pickle.Object)
		require.True(t, ok, "got %T", v)
		assert.Equal(t, "renamed.Thing", obj.Class.String())
	})

	t.Run("persistent load hook", func(t *testing.T) {
		u := pickle.NewUnpickler(strings.NewReader("\x80\x02X\x02\x00\x00\x00idQ."))
		u.PersistentLoad = func(pid any) (any, error) {
			return "loaded:" + pid.(string), nil
		}
		v, err := u.Load()
		require.NoError(t, err)
		assert.Equal(t, "loaded:id", v)
	})

	t.Run("after build replaces object", func(t *testing.T) {
		u := pickle.NewUnpickler(strings.NewReader("\x80\x02cpkg\nThing\n)R\x94}b\x94h\x00\x86."))
		u.AfterBuild = func(obj any) (any, bool, error) {
			return "replaced", true, nil
		}
		v, err := u.Load()
		require.NoError(t, err)
		assert.Equal(t, pickle.Tuple{"replaced", "replaced"}, v)
	})
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(dir, "model.pkl")
		require.NoError(t, os.WriteFile(path, []byte("\x80\x02K\x07."), 0644))
		v, err := pickle.Load(path)
		require.NoError(t, err)
		assert.Equal(t, int64(7), v)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := pickle.Load(filepath.Join(dir, "missing.pkl"))
		require.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.pkl")
		require.NoError(t, os.WriteFile(path, []byte("not a pickle"), 0644))
		_, err := pickle.Load(path)
		require.ErrorIs(t, err, pickle.ErrInvalidPickle)
		assert.Contains(t, err.Error(), path)
	})
}

func TestToInt(t *testing.T) {
	n, err := pickle.ToInt(int64(5))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = pickle.ToInt(true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = pickle.ToInt("5")
	require.ErrorIs(t, err, pickle.ErrInvalidPickle)

	_, err = pickle.ToInt(mustBig("18446744073709551616"))
	require.ErrorIs(t, err, pickle.ErrInvalidPickle)
}
