package pickle_test

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prethora/skhub/pickle"
)

// dtypePickle is the protocol 2 encoding of numpy.dtype(descr) with a
// little-endian byte order state.
func dtypePickle(descr string) string {
	return "cnumpy\ndtype\n" + binUnicode(descr) + "K\x00K\x01\x87R" +
		"(K\x03" + binUnicode("<") + "NNNJ\xff\xff\xff\xffJ\xff\xff\xff\xffK\x00tb"
}

// float64ArrayPickle is what numpy writes for np.array(values) with
// protocol 2.
func float64ArrayPickle(values []float64) string {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], math.Float64bits(v))
	}
	return "\x80\x02cnumpy.core.multiarray\n_reconstruct\n" +
		"cnumpy\nndarray\nK\x00\x85C\x01b\x87R" +
		"(K\x01K" + string([]byte{byte(len(values))}) + "\x85" + dtypePickle("f8") +
		"\x89C" + string([]byte{byte(len(data))}) + string(data) + "tb."
}

func TestDecodeNDArray(t *testing.T) {
	v := decodeString(t, float64ArrayPickle([]float64{1, 2.5, -3}))
	arr, ok := v.(*pickle.NDArray)
	require.True(t, ok, "got %T", v)

	assert.Equal(t, []int{3}, arr.Shape)
	assert.Equal(t, "<f8", arr.Dtype.String())
	assert.False(t, arr.FortranOrder)
	assert.Equal(t, 3, arr.Size())

	values, err := arr.Values()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, -3}, values)
}

func TestDecodeNDArrayShortData(t *testing.T) {
	data := "\x80\x02cnumpy.core.multiarray\n_reconstruct\n" +
		"cnumpy\nndarray\nK\x00\x85C\x01b\x87R" +
		"(K\x01K\x02\x85" + dtypePickle("f8") + "\x89C\x04abcdtb."
	_, err := pickle.Decode(strings.NewReader(data))
	require.ErrorIs(t, err, pickle.ErrInvalidPickle)
}

func TestDecodeNumpyScalar(t *testing.T) {
	// numpy.float64(0.5) with protocol 2.
	data := "\x80\x02cnumpy.core.multiarray\nscalar\n" + dtypePickle("f8") +
		"C\x08\x00\x00\x00\x00\x00\x00\xe0?\x86R."
	assert.Equal(t, 0.5, decodeString(t, data))
}

// datetimeDtypePickle is numpy.dtype(descr) for a datetime kind, whose
// state carries the unit as (metadata, (unit, num, 1, 1)).
func datetimeDtypePickle(descr, unit string, num int) string {
	return "cnumpy\ndtype\n" + binUnicode(descr) + "K\x00K\x01\x87R" +
		"(K\x04" + binUnicode("<") + "NNNJ\xff\xff\xff\xffJ\xff\xff\xff\xffK\x00" +
		"}(C" + string([]byte{byte(len(unit))}) + unit + "K" + string([]byte{byte(num)}) + "K\x01K\x01t\x86" +
		"tb"
}

func TestDecodeDatetimeDtype(t *testing.T) {
	tests := []struct {
		name  string
		descr string
		unit  string
		num   int
		want  string
	}{
		{name: "nanoseconds", descr: "M8", unit: "ns", num: 1, want: "<M8[ns]"},
		{name: "ten seconds", descr: "M8", unit: "s", num: 10, want: "<M8[10s]"},
		{name: "timedelta", descr: "m8", unit: "us", num: 1, want: "<m8[us]"},
		{name: "generic", descr: "M8", unit: "generic", num: 1, want: "<M8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := decodeString(t, "\x80\x02"+datetimeDtypePickle(tt.descr, tt.unit, tt.num)+".")
			d, ok := v.(*pickle.Dtype)
			require.True(t, ok, "got %T", v)
			assert.Equal(t, tt.want, d.String())
			assert.Equal(t, 8, d.ItemSize)
		})
	}

	t.Run("malformed metadata", func(t *testing.T) {
		data := "\x80\x02cnumpy\ndtype\n" + binUnicode("M8") + "K\x00K\x01\x87R" +
			"(K\x04" + binUnicode("<") + "NNNJ\xff\xff\xff\xffJ\xff\xff\xff\xffK\x00K\x01tb."
		_, err := pickle.Decode(strings.NewReader(data))
		require.ErrorIs(t, err, pickle.ErrInvalidPickle)
	})
}

func TestParseDtype(t *testing.T) {
	tests := []struct {
		descr    string
		kind     byte
		itemSize int
		order    byte
		unit     string
		str      string
	}{
		{descr: "<f8", kind: 'f', itemSize: 8, order: '<', str: "<f8"},
		{descr: "i4", kind: 'i', itemSize: 4, order: '=', str: "=i4"},
		{descr: "|b1", kind: 'b', itemSize: 1, order: '|', str: "|b1"},
		{descr: "U10", kind: 'U', itemSize: 40, order: '=', str: "=U10"},
		{descr: "<M8[ns]", kind: 'M', itemSize: 8, order: '<', unit: "ns", str: "<M8[ns]"},
		{descr: "O", kind: 'O', itemSize: 8, order: '=', str: "=O8"},
	}

	for _, tt := range tests {
		t.Run(tt.descr, func(t *testing.T) {
			d, err := pickle.ParseDtype(tt.descr)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.itemSize, d.ItemSize)
			assert.Equal(t, tt.order, d.ByteOrder)
			assert.Equal(t, tt.unit, d.Unit)
			assert.Equal(t, tt.str, d.String())
		})
	}

	errTests := []struct {
		descr string
		want  error
	}{
		{descr: "", want: pickle.ErrInvalidPickle},
		{descr: "<", want: pickle.ErrInvalidPickle},
		{descr: "f?", want: pickle.ErrInvalidPickle},
		{descr: "x4", want: pickle.ErrUnsupported},
	}
	for _, tt := range errTests {
		t.Run("invalid "+tt.descr, func(t *testing.T) {
			_, err := pickle.ParseDtype(tt.descr)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNDArrayValues(t *testing.T) {
	dtype := func(descr string) *pickle.Dtype {
		d, err := pickle.ParseDtype(descr)
		require.NoError(t, err)
		return d
	}

	tests := []struct {
		name string
		arr  *pickle.NDArray
		want any
	}{
		{
			name: "big-endian int32",
			arr:  &pickle.NDArray{Shape: []int{2}, Dtype: dtype(">i4"), Data: []byte{0, 0, 0, 1, 0xff, 0xff, 0xff, 0xfe}},
			want: []int32{1, -2},
		},
		{
			name: "uint8 matrix",
			arr:  &pickle.NDArray{Shape: []int{2, 2}, Dtype: dtype("|u1"), Data: []byte{1, 2, 3, 4}},
			want: []uint8{1, 2, 3, 4},
		},
		{
			name: "bool",
			arr:  &pickle.NDArray{Shape: []int{3}, Dtype: dtype("|b1"), Data: []byte{1, 0, 1}},
			want: []bool{true, false, true},
		},
		{
			name: "float16",
			arr:  &pickle.NDArray{Shape: []int{3}, Dtype: dtype("<f2"), Data: []byte{0x00, 0x3c, 0x00, 0xc0, 0x00, 0x00}},
			want: []float32{1, -2, 0},
		},
		{
			name: "bytes",
			arr:  &pickle.NDArray{Shape: []int{2}, Dtype: dtype("|S3"), Data: []byte("ab\x00xyz")},
			want: []string{"ab", "xyz"},
		},
		{
			name: "unicode",
			arr:  &pickle.NDArray{Shape: []int{1}, Dtype: dtype("<U3"), Data: []byte{'h', 0, 0, 0, 'i', 0, 0, 0, 0, 0, 0, 0}},
			want: []string{"hi"},
		},
		{
			name: "objects",
			arr:  &pickle.NDArray{Shape: []int{2}, Dtype: dtype("|O"), Objects: []any{"a", int64(1)}},
			want: []any{"a", int64(1)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.arr.Values()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("short data", func(t *testing.T) {
		arr := &pickle.NDArray{Shape: []int{4}, Dtype: dtype("<i8"), Data: make([]byte, 8)}
		_, err := arr.Values()
		require.ErrorIs(t, err, pickle.ErrInvalidPickle)
	})

	t.Run("no go representation", func(t *testing.T) {
		arr := &pickle.NDArray{Shape: []int{1}, Dtype: dtype("|V4"), Data: make([]byte, 4)}
		_, err := arr.Values()
		require.ErrorIs(t, err, pickle.ErrUnsupported)
	})
}
