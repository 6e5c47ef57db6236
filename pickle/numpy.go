package pickle

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// numpyClass returns the Go implementation of the numpy callables that
// appear in pickled arrays, or nil.
func numpyClass(module, name string) any {
	switch module {
	case "numpy":
		switch name {
		case "dtype":
			return callableFunc(newDtype)
		case "ndarray":
			return ndarrayClass
		}
	case "numpy.core.multiarray", "numpy._core.multiarray":
		switch name {
		case "_reconstruct":
			return callableFunc(reconstructArray)
		case "scalar":
			return callableFunc(numpyScalar)
		}
	case "numpy.core.numeric", "numpy._core.numeric":
		if name == "_frombuffer" {
			return callableFunc(frombuffer)
		}
	}
	return nil
}

var ndarrayClass = &Class{Module: "numpy", Name: "ndarray"}

// Dtype describes the element type of a numpy array.
type Dtype struct {
	// Kind is the numpy kind character: b, i, u, f, c, O, S, U, V, M or m.
	Kind byte

	// ItemSize is the size of one element in bytes.
	ItemSize int

	// ByteOrder is one of '<', '>', '|' or '='.
	ByteOrder byte

	// Unit is the datetime unit of M and m kinds, such as "ns".
	Unit string

	// Names lists the field names of a structured dtype.
	Names []string
}

func newDtype(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: dtype without descriptor", ErrInvalidPickle)
	}
	descr, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: dtype descriptor must be str, got %T", ErrInvalidPickle, args[0])
	}
	return ParseDtype(descr)
}

// ParseDtype parses a numpy type string such as "f8", "<i4", "U10" or
// "M8[ns]".
func ParseDtype(descr string) (*Dtype, error) {
	d := &Dtype{ByteOrder: '='}
	s := descr
	if s != "" && strings.IndexByte("<>|=", s[0]) >= 0 {
		d.ByteOrder = s[0]
		s = s[1:]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: empty dtype descriptor %q", ErrInvalidPickle, descr)
	}
	d.Kind = s[0]
	s = s[1:]
	if i := strings.IndexByte(s, '['); i >= 0 {
		d.Unit = strings.TrimSuffix(s[i+1:], "]")
		s = s[:i]
	}
	if s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid dtype descriptor %q", ErrInvalidPickle, descr)
		}
		d.ItemSize = n
	}
	switch d.Kind {
	case 'b', 'i', 'u', 'f', 'c', 'O', 'S', 'V', 'M', 'm':
	case 'U':
		d.ItemSize *= 4
	default:
		return nil, fmt.Errorf("%w: unknown dtype kind in %q", ErrUnsupported, descr)
	}
	if d.Kind == 'O' && d.ItemSize == 0 {
		d.ItemSize = 8
	}
	return d, nil
}

// SetState applies the tuple produced by dtype.__reduce__:
// (version, byteorder, subarray, names, fields, elsize, alignment, flags),
// plus (metadata, (unit, num, 1, 1)) for datetime kinds.
func (d *Dtype) SetState(state any) error {
	t, ok := state.(Tuple)
	if !ok || len(t) < 2 {
		return fmt.Errorf("%w: dtype state must be a tuple", ErrInvalidPickle)
	}
	if bo, ok := t[1].(string); ok && len(bo) == 1 {
		d.ByteOrder = bo[0]
	}
	if len(t) < 6 {
		return nil
	}
	if names, ok := t[3].(Tuple); ok {
		d.Names = make([]string, 0, len(names))
		for _, n := range names {
			if s, ok := n.(string); ok {
				d.Names = append(d.Names, s)
			}
		}
	}
	if elsize, err := ToInt(t[5]); err == nil && elsize > 0 {
		d.ItemSize = elsize
	}
	if (d.Kind == 'M' || d.Kind == 'm') && len(t) >= 9 {
		unit, err := datetimeUnit(t[8])
		if err != nil {
			return err
		}
		d.Unit = unit
	}
	return nil
}

// datetimeUnit reads the unit of a datetime dtype state, such as "ns" or
// "10s". The generic unit is returned as "".
func datetimeUnit(v any) (string, error) {
	meta, ok := v.(Tuple)
	if !ok || len(meta) != 2 {
		return "", fmt.Errorf("%w: datetime dtype metadata must be a pair, got %T", ErrInvalidPickle, v)
	}
	info, ok := meta[1].(Tuple)
	if !ok || len(info) < 2 {
		return "", fmt.Errorf("%w: datetime dtype unit must be a tuple, got %T", ErrInvalidPickle, meta[1])
	}
	var base string
	switch b := info[0].(type) {
	case string:
		base = b
	case []byte:
		base = string(b)
	default:
		return "", fmt.Errorf("%w: datetime unit must be bytes, got %T", ErrInvalidPickle, info[0])
	}
	num, err := ToInt(info[1])
	if err != nil {
		return "", err
	}
	if base == "generic" {
		return "", nil
	}
	if num > 1 {
		return strconv.Itoa(num) + base, nil
	}
	return base, nil
}

// HasObject reports whether elements are Python objects rather than raw
// bytes.
func (d *Dtype) HasObject() bool {
	return d.Kind == 'O'
}

// String returns the numpy type string, e.g. "<f8".
func (d *Dtype) String() string {
	size := d.ItemSize
	if d.Kind == 'U' {
		size /= 4
	}
	s := string(d.ByteOrder) + string(d.Kind) + strconv.Itoa(size)
	if d.Unit != "" {
		s += "[" + d.Unit + "]"
	}
	return s
}

func (d *Dtype) order() binary.ByteOrder {
	if d.ByteOrder == '>' {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// NDArray is a numpy array.
type NDArray struct {
	Shape        []int
	Dtype        *Dtype
	FortranOrder bool

	// Data holds the raw element bytes in memory order.
	Data []byte

	// Objects holds the elements of object arrays.
	Objects []any
}

// Size returns the number of elements.
func (a *NDArray) Size() int {
	n := 1
	for _, dim := range a.Shape {
		n *= dim
	}
	return n
}

// SetState applies the tuple produced by ndarray.__reduce__:
// (version, shape, dtype, is_fortran, rawdata).
func (a *NDArray) SetState(state any) error {
	t, ok := state.(Tuple)
	if !ok {
		return fmt.Errorf("%w: ndarray state must be a tuple", ErrInvalidPickle)
	}
	if len(t) == 5 {
		t = t[1:]
	}
	if len(t) != 4 {
		return fmt.Errorf("%w: ndarray state has %d items", ErrInvalidPickle, len(t))
	}
	shape, err := toShape(t[0])
	if err != nil {
		return err
	}
	dtype, ok := t[1].(*Dtype)
	if !ok {
		return fmt.Errorf("%w: ndarray dtype is %T", ErrInvalidPickle, t[1])
	}
	fortran, _ := t[2].(bool)
	a.Shape = shape
	a.Dtype = dtype
	a.FortranOrder = fortran

	switch raw := t[3].(type) {
	case []byte:
		a.Data = raw
	case string:
		a.Data = encodeLatin1(raw)
	case *List:
		a.Objects = *raw
	default:
		return fmt.Errorf("%w: ndarray data is %T", ErrInvalidPickle, t[3])
	}
	return a.check()
}

func (a *NDArray) check() error {
	if a.Dtype.HasObject() {
		if a.Data == nil && len(a.Objects) != a.Size() {
			return fmt.Errorf("%w: object array has %d of %d elements", ErrInvalidPickle, len(a.Objects), a.Size())
		}
		return nil
	}
	if want := a.Size() * a.Dtype.ItemSize; len(a.Data) != want {
		return fmt.Errorf("%w: array data has %d bytes, want %d", ErrInvalidPickle, len(a.Data), want)
	}
	return nil
}

// Values decodes the elements in memory order into a typed slice:
// []bool, []int8 … []int64, []uint8 … []uint64, []float32, []float64,
// []complex64, []complex128, []string or, for object arrays, []any.
func (a *NDArray) Values() (any, error) {
	d := a.Dtype
	if d.HasObject() {
		return a.Objects, nil
	}
	n := a.Size()
	if d.ItemSize == 0 || len(a.Data) < n*d.ItemSize {
		return nil, fmt.Errorf("%w: array data too short", ErrInvalidPickle)
	}
	bo := d.order()
	at := func(i int) []byte { return a.Data[i*d.ItemSize : (i+1)*d.ItemSize] }

	switch {
	case d.Kind == 'b' && d.ItemSize == 1:
		out := make([]bool, n)
		for i := range out {
			out[i] = a.Data[i] != 0
		}
		return out, nil
	case d.Kind == 'i' || d.Kind == 'M' || d.Kind == 'm':
		switch d.ItemSize {
		case 1:
			out := make([]int8, n)
			for i := range out {
				out[i] = int8(a.Data[i])
			}
			return out, nil
		case 2:
			out := make([]int16, n)
			for i := range out {
				out[i] = int16(bo.Uint16(at(i)))
			}
			return out, nil
		case 4:
			out := make([]int32, n)
			for i := range out {
				out[i] = int32(bo.Uint32(at(i)))
			}
			return out, nil
		case 8:
			out := make([]int64, n)
			for i := range out {
				out[i] = int64(bo.Uint64(at(i)))
			}
			return out, nil
		}
	case d.Kind == 'u':
		switch d.ItemSize {
		case 1:
			return append([]uint8(nil), a.Data[:n]...), nil
		case 2:
			out := make([]uint16, n)
			for i := range out {
				out[i] = bo.Uint16(at(i))
			}
			return out, nil
		case 4:
			out := make([]uint32, n)
			for i := range out {
				out[i] = bo.Uint32(at(i))
			}
			return out, nil
		case 8:
			out := make([]uint64, n)
			for i := range out {
				out[i] = bo.Uint64(at(i))
			}
			return out, nil
		}
	case d.Kind == 'f':
		switch d.ItemSize {
		case 2:
			out := make([]float32, n)
			for i := range out {
				out[i] = float16to32(bo.Uint16(at(i)))
			}
			return out, nil
		case 4:
			out := make([]float32, n)
			for i := range out {
				out[i] = math.Float32frombits(bo.Uint32(at(i)))
			}
			return out, nil
		case 8:
			out := make([]float64, n)
			for i := range out {
				out[i] = math.Float64frombits(bo.Uint64(at(i)))
			}
			return out, nil
		}
	case d.Kind == 'c':
		switch d.ItemSize {
		case 8:
			out := make([]complex64, n)
			for i := range out {
				b := at(i)
				out[i] = complex(math.Float32frombits(bo.Uint32(b[:4])), math.Float32frombits(bo.Uint32(b[4:])))
			}
			return out, nil
		case 16:
			out := make([]complex128, n)
			for i := range out {
				b := at(i)
				out[i] = complex(math.Float64frombits(bo.Uint64(b[:8])), math.Float64frombits(bo.Uint64(b[8:])))
			}
			return out, nil
		}
	case d.Kind == 'S':
		out := make([]string, n)
		for i := range out {
			out[i] = strings.TrimRight(string(at(i)), "\x00")
		}
		return out, nil
	case d.Kind == 'U':
		out := make([]string, n)
		for i := range out {
			b := at(i)
			var sb strings.Builder
			for j := 0; j+4 <= len(b); j += 4 {
				r := rune(bo.Uint32(b[j : j+4]))
				if r == 0 {
					break
				}
				if !utf8.ValidRune(r) {
					r = utf8.RuneError
				}
				sb.WriteRune(r)
			}
			out[i] = sb.String()
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: values of dtype %s", ErrUnsupported, d)
}

// reconstructArray implements numpy.core.multiarray._reconstruct. The
// array contents arrive later through BUILD.
func reconstructArray(args ...any) (any, error) {
	return &NDArray{}, nil
}

// frombuffer implements numpy.core.numeric._frombuffer(buf, dtype, shape,
// order), used by protocol 5.
func frombuffer(args ...any) (any, error) {
	if len(args) != 4 {
		return nil, fmt.Errorf("%w: _frombuffer takes 4 arguments", ErrInvalidPickle)
	}
	data, ok := args[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: _frombuffer buffer is %T", ErrInvalidPickle, args[0])
	}
	dtype, ok := args[1].(*Dtype)
	if !ok {
		return nil, fmt.Errorf("%w: _frombuffer dtype is %T", ErrInvalidPickle, args[1])
	}
	shape, err := toShape(args[2])
	if err != nil {
		return nil, err
	}
	order, _ := args[3].(string)
	a := &NDArray{Shape: shape, Dtype: dtype, FortranOrder: order == "F", Data: data}
	return a, a.check()
}

// numpyScalar implements numpy.core.multiarray.scalar(dtype, data).
func numpyScalar(args ...any) (any, error) {
	if len(args) < 1 {
		return nil, fmt.Errorf("%w: scalar without dtype", ErrInvalidPickle)
	}
	dtype, ok := args[0].(*Dtype)
	if !ok {
		return nil, fmt.Errorf("%w: scalar dtype is %T", ErrInvalidPickle, args[0])
	}
	if dtype.HasObject() {
		if len(args) < 2 {
			return nil, nil
		}
		return args[1], nil
	}
	var data []byte
	if len(args) > 1 {
		switch v := args[1].(type) {
		case []byte:
			data = v
		case string:
			data = encodeLatin1(v)
		default:
			return nil, fmt.Errorf("%w: scalar data is %T", ErrInvalidPickle, args[1])
		}
	}
	a := &NDArray{Dtype: dtype, Data: data}
	values, err := a.Values()
	if err != nil {
		return nil, err
	}
	return firstElement(values), nil
}

func firstElement(values any) any {
	switch v := values.(type) {
	case []bool:
		return v[0]
	case []int8:
		return int64(v[0])
	case []int16:
		return int64(v[0])
	case []int32:
		return int64(v[0])
	case []int64:
		return v[0]
	case []uint8:
		return int64(v[0])
	case []uint16:
		return int64(v[0])
	case []uint32:
		return int64(v[0])
	case []uint64:
		return v[0]
	case []float32:
		return float64(v[0])
	case []float64:
		return v[0]
	case []complex64:
		return complex128(v[0])
	case []complex128:
		return v[0]
	case []string:
		return v[0]
	}
	return nil
}

func toShape(v any) ([]int, error) {
	items, err := iterate(v)
	if err != nil {
		if n, ierr := ToInt(v); ierr == nil {
			return []int{n}, nil
		}
		return nil, err
	}
	shape := make([]int, len(items))
	for i, item := range items {
		n, err := ToInt(item)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", ErrInvalidPickle, n)
		}
		shape[i] = n
	}
	return shape, nil
}

// encodeLatin1 is the inverse of latin1 for strings read from Python 2
// pickles.
func encodeLatin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		out = append(out, byte(r))
	}
	return out
}

func float16to32(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff
	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize the fraction.
		e := uint32(127 - 15 + 1)
		for frac&0x400 == 0 {
			frac <<= 1
			e--
		}
		frac &= 0x3ff
		return math.Float32frombits(sign | e<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	}
	return math.Float32frombits(sign | (exp+127-15)<<23 | frac<<13)
}
