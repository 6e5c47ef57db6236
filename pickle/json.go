package pickle

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

// MarshalJSON renders a decoded pickle value as JSON. Dicts with string
// keys become objects in insertion order, other dicts become arrays of
// [key, value] pairs, arrays carry their dtype and shape, objects carry
// their class name. Non-finite floats are rendered as strings and cycles
// as "<cycle>".
func MarshalJSON(v any) ([]byte, error) {
	enc := &jsonEncoder{seen: make(map[uintptr]bool)}
	if err := enc.encode(v); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

// MarshalJSON implements json.Marshaler.
func (d *Dict) MarshalJSON() ([]byte, error) { return MarshalJSON(d) }

// MarshalJSON implements json.Marshaler.
func (l *List) MarshalJSON() ([]byte, error) { return MarshalJSON(l) }

// MarshalJSON implements json.Marshaler.
func (s *Set) MarshalJSON() ([]byte, error) { return MarshalJSON(s) }

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) { return MarshalJSON(o) }

// MarshalJSON implements json.Marshaler.
func (a *NDArray) MarshalJSON() ([]byte, error) { return MarshalJSON(a) }

type jsonEncoder struct {
	buf  bytes.Buffer
	seen map[uintptr]bool
}

func (e *jsonEncoder) encode(v any) error {
	if p := pointerOf(v); p != 0 {
		if e.seen[p] {
			e.buf.WriteString(`"<cycle>"`)
			return nil
		}
		e.seen[p] = true
		defer delete(e.seen, p)
	}

	switch x := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case bool:
		e.buf.WriteString(strconv.FormatBool(x))
	case int64:
		e.buf.WriteString(strconv.FormatInt(x, 10))
	case *big.Int:
		e.buf.WriteString(x.String())
	case float64:
		e.float(x)
	case complex128:
		e.buf.WriteByte('[')
		e.float(real(x))
		e.buf.WriteByte(',')
		e.float(imag(x))
		e.buf.WriteByte(']')
	case string:
		return e.marshal(x)
	case []byte:
		return e.marshal(base64.StdEncoding.EncodeToString(x))
	case *List:
		return e.array(*x)
	case Tuple:
		return e.array(x)
	case []any:
		return e.array(x)
	case *Set:
		return e.array(x.Items())
	case *FrozenSet:
		return e.array(x.Items())
	case *Dict:
		return e.dict(x)
	case *Class:
		return e.marshal(x.String())
	case *Dtype:
		return e.marshal(x.String())
	case *Object:
		return e.object(x)
	case *NDArray:
		return e.ndarray(x)
	default:
		return e.marshal(x)
	}
	return nil
}

func (e *jsonEncoder) float(f float64) {
	switch {
	case math.IsNaN(f):
		e.buf.WriteString(`"NaN"`)
	case math.IsInf(f, 1):
		e.buf.WriteString(`"Infinity"`)
	case math.IsInf(f, -1):
		e.buf.WriteString(`"-Infinity"`)
	default:
		e.buf.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	}
}

func (e *jsonEncoder) marshal(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e.buf.Write(b)
	return nil
}

func (e *jsonEncoder) array(items []any) error {
	e.buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encode(item); err != nil {
			return err
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func (e *jsonEncoder) dict(d *Dict) error {
	for _, k := range d.Keys() {
		if _, ok := k.(string); !ok {
			pairs := make([]any, d.Len())
			for i, entry := range d.Entries() {
				pairs[i] = Tuple{entry.Key, entry.Value}
			}
			return e.array(pairs)
		}
	}
	e.buf.WriteByte('{')
	for i, entry := range d.Entries() {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.marshal(entry.Key); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(entry.Value); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

func (e *jsonEncoder) object(o *Object) error {
	fields := NewDict()
	fields.Set("__class__", o.Class.String())
	if len(o.Args) > 0 {
		fields.Set("__args__", o.Args)
	}
	if o.State != nil {
		fields.Set("__state__", o.State)
	}
	if o.Dict != nil {
		for _, entry := range o.Dict.Entries() {
			if k, ok := entry.Key.(string); ok {
				fields.Set(k, entry.Value)
			}
		}
	}
	return e.dict(fields)
}

func (e *jsonEncoder) ndarray(a *NDArray) error {
	if a.Dtype == nil {
		return fmt.Errorf("%w: array without dtype", ErrInvalidPickle)
	}
	order := "C"
	if a.FortranOrder {
		order = "F"
	}
	shape := make([]any, len(a.Shape))
	for i, dim := range a.Shape {
		shape[i] = int64(dim)
	}
	fields := NewDict()
	fields.Set("dtype", a.Dtype.String())
	fields.Set("shape", Tuple(shape))
	fields.Set("order", order)
	if err := e.dict(fields); err != nil {
		return err
	}

	// Splice the data member into the object written above.
	e.buf.Truncate(e.buf.Len() - 1)
	e.buf.WriteString(`,"data":`)
	values, err := a.Values()
	switch v := values.(type) {
	case nil:
		// Raw bytes for kinds without a Go representation.
		err = e.encode(a.Data)
	case []any:
		err = e.array(v)
	default:
		err = e.reflectArray(v)
	}
	if err != nil {
		return err
	}
	e.buf.WriteByte('}')
	return nil
}

// reflectArray writes typed numeric slices, turning non-finite floats into
// strings.
func (e *jsonEncoder) reflectArray(values any) error {
	rv := reflect.ValueOf(values)
	e.buf.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		item := rv.Index(i)
		switch item.Kind() {
		case reflect.Float32, reflect.Float64:
			e.float(item.Float())
		case reflect.Complex64, reflect.Complex128:
			if err := e.encode(item.Complex()); err != nil {
				return err
			}
		default:
			if err := e.marshal(item.Interface()); err != nil {
				return err
			}
		}
	}
	e.buf.WriteByte(']')
	return nil
}

func pointerOf(v any) uintptr {
	switch v.(type) {
	case *List, *Dict, *Set, *FrozenSet, *Object, *NDArray:
		return reflect.ValueOf(v).Pointer()
	}
	return 0
}
