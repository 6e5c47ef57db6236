package pickle

import (
	"fmt"
	"math/big"
)

// Python 2 module names that were renamed in Python 3.
var py2Modules = map[string]string{
	"__builtin__": "builtins",
	"copy_reg":    "copyreg",
}

// lookupClass resolves a global reference against the built-in class
// table. Unknown names resolve to a *Class placeholder.
func lookupClass(module, name string) any {
	if renamed, ok := py2Modules[module]; ok {
		module = renamed
	}
	if cls := numpyClass(module, name); cls != nil {
		return cls
	}
	switch module {
	case "builtins":
		if fn, ok := builtinFuncs[name]; ok {
			return fn
		}
	case "copyreg":
		switch name {
		case "_reconstructor":
			return callableFunc(reconstructor)
		case "__newobj__", "__newobj_ex__":
			return callableFunc(newObj)
		}
	case "_codecs":
		if name == "encode" {
			return callableFunc(codecsEncode)
		}
	case "collections":
		switch name {
		case "OrderedDict", "defaultdict":
			return callableFunc(newDict)
		}
	}
	return &Class{Module: module, Name: name}
}

var builtinFuncs = map[string]Callable{
	"object": &Class{Module: "builtins", Name: "object"},
	"dict":   callableFunc(newDict),
	"list": callableFunc(func(args ...any) (any, error) {
		l := List{}
		if len(args) > 0 {
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			l = List(items)
		}
		return &l, nil
	}),
	"tuple": callableFunc(func(args ...any) (any, error) {
		if len(args) == 0 {
			return Tuple{}, nil
		}
		items, err := iterate(args[0])
		return Tuple(items), err
	}),
	"set": callableFunc(func(args ...any) (any, error) {
		s := &Set{}
		if len(args) > 0 {
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			s.Add(items...)
		}
		return s, nil
	}),
	"frozenset": callableFunc(func(args ...any) (any, error) {
		s := &FrozenSet{}
		if len(args) > 0 {
			items, err := iterate(args[0])
			if err != nil {
				return nil, err
			}
			s.Add(items...)
		}
		return s, nil
	}),
	"bytearray": callableFunc(toBytes),
	"bytes":     callableFunc(toBytes),
	"complex": callableFunc(func(args ...any) (any, error) {
		var parts [2]float64
		for i := 0; i < len(args) && i < 2; i++ {
			f, err := toFloat(args[i])
			if err != nil {
				return nil, err
			}
			parts[i] = f
		}
		return complex(parts[0], parts[1]), nil
	}),
}

// reconstructor implements copyreg._reconstructor(cls, base, state), used
// by protocols 0 and 1 to recreate instances of plain classes.
func reconstructor(args ...any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%w: _reconstructor takes 3 arguments", ErrInvalidPickle)
	}
	switch cls := args[0].(type) {
	case *Class:
		obj := &Object{Class: cls}
		if args[2] != nil {
			obj.Args = Tuple{args[2]}
		}
		return obj, nil
	case Callable:
		if args[2] == nil {
			return cls.Call()
		}
		return cls.Call(args[2])
	}
	return nil, fmt.Errorf("%w: _reconstructor on %T", ErrInvalidPickle, args[0])
}

// newObj implements copyreg.__newobj__(cls, *args).
func newObj(args ...any) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: __newobj__ without class", ErrInvalidPickle)
	}
	return call(args[0], Tuple(args[1:]))
}

// codecsEncode implements _codecs.encode, which Python 3 uses to pickle
// bytes with protocols 0 to 2.
func codecsEncode(args ...any) (any, error) {
	if len(args) == 0 {
		return []byte{}, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: _codecs.encode on %T", ErrInvalidPickle, args[0])
	}
	encoding := "utf-8"
	if len(args) > 1 {
		if e, ok := args[1].(string); ok {
			encoding = e
		}
	}
	switch encoding {
	case "latin1", "latin-1", "iso-8859-1":
		out := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xff {
				return nil, fmt.Errorf("%w: rune %U outside latin-1", ErrInvalidPickle, r)
			}
			out = append(out, byte(r))
		}
		return out, nil
	}
	return []byte(s), nil
}

func newDict(args ...any) (any, error) {
	d := NewDict()
	if len(args) == 0 || args[0] == nil {
		return d, nil
	}
	// defaultdict(factory) passes its default factory first.
	if _, ok := args[0].(Callable); ok {
		return d, nil
	}
	if src, ok := args[0].(*Dict); ok {
		for _, e := range src.Entries() {
			d.Set(e.Key, e.Value)
		}
		return d, nil
	}
	pairs, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		kv, err := iterate(p)
		if err != nil || len(kv) != 2 {
			return nil, fmt.Errorf("%w: dict items must be pairs", ErrInvalidPickle)
		}
		d.Set(kv[0], kv[1])
	}
	return d, nil
}

func toBytes(args ...any) (any, error) {
	if len(args) == 0 {
		return []byte{}, nil
	}
	switch v := args[0].(type) {
	case []byte:
		return append([]byte(nil), v...), nil
	case string:
		return codecsEncode(args...)
	case *List:
		out := make([]byte, 0, v.Len())
		for _, item := range *v {
			n, err := ToInt(item)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(n))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: cannot convert %T to bytes", ErrInvalidPickle, args[0])
}

// iterate returns the items of a sequence-like pickle value.
func iterate(v any) ([]any, error) {
	switch s := v.(type) {
	case *List:
		return *s, nil
	case Tuple:
		return s, nil
	case *Set:
		return s.Items(), nil
	case *FrozenSet:
		return s.Items(), nil
	case *Dict:
		return s.Keys(), nil
	}
	return nil, fmt.Errorf("%w: %T is not iterable", ErrInvalidPickle, v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(n).Float64()
		return f, nil
	}
	return 0, fmt.Errorf("%w: expected number, got %T", ErrInvalidPickle, v)
}
