package pickle

import (
	"fmt"
	"math/big"
	"reflect"
)

// Callable is implemented by classes and functions that can be invoked by
// the REDUCE, NEWOBJ and OBJ opcodes.
type Callable interface {
	// Call invokes the callable with positional arguments.
	Call(args ...any) (any, error)
}

// StateSetter is implemented by objects that consume the BUILD opcode
// themselves, the equivalent of __setstate__.
type StateSetter interface {
	// SetState applies the state popped from the stack.
	SetState(state any) error
}

// List is a Python list. The unpickler always produces *List so that
// memoized references observe later appends.
type List []any

// Append adds items to the end of the list.
func (l *List) Append(items ...any) {
	*l = append(*l, items...)
}

// Len returns the number of items.
func (l *List) Len() int {
	return len(*l)
}

// Tuple is a Python tuple.
type Tuple []any

// DictEntry is a single key/value pair of a Dict.
type DictEntry struct {
	Key   any
	Value any
}

// Dict is an insertion-ordered Python dict (or collections.OrderedDict).
type Dict struct {
	entries []DictEntry

	// index maps hashable Go keys to their position in entries.
	index map[any]int
}

// NewDict returns an empty Dict.
func NewDict() *Dict {
	return &Dict{index: make(map[any]int)}
}

// Set stores value under key, replacing any previous value in place.
func (d *Dict) Set(key, value any) {
	if i, ok := d.find(key); ok {
		d.entries[i].Value = value
		return
	}
	if d.index == nil {
		d.index = make(map[any]int)
	}
	if hashable(key) {
		d.index[key] = len(d.entries)
	}
	d.entries = append(d.entries, DictEntry{Key: key, Value: value})
}

// Get returns the value stored under key.
func (d *Dict) Get(key any) (any, bool) {
	if i, ok := d.find(key); ok {
		return d.entries[i].Value, true
	}
	return nil, false
}

// MustGet returns the value stored under key, or nil.
func (d *Dict) MustGet(key any) any {
	v, _ := d.Get(key)
	return v
}

// Len returns the number of entries.
func (d *Dict) Len() int {
	return len(d.entries)
}

// Entries returns the entries in insertion order.
func (d *Dict) Entries() []DictEntry {
	return d.entries
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []any {
	keys := make([]any, len(d.entries))
	for i, e := range d.entries {
		keys[i] = e.Key
	}
	return keys
}

func (d *Dict) find(key any) (int, bool) {
	if hashable(key) {
		i, ok := d.index[key]
		return i, ok
	}
	for i, e := range d.entries {
		if reflect.DeepEqual(e.Key, key) {
			return i, true
		}
	}
	return 0, false
}

// hashable reports whether key can be used as a Go map key without
// panicking and with Python-compatible equality.
func hashable(key any) bool {
	switch key.(type) {
	case nil, bool, int64, float64, string:
		return true
	}
	return false
}

// Set is a Python set.
type Set struct {
	items []any

	// index maps hashable members to their position in items.
	index map[any]int
}

// Add inserts items that are not already present.
func (s *Set) Add(items ...any) {
	for _, item := range items {
		if s.Contains(item) {
			continue
		}
		if hashable(item) {
			if s.index == nil {
				s.index = make(map[any]int)
			}
			s.index[item] = len(s.items)
		}
		s.items = append(s.items, item)
	}
}

// Contains reports whether item is a member of the set.
func (s *Set) Contains(item any) bool {
	if hashable(item) {
		_, ok := s.index[item]
		return ok
	}
	for _, existing := range s.items {
		if reflect.DeepEqual(existing, item) {
			return true
		}
	}
	return false
}

// Items returns the members in insertion order.
func (s *Set) Items() []any {
	return s.items
}

// Len returns the number of members.
func (s *Set) Len() int {
	return len(s.items)
}

// FrozenSet is a Python frozenset.
type FrozenSet struct {
	Set
}

// Class is a reference to a Python class or function that has no Go
// counterpart. Calling it produces an *Object.
type Class struct {
	Module string
	Name   string
}

// String returns the dotted Python name.
func (c *Class) String() string {
	return c.Module + "." + c.Name
}

// Call instantiates the class, recording the constructor arguments.
func (c *Class) Call(args ...any) (any, error) {
	return &Object{Class: c, Args: Tuple(args)}, nil
}

// Object is an instance of a Python class that has no Go counterpart,
// such as a fitted scikit-learn estimator.
type Object struct {
	Class *Class

	// Args holds the arguments the object was reconstructed with.
	Args Tuple

	// State holds whatever BUILD provided when it was not a dict,
	// or the slot state of a (dict, slots) pair.
	State any

	// Dict holds the instance attributes set by BUILD.
	Dict *Dict
}

// SetState merges dict state into the attribute dict and keeps any other
// state verbatim.
func (o *Object) SetState(state any) error {
	if pair, ok := state.(Tuple); ok && len(pair) == 2 {
		if d, ok := pair[0].(*Dict); ok || pair[0] == nil {
			if d != nil {
				o.merge(d)
			}
			if slots, ok := pair[1].(*Dict); ok {
				o.merge(slots)
				return nil
			}
			o.State = pair[1]
			return nil
		}
	}
	if d, ok := state.(*Dict); ok {
		o.merge(d)
		return nil
	}
	o.State = state
	return nil
}

// Attr returns the instance attribute called name.
func (o *Object) Attr(name string) (any, bool) {
	if o.Dict == nil {
		return nil, false
	}
	return o.Dict.Get(name)
}

func (o *Object) merge(d *Dict) {
	if o.Dict == nil {
		o.Dict = NewDict()
	}
	for _, e := range d.Entries() {
		o.Dict.Set(e.Key, e.Value)
	}
}

// callableFunc adapts a Go function to Callable.
type callableFunc func(args ...any) (any, error)

func (f callableFunc) Call(args ...any) (any, error) {
	return f(args...)
}

// ToInt converts an integer pickle value to an int.
func ToInt(v any) (int, error) {
	switch n := v.(type) {
	case int64:
		return int(n), nil
	case bool:
		if n {
			return 1, nil
		}
		return 0, nil
	case *big.Int:
		if n.IsInt64() {
			return int(n.Int64()), nil
		}
		return 0, fmt.Errorf("%w: integer %s overflows int", ErrInvalidPickle, n)
	}
	return 0, fmt.Errorf("%w: expected integer, got %T", ErrInvalidPickle, v)
}
