package pickle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
)

// HighestProtocol is the highest pickle protocol understood by Unpickler.
const HighestProtocol = 5

// maxFrameSize bounds a single FRAME so that corrupt input cannot force a
// huge allocation up front.
const maxFrameSize = 1 << 32

// Opcodes of the pickle virtual machine.
const (
	opMark           = '('
	opStop           = '.'
	opPop            = '0'
	opPopMark        = '1'
	opDup            = '2'
	opFloat          = 'F'
	opInt            = 'I'
	opBinInt         = 'J'
	opBinInt1        = 'K'
	opLong           = 'L'
	opBinInt2        = 'M'
	opNone           = 'N'
	opPersID         = 'P'
	opBinPersID      = 'Q'
	opReduce         = 'R'
	opString         = 'S'
	opBinString      = 'T'
	opShortBinString = 'U'
	opUnicode        = 'V'
	opBinUnicode     = 'X'
	opAppend         = 'a'
	opBuild          = 'b'
	opGlobal         = 'c'
	opDict           = 'd'
	opEmptyDict      = '}'
	opAppends        = 'e'
	opGet            = 'g'
	opBinGet         = 'h'
	opInst           = 'i'
	opLongBinGet     = 'j'
	opList           = 'l'
	opEmptyList      = ']'
	opObj            = 'o'
	opPut            = 'p'
	opBinPut         = 'q'
	opLongBinPut     = 'r'
	opSetItem        = 's'
	opTuple          = 't'
	opEmptyTuple     = ')'
	opSetItems       = 'u'
	opBinFloat       = 'G'

	// Protocol 2.
	opProto    = 0x80
	opNewObj   = 0x81
	opExt1     = 0x82
	opExt2     = 0x83
	opExt4     = 0x84
	opTuple1   = 0x85
	opTuple2   = 0x86
	opTuple3   = 0x87
	opNewTrue  = 0x88
	opNewFalse = 0x89
	opLong1    = 0x8a
	opLong4    = 0x8b

	// Protocol 3.
	opBinBytes      = 'B'
	opShortBinBytes = 'C'

	// Protocol 4.
	opShortBinUnicode = 0x8c
	opBinUnicode8     = 0x8d
	opBinBytes8       = 0x8e
	opEmptySet        = 0x8f
	opAddItems        = 0x90
	opFrozenSet       = 0x91
	opNewObjEx        = 0x92
	opStackGlobal     = 0x93
	opMemoize         = 0x94
	opFrame           = 0x95

	// Protocol 5.
	opByteArray8     = 0x96
	opNextBuffer     = 0x97
	opReadOnlyBuffer = 0x98
)

// Unpickler decodes a single pickle from a stream.
//
// An Unpickler reads exactly the bytes belonging to the pickle, so several
// pickles, or a pickle interleaved with raw payloads, can be decoded from the
// same stream.
type Unpickler struct {
	r     *bufio.Reader
	frame *bytes.Reader
	proto int

	stack     []any
	metaStack [][]any
	memo      map[int]any

	// FindClass resolves a GLOBAL or STACK_GLOBAL reference. Returning
	// (nil, nil) falls back to the built-in class table.
	FindClass func(module, name string) (any, error)

	// PersistentLoad resolves a persistent id. Pickles carrying
	// persistent ids fail when it is nil.
	PersistentLoad func(pid any) (any, error)

	// AfterBuild is invoked with the object on top of the stack once a
	// BUILD opcode has been applied. If it reports replaced, the
	// returned value takes the object's place on the stack and in the
	// memo.
	AfterBuild func(obj any) (replacement any, replaced bool, err error)
}

// NewUnpickler returns an Unpickler reading from r. If r is a
// *bufio.Reader it is used directly, so callers can keep reading from it
// once Load returns.
func NewUnpickler(r io.Reader) *Unpickler {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &Unpickler{
		r:    br,
		memo: make(map[int]any),
	}
}

// Protocol returns the protocol announced by the PROTO opcode, or 0.
func (u *Unpickler) Protocol() int {
	return u.proto
}

// RawReader returns a reader positioned right after the last opcode
// consumed. It drains the current frame before reading from the
// underlying stream.
func (u *Unpickler) RawReader() io.Reader {
	return rawReader{u: u}
}

type rawReader struct {
	u *Unpickler
}

func (r rawReader) Read(p []byte) (int, error) {
	if r.u.frame != nil {
		if r.u.frame.Len() > 0 {
			return r.u.frame.Read(p)
		}
		r.u.frame = nil
	}
	return r.u.r.Read(p)
}

// LoadNested decodes a separate pickle embedded in the stream at the
// current position. The nested pickle has its own memo and no hooks.
func (u *Unpickler) LoadNested() (any, error) {
	sub := &Unpickler{
		r:     u.r,
		frame: u.frame,
		memo:  make(map[int]any),
	}
	v, err := sub.Load()
	u.frame = sub.frame
	return v, err
}

// Load decodes the next pickle from the stream.
func (u *Unpickler) Load() (any, error) {
	u.stack = u.stack[:0]
	u.metaStack = u.metaStack[:0]
	for {
		op, err := u.readByte()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("%w: pickle data was truncated", ErrInvalidPickle)
			}
			return nil, err
		}
		if op == opStop {
			return u.pop()
		}
		if err := u.dispatch(op); err != nil {
			return nil, err
		}
	}
}

func (u *Unpickler) dispatch(op byte) error {
	switch op {
	case opProto:
		b, err := u.readByte()
		if err != nil {
			return truncated(err)
		}
		if int(b) > HighestProtocol {
			return fmt.Errorf("%w: unsupported pickle protocol %d", ErrUnsupported, b)
		}
		u.proto = int(b)
	case opFrame:
		n, err := u.readUint64()
		if err != nil {
			return err
		}
		return u.loadFrame(n)

	case opMark:
		u.metaStack = append(u.metaStack, u.stack)
		u.stack = nil
	case opPop:
		if len(u.stack) > 0 {
			u.stack = u.stack[:len(u.stack)-1]
			return nil
		}
		_, err := u.popMark()
		return err
	case opPopMark:
		_, err := u.popMark()
		return err
	case opDup:
		v, err := u.top()
		if err != nil {
			return err
		}
		u.push(v)

	case opNone:
		u.push(nil)
	case opNewTrue:
		u.push(true)
	case opNewFalse:
		u.push(false)
	case opInt:
		return u.loadInt()
	case opLong:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		v, err := parseInt(strings.TrimSuffix(line, "L"))
		if err != nil {
			return err
		}
		u.push(v)
	case opBinInt:
		b, err := u.read(4)
		if err != nil {
			return err
		}
		u.push(int64(int32(binary.LittleEndian.Uint32(b))))
	case opBinInt1:
		b, err := u.readByte()
		if err != nil {
			return truncated(err)
		}
		u.push(int64(b))
	case opBinInt2:
		b, err := u.read(2)
		if err != nil {
			return err
		}
		u.push(int64(binary.LittleEndian.Uint16(b)))
	case opLong1:
		n, err := u.readByte()
		if err != nil {
			return truncated(err)
		}
		return u.loadLong(int64(n))
	case opLong4:
		b, err := u.read(4)
		if err != nil {
			return err
		}
		n := int64(int32(binary.LittleEndian.Uint32(b)))
		if n < 0 {
			return fmt.Errorf("%w: LONG4 negative byte count", ErrInvalidPickle)
		}
		return u.loadLong(n)
	case opFloat:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		f, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return fmt.Errorf("%w: invalid FLOAT %q", ErrInvalidPickle, line)
		}
		u.push(f)
	case opBinFloat:
		b, err := u.read(8)
		if err != nil {
			return err
		}
		u.push(math.Float64frombits(binary.BigEndian.Uint64(b)))

	case opString:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		s, err := unquoteString(line)
		if err != nil {
			return err
		}
		u.push(s)
	case opBinString:
		b, err := u.read(4)
		if err != nil {
			return err
		}
		n := int32(binary.LittleEndian.Uint32(b))
		if n < 0 {
			return fmt.Errorf("%w: BINSTRING negative length", ErrInvalidPickle)
		}
		data, err := u.readSized(uint64(n))
		if err != nil {
			return err
		}
		u.push(latin1(data))
	case opShortBinString:
		data, err := u.readShort()
		if err != nil {
			return err
		}
		u.push(latin1(data))
	case opUnicode:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		s, err := decodeRawUnicodeEscape(line)
		if err != nil {
			return err
		}
		u.push(s)
	case opShortBinUnicode:
		data, err := u.readShort()
		if err != nil {
			return err
		}
		u.push(string(data))
	case opBinUnicode:
		n, err := u.readUint32()
		if err != nil {
			return err
		}
		data, err := u.readSized(uint64(n))
		if err != nil {
			return err
		}
		u.push(string(data))
	case opBinUnicode8:
		n, err := u.readUint64()
		if err != nil {
			return err
		}
		data, err := u.readSized(n)
		if err != nil {
			return err
		}
		u.push(string(data))
	case opShortBinBytes:
		data, err := u.readShort()
		if err != nil {
			return err
		}
		u.push(data)
	case opBinBytes:
		n, err := u.readUint32()
		if err != nil {
			return err
		}
		data, err := u.readSized(uint64(n))
		if err != nil {
			return err
		}
		u.push(data)
	case opBinBytes8, opByteArray8:
		n, err := u.readUint64()
		if err != nil {
			return err
		}
		data, err := u.readSized(n)
		if err != nil {
			return err
		}
		u.push(data)
	case opNextBuffer:
		return fmt.Errorf("%w: out-of-band buffers", ErrUnsupported)
	case opReadOnlyBuffer:
		// Buffers are plain byte slices, there is nothing to freeze.

	case opEmptyList:
		u.push(&List{})
	case opList:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		l := List(items)
		u.push(&l)
	case opAppend:
		v, err := u.pop()
		if err != nil {
			return err
		}
		return u.appendItems([]any{v})
	case opAppends:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		return u.appendItems(items)

	case opEmptyTuple:
		u.push(Tuple{})
	case opTuple:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		u.push(Tuple(items))
	case opTuple1, opTuple2, opTuple3:
		n := int(op-opTuple1) + 1
		if len(u.stack) < n {
			return fmt.Errorf("%w: stack underflow", ErrInvalidPickle)
		}
		t := make(Tuple, n)
		copy(t, u.stack[len(u.stack)-n:])
		u.stack = append(u.stack[:len(u.stack)-n], t)

	case opEmptyDict:
		u.push(NewDict())
	case opDict:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		d := NewDict()
		if err := setItems(d, items); err != nil {
			return err
		}
		u.push(d)
	case opSetItem:
		if len(u.stack) < 3 {
			return fmt.Errorf("%w: stack underflow", ErrInvalidPickle)
		}
		items := u.stack[len(u.stack)-2:]
		u.stack = u.stack[:len(u.stack)-2]
		return u.setItems(items)
	case opSetItems:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		return u.setItems(items)

	case opEmptySet:
		u.push(&Set{})
	case opAddItems:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		v, err := u.top()
		if err != nil {
			return err
		}
		s, ok := v.(*Set)
		if !ok {
			return fmt.Errorf("%w: ADDITEMS on %T", ErrInvalidPickle, v)
		}
		s.Add(items...)
	case opFrozenSet:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		fs := &FrozenSet{}
		fs.Add(items...)
		u.push(fs)

	case opGet:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		idx, err := strconv.Atoi(line)
		if err != nil {
			return fmt.Errorf("%w: invalid GET %q", ErrInvalidPickle, line)
		}
		return u.memoGet(idx)
	case opBinGet:
		b, err := u.readByte()
		if err != nil {
			return truncated(err)
		}
		return u.memoGet(int(b))
	case opLongBinGet:
		n, err := u.readUint32()
		if err != nil {
			return err
		}
		return u.memoGet(int(n))
	case opPut:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		idx, err := strconv.Atoi(line)
		if err != nil || idx < 0 {
			return fmt.Errorf("%w: invalid PUT %q", ErrInvalidPickle, line)
		}
		return u.memoPut(idx)
	case opBinPut:
		b, err := u.readByte()
		if err != nil {
			return truncated(err)
		}
		return u.memoPut(int(b))
	case opLongBinPut:
		n, err := u.readUint32()
		if err != nil {
			return err
		}
		return u.memoPut(int(n))
	case opMemoize:
		return u.memoPut(len(u.memo))

	case opGlobal:
		module, err := u.readLine()
		if err != nil {
			return err
		}
		name, err := u.readLine()
		if err != nil {
			return err
		}
		return u.loadGlobal(module, name)
	case opStackGlobal:
		name, err := u.pop()
		if err != nil {
			return err
		}
		module, err := u.pop()
		if err != nil {
			return err
		}
		ms, ok1 := module.(string)
		ns, ok2 := name.(string)
		if !ok1 || !ok2 {
			return fmt.Errorf("%w: STACK_GLOBAL requires str", ErrInvalidPickle)
		}
		return u.loadGlobal(ms, ns)
	case opExt1, opExt2, opExt4:
		return fmt.Errorf("%w: extension registry opcodes", ErrUnsupported)

	case opReduce:
		args, err := u.pop()
		if err != nil {
			return err
		}
		fn, err := u.pop()
		if err != nil {
			return err
		}
		v, err := call(fn, args)
		if err != nil {
			return err
		}
		u.push(v)
	case opNewObj:
		args, err := u.pop()
		if err != nil {
			return err
		}
		cls, err := u.pop()
		if err != nil {
			return err
		}
		v, err := call(cls, args)
		if err != nil {
			return err
		}
		u.push(v)
	case opNewObjEx:
		if _, err := u.pop(); err != nil {
			return err
		}
		args, err := u.pop()
		if err != nil {
			return err
		}
		cls, err := u.pop()
		if err != nil {
			return err
		}
		v, err := call(cls, args)
		if err != nil {
			return err
		}
		u.push(v)
	case opInst:
		module, err := u.readLine()
		if err != nil {
			return err
		}
		name, err := u.readLine()
		if err != nil {
			return err
		}
		args, err := u.popMark()
		if err != nil {
			return err
		}
		cls, err := u.findClass(module, name)
		if err != nil {
			return err
		}
		v, err := call(cls, Tuple(args))
		if err != nil {
			return err
		}
		u.push(v)
	case opObj:
		items, err := u.popMark()
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: OBJ without class", ErrInvalidPickle)
		}
		v, err := call(items[0], Tuple(items[1:]))
		if err != nil {
			return err
		}
		u.push(v)
	case opBuild:
		return u.loadBuild()

	case opPersID:
		line, err := u.readLine()
		if err != nil {
			return err
		}
		return u.persistentLoad(line)
	case opBinPersID:
		pid, err := u.pop()
		if err != nil {
			return err
		}
		return u.persistentLoad(pid)

	default:
		return fmt.Errorf("%w: unknown opcode 0x%02x", ErrInvalidPickle, op)
	}
	return nil
}

func (u *Unpickler) loadFrame(n uint64) error {
	if u.frame != nil && u.frame.Len() > 0 {
		return fmt.Errorf("%w: new frame before end of current frame", ErrInvalidPickle)
	}
	if n > maxFrameSize {
		return fmt.Errorf("%w: frame of %d bytes", ErrInvalidPickle, n)
	}
	u.frame = nil
	data, err := u.readSized(n)
	if err != nil {
		return err
	}
	u.frame = bytes.NewReader(data)
	return nil
}

func (u *Unpickler) loadInt() error {
	line, err := u.readLine()
	if err != nil {
		return err
	}
	switch line {
	case "00":
		u.push(false)
		return nil
	case "01":
		u.push(true)
		return nil
	}
	v, err := parseInt(strings.TrimSuffix(line, "L"))
	if err != nil {
		return err
	}
	u.push(v)
	return nil
}

// loadLong decodes a little-endian two's complement integer of n bytes.
func (u *Unpickler) loadLong(n int64) error {
	if n == 0 {
		u.push(int64(0))
		return nil
	}
	data, err := u.readSized(uint64(n))
	if err != nil {
		return err
	}
	if n <= 8 {
		var v uint64
		for i := len(data) - 1; i >= 0; i-- {
			v = v<<8 | uint64(data[i])
		}
		shift := 64 - 8*uint(n)
		u.push(int64(v<<shift) >> shift)
		return nil
	}
	be := make([]byte, len(data))
	for i, b := range data {
		be[len(data)-1-i] = b
	}
	v := new(big.Int).SetBytes(be)
	if data[len(data)-1]&0x80 != 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(8*n)))
	}
	u.push(normalizeInt(v))
	return nil
}

func (u *Unpickler) loadGlobal(module, name string) error {
	cls, err := u.findClass(module, name)
	if err != nil {
		return err
	}
	u.push(cls)
	return nil
}

func (u *Unpickler) findClass(module, name string) (any, error) {
	if u.FindClass != nil {
		cls, err := u.FindClass(module, name)
		if err != nil || cls != nil {
			return cls, err
		}
	}
	return lookupClass(module, name), nil
}

func (u *Unpickler) loadBuild() error {
	state, err := u.pop()
	if err != nil {
		return err
	}
	inst, err := u.top()
	if err != nil {
		return err
	}
	switch obj := inst.(type) {
	case StateSetter:
		if err := obj.SetState(state); err != nil {
			return err
		}
	case *Dict:
		d, ok := state.(*Dict)
		if !ok {
			return fmt.Errorf("%w: BUILD on dict with %T state", ErrInvalidPickle, state)
		}
		for _, e := range d.Entries() {
			obj.Set(e.Key, e.Value)
		}
	default:
		return fmt.Errorf("%w: BUILD on %T", ErrInvalidPickle, inst)
	}

	if u.AfterBuild == nil {
		return nil
	}
	repl, replaced, err := u.AfterBuild(inst)
	if err != nil || !replaced {
		return err
	}
	u.stack[len(u.stack)-1] = repl
	for k, v := range u.memo {
		if same(v, inst) {
			u.memo[k] = repl
		}
	}
	return nil
}

func (u *Unpickler) persistentLoad(pid any) error {
	if u.PersistentLoad == nil {
		return fmt.Errorf("%w: persistent id without PersistentLoad", ErrUnsupported)
	}
	v, err := u.PersistentLoad(pid)
	if err != nil {
		return err
	}
	u.push(v)
	return nil
}

func (u *Unpickler) appendItems(items []any) error {
	v, err := u.top()
	if err != nil {
		return err
	}
	switch l := v.(type) {
	case *List:
		l.Append(items...)
	case *Object:
		// list subclasses keep their items next to the attribute dict.
		if l.State == nil {
			l.State = &List{}
		}
		inner, ok := l.State.(*List)
		if !ok {
			return fmt.Errorf("%w: APPEND on %s", ErrInvalidPickle, l.Class)
		}
		inner.Append(items...)
	default:
		return fmt.Errorf("%w: APPEND on %T", ErrInvalidPickle, v)
	}
	return nil
}

func (u *Unpickler) setItems(items []any) error {
	v, err := u.top()
	if err != nil {
		return err
	}
	switch d := v.(type) {
	case *Dict:
		return setItems(d, items)
	case *Object:
		// dict subclasses such as sklearn Bunch.
		if d.Dict == nil {
			d.Dict = NewDict()
		}
		return setItems(d.Dict, items)
	}
	return fmt.Errorf("%w: SETITEM on %T", ErrInvalidPickle, v)
}

func setItems(d *Dict, items []any) error {
	if len(items)%2 != 0 {
		return fmt.Errorf("%w: odd number of dict items", ErrInvalidPickle)
	}
	for i := 0; i < len(items); i += 2 {
		d.Set(items[i], items[i+1])
	}
	return nil
}

func (u *Unpickler) memoGet(idx int) error {
	v, ok := u.memo[idx]
	if !ok {
		return fmt.Errorf("%w: memo key %d not found", ErrInvalidPickle, idx)
	}
	u.push(v)
	return nil
}

func (u *Unpickler) memoPut(idx int) error {
	v, err := u.top()
	if err != nil {
		return err
	}
	u.memo[idx] = v
	return nil
}

func (u *Unpickler) push(v any) {
	u.stack = append(u.stack, v)
}

func (u *Unpickler) pop() (any, error) {
	if len(u.stack) == 0 {
		return nil, fmt.Errorf("%w: stack underflow", ErrInvalidPickle)
	}
	v := u.stack[len(u.stack)-1]
	u.stack = u.stack[:len(u.stack)-1]
	return v, nil
}

func (u *Unpickler) top() (any, error) {
	if len(u.stack) == 0 {
		return nil, fmt.Errorf("%w: stack underflow", ErrInvalidPickle)
	}
	return u.stack[len(u.stack)-1], nil
}

func (u *Unpickler) popMark() ([]any, error) {
	if len(u.metaStack) == 0 {
		return nil, fmt.Errorf("%w: could not find MARK", ErrInvalidPickle)
	}
	items := u.stack
	u.stack = u.metaStack[len(u.metaStack)-1]
	u.metaStack = u.metaStack[:len(u.metaStack)-1]
	return items, nil
}

func (u *Unpickler) readByte() (byte, error) {
	if u.frame != nil {
		b, err := u.frame.ReadByte()
		if err == nil {
			return b, nil
		}
		u.frame = nil
	}
	return u.r.ReadByte()
}

func (u *Unpickler) read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(u.RawReader(), buf); err != nil {
		return nil, truncated(err)
	}
	return buf, nil
}

// readSized reads n bytes without trusting n for the initial allocation.
func (u *Unpickler) readSized(n uint64) ([]byte, error) {
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("%w: length %d", ErrInvalidPickle, n)
	}
	if n <= 1<<16 {
		return u.read(int(n))
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, u.RawReader(), int64(n)); err != nil {
		return nil, truncated(err)
	}
	return buf.Bytes(), nil
}

func (u *Unpickler) readShort() ([]byte, error) {
	n, err := u.readByte()
	if err != nil {
		return nil, truncated(err)
	}
	return u.read(int(n))
}

func (u *Unpickler) readUint32() (uint32, error) {
	b, err := u.read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (u *Unpickler) readUint64() (uint64, error) {
	b, err := u.read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// readLine reads a newline terminated argument of the text opcodes.
func (u *Unpickler) readLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := u.readByte()
		if err != nil {
			return "", truncated(err)
		}
		if b == '\n' {
			return strings.TrimSuffix(sb.String(), "\r"), nil
		}
		sb.WriteByte(b)
	}
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: pickle data was truncated", ErrInvalidPickle)
	}
	return err
}

func call(fn, args any) (any, error) {
	var argv Tuple
	switch a := args.(type) {
	case Tuple:
		argv = a
	case nil:
	default:
		return nil, fmt.Errorf("%w: call arguments must be a tuple, got %T", ErrInvalidPickle, args)
	}
	c, ok := fn.(Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %T is not callable", ErrInvalidPickle, fn)
	}
	return c.Call(argv...)
}

func parseInt(s string) (any, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("%w: invalid integer %q", ErrInvalidPickle, s)
	}
	return normalizeInt(v), nil
}

func normalizeInt(v *big.Int) any {
	if v.IsInt64() {
		return v.Int64()
	}
	return v
}

// latin1 maps every byte to the code point of the same value, which is
// how Python 3 reads Python 2 str objects.
func latin1(b []byte) string {
	runes := make([]rune, len(b))
	for i, c := range b {
		runes[i] = rune(c)
	}
	return string(runes)
}

// same reports whether a and b are the same pointer-like value.
func same(a, b any) bool {
	ta := reflect.TypeOf(a)
	if ta == nil || ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
