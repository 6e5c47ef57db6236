package joblib

import (
	"bytes"
	"fmt"
	"io"

	"github.com/prethora/skhub/pickle"
)

// wrapperClass stands in for joblib.numpy_pickle.NumpyArrayWrapper.
type wrapperClass struct{}

func (wrapperClass) Call(args ...any) (any, error) {
	return &arrayWrapper{}, nil
}

// arrayWrapper holds the attributes of a NumpyArrayWrapper until the
// array payload following its BUILD opcode is read.
type arrayWrapper struct {
	state *pickle.Dict
}

func (w *arrayWrapper) SetState(state any) error {
	d, ok := state.(*pickle.Dict)
	if !ok {
		return fmt.Errorf("%w: NumpyArrayWrapper state is %T", pickle.ErrInvalidPickle, state)
	}
	w.state = d
	return nil
}

// read consumes the array stored right after the wrapper.
func (w *arrayWrapper) read(u *pickle.Unpickler) (*pickle.NDArray, error) {
	if w.state == nil {
		return nil, fmt.Errorf("%w: NumpyArrayWrapper without state", pickle.ErrInvalidPickle)
	}
	dtype, ok := w.state.MustGet("dtype").(*pickle.Dtype)
	if !ok {
		return nil, fmt.Errorf("%w: NumpyArrayWrapper dtype is %T", pickle.ErrInvalidPickle, w.state.MustGet("dtype"))
	}
	shape, err := shapeOf(w.state.MustGet("shape"))
	if err != nil {
		return nil, err
	}
	order, _ := w.state.MustGet("order").(string)

	if dtype.HasObject() {
		v, err := u.LoadNested()
		if err != nil {
			return nil, fmt.Errorf("reading object array: %w", err)
		}
		arr, ok := v.(*pickle.NDArray)
		if !ok {
			return nil, fmt.Errorf("%w: object array decoded to %T", pickle.ErrInvalidPickle, v)
		}
		return arr, nil
	}

	raw := u.RawReader()
	if alignment := w.state.MustGet("numpy_array_alignment_bytes"); alignment != nil {
		if err := skipPadding(raw); err != nil {
			return nil, err
		}
	}

	count := 1
	for _, dim := range shape {
		count *= dim
	}
	size := int64(count) * int64(dtype.ItemSize)
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, raw, size); err != nil {
		return nil, fmt.Errorf("%w: reading %d bytes of array data: %v", pickle.ErrInvalidPickle, size, err)
	}
	return &pickle.NDArray{
		Shape:        shape,
		Dtype:        dtype,
		FortranOrder: order == "F",
		Data:         buf.Bytes(),
	}, nil
}

// skipPadding discards the alignment padding written before arrays by
// joblib >= 1.2: one length byte followed by that many filler bytes.
func skipPadding(r io.Reader) error {
	var n [1]byte
	if _, err := io.ReadFull(r, n[:]); err != nil {
		return fmt.Errorf("%w: missing array padding", pickle.ErrInvalidPickle)
	}
	if _, err := io.CopyN(io.Discard, r, int64(n[0])); err != nil {
		return fmt.Errorf("%w: truncated array padding", pickle.ErrInvalidPickle)
	}
	return nil
}

func shapeOf(v any) ([]int, error) {
	t, ok := v.(pickle.Tuple)
	if !ok {
		return nil, fmt.Errorf("%w: NumpyArrayWrapper shape is %T", pickle.ErrInvalidPickle, v)
	}
	shape := make([]int, len(t))
	for i, dim := range t {
		n, err := pickle.ToInt(dim)
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: negative dimension %d", pickle.ErrInvalidPickle, n)
		}
		shape[i] = n
	}
	return shape, nil
}
