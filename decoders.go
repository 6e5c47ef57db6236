package skhub

import (
	"bufio"
	"io"
	"os"
)

// DecodeFunc decodes a serialized stream, e.g. joblib.Decode or
// pickle.Decode.
type DecodeFunc func(r io.Reader) (any, error)

// FileDecoder is the default Decoder. It opens the file, passes the reader
// through an optional ReadHook and decodes the buffered stream.
type FileDecoder struct {
	decode DecodeFunc
	hook   ReadHook
}

// NewFileDecoder returns a FileDecoder running decode on each file.
// hook may be nil.
func NewFileDecoder(decode DecodeFunc, hook ReadHook) *FileDecoder {
	return &FileDecoder{decode: decode, hook: hook}
}

// Decode decodes the file at path. Errors from the decode function are
// returned unchanged.
func (d *FileDecoder) Decode(path string) (any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if d.hook != nil {
		info, err := f.Stat()
		if err != nil {
			return nil, err
		}
		r = d.hook(info.Size(), r)
	}
	return d.decode(bufio.NewReader(r))
}
