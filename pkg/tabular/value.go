package tabular

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Kind identifies the variant held by a Value.
type Kind int

// Value kinds. The zero Value is Null.
const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "boolean"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a parsed JSON value. Objects keep their keys in document order,
// which fixes the column order of normalized tables.
type Value struct {
	kind Kind
	b    bool
	s    string // string content, or the literal text of a number
	arr  []Value
	obj  *object
}

type object struct {
	keys   []string
	fields map[string]Value
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is JSON null.
func (v Value) IsNull() bool { return v.kind == Null }

// Elements returns the items of an array, or nil.
func (v Value) Elements() []Value { return v.arr }

// Keys returns the keys of an object in document order, or nil.
func (v Value) Keys() []string {
	if v.obj == nil {
		return nil
	}
	return v.obj.keys
}

// Field returns the member named key of an object.
func (v Value) Field(key string) (Value, bool) {
	if v.obj == nil {
		return Value{}, false
	}
	f, ok := v.obj.fields[key]
	return f, ok
}

// Parse decodes a single JSON document.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := parseValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Value{}, fmt.Errorf("unexpected data after top-level value")
	}
	return v, nil
}

func parseValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Value{}, io.ErrUnexpectedEOF
		}
		return Value{}, err
	}

	switch t := tok.(type) {
	case nil:
		return Value{}, nil
	case bool:
		return Value{kind: Bool, b: t}, nil
	case json.Number:
		return Value{kind: Number, s: t.String()}, nil
	case string:
		return Value{kind: String, s: t}, nil
	case json.Delim:
		switch t {
		case '{':
			return parseObject(dec)
		case '[':
			return parseArray(dec)
		}
	}
	return Value{}, fmt.Errorf("unexpected token %v", tok)
}

func parseObject(dec *json.Decoder) (Value, error) {
	obj := &object{fields: make(map[string]Value)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Value{}, err
		}
		key, ok := tok.(string)
		if !ok {
			return Value{}, fmt.Errorf("unexpected object key %v", tok)
		}
		v, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		// Duplicate keys: last value wins, first position is kept.
		if _, dup := obj.fields[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.fields[key] = v
	}
	if _, err := dec.Token(); err != nil { // closing '}'
		return Value{}, err
	}
	return Value{kind: Object, obj: obj}, nil
}

func parseArray(dec *json.Decoder) (Value, error) {
	arr := []Value{}
	for dec.More() {
		v, err := parseValue(dec)
		if err != nil {
			return Value{}, err
		}
		arr = append(arr, v)
	}
	if _, err := dec.Token(); err != nil { // closing ']'
		return Value{}, err
	}
	return Value{kind: Array, arr: arr}, nil
}

// MarshalJSON encodes v compactly, preserving object key order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Number:
		buf.WriteString(v.s)
	case String:
		b, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(b)
	case Array:
		buf.WriteByte('[')
		for i, e := range v.arr {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, k := range v.obj.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := v.obj.fields[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	return nil
}

// Text renders v as a string: string content verbatim, anything else as
// compact JSON.
func (v Value) Text() string {
	if v.kind == String {
		return v.s
	}
	b, _ := v.MarshalJSON()
	return string(b)
}
