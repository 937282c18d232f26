package jsonrecover

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind identifies which variant a Value holds.
type Kind uint8

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
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Member is a single key/value pair of an object Value.
type Member struct {
	Key   string
	Value Value
}

// Value is a dynamically typed JSON value. Objects keep their keys in
// document order and numbers keep their literal text, so re-encoding a
// parsed Value does not alter its content.
//
// The zero Value is JSON null.
type Value struct {
	kind    Kind
	b       bool
	text    string
	items   []Value
	members []Member
}

func NullValue() Value { return Value{} }

func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

func NumberValue(f float64) Value {
	return Value{kind: Number, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

func StringValue(s string) Value { return Value{kind: String, text: s} }

func ArrayValue(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: Array, items: items}
}

// ObjectValue builds an object. A repeated key replaces the earlier value
// but keeps the earlier position, matching encoding/json's last-wins rule.
func ObjectValue(members ...Member) Value {
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = setMember(out, m.Key, m.Value)
	}
	return Value{kind: Object, members: out}
}

func (v Value) Kind() Kind { return v.kind }

func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) Bool() (bool, bool) {
	return v.b, v.kind == Bool
}

// Float returns the numeric value of a Number.
func (v Value) Float() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.text, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Text returns the contents of a String.
func (v Value) Text() (string, bool) {
	return v.text, v.kind == String
}

// Literal returns the source text of a Number.
func (v Value) Literal() string {
	if v.kind != Number {
		return ""
	}
	return v.text
}

// Items returns the elements of an Array, nil for any other kind.
func (v Value) Items() []Value {
	if v.kind != Array {
		return nil
	}
	return v.items
}

// Members returns the ordered members of an Object, nil for any other kind.
func (v Value) Members() []Member {
	if v.kind != Object {
		return nil
	}
	return v.members
}

// Get looks up key in an Object.
func (v Value) Get(key string) (Value, bool) {
	for _, m := range v.Members() {
		if m.Key == key {
			return m.Value, true
		}
	}
	return Value{}, false
}

// Len is the number of elements or members, 0 for scalars.
func (v Value) Len() int {
	switch v.kind {
	case Array:
		return len(v.items)
	case Object:
		return len(v.members)
	}
	return 0
}

// Clone returns a deep copy that shares no backing storage with v.
func (v Value) Clone() Value {
	switch v.kind {
	case Array:
		items := make([]Value, len(v.items))
		for i, it := range v.items {
			items[i] = it.Clone()
		}
		return Value{kind: Array, items: items}
	case Object:
		members := make([]Member, len(v.members))
		for i, m := range v.members {
			members[i] = Member{Key: m.Key, Value: m.Value.Clone()}
		}
		return Value{kind: Object, members: members}
	}
	return v
}

// Interface converts v into the representation encoding/json produces when
// decoding into an interface{}: map[string]any, []any, float64, string,
// bool or nil.
func (v Value) Interface() any {
	switch v.kind {
	case Bool:
		return v.b
	case Number:
		f, _ := v.Float()
		return f
	case String:
		return v.text
	case Array:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Interface()
		}
		return out
	case Object:
		out := make(map[string]any, len(v.members))
		for _, m := range v.members {
			out[m.Key] = m.Value.Interface()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes v compactly, preserving member order.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes strict JSON into v.
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := decode(string(data))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// String returns the compact JSON encoding of v.
func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return ""
	}
	return string(data)
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case Null:
		buf.WriteString("null")
	case Bool:
		buf.WriteString(strconv.FormatBool(v.b))
	case Number:
		buf.WriteString(v.text)
	case String:
		return encodeString(buf, v.text)
	case Array:
		buf.WriteByte('[')
		for i, it := range v.items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := it.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case Object:
		buf.WriteByte('{')
		for i, m := range v.members {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeString(buf, m.Key); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := m.Value.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot encode value of kind %s", v.kind)
	}
	return nil
}

func encodeString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encoder terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func setMember(members []Member, key string, val Value) []Member {
	for i := range members {
		if members[i].Key == key {
			members[i].Value = val
			return members
		}
	}
	return append(members, Member{Key: key, Value: val})
}

var errTrailingData = errors.New("unexpected data after top-level value")

// decode parses text as exactly one strict JSON document.
func decode(text string) (Value, error) {
	if !json.Valid([]byte(text)) {
		// Unmarshal reports the precise syntax error.
		var sink any
		if err := json.Unmarshal([]byte(text), &sink); err != nil {
			return Value{}, err
		}
		return Value{}, errTrailingData
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return Value{}, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return Value{}, errTrailingData
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Value{}, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			members := []Member{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Value{}, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Value{}, fmt.Errorf("object key is %T, not string", keyTok)
				}
				val, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				members = setMember(members, key, val)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: Object, members: members}, nil
		case '[':
			items := []Value{}
			for dec.More() {
				it, err := decodeValue(dec)
				if err != nil {
					return Value{}, err
				}
				items = append(items, it)
			}
			if _, err := dec.Token(); err != nil {
				return Value{}, err
			}
			return Value{kind: Array, items: items}, nil
		}
		return Value{}, fmt.Errorf("unexpected delimiter %q", t)
	case string:
		return StringValue(t), nil
	case json.Number:
		return Value{kind: Number, text: t.String()}, nil
	case bool:
		return BoolValue(t), nil
	case nil:
		return NullValue(), nil
	}
	return Value{}, fmt.Errorf("unexpected token %T", tok)
}
