package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Field es un par clave/valor del payload. El valor se guarda ya serializado.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Payload es un objeto JSON que conserva el orden de sus campos.
type Payload []Field

// PayloadOf convierte cualquier valor serializable a objeto JSON en un Payload.
// Las structs conservan el orden de declaración de sus campos.
func PayloadOf(v interface{}) (Payload, error) {
	switch p := v.(type) {
	case Payload:
		return p, nil
	case *Payload:
		return *p, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var p Payload
	if err := p.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return p, nil
}

// Get devuelve el valor crudo de un campo.
func (p Payload) Get(key string) (json.RawMessage, bool) {
	for _, f := range p {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// String devuelve el valor de un campo como texto: strings sin comillas, números tal cual.
// Nulos, objetos y ausentes devuelven "".
func (p Payload) String(key string) string {
	raw, ok := p.Get(key)
	if !ok {
		return ""
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		s, err := strconv.Unquote(string(raw))
		if err != nil {
			var out string
			if json.Unmarshal(raw, &out) == nil {
				return out
			}
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

// With devuelve una copia con el campo fijado; si ya existía se reemplaza en su posición.
func (p Payload) With(key string, value interface{}) (Payload, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	out := make(Payload, 0, len(p)+1)
	replaced := false
	for _, f := range p {
		if f.Key == key {
			out = append(out, Field{Key: key, Value: raw})
			replaced = true
			continue
		}
		out = append(out, f)
	}
	if !replaced {
		out = append(out, Field{Key: key, Value: raw})
	}
	return out, nil
}

// Decode vuelca el payload sobre dest (puntero a struct o map).
func (p Payload) Decode(dest interface{}) error {
	raw, err := p.MarshalJSON()
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(f.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(f.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var errNotObject = errors.New("payload is not a JSON object")

func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errNotObject
	}

	out := Payload{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errNotObject
		}
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return err
		}
		out = append(out, Field{Key: key, Value: value})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*p = out
	return nil
}
