package aaf

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalJSON writes the payload in insertion order, followed by the
// reserved keys that apply.
func (s State) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	write := func(key string, value any) error {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		k, err := json.Marshal(key)
		if err != nil {
			return err
		}
		v, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshal state key %q: %w", key, err)
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
		return nil
	}

	for _, k := range s.keys {
		if err := write(k, s.values[k]); err != nil {
			return nil, err
		}
	}
	if s.halt != "" || len(s.visited) > 0 {
		visited := s.visited
		if visited == nil {
			visited = []string{}
		}
		if err := write(KeyVisited, visited); err != nil {
			return nil, err
		}
		if err := write(KeyFinalNode, s.final); err != nil {
			return nil, err
		}
	}
	if s.halt != "" {
		if err := write(KeyHaltReason, s.halt); err != nil {
			return nil, err
		}
	}
	if s.failure != nil {
		if err := write(KeyError, s.failure.Message); err != nil {
			return nil, err
		}
		if err := write(KeyFailedNode, s.failure.Node); err != nil {
			return nil, err
		}
		if err := write(KeyErrorKind, s.failure.Kind); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving document key order and
// lifting reserved keys into bookkeeping. Numbers decode as json.Number so
// integers keep full precision.
func (s *State) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*s = State{}
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("aaf: state must be a JSON object, got %v", tok)
	}

	next := State{}.clone()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("aaf: unexpected state key token %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode state key %q: %w", key, err)
		}
		next.set(key, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*s = next
	return nil
}
