package aaf

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/swar00pduthks/Aaf/pkg/aaf/config"
)

// Reserved keys written by the executor. Node functions must not write
// keys with a leading underscore.
const (
	KeyVisited    = "_visited_nodes"
	KeyFinalNode  = "_final_node"
	KeyHaltReason = "_halt_reason"
	KeyError      = "error"
	KeyFailedNode = "failed_node"
	KeyErrorKind  = "error_kind"

	// KeyResult holds a node's return value when it is not a mapping.
	KeyResult = "result"
)

// HaltReason records why a run stopped.
type HaltReason string

// Halt reasons.
const (
	// HaltTerminal means routing reached the terminal marker.
	HaltTerminal HaltReason = "terminal"
	// HaltNoRoute means the last node had no routing rule.
	HaltNoRoute HaltReason = "no_route"
	// HaltError means a failure was recorded.
	HaltError HaltReason = "error"
	// HaltIterationCap means the iteration cap forced a stop.
	HaltIterationCap HaltReason = "iteration_cap"
)

// Update is a state fragment returned by a node function. Its keys are
// shallow-merged onto the node's input state.
type Update map[string]any

// State is the ordered mapping threaded through a run. User keys form an
// open payload; framework bookkeeping (visited nodes, final node, halt
// reason, failure) lives in explicit fields and is exposed under the
// reserved keys only when serialized.
//
// State has value semantics: every mutating method returns a modified
// copy and never touches the receiver, so concurrent runs cannot observe
// each other's intermediate state. The zero value is an empty state.
type State struct {
	keys    []string
	values  map[string]any
	visited []string
	final   string
	halt    HaltReason
	failure *Failure
	// pending holds failed_node and error_kind written before any error
	// key. It becomes the failure once error is written.
	pending *Failure
}

// NewState builds a state from values. Go maps are unordered, so keys are
// inserted in sorted order. Reserved keys are lifted into bookkeeping.
func NewState(values map[string]any) State {
	var s State
	return s.Merge(values)
}

// StateOf builds a state from alternating key/value arguments, keeping
// argument order. It panics on an odd argument count or a non-string key.
func StateOf(kv ...any) State {
	if len(kv)%2 != 0 {
		panic("aaf: StateOf requires key/value pairs")
	}
	s := State{}.clone()
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("aaf: StateOf key at position %d is %T, not string", i, kv[i]))
		}
		s.set(key, kv[i+1])
	}
	return s
}

// Get returns the payload value for key.
func (s State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Has reports whether key is present in the payload.
func (s State) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Keys returns payload keys in insertion order.
func (s State) Keys() []string {
	return slices.Clone(s.keys)
}

// Len returns the number of payload keys.
func (s State) Len() int {
	return len(s.keys)
}

// Values returns a shallow copy of the payload.
func (s State) Values() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Map returns the payload plus any reserved keys, as the state would
// serialize.
func (s State) Map() map[string]any {
	out := s.Values()
	if s.halt != "" || len(s.visited) > 0 {
		out[KeyVisited] = slices.Clone(s.visited)
		out[KeyFinalNode] = s.final
	}
	if s.halt != "" {
		out[KeyHaltReason] = string(s.halt)
	}
	if s.failure != nil {
		out[KeyError] = s.failure.Message
		out[KeyFailedNode] = s.failure.Node
		out[KeyErrorKind] = string(s.failure.Kind)
	}
	return out
}

// String returns the string value for key, or defaultVal.
func (s State) String(key, defaultVal string) string {
	return config.Values(s.values).String(key, defaultVal)
}

// Int returns the integer value for key, or defaultVal.
func (s State) Int(key string, defaultVal int) int {
	return config.Values(s.values).Int(key, defaultVal)
}

// Float returns the float64 value for key, or defaultVal.
func (s State) Float(key string, defaultVal float64) float64 {
	return config.Values(s.values).Float(key, defaultVal)
}

// Bool returns the boolean value for key, or defaultVal.
func (s State) Bool(key string, defaultVal bool) bool {
	return config.Values(s.values).Bool(key, defaultVal)
}

// Duration returns the duration value for key, or defaultVal.
func (s State) Duration(key string, defaultVal time.Duration) time.Duration {
	return config.Values(s.values).Duration(key, defaultVal)
}

// StringSlice returns the string slice for key, or defaultVal.
func (s State) StringSlice(key string, defaultVal []string) []string {
	return config.Values(s.values).StringSlice(key, defaultVal)
}

// With returns a copy of s with key set to value.
func (s State) With(key string, value any) State {
	next := s.clone()
	next.set(key, value)
	return next
}

// Merge returns a copy of s with update shallow-merged on top. Keys in
// update win; new keys are appended in sorted order.
func (s State) Merge(update map[string]any) State {
	next := s.clone()
	for _, k := range sortedKeys(update) {
		next.set(k, update[k])
	}
	return next
}

// Visited returns the node ids executed so far, in order.
func (s State) Visited() []string {
	return slices.Clone(s.visited)
}

// FinalNode returns the last node actually executed.
func (s State) FinalNode() string {
	return s.final
}

// Halt returns why the run stopped, or "" if it has not halted.
func (s State) Halt() HaltReason {
	return s.halt
}

// Failure returns the recorded failure, or nil.
func (s State) Failure() *Failure {
	return s.failure
}

// Failed reports whether an error key is present.
func (s State) Failed() bool {
	return s.failure != nil
}

// Err returns the failure as an error. A run stopped by the iteration cap
// carries no error key, but Err still reports it as an
// IterationCapReached failure so Go callers can tell it apart from a
// clean halt.
func (s State) Err() error {
	if s.failure != nil {
		return s.failure
	}
	if s.halt == HaltIterationCap {
		return &Failure{
			Kind:    KindIterationCapReached,
			Message: fmt.Sprintf("iteration cap reached after %d nodes", len(s.visited)),
			Node:    s.final,
		}
	}
	return nil
}

// clone copies s, detaching all slices and maps.
func (s State) clone() State {
	next := State{
		keys:    slices.Clone(s.keys),
		values:  make(map[string]any, len(s.values)+1),
		visited: slices.Clone(s.visited),
		final:   s.final,
		halt:    s.halt,
	}
	for k, v := range s.values {
		next.values[k] = v
	}
	if s.failure != nil {
		f := *s.failure
		next.failure = &f
	}
	if s.pending != nil {
		p := *s.pending
		next.pending = &p
	}
	return next
}

// set writes key on an already-cloned state, lifting reserved keys.
func (s *State) set(key string, value any) {
	switch key {
	case KeyVisited:
		s.visited = toStrings(value)
		return
	case KeyFinalNode:
		s.final = fmt.Sprint(value)
		return
	case KeyHaltReason:
		s.halt = HaltReason(fmt.Sprint(value))
		return
	case KeyError:
		if s.failure == nil {
			s.failure = s.pending
			s.pending = nil
			if s.failure == nil {
				s.failure = &Failure{Kind: KindNodeFailure}
			}
		}
		s.failure.Message = stringify(value)
		return
	case KeyFailedNode:
		s.failureFields().Node = fmt.Sprint(value)
		return
	case KeyErrorKind:
		s.failureFields().Kind = ErrorKind(fmt.Sprint(value))
		return
	}
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, exists := s.values[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// failureFields returns the recorded failure, or the pending one when no
// error key has been written. Only the error key records a failure.
func (s *State) failureFields() *Failure {
	if s.failure != nil {
		return s.failure
	}
	if s.pending == nil {
		s.pending = &Failure{Kind: KindNodeFailure}
	}
	return s.pending
}

// resetRun clears the visited nodes, final node and halt reason. A
// failure carried by the caller is kept.
func (s *State) resetRun() {
	s.visited = nil
	s.final = ""
	s.halt = ""
}

func (s State) withFailure(f *Failure) State {
	next := s.clone()
	next.failure = f
	return next
}

// applyFragment merges a node's result keys onto s in the given order.
// Underscore keys are rejected unless allowExisting is set and the key is
// already present, as are failed_node and error_kind without error.
// Writing the error key records a NodeFailure at nodeID.
func (s State) applyFragment(nodeID string, keys []string, values map[string]any, allowExisting bool) (State, error) {
	var writesError bool
	for _, k := range keys {
		if strings.HasPrefix(k, "_") && !(allowExisting && s.Has(k)) {
			return s, fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
		if k == KeyError {
			writesError = true
		}
	}
	if !writesError {
		for _, k := range keys {
			if k == KeyFailedNode || k == KeyErrorKind {
				return s, fmt.Errorf("%w: %q without %q", ErrReservedKey, k, KeyError)
			}
		}
	}
	next := s.clone()
	for _, k := range keys {
		next.set(k, values[k])
	}
	if next.failure != nil && s.failure == nil {
		next.failure.Kind = KindNodeFailure
		if next.failure.Node == "" {
			next.failure.Node = nodeID
		}
	}
	return next, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func toStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return slices.Clone(val)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case error:
		return val.Error()
	}
	return fmt.Sprint(v)
}
