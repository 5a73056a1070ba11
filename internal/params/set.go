// Package params turns tracking entities into the ordered parameter set of
// a single beacon.
package params

import (
	"net/url"
	"strconv"
	"strings"
)

// Version is the browser client version the wire format follows (utmwv).
const Version = "5.2.2"

// Set is an insertion-ordered parameter mapping. Re-setting a key keeps its
// original position; empty values are never encoded.
type Set struct {
	keys   []string
	values map[string]string
}

func NewSet() *Set {
	return &Set{values: map[string]string{}}
}

// NewDefaultSet returns a set primed with the values the browser client
// always sends.
func NewDefaultSet() *Set {
	s := NewSet()
	s.Set("utmwv", Version)
	s.Set("utmcs", "-")
	s.Set("utmr", "-")
	s.Set("utmfl", "-")
	s.Set("utmje", "-")
	return s
}

func (s *Set) Set(key, value string) {
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

// SetOptional sets key only when value is not empty.
func (s *Set) SetOptional(key, value string) {
	if value != "" {
		s.Set(key, value)
	}
}

func (s *Set) SetInt(key string, value int64) {
	s.Set(key, strconv.FormatInt(value, 10))
}

func (s *Set) SetFloat(key string, value *float64) {
	if value != nil {
		s.Set(key, strconv.FormatFloat(*value, 'f', -1, 64))
	}
}

// Append concatenates value to the current value of key.
func (s *Set) Append(key, value string) {
	if value == "" {
		return
	}
	s.Set(key, s.values[key]+value)
}

func (s *Set) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Set) Del(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the keys carrying a value, in insertion order.
func (s *Set) Keys() []string {
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		if s.values[k] != "" {
			out = append(out, k)
		}
	}
	return out
}

func (s *Set) Len() int { return len(s.Keys()) }

// Encode form-encodes the set in insertion order, spaces as %20.
func (s *Set) Encode() string {
	var sb strings.Builder
	for _, k := range s.Keys() {
		if sb.Len() > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(rawQueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(rawQueryEscape(s.values[k]))
	}
	return sb.String()
}

func rawQueryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
