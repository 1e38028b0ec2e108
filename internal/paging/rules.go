package paging

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

type shape int

const (
	shapeArray shape = iota
	shapeEnvelope
)

// shapeRules recognize the payload, in priority order.
var shapeRules = []struct {
	shape shape
	match func(raw []byte) bool
}{
	{shapeArray, isArray},
	{shapeEnvelope, isObject},
}

// itemRules name the envelope fields holding items, in priority order.
// A field that is not an array is skipped.
var itemRules = []string{"items", "data"}

// metaRules locate the pagination block of an envelope, in priority order.
var metaRules = []func(env map[string]json.RawMessage) (map[string]json.RawMessage, bool){
	nestedMeta,
	topLevelMeta,
}

func nestedMeta(env map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	raw, ok := env["meta"]
	if !ok || !isObject(raw) {
		return nil, false
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

func topLevelMeta(env map[string]json.RawMessage) (map[string]json.RawMessage, bool) {
	m := make(map[string]json.RawMessage, 3)
	for _, k := range []string{"total", "page", "limit"} {
		if v, ok := env[k]; ok {
			m[k] = v
		}
	}
	return m, true
}

func isArray(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// firstNumber reads the first of keys present in m with a non-null value
// and returns it when it is a non-zero number, else fallback. Later keys are
// consulted only when earlier ones are absent or null, so a zero pageSize
// falls back rather than deferring to limit. JSON numbers and numeric
// strings both count.
func firstNumber(m map[string]json.RawMessage, fallback int, keys ...string) int {
	for _, k := range keys {
		raw, ok := m[k]
		if !ok || string(bytes.TrimSpace(raw)) == "null" {
			continue
		}
		if n, ok := number(raw); ok && n != 0 {
			return n
		}
		return fallback
	}
	return fallback
}

func number(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f), true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int(f), true
}
