package typeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// NUMERIC TESTS
// =============================================================================

func TestInt(t *testing.T) {
	tests := []struct {
		name   string
		input  map[string]any
		want   int
		wantOK bool
	}{
		{"int", map[string]any{"k": 5}, 5, true},
		{"int64", map[string]any{"k": int64(7)}, 7, true},
		{"float64 from json", map[string]any{"k": 3.0}, 3, true},
		{"numeric string", map[string]any{"k": " 12 "}, 12, true},
		{"bad string", map[string]any{"k": "twelve"}, 0, false},
		{"missing", map[string]any{}, 0, false},
		{"nil value", map[string]any{"k": nil}, 0, false},
		{"wrong type", map[string]any{"k": true}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Int(tt.input, "k")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFloat64(t *testing.T) {
	tests := []struct {
		name   string
		input  map[string]any
		want   float64
		wantOK bool
	}{
		{"float64", map[string]any{"k": 0.8}, 0.8, true},
		{"int", map[string]any{"k": 1}, 1.0, true},
		{"string", map[string]any{"k": "0.75"}, 0.75, true},
		{"bad string", map[string]any{"k": "high"}, 0, false},
		{"missing", map[string]any{}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Float64(tt.input, "k")
			assert.Equal(t, tt.wantOK, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSeconds(t *testing.T) {
	tests := []struct {
		name   string
		input  any
		want   time.Duration
		wantOK bool
	}{
		{"int seconds", 30, 30 * time.Second, true},
		{"float seconds", 1.5, 1500 * time.Millisecond, true},
		{"duration string", "1m30s", 90 * time.Second, true},
		{"numeric string", "15", 15 * time.Second, true},
		{"garbage", "soon", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Seconds(map[string]any{"k": tt.input}, "k")
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// STRING AND BOOL TESTS
// =============================================================================

func TestString(t *testing.T) {
	s, ok := String(map[string]any{"k": "v"}, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", s)

	_, ok = String(map[string]any{"k": 1}, "k")
	assert.False(t, ok)

	assert.Equal(t, "fallback", StringDefault(map[string]any{}, "k", "fallback"))
}
