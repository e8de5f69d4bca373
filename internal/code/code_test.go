package code

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/event-booking/internal/model"
)

func sequence(values ...int) func(n int) int {
	i := 0
	return func(n int) int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestCandidateFormat(t *testing.T) {
	g := NewGenerator("")

	for i := 0; i < 1000; i++ {
		c := g.Candidate()
		require.True(t, Valid(c), "candidate %q has invalid format", c)
		require.True(t, strings.HasPrefix(c, DefaultPrefix+"-"))
	}
}

func TestCandidateBounds(t *testing.T) {
	low := NewGenerator("EVT", WithSource(func(n int) int { return 0 }))
	high := NewGenerator("EVT", WithSource(func(n int) int { return n - 1 }))

	assert.Equal(t, "EVT-10000", low.Candidate())
	assert.Equal(t, "EVT-99999", high.Candidate())
}

func TestGenerate_SkipsTakenCodes(t *testing.T) {
	g := NewGenerator("EVT", WithSource(sequence(1, 2, 3)))
	taken := map[string]bool{"EVT-10001": true, "EVT-10002": true}

	var used string
	got, err := g.Generate(context.Background(),
		func(ctx context.Context, code string) (bool, error) { return taken[code], nil },
		func(ctx context.Context, code string) error {
			used = code
			return nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "EVT-10003", got)
	assert.Equal(t, got, used)
}

func TestGenerate_RetriesOnDuplicateInsert(t *testing.T) {
	g := NewGenerator("EVT", WithSource(sequence(5, 6)))
	calls := 0

	got, err := g.Generate(context.Background(), nil, func(ctx context.Context, code string) error {
		calls++
		if calls == 1 {
			return model.ErrDuplicateCode
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "EVT-10006", got)
	assert.Equal(t, 2, calls)
}

func TestGenerate_ExhaustsBudget(t *testing.T) {
	g := NewGenerator("EVT")
	checks := 0

	_, err := g.Generate(context.Background(),
		func(ctx context.Context, code string) (bool, error) {
			checks++
			return true, nil
		},
		func(ctx context.Context, code string) error {
			t.Fatalf("use must not be called when every code is taken")
			return nil
		},
	)
	require.ErrorIs(t, err, model.ErrResourceExhausted)
	assert.Equal(t, DefaultAttempts, checks)
}

func TestGenerate_CustomBudget(t *testing.T) {
	g := NewGenerator("EVT", WithAttempts(3))
	checks := 0

	_, err := g.Generate(context.Background(),
		func(ctx context.Context, code string) (bool, error) {
			checks++
			return true, nil
		},
		func(ctx context.Context, code string) error { return nil },
	)
	require.ErrorIs(t, err, model.ErrResourceExhausted)
	assert.Equal(t, 3, checks)
}

func TestGenerate_PropagatesUseError(t *testing.T) {
	g := NewGenerator("EVT")
	boom := errors.New("insert failed")

	_, err := g.Generate(context.Background(), nil, func(ctx context.Context, code string) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestValid(t *testing.T) {
	tests := []struct {
		code  string
		valid bool
	}{
		{"EVT-12345", true},
		{"EVT-1234", false},
		{"evt-12345", false},
		{"EVT12345", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.valid, Valid(tt.code))
		})
	}
}
