package circuit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errDown   = errors.New("down")
	errReject = errors.New("rejected")
)

func onlyDown(err error) bool { return errors.Is(err, errDown) }

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New("broker", 3, time.Minute)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	b.SetStateChangeHandler(func(string, State, State) {})

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errDown }, onlyDown), errDown)
	}
	assert.Equal(t, StateClosed, b.State())

	assert.ErrorIs(t, b.Do(func() error { return errDown }, onlyDown), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Do(func() error { called = true; return nil }, onlyDown)
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerIgnoresNonCountingErrors(t *testing.T) {
	b := New("broker", 2, time.Minute)
	b.SetStateChangeHandler(func(string, State, State) {})

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, b.Do(func() error { return errReject }, onlyDown), errReject)
	}
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := New("broker", 1, 10*time.Second)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	b.SetStateChangeHandler(func(string, State, State) {})

	_ = b.Do(func() error { return errDown }, onlyDown)
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	// second caller waits for the probe
	assert.False(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	now = now.Add(11 * time.Second)
	assert.NoError(t, b.Do(func() error { return nil }, onlyDown))
	assert.Equal(t, StateClosed, b.State())
}
