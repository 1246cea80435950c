package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

var errUpstream = errors.New("503 service unavailable")

func fail() error { return errUpstream }
func ok() error   { return nil }

func TestBreaker_OpensAfterMaxFailures(t *testing.T) {
	mock := clock.NewMock()
	cb := New(3, 30*time.Second, WithClock(mock))

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, cb.Execute(fail), errUpstream)
		assert.Equal(t, StateClosed, cb.State())
	}
	assert.ErrorIs(t, cb.Execute(fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New(2, time.Minute, WithClock(clock.NewMock()))

	_ = cb.Execute(fail)
	assert.NoError(t, cb.Execute(ok))
	_ = cb.Execute(fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	mock := clock.NewMock()
	cb := New(1, 30*time.Second, WithClock(mock))

	_ = cb.Execute(fail)
	assert.Equal(t, StateOpen, cb.State())

	mock.Add(31 * time.Second)
	assert.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	mock := clock.NewMock()
	cb := New(3, 30*time.Second, WithClock(mock), WithHalfOpenSuccesses(2))

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail)
	}
	mock.Add(31 * time.Second)

	assert.NoError(t, cb.Execute(ok))
	assert.Equal(t, StateHalfOpen, cb.State())

	assert.ErrorIs(t, cb.Execute(fail), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(ok), ErrCircuitOpen)
}

func TestBreaker_FailurePredicate(t *testing.T) {
	errBadRequest := errors.New("400 bad request")
	cb := New(1, time.Minute,
		WithClock(clock.NewMock()),
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, errBadRequest) }))

	assert.ErrorIs(t, cb.Execute(func() error { return errBadRequest }), errBadRequest)
	assert.Equal(t, StateClosed, cb.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
