package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManualNowMsReflectsAdvance(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	require.Equal(t, int64(0), m.NowMs())

	m.Advance(5 * time.Second)
	require.Equal(t, int64(5000), m.NowMs())
}

func TestManualAfterFiresOnceDeadlineCrossed(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ch := m.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	m.Advance(9 * time.Second)
	select {
	case <-ch:
		t.Fatal("fired before deadline")
	default:
	}

	m.Advance(time.Second)
	select {
	case fired := <-ch:
		require.Equal(t, m.Now(), fired)
	default:
		t.Fatal("did not fire after deadline crossed")
	}
}

func TestManualAfterWithNonPositiveDurationFiresImmediately(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ch := m.After(0)

	select {
	case <-ch:
	default:
		t.Fatal("expected immediate fire for zero duration")
	}
}

func TestManualAfterFiresMultipleWaitersInDeadlineOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	first := m.After(5 * time.Second)
	second := m.After(10 * time.Second)

	m.Advance(5 * time.Second)
	select {
	case <-first:
	default:
		t.Fatal("first waiter should have fired")
	}
	select {
	case <-second:
		t.Fatal("second waiter should not have fired yet")
	default:
	}

	m.Advance(5 * time.Second)
	select {
	case <-second:
	default:
		t.Fatal("second waiter should have fired")
	}
}

func TestManualSetRefusesBackwardsMovement(t *testing.T) {
	m := NewManual(time.Unix(100, 0))
	m.Set(time.Unix(50, 0))
	require.Equal(t, int64(100_000), m.NowMs())
}

func TestManualSetAdvancesForward(t *testing.T) {
	m := NewManual(time.Unix(100, 0))
	m.Set(time.Unix(150, 0))
	require.Equal(t, int64(150_000), m.NowMs())
}

func TestSystemClockAdvancesWithWallTime(t *testing.T) {
	s := NewSystem()
	before := s.NowMs()
	time.Sleep(time.Millisecond)
	after := s.NowMs()
	require.GreaterOrEqual(t, after, before)
}
