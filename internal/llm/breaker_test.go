package llm

import "testing"

func TestBreakerPausesOnCriticalSeverity(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxConsecutiveFailures: 10, PauseOnCriticalError: true})

	if pause := b.RecordFailure(SeverityWarning); pause {
		t.Fatal("a single warning-severity failure should not pause")
	}
	if pause := b.RecordFailure(SeverityCritical); !pause {
		t.Fatal("expected a critical-severity failure to pause regardless of streak")
	}
}

func TestBreakerPausesOnStreak(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxConsecutiveFailures: 3, PauseOnCriticalError: false})

	if pause := b.RecordFailure(SeverityWarning); pause {
		t.Fatal("streak 1 of 3 should not pause")
	}
	if pause := b.RecordFailure(SeverityWarning); pause {
		t.Fatal("streak 2 of 3 should not pause")
	}
	if pause := b.RecordFailure(SeverityWarning); !pause {
		t.Fatal("streak reaching the configured max should pause")
	}
}

func TestBreakerRecordSuccessResetsStreak(t *testing.T) {
	b := NewBreaker(BreakerConfig{MaxConsecutiveFailures: 2, PauseOnCriticalError: false})

	b.RecordFailure(SeverityWarning)
	b.RecordSuccess()

	if got := b.Streak(); got != 0 {
		t.Fatalf("expected streak reset to 0, got %d", got)
	}
	if pause := b.RecordFailure(SeverityWarning); pause {
		t.Fatal("expected the streak to have restarted from zero")
	}
}

func TestBackoffCapsExponentialGrowth(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{0, 1},
		{1, 2},
		{2, 4},
		{3, 8},
		{4, 8}, // capped at cap=3 -> 1<<3 = 8
		{100, 8},
	}

	for _, tc := range cases {
		if got := Backoff(1, tc.n, 3); got != tc.want {
			t.Fatalf("Backoff(1, %d, 3) = %d, want %d", tc.n, got, tc.want)
		}
	}
}
