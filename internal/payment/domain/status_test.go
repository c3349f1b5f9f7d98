package domain

import (
	"strconv"
	"testing"
)

func TestStatusFromCode_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want OrderStatus
	}{
		{code: "1", want: StatusPending},
		{code: "4", want: StatusCompleted},
		{code: "8", want: StatusCancelled},
		{code: "16", want: StatusCancelled},
		{code: "31", want: StatusCancelled},
		{code: "32", want: StatusCancelled},
		{code: "9", want: StatusRefunded},
		{code: "64", want: StatusRefunded},
		{code: "10", want: StatusWaiting},
		{code: " 4 ", want: StatusCompleted},
		{code: "", want: StatusFailed},
		{code: "abc", want: StatusFailed},
		{code: "04", want: StatusFailed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run("code_"+tt.code, func(t *testing.T) {
			t.Parallel()
			if got := StatusFromCode(tt.code); got != tt.want {
				t.Fatalf("StatusFromCode(%q) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestStatusFromCode_EveryOtherCodeFails(t *testing.T) {
	t.Parallel()

	known := map[int]bool{1: true, 4: true, 8: true, 9: true, 10: true, 16: true, 31: true, 32: true, 64: true}
	for code := -5; code <= 256; code++ {
		if known[code] {
			continue
		}
		if got := StatusFromCode(strconv.Itoa(code)); got != StatusFailed {
			t.Fatalf("code %d mapped to %q, want failed", code, got)
		}
	}
}

func TestCanTransition(t *testing.T) {
	t.Parallel()

	all := []OrderStatus{StatusPending, StatusWaiting, StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded}
	allowed := map[[2]OrderStatus]bool{
		{StatusPending, StatusWaiting}:   true,
		{StatusPending, StatusCompleted}: true,
		{StatusPending, StatusCancelled}: true,
		{StatusPending, StatusRefunded}:  true,
		{StatusPending, StatusFailed}:    true,
		{StatusWaiting, StatusCompleted}: true,
		{StatusWaiting, StatusCancelled}: true,
		{StatusWaiting, StatusFailed}:    true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]OrderStatus{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}

	for _, s := range []OrderStatus{StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded} {
		if !IsTerminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	if IsTerminal(StatusPending) || IsTerminal(StatusWaiting) {
		t.Error("pending and waiting are not terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	t.Parallel()

	if st, ok := ParseOrderStatus("refunded"); !ok || st != StatusRefunded {
		t.Fatalf("unexpected %q %v", st, ok)
	}
	if _, ok := ParseOrderStatus("paid"); ok {
		t.Fatal("paid is not a status")
	}
}
