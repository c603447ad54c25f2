package main

import (
	"testing"
	"time"
)

func pressSequence(gate *PinGate, digits string) {
	for i := 0; i < len(digits); i++ {
		gate.Press(digits[i])
	}
}

func TestPinGateConfirmsCorrectPin(t *testing.T) {
	clock := newFakeClock()
	confirmed := 0
	gate := NewPinGate("2580", clock.Now, func() { confirmed++ })

	gate.Open()
	pressSequence(gate, "2580")

	if confirmed != 1 {
		t.Fatalf("expected exactly one confirmation, got %d", confirmed)
	}

	// The gate closed on confirmation; stray input must not re-trigger.
	pressSequence(gate, "2580")
	if confirmed != 1 {
		t.Fatalf("closed gate accepted input: %d confirmations", confirmed)
	}
}

func TestPinGateRejectsWrongPin(t *testing.T) {
	clock := newFakeClock()
	confirmed := 0
	gate := NewPinGate("2580", clock.Now, func() { confirmed++ })

	gate.Open()
	pressSequence(gate, "1234")

	if confirmed != 0 {
		t.Fatal("wrong PIN must never confirm")
	}

	status := gate.Status()
	if !status.Error {
		t.Fatal("rejected entry should show the error flag")
	}
	if status.Entered != 4 {
		t.Fatalf("digits should stay visible during the error window, got %d", status.Entered)
	}

	// Inside the display window the error persists.
	clock.Advance(500 * time.Millisecond)
	if !gate.Status().Error {
		t.Fatal("error flag cleared before the display window elapsed")
	}

	// After the window both the flag and the digits clear.
	clock.Advance(400 * time.Millisecond)
	status = gate.Status()
	if status.Error {
		t.Fatal("error flag should clear after the display window")
	}
	if status.Entered != 0 {
		t.Fatalf("digits should clear after the display window, got %d", status.Entered)
	}

	// Entry works again from scratch.
	pressSequence(gate, "2580")
	if confirmed != 1 {
		t.Fatalf("expected confirmation after retry, got %d", confirmed)
	}
}

func TestPinGateDeleteRemovesLastDigit(t *testing.T) {
	gate := NewPinGate("2580", newFakeClock().Now, nil)

	gate.Open()
	pressSequence(gate, "25")
	gate.Delete()

	if got := gate.Status().Entered; got != 1 {
		t.Fatalf("expected 1 digit after delete, got %d", got)
	}

	// Correct the entry and finish.
	pressSequence(gate, "580")
	if gate.Status().Open {
		t.Fatal("gate should close after a correct entry")
	}
}

func TestPinGateCancelHasNoSideEffects(t *testing.T) {
	confirmed := 0
	gate := NewPinGate("2580", newFakeClock().Now, func() { confirmed++ })

	gate.Open()
	pressSequence(gate, "25")
	gate.Cancel()

	status := gate.Status()
	if status.Open || status.Entered != 0 || status.Error {
		t.Fatalf("cancel should reset everything, got %+v", status)
	}
	if confirmed != 0 {
		t.Fatal("cancel must not confirm")
	}

	// A closed gate ignores digits entirely.
	pressSequence(gate, "2580")
	if confirmed != 0 {
		t.Fatal("closed gate must not confirm")
	}
}

func TestPinGateIgnoresNonDigits(t *testing.T) {
	gate := NewPinGate("2580", newFakeClock().Now, nil)

	gate.Open()
	gate.Press('a')
	gate.Press(' ')
	gate.Press('/')

	if got := gate.Status().Entered; got != 0 {
		t.Fatalf("non-digit input should be ignored, got %d digits", got)
	}
}

func TestPinGateOpenResetsPreviousEntry(t *testing.T) {
	clock := newFakeClock()
	gate := NewPinGate("2580", clock.Now, nil)

	gate.Open()
	pressSequence(gate, "99")
	gate.Open()

	if got := gate.Status().Entered; got != 0 {
		t.Fatalf("reopening should clear leftover digits, got %d", got)
	}
}
