package main

import (
	"crypto/subtle"
	"log"
	"sync"
	"time"
)

// PinGate is the numeric-PIN confirmation state machine guarding kiosk
// shutdown. The gate is fed one digit at a time (keypad taps and keyboard
// presses land on the same entry point); once the entered sequence reaches
// the configured length it is compared in full and either confirms, firing
// the shutdown callback, or rejects, showing an error for a short fixed
// window before clearing back to an empty entry.
type PinGate struct {
	mutex      sync.Mutex
	pin        string
	digits     []byte
	open       bool
	rejectedAt time.Time
	now        func() time.Time
	onConfirm  func()
}

// PinStatus is the display state the kiosk UI renders: how many digit dots
// to fill and whether the error shake is showing.
type PinStatus struct {
	Open    bool `json:"open"`
	Entered int  `json:"entered"`
	Length  int  `json:"length"`
	Error   bool `json:"error"`
}

// NewPinGate creates a gate for the configured PIN. now may be nil (time.Now).
// onConfirm runs outside the gate's lock when the full PIN matches.
func NewPinGate(pin string, now func() time.Time, onConfirm func()) *PinGate {
	if now == nil {
		now = time.Now
	}
	return &PinGate{pin: pin, now: now, onConfirm: onConfirm}
}

// Open resets the gate to an empty entry. Called when the confirmation view
// is shown; digits from a previous visit never leak into a new one.
func (p *PinGate) Open() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.open = true
	p.digits = nil
	p.rejectedAt = time.Time{}
}

// Cancel abandons the entry with no side effects.
func (p *PinGate) Cancel() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.open = false
	p.digits = nil
	p.rejectedAt = time.Time{}
}

// Press appends a digit. When the entry reaches the configured length the
// whole sequence is compared at once; a match confirms and fires the
// shutdown callback exactly once, a mismatch rejects and starts the error
// display window. Input during the error window is dropped.
func (p *PinGate) Press(digit byte) {
	p.mutex.Lock()
	if !p.open || digit < '0' || digit > '9' {
		p.mutex.Unlock()
		return
	}
	p.expireReject()
	if !p.rejectedAt.IsZero() {
		p.mutex.Unlock()
		return
	}
	if len(p.digits) >= len(p.pin) {
		p.mutex.Unlock()
		return
	}

	p.digits = append(p.digits, digit)
	if len(p.digits) < len(p.pin) {
		p.mutex.Unlock()
		return
	}

	if subtle.ConstantTimeCompare(p.digits, []byte(p.pin)) == 1 {
		p.open = false
		p.digits = nil
		confirm := p.onConfirm
		p.mutex.Unlock()
		log.Printf("Shutdown PIN accepted")
		if confirm != nil {
			confirm()
		}
		return
	}

	p.rejectedAt = p.now()
	p.mutex.Unlock()
	log.Printf("Shutdown PIN rejected")
}

// Delete removes the last digit and clears any error display.
func (p *PinGate) Delete() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if !p.open {
		return
	}
	p.expireReject()
	p.rejectedAt = time.Time{}
	if len(p.digits) > 0 {
		p.digits = p.digits[:len(p.digits)-1]
	}
}

// Status reports the current display state, resolving an elapsed error
// window as a side effect so polling the status is what advances the
// Rejected -> Entering(0) transition.
func (p *PinGate) Status() PinStatus {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.expireReject()
	return PinStatus{
		Open:    p.open,
		Entered: len(p.digits),
		Length:  len(p.pin),
		Error:   !p.rejectedAt.IsZero(),
	}
}

// expireReject clears a rejected entry once its display window has elapsed.
// Caller holds the lock.
func (p *PinGate) expireReject() {
	if p.rejectedAt.IsZero() {
		return
	}
	if p.now().Sub(p.rejectedAt) >= PinRejectWindow {
		p.rejectedAt = time.Time{}
		p.digits = nil
	}
}
