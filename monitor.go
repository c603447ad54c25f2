package main

import (
	"log"
	"sync"
	"time"
)

// Readiness is the reconciled availability of the kiosk's two device axes.
// The record is always replaced as a whole; consumers never see a camera
// update without the matching printer update from the same poll cycle.
type Readiness struct {
	CameraOK     bool   `json:"camera_ok"`
	PrinterOK    bool   `json:"printer_ok"`
	CameraLabel  string `json:"camera_label"`
	PrinterLabel string `json:"printer_label"`
}

// Ready reports the composed verdict: both devices resolved.
func (r Readiness) Ready() bool {
	return r.CameraOK && r.PrinterOK
}

// deviceLister is the slice of the hardware agent the monitor consumes.
type deviceLister interface {
	ListCameraDevices() ([]CameraDevice, error)
	ListVendorCameras() ([]VendorCamera, error)
	ListPrinters() ([]PrinterInfo, error)
}

// readinessStore is where the monitor reads device selections from and
// publishes snapshots to. Implemented by KioskBridge.
type readinessStore interface {
	CameraSelection() (camType, deviceID, label string, err error)
	SelectedPrinter() (string, error)
	PublishReadiness(Readiness)
}

// alertSender dispatches operator alerts for lost devices. Best effort.
type alertSender interface {
	SendDeviceAlert(machineID, deviceType, deviceName string, availableDevices []string) error
}

// ReadinessMonitor continuously reconciles camera/printer presence into a
// readiness verdict. It runs in the background for the whole process
// lifetime; the maintenance view merely renders whatever it publishes.
type ReadinessMonitor struct {
	agent deviceLister
	store readinessStore
	guard *PrintGuard

	// onReady fires once per transition into the ready state, recovering
	// the kiosk out of the maintenance view.
	onReady func()

	// alerts, when set, reports a device dropping out to the fleet so an
	// operator can be dispatched. One alert per loss, not per poll.
	alerts    alertSender
	machineID func() string

	mutex        sync.Mutex
	wasReady     bool
	wasCameraOK  bool
	wasPrinterOK bool
}

// NewReadinessMonitor wires a monitor. onReady may be nil.
func NewReadinessMonitor(agent deviceLister, store readinessStore, guard *PrintGuard, onReady func()) *ReadinessMonitor {
	return &ReadinessMonitor{
		agent:   agent,
		store:   store,
		guard:   guard,
		onReady: onReady,
	}
}

// EnableAlerts turns on fleet device alerts for ok-to-lost transitions.
func (m *ReadinessMonitor) EnableAlerts(alerts alertSender, machineID func() string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.alerts = alerts
	m.machineID = machineID
}

// Check runs one poll cycle. While a print is in flight the whole cycle is
// skipped with no state mutation at all: a busy printer drops off the
// agent's device list mid-job and must not be reported missing.
func (m *ReadinessMonitor) Check() {
	if m.guard.Active() {
		return
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	r := Readiness{}
	var cameras, printers []string
	r.CameraOK, r.CameraLabel, cameras = m.resolveCamera()
	r.PrinterOK, r.PrinterLabel, printers = m.resolvePrinter()

	m.store.PublishReadiness(r)

	if m.wasCameraOK && !r.CameraOK {
		m.sendAlert("camera", r.CameraLabel, cameras)
	}
	if m.wasPrinterOK && !r.PrinterOK {
		m.sendAlert("printer", r.PrinterLabel, printers)
	}
	m.wasCameraOK = r.CameraOK
	m.wasPrinterOK = r.PrinterOK

	ready := r.Ready()
	if ready && !m.wasReady {
		log.Printf("Devices ready: camera=%q printer=%q", r.CameraLabel, r.PrinterLabel)
		if m.onReady != nil {
			m.onReady()
		}
	}
	m.wasReady = ready
}

// sendAlert reports a lost device to the fleet. Failures are logged; the
// poll loop never depends on the fleet side being reachable.
func (m *ReadinessMonitor) sendAlert(deviceType, deviceName string, available []string) {
	if m.alerts == nil {
		return
	}
	machineID := ""
	if m.machineID != nil {
		machineID = m.machineID()
	}
	if err := m.alerts.SendDeviceAlert(machineID, deviceType, deviceName, available); err != nil {
		log.Printf("Warning: failed to send %s alert: %v", deviceType, err)
	}
}

// resolveCamera matches the configured camera against the agent's device
// lists. Query failures degrade this axis only; the poll cycle and the
// printer axis are unaffected. The returned name list feeds device alerts.
func (m *ReadinessMonitor) resolveCamera() (bool, string, []string) {
	camType, deviceID, label, err := m.store.CameraSelection()
	if err != nil {
		log.Printf("Error reading camera selection: %v", err)
		return false, LabelUnconfigured + " " + LabelError, nil
	}

	switch camType {
	case CameraTypeWebcam:
		if deviceID == "" {
			return false, LabelUnconfigured, nil
		}
		devices, err := m.agent.ListCameraDevices()
		if err != nil {
			log.Printf("Warning: failed to list camera devices: %v", err)
			return false, label + " " + LabelError, nil
		}
		available := make([]string, 0, len(devices))
		for _, d := range devices {
			if d.DeviceID == deviceID {
				return true, d.Name, nil
			}
			available = append(available, d.Name)
		}
		return false, label + " " + LabelNotFound, available

	case CameraTypeDSLR:
		if label == "" {
			return false, LabelUnconfigured, nil
		}
		cameras, err := m.agent.ListVendorCameras()
		if err != nil {
			log.Printf("Warning: failed to list vendor cameras: %v", err)
			return false, label + " " + LabelError, nil
		}
		available := make([]string, 0, len(cameras))
		for _, c := range cameras {
			if c.Name == label {
				return true, c.Name, nil
			}
			available = append(available, c.Name)
		}
		return false, label + " " + LabelNotFound, available

	default:
		return false, LabelUnconfigured, nil
	}
}

// resolvePrinter matches the selected printer against the agent's printer
// list, requiring it to be online. Symmetric to resolveCamera.
func (m *ReadinessMonitor) resolvePrinter() (bool, string, []string) {
	name, err := m.store.SelectedPrinter()
	if err != nil {
		log.Printf("Error reading printer selection: %v", err)
		return false, LabelUnconfigured + " " + LabelError, nil
	}
	if name == "" {
		return false, LabelUnconfigured, nil
	}

	printers, err := m.agent.ListPrinters()
	if err != nil {
		log.Printf("Warning: failed to list printers: %v", err)
		return false, name + " " + LabelError, nil
	}

	available := make([]string, 0, len(printers))
	for _, p := range printers {
		if p.Name == name {
			if p.IsOnline {
				return true, p.Name, nil
			}
			return false, p.Name + " " + LabelOffline, nil
		}
		available = append(available, p.Name)
	}
	return false, name + " " + LabelNotFound, available
}

// Start begins polling at the given interval and returns a handle the owner
// stops deterministically on teardown. An initial check runs immediately.
func (m *ReadinessMonitor) Start(interval time.Duration) *Poller {
	return startPoller(interval, m.Check)
}

// machineStatusClient is the slice of the fleet API the status watcher uses.
type machineStatusClient interface {
	QueryMachineStatus(machineID string) (*MachineStatus, error)
}

// WatchMachineStatus polls the fleet machine status while the kiosk sits on
// an auto-redirected "paper empty" or "maintenance" view. If the
// maintenance flag turns on the maintenance callback fires; if the paper
// level comes back nonzero the restored callback fires. Returns nil when
// the entry reason is not the auto-redirect case: manual navigation to the
// view must not start polling.
func WatchMachineStatus(fleet machineStatusClient, machineID, entryReason string, interval time.Duration, onMaintenance, onPaperRestored func()) *Poller {
	if entryReason != EntryAutoRedirect {
		return nil
	}

	return startPoller(interval, func() {
		checkMachineStatus(fleet, machineID, onMaintenance, onPaperRestored)
	})
}

// checkMachineStatus runs one status probe. Query failures are logged and
// skipped; the poll loop keeps going.
func checkMachineStatus(fleet machineStatusClient, machineID string, onMaintenance, onPaperRestored func()) {
	status, err := fleet.QueryMachineStatus(machineID)
	if err != nil {
		log.Printf("Warning: machine status query failed: %v", err)
		return
	}
	if status.MaintenanceActive {
		if onMaintenance != nil {
			onMaintenance()
		}
		return
	}
	if status.PaperLevel > 0 && onPaperRestored != nil {
		onPaperRestored()
	}
}

// Poller is a handle over a recurring background check. Stop is idempotent
// and returns after the loop is signalled; the owning view calls it on
// teardown instead of relying on process lifetime.
type Poller struct {
	stop chan struct{}
	once sync.Once
}

// startPoller runs fn immediately, then on every tick until stopped.
func startPoller(interval time.Duration, fn func()) *Poller {
	p := &Poller{stop: make(chan struct{})}
	go func() {
		fn()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn()
			case <-p.stop:
				return
			}
		}
	}()
	return p
}

// Stop cancels the polling loop.
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stop) })
}
