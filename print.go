package main

import (
	"errors"
	"fmt"
	"log"
	"time"
)

// PaperConfig is the per-orientation print calibration: content scale in
// percent and paper-feed offsets in driver units. Values are clamped to
// their ranges on every commit; the printer driver misbehaves outside them.
type PaperConfig struct {
	Scale      float64 `json:"scale"`
	Vertical   int     `json:"vertical"`
	Horizontal int     `json:"horizontal"`
}

// defaultPaperConfig is the neutral calibration: no zoom, no offset.
func defaultPaperConfig() PaperConfig {
	return PaperConfig{Scale: 100}
}

// clamped returns the config with every field forced into range.
func (c PaperConfig) clamped() PaperConfig {
	if c.Scale < ScaleMin {
		c.Scale = ScaleMin
	}
	if c.Scale > ScaleMax {
		c.Scale = ScaleMax
	}
	c.Vertical = clampOffset(c.Vertical)
	c.Horizontal = clampOffset(c.Horizontal)
	return c
}

func clampOffset(v int) int {
	if v < OffsetMin {
		return OffsetMin
	}
	if v > OffsetMax {
		return OffsetMax
	}
	return v
}

// clampCopies forces a copy count into the allowed range.
func clampCopies(copies int) int {
	if copies < CopiesMin {
		return CopiesMin
	}
	if copies > CopiesMax {
		return CopiesMax
	}
	return copies
}

// errNoPrinterSelected is the configuration-missing case: surfaced as a
// validation message, never sent to the agent.
var errNoPrinterSelected = errors.New("no printer selected")

// PrintError is a print failure prepared for display: the agent's message
// truncated to a length the kiosk screen can show.
type PrintError struct {
	Message string
}

func (e *PrintError) Error() string {
	return e.Message
}

// newPrintError truncates an agent failure for display.
func newPrintError(err error) *PrintError {
	msg := err.Error()
	if runes := []rune(msg); len(runes) > PrintErrorMaxLength {
		msg = string(runes[:PrintErrorMaxLength]) + "..."
	}
	return &PrintError{Message: msg}
}

// printAgent is the slice of the hardware boundary the pipeline uses.
type printAgent interface {
	PrintTestPhoto(req TestPrintRequest) error
	PrintPhoto(req PrintRequest) error
	SaveTempImage(imageDataBase64, filename string) (string, error)
}

// paperCounter is the fleet-side paper bookkeeping, best effort only.
type paperCounter interface {
	DecrementPaperLevel(machineID string, copies int) error
}

// printSettings is the slice of the settings store the pipeline reads.
type printSettings interface {
	SelectedPrinter() (string, error)
	PaperConfigFor(orientation string) PaperConfig
	MachineID() string
}

// PrintPipeline turns calibration parameters and a frame selection into
// correctly prepared agent print jobs. It owns the ordering rules: the
// guard goes active before any backend call, cut frames are tiled before
// the image is persisted, and the guard is always released on the way out.
type PrintPipeline struct {
	agent    printAgent
	fleet    paperCounter
	guard    *PrintGuard
	settings printSettings
}

// NewPrintPipeline wires a pipeline against the bridge's collaborators.
func NewPrintPipeline(agent printAgent, fleet paperCounter, guard *PrintGuard, settings printSettings) *PrintPipeline {
	return &PrintPipeline{
		agent:    agent,
		fleet:    fleet,
		guard:    guard,
		settings: settings,
	}
}

// NewBridgePrintPipeline builds the pipeline from a bridge's own clients.
func NewBridgePrintPipeline(b *KioskBridge) *PrintPipeline {
	return NewPrintPipeline(b.hardware, b.fleet, b.guard, b)
}

// TestPrint prints the agent's built-in test sheet with the stored
// calibration for the given orientation. Test prints always use the full
// (non-cut) frame size.
func (p *PrintPipeline) TestPrint(orientation string) error {
	printer, err := p.settings.SelectedPrinter()
	if err != nil {
		return fmt.Errorf("failed to read printer selection: %w", err)
	}
	if printer == "" {
		return errNoPrinterSelected
	}

	cfg := p.settings.PaperConfigFor(orientation).clamped()
	frame, _ := framesForOrientation(orientation)

	// The guard must be visibly active before the readiness monitor's next
	// tick, so it is taken before the first agent call.
	p.guard.Acquire(PrintGuardWindow)
	defer p.guard.Release()

	err = p.agent.PrintTestPhoto(TestPrintRequest{
		PrinterName:      printer,
		Scale:            cfg.Scale,
		VerticalOffset:   cfg.Vertical,
		HorizontalOffset: cfg.Horizontal,
		FrameType:        frame,
	})
	if err != nil {
		log.Printf("Test print failed on %q: %v", printer, err)
		return newPrintError(err)
	}

	p.decrementPaper(1)
	return nil
}

// PrintJob is a user print request: a finished composite image plus the
// frame selection and copy count.
type PrintJob struct {
	ImageDataBase64 string
	Orientation     string
	FrameType       string
	Copies          int
}

// Print runs the full calibrated pipeline for a user image: tile cut
// frames, persist the image through the agent, then issue one print call
// per copy in sequence. Copies run sequentially because the physical output
// order matters to the operator collecting the prints.
func (p *PrintPipeline) Print(job PrintJob) error {
	printer, err := p.settings.SelectedPrinter()
	if err != nil {
		return fmt.Errorf("failed to read printer selection: %w", err)
	}
	if printer == "" {
		return errNoPrinterSelected
	}

	copies := clampCopies(job.Copies)
	cfg := p.settings.PaperConfigFor(job.Orientation).clamped()

	p.guard.Acquire(PrintGuardWindow)
	defer p.guard.Release()

	// Cut frames must be doubled before the image is persisted or printed;
	// the agent prints whatever file it is handed.
	imageData := job.ImageDataBase64
	if isCutFrame(job.FrameType) {
		src, err := decodeImageData(job.ImageDataBase64)
		if err != nil {
			return newPrintError(err)
		}
		b := src.Bounds()
		tiled := tileHorizontally(src, b.Dx(), b.Dy())
		imageData, err = encodeJPEGBase64(tiled)
		if err != nil {
			return newPrintError(err)
		}
	}

	filename := fmt.Sprintf("print-%d.jpg", time.Now().UnixNano())
	imagePath, err := p.agent.SaveTempImage(imageData, filename)
	if err != nil {
		log.Printf("Failed to save print image: %v", err)
		return newPrintError(err)
	}

	for n := 1; n <= copies; n++ {
		err := p.agent.PrintPhoto(PrintRequest{
			ImagePath:        imagePath,
			PrinterName:      printer,
			FrameType:        job.FrameType,
			Scale:            cfg.Scale,
			VerticalOffset:   cfg.Vertical,
			HorizontalOffset: cfg.Horizontal,
			IsLandscape:      job.Orientation == OrientationLandscape,
		})
		if err != nil {
			log.Printf("Print failed on %q (copy %d/%d): %v", printer, n, copies, err)
			return newPrintError(err)
		}
	}

	p.decrementPaper(copies)
	return nil
}

// decrementPaper reduces the remote paper counter. Failures are logged and
// swallowed: bookkeeping must never fail a print that already came out of
// the machine.
func (p *PrintPipeline) decrementPaper(copies int) {
	if err := p.fleet.DecrementPaperLevel(p.settings.MachineID(), copies); err != nil {
		log.Printf("Warning: failed to reduce paper level by %d: %v", copies, err)
	}
}
