package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

// fakePrintAgent records print calls and optionally asserts that the print
// guard is held while the agent is being invoked.
type fakePrintAgent struct {
	t     *testing.T
	guard *PrintGuard

	testPrints []TestPrintRequest
	prints     []PrintRequest
	savedData  []string

	printErr error
	saveErr  error
}

func (f *fakePrintAgent) requireGuardHeld() {
	if f.guard != nil && !f.guard.Active() {
		f.t.Error("print guard must be active while the agent is invoked")
	}
}

func (f *fakePrintAgent) PrintTestPhoto(req TestPrintRequest) error {
	f.requireGuardHeld()
	f.testPrints = append(f.testPrints, req)
	return f.printErr
}

func (f *fakePrintAgent) PrintPhoto(req PrintRequest) error {
	f.requireGuardHeld()
	f.prints = append(f.prints, req)
	return f.printErr
}

func (f *fakePrintAgent) SaveTempImage(imageDataBase64, filename string) (string, error) {
	f.requireGuardHeld()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.savedData = append(f.savedData, imageDataBase64)
	return "/tmp/" + filename, nil
}

// fakePaperCounter records decrement calls.
type fakePaperCounter struct {
	decrements []int
	err        error
}

func (f *fakePaperCounter) DecrementPaperLevel(machineID string, copies int) error {
	f.decrements = append(f.decrements, copies)
	return f.err
}

// fakeSettings is an in-memory printSettings.
type fakeSettings struct {
	printer string
	cfg     PaperConfig
}

func (f *fakeSettings) SelectedPrinter() (string, error)  { return f.printer, nil }
func (f *fakeSettings) PaperConfigFor(string) PaperConfig { return f.cfg }
func (f *fakeSettings) MachineID() string                 { return "machine-1" }

func newTestPipeline(t *testing.T, printer string) (*PrintPipeline, *fakePrintAgent, *fakePaperCounter) {
	guard := NewPrintGuard(nil)
	agent := &fakePrintAgent{t: t, guard: guard}
	counter := &fakePaperCounter{}
	settings := &fakeSettings{printer: printer, cfg: PaperConfig{Scale: 100}}
	return NewPrintPipeline(agent, counter, guard, settings), agent, counter
}

// solidPNGBase64 builds a solid-color PNG of the given size, base64-encoded.
func solidPNGBase64(t *testing.T, width, height int, c color.Color) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestTestPrintWithoutPrinterIsValidationError(t *testing.T) {
	pipeline, agent, counter := newTestPipeline(t, "")

	err := pipeline.TestPrint(OrientationPortrait)
	if !errors.Is(err, errNoPrinterSelected) {
		t.Fatalf("expected errNoPrinterSelected, got %v", err)
	}
	if len(agent.testPrints) != 0 {
		t.Fatal("no backend call may be attempted without a printer")
	}
	if len(counter.decrements) != 0 {
		t.Fatal("no paper decrement without a print")
	}
}

func TestTestPrintSuccess(t *testing.T) {
	pipeline, agent, counter := newTestPipeline(t, "DS-RX1")

	if err := pipeline.TestPrint(OrientationLandscape); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(agent.testPrints) != 1 {
		t.Fatalf("expected one test print, got %d", len(agent.testPrints))
	}
	req := agent.testPrints[0]
	if req.PrinterName != "DS-RX1" {
		t.Errorf("printer = %q, want DS-RX1", req.PrinterName)
	}
	if req.FrameType != FrameLandscapeFull {
		t.Errorf("frame = %q, want %q (test prints use the full size)", req.FrameType, FrameLandscapeFull)
	}

	if len(counter.decrements) != 1 || counter.decrements[0] != 1 {
		t.Errorf("expected one paper decrement of 1, got %v", counter.decrements)
	}

	if pipeline.guard.Active() {
		t.Fatal("guard must be released after the print completes")
	}
}

func TestTestPrintFailureReleasesGuardAndSkipsDecrement(t *testing.T) {
	pipeline, agent, counter := newTestPipeline(t, "DS-RX1")
	agent.printErr = errors.New(strings.Repeat("spooler exploded ", 30))

	err := pipeline.TestPrint(OrientationPortrait)

	var printErr *PrintError
	if !errors.As(err, &printErr) {
		t.Fatalf("expected *PrintError, got %v", err)
	}
	if got := len([]rune(printErr.Message)); got > PrintErrorMaxLength+3 {
		t.Errorf("message not truncated: %d runes", got)
	}
	if len(counter.decrements) != 0 {
		t.Fatal("paper decrement must not run after a failed print")
	}
	if pipeline.guard.Active() {
		t.Fatal("guard must be released after a failed print")
	}
}

func TestTestPrintDecrementFailureIsSwallowed(t *testing.T) {
	pipeline, _, counter := newTestPipeline(t, "DS-RX1")
	counter.err = errors.New("fleet unreachable")

	if err := pipeline.TestPrint(OrientationPortrait); err != nil {
		t.Fatalf("paper-level failure must not fail the print, got %v", err)
	}
}

func TestPrintCutFrameTilesBeforeSaving(t *testing.T) {
	pipeline, agent, counter := newTestPipeline(t, "DS-RX1")

	err := pipeline.Print(PrintJob{
		ImageDataBase64: solidPNGBase64(t, 100, 300, color.RGBA{R: 200, G: 40, B: 40, A: 255}),
		Orientation:     OrientationPortrait,
		FrameType:       FramePortraitCut,
		Copies:          1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(agent.savedData) != 1 {
		t.Fatalf("expected one saved image, got %d", len(agent.savedData))
	}

	raw, err := base64.StdEncoding.DecodeString(agent.savedData[0])
	if err != nil {
		t.Fatalf("saved image is not valid base64: %v", err)
	}
	saved, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("saved image does not decode: %v", err)
	}

	b := saved.Bounds()
	if b.Dx() != 200 || b.Dy() != 300 {
		t.Fatalf("composite is %dx%d, want 200x300", b.Dx(), b.Dy())
	}

	if len(agent.prints) != 1 {
		t.Fatalf("expected one print call, got %d", len(agent.prints))
	}
	if len(counter.decrements) != 1 || counter.decrements[0] != 1 {
		t.Errorf("expected paper decrement of 1, got %v", counter.decrements)
	}
}

func TestPrintFullFramePassesImageThrough(t *testing.T) {
	pipeline, agent, _ := newTestPipeline(t, "DS-RX1")

	source := solidPNGBase64(t, 100, 300, color.RGBA{B: 255, A: 255})
	err := pipeline.Print(PrintJob{
		ImageDataBase64: source,
		Orientation:     OrientationPortrait,
		FrameType:       FramePortraitFull,
		Copies:          1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(agent.savedData) != 1 || agent.savedData[0] != source {
		t.Fatal("non-cut frames must hand the source image through unmodified")
	}
}

func TestPrintClampsCopies(t *testing.T) {
	tests := []struct {
		name      string
		copies    int
		wantCalls int
	}{
		{"Zero copies becomes one", 0, 1},
		{"Negative copies becomes one", -3, 1},
		{"In-range copies unchanged", 3, 3},
		{"Excess copies capped at five", 9, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pipeline, agent, counter := newTestPipeline(t, "DS-RX1")

			err := pipeline.Print(PrintJob{
				ImageDataBase64: solidPNGBase64(t, 60, 40, color.White),
				Orientation:     OrientationLandscape,
				FrameType:       FrameLandscapeFull,
				Copies:          tt.copies,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(agent.prints) != tt.wantCalls {
				t.Errorf("print calls = %d, want %d", len(agent.prints), tt.wantCalls)
			}
			if len(counter.decrements) != 1 || counter.decrements[0] != tt.wantCalls {
				t.Errorf("decrements = %v, want one decrement of %d", counter.decrements, tt.wantCalls)
			}
		})
	}
}

func TestPaperConfigClamping(t *testing.T) {
	tests := []struct {
		name string
		in   PaperConfig
		want PaperConfig
	}{
		{"In range untouched", PaperConfig{Scale: 100, Vertical: 10, Horizontal: -10}, PaperConfig{Scale: 100, Vertical: 10, Horizontal: -10}},
		{"Scale floor", PaperConfig{Scale: 12}, PaperConfig{Scale: 50}},
		{"Scale ceiling", PaperConfig{Scale: 400}, PaperConfig{Scale: 150}},
		{"Offset floor", PaperConfig{Scale: 100, Vertical: -500, Horizontal: -101}, PaperConfig{Scale: 100, Vertical: -100, Horizontal: -100}},
		{"Offset ceiling", PaperConfig{Scale: 100, Vertical: 101, Horizontal: 9000}, PaperConfig{Scale: 100, Vertical: 100, Horizontal: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.clamped(); got != tt.want {
				t.Errorf("clamped() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
