package main

import "time"

// Camera source types
const (
	CameraTypeWebcam = "webcam"
	CameraTypeDSLR   = "dslr"
)

// Orientations
const (
	OrientationPortrait  = "portrait"
	OrientationLandscape = "landscape"
)

// Frame types. The cut sizes (2x6, 6x2) are produced by printing two tiled
// copies on one full-size sheet and cutting it in half.
const (
	FramePortraitFull  = "4x6"
	FramePortraitCut   = "2x6"
	FrameLandscapeFull = "6x4"
	FrameLandscapeCut  = "6x2"
)

// Readiness label annotations
const (
	LabelUnconfigured = "unconfigured"
	LabelNotFound     = "(not found)"
	LabelOffline      = "(offline)"
	LabelError        = "(error)"
)

// Default configuration values
const (
	DefaultWebPort      = "5000"
	DefaultAgentURL     = "http://127.0.0.1:44450"
	DefaultFleetURL     = "http://localhost:8600"
	DefaultPollInterval = 3
	DefaultShutdownPIN  = "0000"
	DefaultDBFileName   = "boothbridge.db"
)

// Service configuration keys (seeded with defaults on first run, survive a
// format reset)
const (
	ConfigKeyAgentURL     = "agent_url"
	ConfigKeyAgentAPIKey  = "agent_api_key"
	ConfigKeyFleetURL     = "fleet_url"
	ConfigKeyMachinePort  = "machine_port"
	ConfigKeyPollInterval = "poll_interval"
	ConfigKeyWebPort      = "web_port"
	ConfigKeyShutdownPIN  = "shutdown_pin"
	ConfigKeyAgentTimeout = "agent_timeout"
	ConfigKeyFleetTimeout = "fleet_timeout"
)

// Operator settings keys. These are the keys a format reset clears.
const (
	SettingCameraType           = "camera_type"
	SettingCameraDeviceID       = "camera_device_id"
	SettingCameraLabel          = "camera_label"
	SettingPrinterName          = "printer_name"
	SettingPaperConfigPortrait  = "paper_config_portrait"
	SettingPaperConfigLandscape = "paper_config_landscape"
	SettingFramePortrait        = "frame_type_portrait"
	SettingFrameLandscape       = "frame_type_landscape"
	SettingMachineID            = "machine_id"
)

// Calibration limits
const (
	ScaleMin  = 50.0
	ScaleMax  = 150.0
	OffsetMin = -100
	OffsetMax = 100
	CopiesMin = 1
	CopiesMax = 5
)

// Print pipeline timing and quality
const (
	PrintGuardWindow    = 45 * time.Second // spans a full physical print cycle
	PrintJPEGQuality    = 95
	PrintErrorMaxLength = 200
)

// PIN entry
const PinRejectWindow = 800 * time.Millisecond

// HTTP timeouts
const (
	AgentTimeout = 10 // seconds
	FleetTimeout = 10 // seconds
)

// Machine-status watcher entry reasons. Only the auto-redirect entry starts
// the status poller; manual navigation to the maintenance view does not.
const (
	EntryAutoRedirect = "auto"
	EntryManual       = "manual"
)
