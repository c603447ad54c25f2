package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// KioskBridge ties the kiosk's persistent settings, the two backend
// boundaries and the shared print guard together. It owns the sqlite
// key-value store and the last published readiness snapshot; the monitor,
// print pipeline and web server all hang off it.
type KioskBridge struct {
	config   *Config
	hardware *HardwareClient
	fleet    *FleetClient
	guard    *PrintGuard
	db       *sql.DB

	mutex     sync.RWMutex
	readiness Readiness

	// onSettingsReset is invoked after a format reset so dependent views
	// re-render with defaults instead of stale cached values. The web
	// server wires this to a websocket broadcast.
	onSettingsReset func()
}

// settingsKeys are the operator settings a format reset clears. Each key is
// removed individually but callers treat the reset as a single action.
var settingsKeys = []string{
	SettingCameraType,
	SettingCameraDeviceID,
	SettingCameraLabel,
	SettingPrinterName,
	SettingPaperConfigPortrait,
	SettingPaperConfigLandscape,
	SettingFramePortrait,
	SettingFrameLandscape,
	SettingMachineID,
}

// serviceConfigKeys are the reloadable service settings the config API may
// write. Operator settings go through their own endpoints and are not
// accepted here.
var serviceConfigKeys = map[string]bool{
	ConfigKeyAgentURL:     true,
	ConfigKeyAgentAPIKey:  true,
	ConfigKeyFleetURL:     true,
	ConfigKeyMachinePort:  true,
	ConfigKeyPollInterval: true,
	ConfigKeyWebPort:      true,
	ConfigKeyShutdownPIN:  true,
	ConfigKeyAgentTimeout: true,
	ConfigKeyFleetTimeout: true,
}

// NewKioskBridge creates a bridge with default clients and initializes the
// database. Pass nil config to start with defaults; call UpdateConfig after
// LoadConfig to swap in the persisted values.
func NewKioskBridge(config *Config) (*KioskBridge, error) {
	bridge := &KioskBridge{
		config:   config,
		hardware: NewHardwareClient(DefaultAgentURL, "", AgentTimeout),
		fleet:    NewFleetClient(DefaultFleetURL, "", FleetTimeout),
		guard:    NewPrintGuard(nil),
	}

	if err := bridge.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if config != nil {
		bridge.hardware = NewHardwareClient(config.AgentURL, config.AgentAPIKey, config.AgentTimeout)
		bridge.fleet = NewFleetClient(config.FleetURL, config.MachinePort, config.FleetTimeout)
	}

	return bridge, nil
}

// initDatabase opens the sqlite file and creates the configuration table.
func (b *KioskBridge) initDatabase() error {
	dbFile := getDBFilePath()
	if b.config != nil && b.config.DBFile != "" {
		dbFile = b.config.DBFile
	}

	db, err := sql.Open("sqlite3", dbFile)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	b.db = db

	createTable := `CREATE TABLE IF NOT EXISTS configuration (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := b.db.Exec(createTable); err != nil {
		return fmt.Errorf("failed to create configuration table: %w", err)
	}

	if err := b.initializeDefaultConfig(); err != nil {
		return fmt.Errorf("failed to initialize default configuration: %w", err)
	}

	return nil
}

// initializeDefaultConfig seeds service configuration on a fresh install.
// Operator settings are deliberately not seeded; an absent key is how the
// readiness monitor distinguishes "unconfigured" from "not found".
func (b *KioskBridge) initializeDefaultConfig() error {
	defaults := map[string]string{
		ConfigKeyAgentURL:     DefaultAgentURL,
		ConfigKeyAgentAPIKey:  "",
		ConfigKeyFleetURL:     DefaultFleetURL,
		ConfigKeyMachinePort:  "",
		ConfigKeyPollInterval: fmt.Sprintf("%d", DefaultPollInterval),
		ConfigKeyWebPort:      DefaultWebPort,
		ConfigKeyShutdownPIN:  DefaultShutdownPIN,
		ConfigKeyAgentTimeout: fmt.Sprintf("%d", AgentTimeout),
		ConfigKeyFleetTimeout: fmt.Sprintf("%d", FleetTimeout),
	}

	var totalCount int
	if err := b.db.QueryRow("SELECT COUNT(*) FROM configuration").Scan(&totalCount); err != nil {
		return fmt.Errorf("failed to check config existence: %w", err)
	}
	if totalCount > 0 {
		return nil
	}

	for key, value := range defaults {
		_, err := b.db.Exec(
			"INSERT INTO configuration (key, value, description) VALUES (?, ?, ?)",
			key, value, getConfigDescription(key),
		)
		if err != nil {
			return fmt.Errorf("failed to insert default config %s: %w", key, err)
		}
	}
	return nil
}

// getConfigDescription returns a description for a configuration key
func getConfigDescription(key string) string {
	descriptions := map[string]string{
		ConfigKeyAgentURL:     "URL of the local hardware agent",
		ConfigKeyAgentAPIKey:  "API key for the local hardware agent (empty disables auth)",
		ConfigKeyFleetURL:     "URL of the fleet API",
		ConfigKeyMachinePort:  "Port reported to the fleet API in machine headers",
		ConfigKeyPollInterval: "Device readiness polling interval in seconds",
		ConfigKeyWebPort:      "Port for the settings web interface",
		ConfigKeyShutdownPIN:  "Numeric PIN required to shut the kiosk down",
		ConfigKeyAgentTimeout: "Hardware agent request timeout in seconds",
		ConfigKeyFleetTimeout: "Fleet API request timeout in seconds",
	}
	if desc, exists := descriptions[key]; exists {
		return desc
	}
	return "Configuration value"
}

// GetConfigValue gets a configuration value. A missing key returns an empty
// string, not an error, so callers can treat absence as "unconfigured".
func (b *KioskBridge) GetConfigValue(key string) (string, error) {
	var value string
	err := b.db.QueryRow("SELECT value FROM configuration WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config value for %s: %w", key, err)
	}
	return value, nil
}

// SetConfigValue upserts a configuration value.
func (b *KioskBridge) SetConfigValue(key, value string) error {
	_, err := b.db.Exec(
		"INSERT OR REPLACE INTO configuration (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to set config value for %s: %w", key, err)
	}
	return nil
}

// GetAllConfig gets all configuration values
func (b *KioskBridge) GetAllConfig() (map[string]string, error) {
	rows, err := b.db.Query("SELECT key, value FROM configuration")
	if err != nil {
		return nil, fmt.Errorf("failed to get all config: %w", err)
	}
	defer rows.Close()

	config := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config row: %w", err)
		}
		config[key] = value
	}
	return config, nil
}

// UpdateConfig swaps in a freshly loaded configuration and rebuilds the
// backend clients with the new endpoints.
func (b *KioskBridge) UpdateConfig(config *Config) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.config = config
	b.hardware = NewHardwareClient(config.AgentURL, config.AgentAPIKey, config.AgentTimeout)
	b.fleet = NewFleetClient(config.FleetURL, config.MachinePort, config.FleetTimeout)
	return nil
}

// ReloadConfig reloads the configuration from the database.
func (b *KioskBridge) ReloadConfig() error {
	config, err := LoadConfig(b)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	return b.UpdateConfig(config)
}

// ---- Operator settings ----

// CameraSelection returns the configured camera source type, device
// identifier and display label. Empty values mean no camera has been set up.
func (b *KioskBridge) CameraSelection() (camType, deviceID, label string, err error) {
	if camType, err = b.GetConfigValue(SettingCameraType); err != nil {
		return "", "", "", err
	}
	if deviceID, err = b.GetConfigValue(SettingCameraDeviceID); err != nil {
		return "", "", "", err
	}
	if label, err = b.GetConfigValue(SettingCameraLabel); err != nil {
		return "", "", "", err
	}
	return camType, deviceID, label, nil
}

// SelectedPrinter returns the persisted printer name, empty when none is
// selected.
func (b *KioskBridge) SelectedPrinter() (string, error) {
	return b.GetConfigValue(SettingPrinterName)
}

// MachineID returns this kiosk's fleet machine identifier.
func (b *KioskBridge) MachineID() string {
	id, err := b.GetConfigValue(SettingMachineID)
	if err != nil {
		log.Printf("Error reading machine id: %v", err)
		return ""
	}
	return id
}

// paperConfigKey maps an orientation to its settings key. Portrait and
// landscape calibrations are persisted independently, never shared.
func paperConfigKey(orientation string) string {
	if orientation == OrientationLandscape {
		return SettingPaperConfigLandscape
	}
	return SettingPaperConfigPortrait
}

// frameKey maps an orientation to its frame selection key.
func frameKey(orientation string) string {
	if orientation == OrientationLandscape {
		return SettingFrameLandscape
	}
	return SettingFramePortrait
}

// PaperConfigFor returns the calibration for an orientation, falling back to
// defaults when unset or unparsable. The stored value is clamped on read as
// well as on write, so a hand-edited database cannot push values out of
// range.
func (b *KioskBridge) PaperConfigFor(orientation string) PaperConfig {
	raw, err := b.GetConfigValue(paperConfigKey(orientation))
	if err != nil {
		log.Printf("Error reading paper config for %s: %v", orientation, err)
		return defaultPaperConfig()
	}
	if raw == "" {
		return defaultPaperConfig()
	}

	var cfg PaperConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		log.Printf("Invalid stored paper config for %s, using defaults: %v", orientation, err)
		return defaultPaperConfig()
	}
	return cfg.clamped()
}

// SavePaperConfig clamps and persists the calibration for an orientation.
func (b *KioskBridge) SavePaperConfig(orientation string, cfg PaperConfig) error {
	data, err := json.Marshal(cfg.clamped())
	if err != nil {
		return fmt.Errorf("failed to marshal paper config: %w", err)
	}
	return b.SetConfigValue(paperConfigKey(orientation), string(data))
}

// FrameFor returns the frame selection for an orientation, defaulting to the
// full (non-cut) size.
func (b *KioskBridge) FrameFor(orientation string) string {
	full, cut := framesForOrientation(orientation)
	raw, err := b.GetConfigValue(frameKey(orientation))
	if err != nil {
		log.Printf("Error reading frame type for %s: %v", orientation, err)
		return full
	}
	if raw == cut {
		return cut
	}
	return full
}

// SaveFrame validates and persists the frame selection for an orientation.
func (b *KioskBridge) SaveFrame(orientation, frameType string) error {
	full, cut := framesForOrientation(orientation)
	if frameType != full && frameType != cut {
		return fmt.Errorf("invalid frame type %q for %s", frameType, orientation)
	}
	return b.SetConfigValue(frameKey(orientation), frameType)
}

// FormatReset clears every operator setting. Keys are removed one by one but
// the operation is treated as a single reset: dependent views are notified
// once, afterwards, so they re-render with defaults.
func (b *KioskBridge) FormatReset() error {
	for _, key := range settingsKeys {
		if _, err := b.db.Exec("DELETE FROM configuration WHERE key = ?", key); err != nil {
			return fmt.Errorf("failed to clear setting %s: %w", key, err)
		}
	}
	log.Printf("Format reset: cleared %d operator settings", len(settingsKeys))

	if b.onSettingsReset != nil {
		b.onSettingsReset()
	}
	return nil
}

// ---- Readiness snapshot ----

// PublishReadiness atomically replaces the readiness snapshot. Both device
// axes are always written together so a consumer can never observe a
// half-updated record.
func (b *KioskBridge) PublishReadiness(r Readiness) {
	b.mutex.Lock()
	b.readiness = r
	b.mutex.Unlock()
}

// Readiness returns the last published readiness snapshot.
func (b *KioskBridge) Readiness() Readiness {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.readiness
}

// Shutdown asks the hardware agent to power the machine down. If the agent
// call fails the kiosk must still honor a deliberate close request, so it
// falls back to terminating the process locally.
func (b *KioskBridge) Shutdown() {
	log.Printf("Shutdown confirmed, requesting power off")
	if err := b.hardware.RequestShutdown(); err != nil {
		log.Printf("Shutdown request failed, forcing local close: %v", err)
		forceClose()
	}
}

// Close closes the database connection
func (b *KioskBridge) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}
