package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the service configuration loaded from the database. Operator
// settings (camera, printer, calibration) live in the same table but are
// read through the bridge accessors instead, since they can change at any
// time while the service runs.
type Config struct {
	AgentURL     string
	AgentAPIKey  string
	FleetURL     string
	MachinePort  string
	PollInterval time.Duration
	DBFile       string
	WebPort      string
	ShutdownPIN  string
	AgentTimeout int
	FleetTimeout int
}

// LoadConfig loads configuration from database
func LoadConfig(bridge *KioskBridge) (*Config, error) {
	configValues, err := bridge.GetAllConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config from database: %w", err)
	}

	pollInterval := DefaultPollInterval
	if pollStr, exists := configValues[ConfigKeyPollInterval]; exists {
		if parsed, err := strconv.Atoi(pollStr); err == nil && parsed > 0 {
			pollInterval = parsed
		}
	}

	agentTimeout := AgentTimeout
	if timeoutStr, exists := configValues[ConfigKeyAgentTimeout]; exists {
		if parsed, err := strconv.Atoi(timeoutStr); err == nil && parsed > 0 {
			agentTimeout = parsed
		}
	}

	fleetTimeout := FleetTimeout
	if timeoutStr, exists := configValues[ConfigKeyFleetTimeout]; exists {
		if parsed, err := strconv.Atoi(timeoutStr); err == nil && parsed > 0 {
			fleetTimeout = parsed
		}
	}

	// Keep whatever database file the bridge is already running on; the
	// path is fixed at startup, not a reloadable setting.
	dbFile := getDBFilePath()
	if bridge.config != nil && bridge.config.DBFile != "" {
		dbFile = bridge.config.DBFile
	}

	config := &Config{
		AgentURL:     configValues[ConfigKeyAgentURL],
		AgentAPIKey:  configValues[ConfigKeyAgentAPIKey],
		FleetURL:     configValues[ConfigKeyFleetURL],
		MachinePort:  configValues[ConfigKeyMachinePort],
		PollInterval: time.Duration(pollInterval) * time.Second,
		DBFile:       dbFile,
		WebPort:      configValues[ConfigKeyWebPort],
		ShutdownPIN:  configValues[ConfigKeyShutdownPIN],
		AgentTimeout: agentTimeout,
		FleetTimeout: fleetTimeout,
	}

	if config.AgentURL == "" {
		config.AgentURL = DefaultAgentURL
	}
	if config.FleetURL == "" {
		config.FleetURL = DefaultFleetURL
	}
	if config.WebPort == "" {
		config.WebPort = DefaultWebPort
	}
	if config.ShutdownPIN == "" {
		config.ShutdownPIN = DefaultShutdownPIN
	}

	return config, nil
}

// getDBFilePath returns the database file path, checking environment variable first
func getDBFilePath() string {
	if dbPath := os.Getenv("BOOTHBRIDGE_DB_PATH"); dbPath != "" {
		return filepath.Join(dbPath, DefaultDBFileName)
	}
	return DefaultDBFileName
}
