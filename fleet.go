package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// FleetClient handles communication with the remote fleet API that tracks
// this kiosk's machine record: maintenance flag, paper level and device
// alerts. Every call identifies the machine via headers, matching the fleet
// side's expectations.
type FleetClient struct {
	baseURL     string
	machinePort string
	httpClient  *http.Client
}

// MachineStatus is the fleet's view of this kiosk.
type MachineStatus struct {
	MaintenanceActive bool `json:"maintenanceActive"`
	PaperLevel        int  `json:"paperLevel"`
}

// fleetError is the fleet API's error response body.
type fleetError struct {
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// NewFleetClient creates a new fleet API client.
func NewFleetClient(baseURL, machinePort string, timeout int) *FleetClient {
	return &FleetClient{
		baseURL:     baseURL,
		machinePort: machinePort,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// addMachineHeaders identifies this kiosk to the fleet API.
func (c *FleetClient) addMachineHeaders(req *http.Request, machineID string) {
	req.Header.Set("X-Machine-Id", machineID)
	if c.machinePort != "" {
		req.Header.Set("X-Machine-Port", c.machinePort)
	}
}

// handleAPIError turns a non-2xx fleet response into an error.
func (c *FleetClient) handleAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("fleet API error (HTTP %d): failed to read body: %w", resp.StatusCode, err)
	}
	var fleetErr fleetError
	if err := json.Unmarshal(body, &fleetErr); err == nil {
		if fleetErr.Message != "" {
			return fmt.Errorf("fleet API error (HTTP %d): %s", resp.StatusCode, fleetErr.Message)
		}
		if fleetErr.Detail != "" {
			return fmt.Errorf("fleet API error (HTTP %d): %s", resp.StatusCode, fleetErr.Detail)
		}
	}
	return fmt.Errorf("fleet API error (HTTP %d): %s", resp.StatusCode, string(body))
}

// QueryMachineStatus fetches the maintenance flag and paper level for this
// machine.
func (c *FleetClient) QueryMachineStatus(machineID string) (*MachineStatus, error) {
	endpoint := fmt.Sprintf("%s/api/machines-public/status?machineId=%s", c.baseURL, url.QueryEscape(machineID))
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}
	c.addMachineHeaders(req, machineID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get machine status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleAPIError(resp)
	}

	var status MachineStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode machine status: %w", err)
	}
	return &status, nil
}

// DecrementPaperLevel reduces the machine's remote paper counter after a
// successful print. Callers treat failures as non-critical: log and move on.
func (c *FleetClient) DecrementPaperLevel(machineID string, copies int) error {
	payload, err := json.Marshal(map[string]int{"reducePaper": copies})
	if err != nil {
		return fmt.Errorf("failed to marshal paper level request: %w", err)
	}

	endpoint := c.baseURL + "/api/machines-public/paper-level/reduce"
	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create paper level request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addMachineHeaders(req, machineID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reduce paper level: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.handleAPIError(resp)
	}
	return nil
}

// SendDeviceAlert reports a missing device to the fleet so an operator can
// be dispatched. Best effort, same contract as the paper counter.
func (c *FleetClient) SendDeviceAlert(machineID, deviceType, deviceName string, availableDevices []string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"deviceType":       deviceType,
		"deviceName":       deviceName,
		"availableDevices": availableDevices,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal device alert: %w", err)
	}

	endpoint := c.baseURL + "/api/machines-public/device-alert"
	req, err := http.NewRequest("POST", endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create device alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addMachineHeaders(req, machineID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send device alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.handleAPIError(resp)
	}
	return nil
}
