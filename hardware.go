package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HardwareClient handles communication with the local hardware agent, the
// process that owns actual device I/O: camera enumeration, printer spooling,
// temp image storage and the OS shutdown command. boothbridge never touches
// hardware directly; everything goes through this request/response boundary.
type HardwareClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// CameraDevice is an enumerable imaging device (webcam or PTP camera)
// reported by the agent's device list.
type CameraDevice struct {
	Name     string `json:"name"`
	DeviceID string `json:"device_id"`
}

// VendorCamera is a tethered vendor-SDK camera (DSLR), identified by name
// only; the vendor SDK has no stable device identifier.
type VendorCamera struct {
	Name string `json:"name"`
}

// PrinterInfo represents a printer known to the agent. IsOnline already
// folds in the agent's USB presence cross-check, so a physically unplugged
// printer reads offline even when the OS spooler still lists it.
type PrinterInfo struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	IsOnline bool   `json:"is_online"`
}

// TestPrintRequest carries the resolved physical parameters for a test
// print. The agent owns rasterization; this layer only decides the values.
type TestPrintRequest struct {
	PrinterName      string  `json:"printer_name"`
	Scale            float64 `json:"scale"`
	VerticalOffset   int     `json:"vertical_offset"`
	HorizontalOffset int     `json:"horizontal_offset"`
	FrameType        string  `json:"frame_type"`
}

// PrintRequest carries the parameters for printing a finished photo.
type PrintRequest struct {
	ImagePath        string  `json:"image_path"`
	PrinterName      string  `json:"printer_name"`
	FrameType        string  `json:"frame_type"`
	Scale            float64 `json:"scale"`
	VerticalOffset   int     `json:"vertical_offset"`
	HorizontalOffset int     `json:"horizontal_offset"`
	IsLandscape      bool    `json:"is_landscape"`
}

// agentError is the agent's error response body.
type agentError struct {
	Error string `json:"error"`
}

// NewHardwareClient creates a new hardware agent client.
func NewHardwareClient(baseURL, apiKey string, timeout int) *HardwareClient {
	return &HardwareClient{
		baseURL: baseURL,
		apiKey:  apiKey,
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

// addAPIKey adds API key authentication to the request
func (c *HardwareClient) addAPIKey(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
}

// handleAPIError turns a non-2xx agent response into an error, preferring
// the agent's own error message when the body parses.
func (c *HardwareClient) handleAPIError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("agent API error (HTTP %d): failed to read body: %w", resp.StatusCode, err)
	}
	var agentErr agentError
	if err := json.Unmarshal(body, &agentErr); err == nil && agentErr.Error != "" {
		return fmt.Errorf("agent API error (HTTP %d): %s", resp.StatusCode, agentErr.Error)
	}
	return fmt.Errorf("agent API error (HTTP %d): %s", resp.StatusCode, string(body))
}

// getJSON performs a GET against the agent and decodes the response into out.
func (c *HardwareClient) getJSON(path string, out interface{}) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hardware agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.handleAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode agent response: %w", err)
	}
	return nil
}

// postJSON performs a POST against the agent. out may be nil when the caller
// only cares about success.
func (c *HardwareClient) postJSON(path string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addAPIKey(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach hardware agent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.handleAPIError(resp)
	}

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode agent response: %w", err)
		}
	}
	return nil
}

// ListCameraDevices retrieves the enumerable imaging devices.
func (c *HardwareClient) ListCameraDevices() ([]CameraDevice, error) {
	var devices []CameraDevice
	if err := c.getJSON("/api/v1/cameras", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ListVendorCameras retrieves the tethered vendor-SDK cameras.
func (c *HardwareClient) ListVendorCameras() ([]VendorCamera, error) {
	var cameras []VendorCamera
	if err := c.getJSON("/api/v1/cameras/vendor", &cameras); err != nil {
		return nil, err
	}
	return cameras, nil
}

// ListPrinters retrieves the printers known to the agent.
func (c *HardwareClient) ListPrinters() ([]PrinterInfo, error) {
	var printers []PrinterInfo
	if err := c.getJSON("/api/v1/printers", &printers); err != nil {
		return nil, err
	}
	return printers, nil
}

// PrintTestPhoto asks the agent to print its built-in test sheet with the
// given calibration parameters.
func (c *HardwareClient) PrintTestPhoto(req TestPrintRequest) error {
	return c.postJSON("/api/v1/print/test", req, nil)
}

// PrintPhoto asks the agent to print a previously saved image file.
func (c *HardwareClient) PrintPhoto(req PrintRequest) error {
	return c.postJSON("/api/v1/print", req, nil)
}

// SaveTempImage hands a base64 image payload to the agent, which persists
// it in its temp directory and returns the file path for a later print call.
func (c *HardwareClient) SaveTempImage(imageDataBase64, filename string) (string, error) {
	payload := map[string]string{
		"image_data_base64": imageDataBase64,
		"filename":          filename,
	}
	var result struct {
		Path string `json:"path"`
	}
	if err := c.postJSON("/api/v1/images/temp", payload, &result); err != nil {
		return "", err
	}
	if result.Path == "" {
		return "", fmt.Errorf("agent returned empty temp image path")
	}
	return result.Path, nil
}

// RequestShutdown asks the agent to power the machine down. The agent
// terminates the whole kiosk, so a successful call never returns control
// for long.
func (c *HardwareClient) RequestShutdown() error {
	return c.postJSON("/api/v1/shutdown", struct{}{}, nil)
}

// TestConnection checks that the agent is reachable.
func (c *HardwareClient) TestConnection() error {
	_, err := c.ListPrinters()
	return err
}
