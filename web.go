package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/skip2/go-qrcode"
)

// WebServer exposes the kiosk settings and control surface: device lists,
// calibration, test prints, PIN entry and the websocket status stream the
// kiosk views subscribe to.
type WebServer struct {
	bridge   *KioskBridge
	pipeline *PrintPipeline
	pinGate  *PinGate
	router   *gin.Engine
	wsHub    *WebSocketHub
}

// WebSocketHub manages WebSocket connections and broadcasts
type WebSocketHub struct {
	clients    map[*WebSocketClient]bool
	register   chan *WebSocketClient
	unregister chan *WebSocketClient
	broadcast  chan []byte
	mutex      sync.RWMutex
}

// WebSocketClient represents a WebSocket connection
type WebSocketClient struct {
	hub  *WebSocketHub
	conn *websocket.Conn
	send chan []byte
}

// WebSocketMessage is the envelope pushed to kiosk views. Status updates
// carry the readiness snapshot; bare events (devices_ready, config_reset)
// carry only the type.
type WebSocketMessage struct {
	Type        string     `json:"type"`
	Timestamp   time.Time  `json:"timestamp"`
	Readiness   *Readiness `json:"readiness,omitempty"`
	PrintActive bool       `json:"print_active"`
}

// NewWebServer creates the settings web server with Gin.
func NewWebServer(bridge *KioskBridge, pipeline *PrintPipeline, pinGate *PinGate) *WebServer {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	wsHub := &WebSocketHub{
		clients:    make(map[*WebSocketClient]bool),
		register:   make(chan *WebSocketClient),
		unregister: make(chan *WebSocketClient),
		broadcast:  make(chan []byte),
	}

	ws := &WebServer{
		bridge:   bridge,
		pipeline: pipeline,
		pinGate:  pinGate,
		router:   router,
		wsHub:    wsHub,
	}

	// Views must re-render with defaults after a format reset, not stale
	// cached values.
	bridge.onSettingsReset = func() {
		ws.BroadcastEvent("config_reset")
	}

	go wsHub.run()

	ws.setupRoutes()
	return ws
}

// setupRoutes configures all the routes
func (ws *WebServer) setupRoutes() {
	api := ws.router.Group("/api")
	{
		api.GET("/status", ws.statusHandler)
		api.GET("/cameras", ws.camerasHandler)
		api.GET("/cameras/vendor", ws.vendorCamerasHandler)
		api.GET("/printers", ws.printersHandler)

		api.GET("/settings", ws.getSettingsHandler)
		api.PUT("/settings", ws.updateSettingsHandler)
		api.POST("/format-reset", ws.formatResetHandler)

		api.GET("/config", ws.getConfigHandler)
		api.PUT("/config", ws.updateConfigHandler)

		api.GET("/paper-config/:orientation", ws.getPaperConfigHandler)
		api.PUT("/paper-config/:orientation", ws.updatePaperConfigHandler)
		api.GET("/frame/:orientation", ws.getFrameHandler)
		api.PUT("/frame/:orientation", ws.updateFrameHandler)

		api.POST("/print/test", ws.testPrintHandler)
		api.POST("/print", ws.printHandler)

		api.POST("/pin/open", ws.pinOpenHandler)
		api.POST("/pin/press", ws.pinPressHandler)
		api.POST("/pin/delete", ws.pinDeleteHandler)
		api.POST("/pin/cancel", ws.pinCancelHandler)
		api.GET("/pin/status", ws.pinStatusHandler)

		api.GET("/support-qr", ws.supportQRHandler)
	}

	ws.router.GET("/ws/status", ws.websocketHandler)
}

// run dispatches hub registration and broadcast events.
func (h *WebSocketHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			log.Printf("WebSocket client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mutex.Unlock()
			log.Printf("WebSocket client disconnected. Total clients: %d", len(h.clients))

		case message := <-h.broadcast:
			h.mutex.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// BroadcastStatus pushes the current readiness snapshot to all clients.
// Called after every monitor cycle.
func (ws *WebServer) BroadcastStatus() {
	readiness := ws.bridge.Readiness()
	ws.send(WebSocketMessage{
		Type:        "status_update",
		Timestamp:   time.Now(),
		Readiness:   &readiness,
		PrintActive: ws.bridge.guard.Active(),
	})
}

// BroadcastEvent pushes a bare event (devices_ready, config_reset).
func (ws *WebServer) BroadcastEvent(eventType string) {
	ws.send(WebSocketMessage{
		Type:      eventType,
		Timestamp: time.Now(),
	})
}

func (ws *WebServer) send(message WebSocketMessage) {
	jsonData, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}
	select {
	case ws.wsHub.broadcast <- jsonData:
	default:
	}
}

// websocketHandler handles WebSocket connections
func (ws *WebServer) websocketHandler(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // kiosk-local only
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := &WebSocketClient{
		hub:  ws.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ---- Status and device lists ----

// statusHandler returns the current readiness snapshot and guard state.
func (ws *WebServer) statusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"readiness":    ws.bridge.Readiness(),
		"print_active": ws.bridge.guard.Active(),
		"timestamp":    time.Now(),
	})
}

func (ws *WebServer) camerasHandler(c *gin.Context) {
	devices, err := ws.bridge.hardware.ListCameraDevices()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (ws *WebServer) vendorCamerasHandler(c *gin.Context) {
	cameras, err := ws.bridge.hardware.ListVendorCameras()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cameras)
}

func (ws *WebServer) printersHandler(c *gin.Context) {
	printers, err := ws.bridge.hardware.ListPrinters()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, printers)
}

// ---- Settings ----

// DeviceSettings is the operator-editable device selection.
type DeviceSettings struct {
	CameraType     string `json:"camera_type"`
	CameraDeviceID string `json:"camera_device_id"`
	CameraLabel    string `json:"camera_label"`
	PrinterName    string `json:"printer_name"`
	MachineID      string `json:"machine_id"`
}

func (ws *WebServer) getSettingsHandler(c *gin.Context) {
	camType, deviceID, label, err := ws.bridge.CameraSelection()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	printer, err := ws.bridge.SelectedPrinter()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, DeviceSettings{
		CameraType:     camType,
		CameraDeviceID: deviceID,
		CameraLabel:    label,
		PrinterName:    printer,
		MachineID:      ws.bridge.MachineID(),
	})
}

func (ws *WebServer) updateSettingsHandler(c *gin.Context) {
	var settings DeviceSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid settings data"})
		return
	}

	if settings.CameraType != "" &&
		settings.CameraType != CameraTypeWebcam && settings.CameraType != CameraTypeDSLR {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid camera type %q", settings.CameraType)})
		return
	}

	updates := map[string]string{
		SettingCameraType:     settings.CameraType,
		SettingCameraDeviceID: settings.CameraDeviceID,
		SettingCameraLabel:    settings.CameraLabel,
		SettingPrinterName:    settings.PrinterName,
		SettingMachineID:      settings.MachineID,
	}
	for key, value := range updates {
		if err := ws.bridge.SetConfigValue(key, value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Settings updated"})
}

func (ws *WebServer) formatResetHandler(c *gin.Context) {
	if err := ws.bridge.FormatReset(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings reset to defaults"})
}

// ---- Service configuration ----

func (ws *WebServer) getConfigHandler(c *gin.Context) {
	config, err := ws.bridge.GetAllConfig()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, config)
}

// updateConfigHandler persists service configuration values and reloads the
// bridge so new endpoints and timeouts take effect without a restart.
func (ws *WebServer) updateConfigHandler(c *gin.Context) {
	var updates map[string]string
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid configuration data"})
		return
	}

	for key := range updates {
		if !serviceConfigKeys[key] {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown configuration key %q", key)})
			return
		}
	}
	for key, value := range updates {
		if err := ws.bridge.SetConfigValue(key, value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	if err := ws.bridge.ReloadConfig(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Configuration updated"})
}

// ---- Calibration ----

func validOrientation(orientation string) bool {
	return orientation == OrientationPortrait || orientation == OrientationLandscape
}

func (ws *WebServer) getPaperConfigHandler(c *gin.Context) {
	orientation := c.Param("orientation")
	if !validOrientation(orientation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid orientation %q", orientation)})
		return
	}
	c.JSON(http.StatusOK, ws.bridge.PaperConfigFor(orientation))
}

func (ws *WebServer) updatePaperConfigHandler(c *gin.Context) {
	orientation := c.Param("orientation")
	if !validOrientation(orientation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid orientation %q", orientation)})
		return
	}

	var cfg PaperConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid paper config data"})
		return
	}

	if err := ws.bridge.SavePaperConfig(orientation, cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ws.bridge.PaperConfigFor(orientation))
}

func (ws *WebServer) getFrameHandler(c *gin.Context) {
	orientation := c.Param("orientation")
	if !validOrientation(orientation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid orientation %q", orientation)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame_type": ws.bridge.FrameFor(orientation)})
}

func (ws *WebServer) updateFrameHandler(c *gin.Context) {
	orientation := c.Param("orientation")
	if !validOrientation(orientation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid orientation %q", orientation)})
		return
	}

	var body struct {
		FrameType string `json:"frame_type"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid frame data"})
		return
	}

	if err := ws.bridge.SaveFrame(orientation, body.FrameType); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"frame_type": body.FrameType})
}

// ---- Printing ----

func (ws *WebServer) testPrintHandler(c *gin.Context) {
	var body struct {
		Orientation string `json:"orientation"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid test print request"})
		return
	}
	if !validOrientation(body.Orientation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid orientation %q", body.Orientation)})
		return
	}

	ws.respondPrintResult(c, ws.pipeline.TestPrint(body.Orientation))
}

func (ws *WebServer) printHandler(c *gin.Context) {
	var body struct {
		ImageDataBase64 string `json:"image_data_base64"`
		Orientation     string `json:"orientation"`
		FrameType       string `json:"frame_type"`
		Copies          int    `json:"copies"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid print request"})
		return
	}
	if !validOrientation(body.Orientation) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid orientation %q", body.Orientation)})
		return
	}
	if body.ImageDataBase64 == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing image data"})
		return
	}

	frameType := body.FrameType
	if frameType == "" {
		frameType = ws.bridge.FrameFor(body.Orientation)
	}

	ws.respondPrintResult(c, ws.pipeline.Print(PrintJob{
		ImageDataBase64: body.ImageDataBase64,
		Orientation:     body.Orientation,
		FrameType:       frameType,
		Copies:          body.Copies,
	}))
}

// respondPrintResult maps pipeline errors onto the API: configuration
// problems are the caller's to fix, print failures carry the truncated
// message for display.
func (ws *WebServer) respondPrintResult(c *gin.Context, err error) {
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"message": "Print submitted"})
		return
	}

	if errors.Is(err, errNoPrinterSelected) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No printer selected"})
		return
	}

	var printErr *PrintError
	if errors.As(err, &printErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": printErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// ---- PIN gate ----

func (ws *WebServer) pinOpenHandler(c *gin.Context) {
	ws.pinGate.Open()
	c.JSON(http.StatusOK, ws.pinGate.Status())
}

func (ws *WebServer) pinPressHandler(c *gin.Context) {
	var body struct {
		Digit string `json:"digit"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || len(body.Digit) != 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expected a single digit"})
		return
	}
	ws.pinGate.Press(body.Digit[0])
	c.JSON(http.StatusOK, ws.pinGate.Status())
}

func (ws *WebServer) pinDeleteHandler(c *gin.Context) {
	ws.pinGate.Delete()
	c.JSON(http.StatusOK, ws.pinGate.Status())
}

func (ws *WebServer) pinCancelHandler(c *gin.Context) {
	ws.pinGate.Cancel()
	c.JSON(http.StatusOK, ws.pinGate.Status())
}

func (ws *WebServer) pinStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, ws.pinGate.Status())
}

// ---- Support QR ----

// supportQRHandler renders a QR code pointing an operator's phone at this
// kiosk's status page, shown on the maintenance screen.
func (ws *WebServer) supportQRHandler(c *gin.Context) {
	host := c.Request.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	url := fmt.Sprintf("http://%s:%s/api/status", host, ws.bridge.config.WebPort)

	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate QR code"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Start starts the web server on the given port
func (ws *WebServer) Start(port string) error {
	log.Printf("Starting web interface on port %s", port)
	return ws.router.Run(":" + port)
}
