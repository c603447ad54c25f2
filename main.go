package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// forceClose terminates the process when the agent's shutdown command
// fails. A kiosk must never ignore a deliberate close request.
var forceClose = func() {
	os.Exit(0)
}

func main() {
	var (
		webOnly     = flag.Bool("web-only", false, "Run only the settings web interface")
		monitorOnly = flag.Bool("monitor-only", false, "Run only the device readiness monitor")
		port        = flag.String("port", DefaultWebPort, "Web interface port")
	)
	flag.Parse()

	// Create bridge instance first (with default config)
	bridge, err := NewKioskBridge(nil)
	if err != nil {
		log.Fatalf("Failed to create bridge: %v", err)
	}
	defer bridge.Close()

	// Load configuration from database
	config, err := LoadConfig(bridge)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := bridge.UpdateConfig(config); err != nil {
		log.Fatalf("Failed to update bridge config: %v", err)
	}

	// Override port from config if not specified
	if *port == DefaultWebPort && config.WebPort != DefaultWebPort {
		*port = config.WebPort
	}

	pipeline := NewBridgePrintPipeline(bridge)
	pinGate := NewPinGate(config.ShutdownPIN, nil, bridge.Shutdown)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *monitorOnly {
		fmt.Println("Starting readiness monitor only...")
		fmt.Printf("Hardware agent: %s\n", config.AgentURL)
		fmt.Printf("Poll interval: %v\n", config.PollInterval)

		monitor := NewReadinessMonitor(bridge.hardware, bridge, bridge.guard, func() {
			log.Printf("Kiosk recovered to ready state")
		})
		poller := monitor.Start(config.PollInterval)

		<-sigChan
		fmt.Println("Shutting down readiness monitor...")
		poller.Stop()
		return
	}

	webServer := NewWebServer(bridge, pipeline, pinGate)

	if *webOnly {
		fmt.Println("Starting web interface only...")
		go func() {
			if err := webServer.Start(*port); err != nil {
				log.Fatalf("Web server error: %v", err)
			}
		}()

		<-sigChan
		fmt.Println("Shutting down web server...")
		return
	}

	// Run both the readiness monitor and the web interface
	fmt.Println("Starting readiness monitor and web interface...")
	fmt.Printf("Hardware agent: %s\n", config.AgentURL)
	fmt.Printf("Fleet API: %s\n", config.FleetURL)
	fmt.Printf("Poll interval: %v\n", config.PollInterval)
	fmt.Printf("Web interface: http://0.0.0.0:%s\n", *port)

	monitor := NewReadinessMonitor(bridge.hardware, bridge, bridge.guard, func() {
		// Recovery: tell the kiosk views to navigate away from the
		// maintenance screen. The navigation itself is idempotent.
		webServer.BroadcastEvent("devices_ready")
	})
	monitor.EnableAlerts(bridge.fleet, bridge.MachineID)

	// Broadcast after each monitor cycle so connected views track the
	// readiness state live.
	poller := startPoller(config.PollInterval, func() {
		monitor.Check()
		webServer.BroadcastStatus()
	})

	go func() {
		if err := webServer.Start(*port); err != nil {
			log.Fatalf("Web server error: %v", err)
		}
	}()

	<-sigChan
	fmt.Println("Shutting down services...")
	poller.Stop()
}
