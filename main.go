package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberLogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/linht/vfo-tracker/vfo"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Configuration constants
const (
	ServerReadTimeout  = 120 * time.Second
	ServerWriteTimeout = 120 * time.Second
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"metrics"`
	Hardware struct {
		GPIOChip    string `yaml:"gpio_chip"`
		InputPin    int    `yaml:"input_pin"`
		TrackPin    int    `yaml:"track_pin"`
		TrackLEDPin int    `yaml:"track_led_pin"`
		LockLEDPin  int    `yaml:"lock_led_pin"`
		ButtonADC   string `yaml:"button_adc"`
		SPI         struct {
			Device  string `yaml:"device"`
			SpeedHz uint32 `yaml:"speed_hz"`
			FQUDPin int    `yaml:"fqud_pin"`
		} `yaml:"spi"`
	} `yaml:"hardware"`
	Synth struct {
		ClockHz   uint32 `yaml:"clock_hz"`
		MinHz     uint32 `yaml:"min_hz"`
		MaxHz     uint32 `yaml:"max_hz"`
		InitialHz uint32 `yaml:"initial_hz"`
	} `yaml:"synth"`
	Calibration struct {
		File        string  `yaml:"file"`
		ReferenceHz float64 `yaml:"reference_hz"`
	} `yaml:"calibration"`
	Simulation struct {
		Enabled bool    `yaml:"enabled"`
		RateHz  float64 `yaml:"rate_hz"`
	} `yaml:"simulation"`
	Modules []string `yaml:"modules"`
}

var config Config

func main() {
	configPath := pflag.String("config", "config.yaml", "path to the configuration file")
	calibrate := pflag.Bool("calibrate", false, "run a calibration pass at startup")
	simulate := pflag.Bool("simulate", false, "run against simulated counters instead of hardware")
	pflag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	if err := loadConfig(*configPath); err != nil {
		slog.Error("Failed to load config", "error", err, "path", *configPath)
		os.Exit(1)
	}
	applyDefaults()
	if *simulate {
		config.Simulation.Enabled = true
	}
	slog.Info("Configuration loaded", "path", *configPath, "simulation", config.Simulation.Enabled)

	// Counting path
	var source vfo.TimerSource
	if config.Simulation.Enabled {
		source = vfo.NewSimSource(config.Simulation.RateHz)
	} else {
		source = vfo.NewEdgeSource(config.Hardware.GPIOChip, config.Hardware.InputPin)
	}
	gate := vfo.NewGate(source)

	// Synthesizer
	var port vfo.SynthPort
	if config.Simulation.Enabled {
		port = &vfo.NopPort{}
	} else {
		p, err := vfo.NewSPIPort(
			config.Hardware.SPI.Device,
			config.Hardware.SPI.SpeedHz,
			config.Hardware.GPIOChip,
			config.Hardware.SPI.FQUDPin,
		)
		if err != nil {
			slog.Error("Failed to open synthesizer port", "error", err)
			os.Exit(1)
		}
		port = p
	}
	synth := vfo.NewSynth(port, config.Synth.ClockHz, config.Synth.MinHz, config.Synth.MaxHz)
	defer synth.Close()

	// Front panel
	var panel vfo.PanelIO
	if config.Simulation.Enabled {
		panel = vfo.NewSimPanel()
	} else {
		p, err := vfo.NewPanel(
			config.Hardware.GPIOChip,
			config.Hardware.TrackPin,
			config.Hardware.TrackLEDPin,
			config.Hardware.LockLEDPin,
			config.Hardware.ButtonADC,
		)
		if err != nil {
			slog.Error("Failed to open front panel", "error", err)
			os.Exit(1)
		}
		panel = p
	}
	defer panel.Close()

	// Calibration
	store := vfo.NewCalStore(config.Calibration.File)
	calibrator := vfo.NewCalibrator(store)

	// Metrics
	var metrics *vfo.Metrics
	if config.Metrics.Enabled {
		m, err := vfo.NewMetrics(nil)
		if err != nil {
			slog.Error("Failed to register metrics", "error", err)
			os.Exit(1)
		}
		metrics = m
		go serveMetrics(metrics, config.Metrics.Addr)
	}

	// Control loop
	tracker := vfo.NewTracker(gate, synth, panel, calibrator, metrics, config.Synth.InitialHz)
	tracker.SetRatio(calibrator.LoadStoredRatio())

	// The lock button held through power-up requests a calibration run,
	// same as the --calibrate flag.
	bootCalibrate := *calibrate
	if !bootCalibrate {
		if button, err := panel.ReadButton(); err == nil && button == vfo.ButtonLock {
			slog.Info("Lock button held at startup, calibration requested")
			bootCalibrate = true
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := source.Start(); err != nil {
		slog.Error("Failed to start timer source", "error", err)
		os.Exit(1)
	}
	defer source.Close()

	go tracker.Run(ctx)

	if bootCalibrate {
		go func() {
			res, err := tracker.RequestCalibration(ctx, config.Calibration.ReferenceHz)
			if err != nil {
				slog.Error("Startup calibration failed", "error", err)
				return
			}
			slog.Info("Startup calibration finished", "run_id", res.RunID, "accepted", res.Accepted)
		}()
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ReadTimeout:  ServerReadTimeout,
		WriteTimeout: ServerWriteTimeout,
		AppName:      "Linht VFO Tracker",
	})

	// Add logger middleware
	app.Use(fiberLogger.New(fiberLogger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	// Initialize and register API modules
	deps := &vfo.Deps{
		Tracker:     tracker,
		Synth:       synth,
		Store:       store,
		ReferenceHz: config.Calibration.ReferenceHz,
	}
	if err := initModules(app, deps); err != nil {
		slog.Error("Failed to initialize modules", "error", err)
		os.Exit(1)
	}

	// Start server with graceful shutdown
	addr := config.Server.Host + ":" + config.Server.Port

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Shutting down...")
		cancel()
		if err := app.ShutdownWithContext(context.Background()); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}
	}()

	slog.Info("Starting Linht VFO Tracker", "address", addr)
	if err := app.Listen(addr); err != nil {
		slog.Error("Failed to start server", "error", err, "address", addr)
		os.Exit(1)
	}
}

func loadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, &config)
}

func applyDefaults() {
	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}
	if config.Metrics.Addr == "" {
		config.Metrics.Addr = ":9090"
	}
	if config.Synth.ClockHz == 0 {
		config.Synth.ClockHz = vfo.DefaultSynthClockHz
	}
	if config.Synth.MinHz == 0 {
		config.Synth.MinHz = vfo.DefaultFreqMinHz
	}
	if config.Synth.MaxHz == 0 {
		config.Synth.MaxHz = vfo.DefaultFreqMaxHz
	}
	if config.Calibration.File == "" {
		config.Calibration.File = "calibration.dat"
	}
	if len(config.Modules) == 0 {
		config.Modules = []string{"status", "stream"}
	}
}

func serveMetrics(metrics *vfo.Metrics, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	slog.Info("Metrics listener started", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("Metrics listener failed", "error", err, "address", addr)
	}
}

func initModules(app *fiber.App, deps *vfo.Deps) error {
	for _, name := range config.Modules {
		factory, exists := vfo.GetModule(name)
		if !exists {
			slog.Warn("Unknown module", "name", name)
			continue
		}

		module, err := factory(deps)
		if err != nil {
			return err
		}

		module.RegisterRoutes(app)
		slog.Info("Module loaded", "name", module.Name())
	}
	return nil
}
