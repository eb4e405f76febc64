package monitor

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	telemetry "telemetry-hub/internal/telemetry/domain"
)

// DeviceConfig declares one required device. Hvac left unset defaults
// from the device-id class: pico-class devices carry no HVAC sensor.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Hvac *bool  `yaml:"hvac"`
}

// Device is a resolved required device with its capability flag.
type Device struct {
	ID   string
	Hvac bool
}

// Config defines monitor thresholds and the required device list.
type Config struct {
	InactivityMinutes        int            `yaml:"inactivity_minutes"`
	StaleConsecutiveMisses   int            `yaml:"stale_consecutive_misses"`
	AlertCooldownMinutes     int            `yaml:"alert_cooldown_minutes"`
	HvacTempThreshold        float64        `yaml:"hvac_temp_threshold"`
	HvacAlertCooldownMinutes int            `yaml:"hvac_alert_cooldown_minutes"`
	MonitorIntervalMinutes   int            `yaml:"monitor_interval_minutes"`
	ReportIntervalHours      int            `yaml:"report_interval_hours"`
	Devices                  []DeviceConfig `yaml:"devices"`
}

// LoadConfig loads monitor config from yaml (MONITOR_CONFIG path) with
// env fallbacks for every field.
func LoadConfig() (Config, error) {
	cfg := Config{
		InactivityMinutes:        getenvIntDefault("INACTIVITY_MINUTES", 5),
		StaleConsecutiveMisses:   getenvIntDefault("STALE_CONSECUTIVE_MISSES", 4),
		AlertCooldownMinutes:     getenvIntDefault("ALERT_COOLDOWN_MINUTES", 30),
		HvacTempThreshold:        getenvFloatDefault("HVAC_TEMP_THRESHOLD", 25.0),
		HvacAlertCooldownMinutes: getenvIntDefault("HVAC_ALERT_COOLDOWN_MINUTES", 30),
		MonitorIntervalMinutes:   getenvIntDefault("MONITOR_INTERVAL_MINUTES", 1),
		ReportIntervalHours:      getenvIntDefault("REPORT_INTERVAL_HOURS", 1),
	}

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if len(cfg.Devices) == 0 {
		for _, id := range splitCSV(os.Getenv("REQUIRED_DEVICES")) {
			cfg.Devices = append(cfg.Devices, DeviceConfig{ID: id})
		}
	}

	if cfg.InactivityMinutes <= 0 {
		return cfg, errors.New("monitor: inactivity_minutes must be positive")
	}
	if cfg.StaleConsecutiveMisses <= 0 {
		return cfg, errors.New("monitor: stale_consecutive_misses must be positive")
	}
	return cfg, nil
}

// ResolvedDevices returns the required devices with HVAC capability
// resolved once. Unset flags derive from the device-id class.
func (c Config) ResolvedDevices() []Device {
	devices := make([]Device, 0, len(c.Devices))
	for _, dc := range c.Devices {
		id := strings.TrimSpace(dc.ID)
		if id == "" {
			continue
		}
		hvac := !telemetry.IsPicoClass(id)
		if dc.Hvac != nil {
			hvac = *dc.Hvac
		}
		devices = append(devices, Device{ID: id, Hvac: hvac})
	}
	return devices
}

// AlertCooldown returns the stale-alert cooldown as a duration.
func (c Config) AlertCooldown() time.Duration {
	return time.Duration(c.AlertCooldownMinutes) * time.Minute
}

// HvacAlertCooldown returns the HVAC cooldown as a duration.
func (c Config) HvacAlertCooldown() time.Duration {
	return time.Duration(c.HvacAlertCooldownMinutes) * time.Minute
}

// MonitorInterval returns the monitor job interval.
func (c Config) MonitorInterval() time.Duration {
	return time.Duration(c.MonitorIntervalMinutes) * time.Minute
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
