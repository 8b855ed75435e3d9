package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDProducer string
	MQTTClientIDGPS      string
	MQTTClientIDConsole  string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string

	// Topics
	TopicPreint string
	TopicGPS    string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string

	// IMU Sensor Ranges
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte
	// Gyroscope: 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s
	IMUGyroRange byte

	// IMU Sample Rate Configuration
	IMUDLPFConfig    byte // Digital Low Pass Filter configuration (0-7)
	IMUSampleRateDiv byte // Sample rate divider (output rate = internal rate / (1 + div))

	// Preintegration noise (continuous-time standard deviations)
	AccNoiseSigma         float64 // m/s^2 / sqrt(Hz)
	GyroNoiseSigma        float64 // rad/s / sqrt(Hz)
	IntegrationNoiseSigma float64

	// Preintegration options
	SecondOrderIntegration bool
	SecondOrderCoriolis    bool

	// Reference frame
	GravityZ  float64 // signed, world z; -9.81 for z-up
	CoriolisX float64 // rad/s, world frame
	CoriolisY float64
	CoriolisZ float64

	// Sensor-to-body mount transform
	MountRollDeg  float64
	MountPitchDeg float64
	MountYawDeg   float64
	MountX        float64 // meters
	MountY        float64
	MountZ        float64

	// GPS
	GPSSerialPort string
	GPSBaudRate   int

	// Timing
	IMUSampleInterval     int // milliseconds
	PreintPublishInterval int // milliseconds, one preintegration window
	ConsoleLogInterval    int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds

	// Bias estimate produced by the calibration session
	BiasFile string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot access it directly.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
//
// External code must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip blanks and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE, got %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.applyKeyValue(key, value); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		TopicPreint:           "inertial/preint",
		TopicGPS:              "inertial/gps",
		AccNoiseSigma:         0.02,
		GyroNoiseSigma:        0.002,
		IntegrationNoiseSigma: 1e-4,
		GravityZ:              -9.81,
		IMUSampleInterval:     10,
		PreintPublishInterval: 1000,
		ConsoleLogInterval:    1000,
		WebServerPort:         8080,
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
		BiasFile:              "bias.json",
	}
}

func (c *Config) applyKeyValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_PREINT":
		c.TopicPreint = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// IMU hardware
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if val < 0 || val > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3, got %d", val)
		}
		c.IMUAccelRange = byte(val)
	case "IMU_GYRO_RANGE":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_GYRO_RANGE %q: %w", value, err)
		}
		if val < 0 || val > 3 {
			return fmt.Errorf("IMU_GYRO_RANGE must be 0-3, got %d", val)
		}
		c.IMUGyroRange = byte(val)
	case "IMU_DLPF_CONFIG":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_DLPF_CONFIG %q: %w", value, err)
		}
		if val < 0 || val > 7 {
			return fmt.Errorf("IMU_DLPF_CONFIG must be 0-7, got %d", val)
		}
		c.IMUDLPFConfig = byte(val)
	case "IMU_SAMPLE_RATE_DIV":
		val, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_RATE_DIV %q: %w", value, err)
		}
		if val < 0 || val > 255 {
			return fmt.Errorf("IMU_SAMPLE_RATE_DIV must be 0-255, got %d", val)
		}
		c.IMUSampleRateDiv = byte(val)

	// Preintegration noise
	case "ACC_NOISE_SIGMA":
		return parseFloat(value, key, &c.AccNoiseSigma)
	case "GYRO_NOISE_SIGMA":
		return parseFloat(value, key, &c.GyroNoiseSigma)
	case "INTEGRATION_NOISE_SIGMA":
		return parseFloat(value, key, &c.IntegrationNoiseSigma)

	// Preintegration options
	case "SECOND_ORDER_INTEGRATION":
		return parseBool(value, key, &c.SecondOrderIntegration)
	case "SECOND_ORDER_CORIOLIS":
		return parseBool(value, key, &c.SecondOrderCoriolis)

	// Reference frame
	case "GRAVITY_Z":
		return parseFloat(value, key, &c.GravityZ)
	case "CORIOLIS_X":
		return parseFloat(value, key, &c.CoriolisX)
	case "CORIOLIS_Y":
		return parseFloat(value, key, &c.CoriolisY)
	case "CORIOLIS_Z":
		return parseFloat(value, key, &c.CoriolisZ)

	// Mount transform
	case "SENSOR_MOUNT_ROLL_DEG":
		return parseFloat(value, key, &c.MountRollDeg)
	case "SENSOR_MOUNT_PITCH_DEG":
		return parseFloat(value, key, &c.MountPitchDeg)
	case "SENSOR_MOUNT_YAW_DEG":
		return parseFloat(value, key, &c.MountYawDeg)
	case "SENSOR_MOUNT_X":
		return parseFloat(value, key, &c.MountX)
	case "SENSOR_MOUNT_Y":
		return parseFloat(value, key, &c.MountY)
	case "SENSOR_MOUNT_Z":
		return parseFloat(value, key, &c.MountZ)

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	// Timing
	case "IMU_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.IMUSampleInterval = interval
	case "PREINT_PUBLISH_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid PREINT_PUBLISH_INTERVAL %q: %w", value, err)
		}
		c.PreintPublishInterval = interval
	case "CONSOLE_LOG_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid CONSOLE_LOG_INTERVAL %q: %w", value, err)
		}
		c.ConsoleLogInterval = interval

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "BIAS_FILE":
		c.BiasFile = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

func parseFloat(value, key string, dst *float64) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

func parseBool(value, key string, dst *bool) error {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	*dst = v
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.IMUSampleInterval <= 0 {
		return fmt.Errorf("IMU_SAMPLE_INTERVAL must be positive")
	}
	if c.PreintPublishInterval <= 0 {
		return fmt.Errorf("PREINT_PUBLISH_INTERVAL must be positive")
	}
	if c.AccNoiseSigma <= 0 || c.GyroNoiseSigma <= 0 || c.IntegrationNoiseSigma <= 0 {
		return fmt.Errorf("noise sigmas must be positive")
	}
	return nil
}

// PreintegrationParams assembles the core's Params from the config values.
func (c *Config) PreintegrationParams() preintegration.Params {
	p := preintegration.NewParams(c.AccNoiseSigma, c.GyroNoiseSigma, c.IntegrationNoiseSigma)
	p.SecondOrderIntegration = c.SecondOrderIntegration
	p.BodyPSensor = c.MountPose()
	return p
}

// MountPose returns the sensor-to-body transform, or nil when the config
// leaves the sensor aligned with the body frame.
func (c *Config) MountPose() *spatial.Pose3 {
	if c.MountRollDeg == 0 && c.MountPitchDeg == 0 && c.MountYawDeg == 0 &&
		c.MountX == 0 && c.MountY == 0 && c.MountZ == 0 {
		return nil
	}
	deg := math.Pi / 180
	return &spatial.Pose3{
		Rot:   spatial.RotRPY(c.MountRollDeg*deg, c.MountPitchDeg*deg, c.MountYawDeg*deg),
		Trans: spatial.Vec3{c.MountX, c.MountY, c.MountZ},
	}
}

// Gravity returns the world-frame gravity vector.
func (c *Config) Gravity() spatial.Vec3 {
	return spatial.Vec3{0, 0, c.GravityZ}
}

// Coriolis returns the world-frame rotation rate of the reference frame.
func (c *Config) Coriolis() spatial.Vec3 {
	return spatial.Vec3{c.CoriolisX, c.CoriolisY, c.CoriolisZ}
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
