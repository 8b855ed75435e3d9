package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inertial_config.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `# test configuration
MQTT_BROKER = tcp://localhost:1883
MQTT_CLIENT_ID_PRODUCER = test-producer

TOPIC_PREINT = test/preint

IMU_SPI_DEVICE = /dev/spidev0.0
IMU_CS_PIN = GPIO8
IMU_ACCEL_RANGE = 2
IMU_GYRO_RANGE = 1

ACC_NOISE_SIGMA = 0.03
GYRO_NOISE_SIGMA = 0.003
SECOND_ORDER_INTEGRATION = true
GRAVITY_Z = -9.80665

SENSOR_MOUNT_YAW_DEG = 90
SENSOR_MOUNT_X = 0.05

GPS_SERIAL_PORT = /dev/serial0
GPS_BAUD_RATE = 9600

IMU_SAMPLE_INTERVAL = 5
PREINT_PUBLISH_INTERVAL = 500
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTTBroker)
	assert.Equal(t, "test-producer", cfg.MQTTClientIDProducer)
	assert.Equal(t, "test/preint", cfg.TopicPreint)
	assert.Equal(t, byte(2), cfg.IMUAccelRange)
	assert.Equal(t, byte(1), cfg.IMUGyroRange)
	assert.InDelta(t, 0.03, cfg.AccNoiseSigma, 0)
	assert.True(t, cfg.SecondOrderIntegration)
	assert.InDelta(t, -9.80665, cfg.GravityZ, 0)
	assert.Equal(t, 9600, cfg.GPSBaudRate)
	assert.Equal(t, 5, cfg.IMUSampleInterval)
	assert.Equal(t, 500, cfg.PreintPublishInterval)

	// Untouched keys keep their defaults.
	assert.Equal(t, "inertial/gps", cfg.TopicGPS)
	assert.Equal(t, 8080, cfg.WebServerPort)
	assert.Equal(t, "bias.json", cfg.BiasFile)
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"missing broker", "IMU_SAMPLE_INTERVAL = 10\n"},
		{"unknown key", "MQTT_BROKER = tcp://x:1883\nNOT_A_KEY = 1\n"},
		{"malformed line", "MQTT_BROKER tcp://x:1883\n"},
		{"bad accel range", "MQTT_BROKER = tcp://x:1883\nIMU_ACCEL_RANGE = 7\n"},
		{"bad float", "MQTT_BROKER = tcp://x:1883\nACC_NOISE_SIGMA = abc\n"},
		{"non-positive interval", "MQTT_BROKER = tcp://x:1883\nIMU_SAMPLE_INTERVAL = 0\n"},
		{"non-positive sigma", "MQTT_BROKER = tcp://x:1883\nGYRO_NOISE_SIGMA = -1\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.txt"))
		assert.Error(t, err)
	})
}

func TestMountPose(t *testing.T) {
	t.Run("nil when aligned", func(t *testing.T) {
		cfg := defaults()
		assert.Nil(t, cfg.MountPose())
	})

	t.Run("rotation and lever arm", func(t *testing.T) {
		cfg := defaults()
		cfg.MountYawDeg = 90
		cfg.MountX = 0.05

		pose := cfg.MountPose()
		require.NotNil(t, pose)
		assert.InDelta(t, 0.05, pose.Trans[0], 0)

		// Yaw of 90 degrees maps sensor x to body y.
		v := pose.Rot.Rotate(spatial.Vec3{1, 0, 0})
		assert.InDelta(t, 0, v[0], 1e-12)
		assert.InDelta(t, 1, v[1], 1e-12)
	})
}

func TestPreintegrationParams(t *testing.T) {
	cfg := defaults()
	cfg.AccNoiseSigma = 0.1
	cfg.SecondOrderIntegration = true
	cfg.MountZ = 0.02

	p := cfg.PreintegrationParams()
	assert.True(t, p.SecondOrderIntegration)
	require.NotNil(t, p.BodyPSensor)
	assert.InDelta(t, 0.01, p.AccCov.At(0, 0), 1e-15)
	assert.InDelta(t, 0, p.AccCov.At(0, 1), 0)
}

func TestGravityAndCoriolis(t *testing.T) {
	cfg := defaults()
	cfg.CoriolisZ = 7.292115e-5

	g := cfg.Gravity()
	assert.InDelta(t, -9.81, g[2], 0)

	w := cfg.Coriolis()
	assert.InDelta(t, 7.292115e-5, w[2], 0)
	assert.InDelta(t, 0, w[0], 0)
}
