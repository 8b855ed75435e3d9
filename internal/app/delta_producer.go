package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_navigator/internal/config"
	"github.com/relabs-tech/inertial_navigator/internal/imu"
	"github.com/relabs-tech/inertial_navigator/internal/orientation"
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/sensors"
)

// loadBias reads the bias estimate written by the calibration session.
// Missing file means zero bias; the preintegrator works either way.
func loadBias(path string) preintegration.Bias {
	var bias preintegration.Bias
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("producer: no bias file at %s, using zero bias: %v", path, err)
		return bias
	}
	if err := json.Unmarshal(data, &bias); err != nil {
		log.Printf("producer: bias file unreadable, using zero bias: %v", err)
		return preintegration.Bias{}
	}
	log.Printf("producer: loaded bias acc=%v gyro=%v", bias.Acc, bias.Gyro)
	return bias
}

// RunDeltaProducer reads IMU samples, preintegrates them one publish window
// at a time, and publishes each finished window as a JSON summary over MQTT.
// The preintegrator is reset after every publish: one instance, one window,
// one producer goroutine.
func RunDeltaProducer(useMock bool) error {
	log.Println("starting inertial-navigator delta producer (IMU → preintegration → MQTT)")

	cfg := config.Get()

	var src imu.Source
	if useMock {
		log.Println("using mock IMU source")
		src = imu.NewMockSource(float64(cfg.IMUSampleInterval) / 1000.0)
	} else {
		var err error
		src, err = sensors.NewIMUSource()
		if err != nil {
			return fmt.Errorf("failed to initialize IMU: %w", err)
		}
	}

	bias := loadBias(cfg.BiasFile)
	pre := preintegration.New(bias, cfg.PreintegrationParams())

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)

	log.Println("connected to MQTT, starting integration loop")

	sampleCount := 0
	windowStart := time.Now()
	publishEvery := time.Duration(cfg.PreintPublishInterval) * time.Millisecond

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()

	for t := range ticker.C {
		sample, err := src.Next()
		if err != nil {
			log.Printf("error reading IMU: %v", err)
			continue
		}
		if sample.Dt <= 0 {
			// Clock went backwards or duplicate timestamp; skip rather than
			// feed the integrator an invalid interval.
			log.Printf("skipping sample with dt=%v", sample.Dt)
			continue
		}

		if err := pre.IntegrateMeasurement(sample.Acc, sample.Gyro, sample.Dt); err != nil {
			log.Printf("integration error: %v", err)
			continue
		}
		sampleCount++

		if t.Sub(windowStart) < publishEvery {
			continue
		}

		summary := preintegration.Summarize(pre, sampleCount, t)
		payload, err := json.Marshal(summary)
		if err != nil {
			log.Printf("json marshal error (summary): %v", err)
		} else {
			if token := client.Publish(cfg.TopicPreint, 0, true, payload); token.Wait() && token.Error() != nil {
				log.Printf("MQTT publish error (preint): %v", token.Error())
			}
		}

		pose := orientation.FromRotation(pre.DeltaR())
		log.Printf("%s window: dt=%.3fs n=%d | dR R=%.2f P=%.2f Y=%.2f | dV=(%.3f %.3f %.3f) | dP=(%.3f %.3f %.3f) | tr(cov)=%.3e",
			t.Format(time.RFC3339),
			pre.DeltaT(), sampleCount,
			pose.Roll, pose.Pitch, pose.Yaw,
			pre.DeltaV()[0], pre.DeltaV()[1], pre.DeltaV()[2],
			pre.DeltaP()[0], pre.DeltaP()[1], pre.DeltaP()[2],
			summary.CovarianceTrace(),
		)

		pre.Reset()
		sampleCount = 0
		windowStart = t
	}
	return nil
}
