// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_navigator/internal/config"
	"github.com/relabs-tech/inertial_navigator/internal/imu"
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/sensors"
	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// BiasSession holds the state of an active bias calibration.
//
// The device must stay stationary and level (z up) for the whole session.
// Gyro bias is the mean angular rate; accel bias is the mean specific force
// minus standard gravity on the z axis.
type BiasSession struct {
	Conn         *websocket.Conn
	mu           sync.Mutex
	source       imu.Source
	currentPhase string

	gyroBias    [3]float64
	gyroStdDev  float64
	accBias     [3]float64
	accStdDev   float64
	sampleCount int
}

// BiasWSMessage is what the calibration page sends.
type BiasWSMessage struct {
	Action string `json:"action"` // init, next, cancel
}

// BiasWSResponse is what the session sends back.
type BiasWSResponse struct {
	Type     string                 `json:"type"` // phase, progress, stats, complete, error
	Phase    string                 `json:"phase,omitempty"`
	Progress float64                `json:"progress,omitempty"`
	Stats    map[string]interface{} `json:"stats,omitempty"`
	Results  interface{}            `json:"results,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

// RunBiasCalibration serves the guided bias calibration page and its
// websocket endpoint. It owns the IMU for the duration of the process, so it
// must not run alongside the producer.
func RunBiasCalibration() error {
	cfg := config.Get()

	source, err := sensors.NewIMUSource()
	if err != nil {
		return fmt.Errorf("failed to initialize IMU: %w", err)
	}

	http.HandleFunc("/ws/calibration", func(w http.ResponseWriter, r *http.Request) {
		handleBiasWS(w, r, source)
	})

	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("calibration server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}

func handleBiasWS(w http.ResponseWriter, r *http.Request, source imu.Source) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := &BiasSession{
		Conn:   conn,
		source: source,
	}

	// Main message loop
	for {
		var msg BiasWSMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			log.Printf("calibration: websocket read error: %v", err)
			break
		}

		switch msg.Action {
		case "init":
			log.Printf("calibration: session started")
			session.sendPhase("gyro")

		case "next":
			session.mu.Lock()
			err := session.runNextStep()
			session.mu.Unlock()
			if err != nil {
				session.sendError(err.Error())
			}

		case "cancel":
			log.Printf("calibration: cancelled by user")
			return
		}
	}
}

func (s *BiasSession) runNextStep() error {
	switch s.currentPhase {
	case "":
		s.currentPhase = "gyro"
		return s.runGyroPhase()

	case "gyro":
		s.currentPhase = "accel"
		return s.runAccelPhase()

	case "accel":
		return s.complete()
	}

	return nil
}

func (s *BiasSession) runGyroPhase() error {
	s.sendPhase("gyro")
	s.sendProgress(0)

	time.Sleep(1 * time.Second) // Give user time to place device

	samples := make([][3]float64, 0, 200)
	for i := 0; i < 200; i++ {
		sample, err := s.source.Next()
		if err != nil {
			return err
		}
		samples = append(samples, [3]float64(sample.Gyro))
		s.sendProgress(float64(i) * 0.5)
		time.Sleep(10 * time.Millisecond)
	}

	s.gyroBias[0] = sampleMean(samples, 0)
	s.gyroBias[1] = sampleMean(samples, 1)
	s.gyroBias[2] = sampleMean(samples, 2)
	s.gyroStdDev = (sampleStdDev(samples, 0) + sampleStdDev(samples, 1) + sampleStdDev(samples, 2)) / 3.0
	s.sampleCount += len(samples)

	s.sendProgress(100)
	s.sendStats()
	return nil
}

func (s *BiasSession) runAccelPhase() error {
	s.sendPhase("accel")
	s.sendProgress(0)

	time.Sleep(1 * time.Second)

	samples := make([][3]float64, 0, 200)
	for i := 0; i < 200; i++ {
		sample, err := s.source.Next()
		if err != nil {
			return err
		}
		samples = append(samples, [3]float64(sample.Acc))
		s.sendProgress(float64(i) * 0.5)
		time.Sleep(10 * time.Millisecond)
	}

	// Stationary and level: the accelerometer should read +g on z.
	s.accBias[0] = sampleMean(samples, 0)
	s.accBias[1] = sampleMean(samples, 1)
	s.accBias[2] = sampleMean(samples, 2) - imu.StandardGravity
	s.accStdDev = (sampleStdDev(samples, 0) + sampleStdDev(samples, 1) + sampleStdDev(samples, 2)) / 3.0
	s.sampleCount += len(samples)

	s.sendProgress(100)
	s.sendStats()

	time.Sleep(1 * time.Second)
	return s.complete()
}

func (s *BiasSession) complete() error {
	cfg := config.Get()

	bias := preintegration.Bias{
		Acc:  spatial.Vec3(s.accBias),
		Gyro: spatial.Vec3(s.gyroBias),
	}

	data, err := json.MarshalIndent(bias, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal bias estimate: %w", err)
	}

	if err := os.WriteFile(cfg.BiasFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write bias file: %w", err)
	}

	log.Printf("calibration: saved bias estimate to %s", cfg.BiasFile)

	s.Conn.WriteJSON(BiasWSResponse{
		Type:    "complete",
		Results: map[string]interface{}{"filename": cfg.BiasFile},
	})

	return nil
}

func (s *BiasSession) sendPhase(phase string) {
	s.Conn.WriteJSON(BiasWSResponse{
		Type:  "phase",
		Phase: phase,
	})
}

func (s *BiasSession) sendProgress(progress float64) {
	s.Conn.WriteJSON(BiasWSResponse{
		Type:     "progress",
		Progress: progress,
	})
}

func (s *BiasSession) sendStats() {
	stats := map[string]interface{}{
		"gyro_stddev":  s.gyroStdDev,
		"accel_stddev": s.accStdDev,
		"samples":      s.sampleCount,
	}
	s.Conn.WriteJSON(BiasWSResponse{
		Type:  "stats",
		Stats: stats,
	})
}

func (s *BiasSession) sendError(message string) {
	s.Conn.WriteJSON(BiasWSResponse{
		Type:    "error",
		Message: message,
	})
}

// Helper functions for statistics
func sampleMean(data [][3]float64, axis int) float64 {
	sum := 0.0
	for _, v := range data {
		sum += v[axis]
	}
	return sum / float64(len(data))
}

func sampleStdDev(data [][3]float64, axis int) float64 {
	if len(data) == 0 {
		return 0
	}
	m := sampleMean(data, axis)
	variance := 0.0
	for _, v := range data {
		diff := v[axis] - m
		variance += diff * diff
	}
	variance /= float64(len(data))
	return math.Sqrt(variance)
}
