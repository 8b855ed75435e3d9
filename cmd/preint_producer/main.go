// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/inertial_navigator/internal/app"
	"github.com/relabs-tech/inertial_navigator/internal/config"
)

func main() {
	configPath := flag.String("config", "./inertial_config.txt", "path to configuration file")
	useMock := flag.Bool("mock", false, "use the simulated IMU instead of hardware")
	flag.Parse()

	log.Println("starting inertial-navigator preintegration producer (IMU → MQTT)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDeltaProducer(*useMock); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
