package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/inertial_navigator/internal/config"
	"github.com/relabs-tech/inertial_navigator/internal/gps"
	"github.com/relabs-tech/inertial_navigator/internal/orientation"
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
)

// DisplayData holds the latest data for display
type DisplayData struct {
	mu sync.RWMutex

	summary     preintegration.Summary
	haveSummary bool

	gpsFix  gps.Fix
	haveGPS bool
}

func RunDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	// Data storage
	data := &DisplayData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicPreint, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s preintegration.Summary
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("display: summary unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.summary = s
		data.haveSummary = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicPreint)

	token = client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var fix gps.Fix
		if err := json.Unmarshal(msg.Payload(), &fix); err != nil {
			log.Printf("display: gps unmarshal error: %v", err)
			return
		}
		data.mu.Lock()
		data.gpsFix = fix
		data.haveGPS = true
		data.mu.Unlock()
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicGPS)

	// Display update loop alternating between pages
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	page := 0
	for range ticker.C {
		// Read data without copying the mutex
		data.mu.RLock()
		snapshot := DisplayData{
			summary:     data.summary,
			haveSummary: data.haveSummary,
			gpsFix:      data.gpsFix,
			haveGPS:     data.haveGPS,
		}
		data.mu.RUnlock()

		var err error
		switch page {
		case 0:
			err = updateRotationDisplay(dev, &snapshot)
		case 1:
			err = updateDeltaDisplay(dev, &snapshot)
		case 2:
			err = updateGPSDisplay(dev, &snapshot)
		}
		if err != nil {
			log.Printf("display: error updating display: %v", err)
		}

		page = (page + 1) % 3
	}

	return nil
}

func newDrawer() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func updateRotationDisplay(dev *ssd1306.Dev, data *DisplayData) error {
	img, drawer := newDrawer()

	if !data.haveSummary {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Rotation"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		pose := orientation.FromRotation(data.summary.RotationDelta())

		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("dR: %.2fs", data.summary.DeltaT)))

		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("R: %6.1f", pose.Roll)))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("P: %6.1f", pose.Pitch)))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("Y: %6.1f", pose.Yaw)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func updateDeltaDisplay(dev *ssd1306.Dev, data *DisplayData) error {
	img, drawer := newDrawer()

	if !data.haveSummary {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Deltas"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		s := &data.summary

		drawer.Dot = fixed.P(0, 13)
		drawer.DrawBytes([]byte(fmt.Sprintf("V %5.2f %5.2f", s.DeltaV[0], s.DeltaV[1])))

		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte(fmt.Sprintf("  %5.2f", s.DeltaV[2])))

		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte(fmt.Sprintf("P %5.2f %5.2f", s.DeltaP[0], s.DeltaP[1])))

		drawer.Dot = fixed.P(0, 52)
		drawer.DrawBytes([]byte(fmt.Sprintf("  %5.2f", s.DeltaP[2])))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func updateGPSDisplay(dev *ssd1306.Dev, data *DisplayData) error {
	img, drawer := newDrawer()

	if !data.haveGPS {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("GPS Fix"))
		drawer.Dot = fixed.P(0, 39)
		drawer.DrawBytes([]byte("Waiting..."))
	} else {
		fix := data.gpsFix

		// Latitude
		drawer.Dot = fixed.P(0, 13)
		latDir := "N"
		lat := fix.Latitude
		if lat < 0 {
			latDir = "S"
			lat = -lat
		}
		drawer.DrawBytes([]byte(fmt.Sprintf("%.4f%s", lat, latDir)))

		// Longitude
		drawer.Dot = fixed.P(0, 26)
		lonDir := "E"
		lon := fix.Longitude
		if lon < 0 {
			lonDir = "W"
			lon = -lon
		}
		drawer.DrawBytes([]byte(fmt.Sprintf("%.4f%s", lon, lonDir)))

		// Ground speed
		drawer.Dot = fixed.P(0, 39)
		vn, ve := fix.VelocityNE()
		drawer.DrawBytes([]byte(fmt.Sprintf("N%5.1f E%5.1f", vn, ve)))
	}

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newDrawer()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Inertial Pi"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Preintegrating"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}
