package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/inertial_navigator/internal/config"
	"github.com/relabs-tech/inertial_navigator/internal/gps"
	"github.com/relabs-tech/inertial_navigator/internal/orientation"
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
	"github.com/relabs-tech/inertial_navigator/internal/spatial"
)

// deadReckoner chains preintegration summaries into a running world-frame
// state, the same forward propagation the motion factor predicts with. It
// drifts without an absolute reference; a GPS fix resets the velocity.
type deadReckoner struct {
	mu      sync.Mutex
	rot     spatial.Rot3
	pos     spatial.Vec3
	vel     spatial.Vec3
	gravity spatial.Vec3
}

func newDeadReckoner(gravity spatial.Vec3) *deadReckoner {
	return &deadReckoner{rot: spatial.RotIdentity(), gravity: gravity}
}

func (d *deadReckoner) apply(s preintegration.Summary) (spatial.Pose3, spatial.Vec3) {
	d.mu.Lock()
	defer d.mu.Unlock()

	dt := s.DeltaT
	dR := s.RotationDelta()

	d.pos = d.pos.
		Add(d.rot.Rotate(spatial.Vec3(s.DeltaP))).
		Add(d.vel.Scale(dt)).
		Add(d.gravity.Scale(0.5 * dt * dt))
	d.vel = d.vel.
		Add(d.rot.Rotate(spatial.Vec3(s.DeltaV))).
		Add(d.gravity.Scale(dt))
	d.rot = d.rot.Compose(dR)

	return spatial.Pose3{Rot: d.rot, Trans: d.pos}, d.vel
}

func (d *deadReckoner) anchorVelocity(north, east float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// GPS course/speed gives the horizontal velocity; keep the vertical.
	d.vel[0], d.vel[1] = north, east
}

func RunConsoleMQTT() error {
	cfg := config.Get()

	dr := newDeadReckoner(cfg.Gravity())

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to preintegration summaries
	preintToken := client.Subscribe(cfg.TopicPreint, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s preintegration.Summary
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("console: summary unmarshal error: %v", err)
			return
		}

		pose := orientation.FromRotation(s.RotationDelta())
		fmt.Printf(
			"[PREINT] dt=%6.3fs n=%4d  dR: R=%7.2f P=%7.2f Y=%7.2f  dV=(%7.3f %7.3f %7.3f)  dP=(%7.3f %7.3f %7.3f)  tr(cov)=%9.3e\n",
			s.DeltaT, s.SampleCount,
			pose.Roll, pose.Pitch, pose.Yaw,
			s.DeltaV[0], s.DeltaV[1], s.DeltaV[2],
			s.DeltaP[0], s.DeltaP[1], s.DeltaP[2],
			s.CovarianceTrace(),
		)

		worldPose, worldVel := dr.apply(s)
		att := orientation.FromRotation(worldPose.Rot)
		fmt.Printf(
			"[DR    ] pos=(%8.2f %8.2f %8.2f)  vel=(%6.2f %6.2f %6.2f)  att: R=%7.2f P=%7.2f Y=%7.2f\n",
			worldPose.Trans[0], worldPose.Trans[1], worldPose.Trans[2],
			worldVel[0], worldVel[1], worldVel[2],
			att.Roll, att.Pitch, att.Yaw,
		)
	})
	preintToken.Wait()
	if preintToken.Error() != nil {
		return preintToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicPreint)

	// Subscribe to GPS
	gpsToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f gps.Fix
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: gps unmarshal error: %v", err)
			return
		}

		north, east := f.VelocityNE()
		if f.Valid() {
			dr.anchorVelocity(north, east)
		}
		fmt.Printf(
			"[GPS  ] time=%s lat=%.6f lon=%.6f vN=%.2fm/s vE=%.2fm/s validity=%s\n",
			f.Time, f.Latitude, f.Longitude, north, east, f.Validity,
		)
	})
	gpsToken.Wait()
	if gpsToken.Error() != nil {
		return gpsToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicGPS)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
