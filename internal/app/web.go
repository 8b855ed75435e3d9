package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/inertial_navigator/internal/config"
	"github.com/relabs-tech/inertial_navigator/internal/preintegration"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// summaryHub fans the latest preintegration summary out to every connected
// websocket client.
type summaryHub struct {
	mu      sync.RWMutex
	last    preintegration.Summary
	have    bool
	clients map[*websocket.Conn]struct{}
}

func (h *summaryHub) update(s preintegration.Summary) {
	h.mu.Lock()
	h.last = s
	h.have = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		if err := c.WriteJSON(s); err != nil {
			log.Printf("web: websocket write error, dropping client: %v", err)
			h.drop(c)
		}
	}
}

func (h *summaryHub) add(c *websocket.Conn) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *summaryHub) drop(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.Close()
}

func RunWeb() error {
	cfg := config.Get()

	hub := &summaryHub{clients: make(map[*websocket.Conn]struct{})}

	// 1) Connect to MQTT broker
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDWeb)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	// 2) Subscribe to preintegration summaries and fan out
	token := client.Subscribe(cfg.TopicPreint, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s preintegration.Summary
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("web: summary unmarshal error: %v", err)
			return
		}
		hub.update(s)
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: subscribed to %s", cfg.TopicPreint)

	// 3) JSON API endpoint: latest summary
	http.HandleFunc("/api/preintegration", func(w http.ResponseWriter, r *http.Request) {
		hub.mu.RLock()
		defer hub.mu.RUnlock()

		if !hub.have {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.last); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// 4) Live stream over websocket
	http.HandleFunc("/ws/preintegration", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		hub.add(conn)

		// Drain client messages so pings are answered; drop on error.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					hub.drop(conn)
					return
				}
			}
		}()
	})

	// 5) Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
