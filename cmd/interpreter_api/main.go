// Interpreter API is responsible for reading the energy meter and
// broadcasting the decoded measurements.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/PBrunot/owlsensor-go/pkg/collector"
	"github.com/PBrunot/owlsensor-go/pkg/config"
	"github.com/PBrunot/owlsensor-go/pkg/interpreter"
	"github.com/PBrunot/owlsensor-go/pkg/protocol"
	"github.com/PBrunot/owlsensor-go/pkg/solarinverter"
	"github.com/gorilla/websocket"
)

var meter *collector.CMDataCollector

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// ws clients for broadcasting live measurements
var (
	wsClients                   = make(map[*websocket.Conn]bool)
	wsClientsMutex sync.RWMutex = sync.RWMutex{}
)

func main() {
	// Load config
	if err := config.LoadInterpreterAPIConfig(); err != nil {
		log.Fatalf("Failed to load interpreter API config: %v", err)
	}

	cfg := config.ActiveInterpreterAPIConfig

	var err error
	meter, err = collector.GetAsyncDataCollector(cfg.DeviceModel, cfg.SerialDevice)
	if err != nil {
		log.Fatalf("Failed to create data collector: %v", err)
	}
	defer meter.Close()

	// Start reading the meter and handle errors
	meter.StartReading(
		func(m *protocol.Measurement) {
			BroadcastToWebSockets(toLiveMeasurement(m))
		},
		func(err error) {
			if err != nil {
				log.Fatalf("Error reading meter: %v", err)
			}
		},
	)

	// Setup HTTP handlers
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		response := map[string]string{
			"message": "OWL Energy Meter API",
			"status":  "running",
			"state":   meter.State().String(),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(response)
	})

	http.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		m := meter.GetLatestReading()
		w.Header().Set("Content-Type", "application/json")
		if m == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{
				"error": "No readings available yet",
			})
			return
		}

		json.NewEncoder(w).Encode(toLiveMeasurement(m))
	})

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade error: %v", err)
			return
		}

		AddWebSocketClient(conn)

		// Send current reading immediately if available
		if m := meter.GetLatestReading(); m != nil {
			conn.WriteMessage(websocket.TextMessage, toLiveMeasurement(m).ToJsonBytes())
		}

		// Keep connection alive
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				RemoveWebSocketClient(conn)
				break
			}
		}
	})

	// May be fast or slow depending on cached response from inverter.
	http.HandleFunc("/solar", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		power, err := solarinverter.ReadSolarData()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{
				"error": err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]int32{
			"currentProduction": power,
		})
	})

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	log.Printf("Starting OWL Energy Meter API on %s", listener)
	log.Fatal(http.ListenAndServe(listener, nil))
}

func toLiveMeasurement(m *protocol.Measurement) *interpreter.LiveMeasurement {
	cfg := config.ActiveInterpreterAPIConfig
	return &interpreter.LiveMeasurement{
		Timestamp: time.Now().Format(time.RFC3339),
		CurrentA:  m.Current,
		Model:     cfg.DeviceModel,
		Port:      cfg.SerialDevice,
	}
}

func BroadcastToWebSockets(m *interpreter.LiveMeasurement) {
	wsClientsMutex.RLock()
	clients := make([]*websocket.Conn, 0, len(wsClients))
	for client := range wsClients {
		clients = append(clients, client)
	}
	wsClientsMutex.RUnlock()

	data := m.ToJsonBytes()
	if data == nil {
		return
	}

	for _, client := range clients {
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			RemoveWebSocketClient(client)
		}
	}
}

func AddWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	wsClients[conn] = true
	wsClientsMutex.Unlock()
}

func RemoveWebSocketClient(conn *websocket.Conn) {
	wsClientsMutex.Lock()
	delete(wsClients, conn)
	wsClientsMutex.Unlock()
	conn.Close()
}
