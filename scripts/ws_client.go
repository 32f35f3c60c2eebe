// Package main runs a demo client: it registers an endpoint, subscribes to
// the live delivery-status stream and emits a test event.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Register a throwaway endpoint pointed at the server's own health check.
	reg := map[string]any{
		"url":    base + "/healthz",
		"secret": "demo-secret",
		"events": []string{"demo.ping"},
	}
	body, _ := json.Marshal(reg)
	resp, err := http.Post(base+"/v1/endpoints", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatal(err)
	}
	var ep struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		log.Fatal(err)
	}
	_ = resp.Body.Close()
	log.Printf("endpoint: %s", ep.ID)

	// Watch its delivery transitions.
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/admin/deliveries/stream", RawQuery: "endpointId=" + ep.ID}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var update map[string]any
			if err := c.ReadJSON(&update); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %v", update)
		}
	}()

	// Emit an event for it.
	emit := []byte(`{"type":"demo.ping","payload":{"hello":"world"}}`)
	if _, err := http.Post(base+"/v1/events", "application/json", bytes.NewReader(emit)); err != nil {
		log.Fatal(err)
	}

	select {
	case <-time.After(3 * time.Second):
	case <-done:
	}
}
