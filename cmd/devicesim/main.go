package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// devicesim replays a scripted wearer monologue against a running ingest
// server, either as webhook batches or as a live websocket stream. It exists
// so the silence-window behavior can be watched end to end without a device.

var (
	flagMode     = flag.String("mode", "webhook", "delivery mode: webhook or stream")
	flagServer   = flag.String("server", "localhost:8080", "ingest server host:port")
	flagUID      = flag.String("uid", "", "session id, defaults to a fresh uuid")
	flagKey      = flag.String("key", "", "device key sent as X-Stillpoint-Key")
	flagScript   = flag.String("script", "ruminative", "monologue script: ruminative or calm")
	flagInterval = flag.Duration("interval", 2*time.Second, "pause between deliveries")
)

type segment struct {
	Text   string `json:"text"`
	IsUser bool   `json:"is_user"`
}

var scripts = map[string][]segment{
	"ruminative": {
		{Text: "I keep replaying that meeting over and over in my head.", IsUser: true},
		{Text: "Why did I say that, I always do this, I always mess it up.", IsUser: true},
		{Text: "It sounds like that moment is really sticking with you.", IsUser: false},
		{Text: "I should have prepared more, I never prepare enough.", IsUser: true},
		{Text: "What if they think I can't handle the project now.", IsUser: true},
		{Text: "I can't stop thinking about what everyone must have thought of me.", IsUser: true},
	},
	"calm": {
		{Text: "Picking up groceries on the way home tonight.", IsUser: true},
		{Text: "Need tomatoes, basil and the good olive oil.", IsUser: true},
		{Text: "Added olive oil to your list.", IsUser: false},
		{Text: "Then a walk by the river if the rain holds off.", IsUser: true},
	},
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	uid := *flagUID
	if uid == "" {
		uid = uuid.New().String()
	}

	if *flagKey == "" {
		*flagKey = os.Getenv("STILLPOINT_DEVICE_KEY")
	}

	script, ok := scripts[*flagScript]
	if !ok {
		log.Fatalf("unknown script %q", *flagScript)
	}

	log.Printf("session %s, script %s, mode %s", uid, *flagScript, *flagMode)

	var err error
	switch *flagMode {
	case "webhook":
		err = runWebhook(uid, script)
	case "stream":
		err = runStream(uid, script)
	default:
		log.Fatalf("unknown mode %q", *flagMode)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("script finished, the silence window starts now")
}

// runWebhook posts the script in small batches, the way the device platform
// flushes transcript segments after each spoken burst.
func runWebhook(uid string, script []segment) error {
	endpoint := fmt.Sprintf("http://%s/v1/notification/webhook?uid=%s", *flagServer, uid)

	const batchSize = 3
	for start := 0; start < len(script); start += batchSize {
		end := start + batchSize
		if end > len(script) {
			end = len(script)
		}

		body, err := json.Marshal(map[string]interface{}{
			"session_id": uid,
			"segments":   script[start:end],
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if *flagKey != "" {
			req.Header.Set("X-Stillpoint-Key", *flagKey)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("webhook rejected batch: %s", resp.Status)
		}
		log.Printf("delivered segments %d-%d", start+1, end)

		if end < len(script) {
			time.Sleep(*flagInterval)
		}
	}
	return nil
}

// runStream dials the websocket ingest path and sends one frame per segment,
// pausing between frames to mimic live speech cadence.
func runStream(uid string, script []segment) error {
	endpoint := fmt.Sprintf("ws://%s/v1/stream?uid=%s", *flagServer, uid)

	header := http.Header{}
	if *flagKey != "" {
		header.Set("X-Stillpoint-Key", *flagKey)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(context.Background(), endpoint, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial failed: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	for i, seg := range script {
		if err := conn.WriteJSON(seg); err != nil {
			return fmt.Errorf("frame %d: %w", i+1, err)
		}
		log.Printf("streamed segment %d/%d", i+1, len(script))

		if i < len(script)-1 {
			time.Sleep(*flagInterval)
		}
	}
	return nil
}
