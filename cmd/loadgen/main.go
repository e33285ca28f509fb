package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// loadgen dials N websocket clients against a running gateway, joins them
// all to one room and pushes messages at a fixed rate.
func main() {
	url := flag.String("url", "ws://localhost:3001/ws", "gateway websocket url")
	clients := flag.Int("clients", 10, "number of concurrent clients")
	messages := flag.Int("messages", 20, "messages per client")
	room := flag.String("room", "loadtest", "room to join")
	interval := flag.Duration("interval", 100*time.Millisecond, "delay between messages")
	flag.Parse()

	var sent, received int64
	var wg sync.WaitGroup

	start := time.Now()
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if err := runClient(*url, *room, *messages, *interval, &sent, &received); err != nil {
				log.Printf("client %d: %v", n, err)
			}
		}(i)
	}
	wg.Wait()

	elapsed := time.Since(start)
	fmt.Printf("clients=%d sent=%d received=%d elapsed=%s\n",
		*clients, atomic.LoadInt64(&sent), atomic.LoadInt64(&received), elapsed.Round(time.Millisecond))
	if atomic.LoadInt64(&sent) == 0 {
		os.Exit(1)
	}
}

func runClient(url, room string, messages int, interval time.Duration, sent, received *int64) error {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Count everything the server pushes back until the connection closes.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			atomic.AddInt64(received, 1)
		}
	}()

	if err := writeFrame(conn, "join_room", map[string]any{"roomId": room}); err != nil {
		return err
	}

	for i := 0; i < messages; i++ {
		payload := map[string]any{
			"data": map[string]any{
				"roomId": room,
				"text":   fmt.Sprintf("msg %d", i),
			},
		}
		if err := writeFrame(conn, "message", payload); err != nil {
			return err
		}
		atomic.AddInt64(sent, 1)
		time.Sleep(interval)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func writeFrame(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return conn.WriteJSON(map[string]any{"event": event, "data": json.RawMessage(raw)})
}
