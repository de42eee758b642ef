// Command feedprobe dials a dashboard event feed and prints every frame as
// it arrives, decoded when possible and raw on request. It is a standalone
// debugging utility for checking what a backend actually sends, without
// starting the dashboard itself.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"opsdash/event"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	url := flag.String("url", "ws://localhost:8080/ws", "websocket feed URL")
	raw := flag.Bool("raw", false, "print raw frames alongside decoded events")
	limit := flag.Int("limit", 0, "stop after this many frames (0 = until interrupted)")
	idle := flag.Duration("idle", 5*time.Minute, "give up when no frame arrives for this long")
	flag.Parse()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, resp, err := dialer.Dial(*url, nil)
	if err != nil {
		if resp != nil {
			fmt.Fprintf(os.Stderr, "feedprobe: dial %s: %v (HTTP %d)\n", *url, err, resp.StatusCode)
		} else {
			fmt.Fprintf(os.Stderr, "feedprobe: dial %s: %v\n", *url, err)
		}
		os.Exit(1)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", *url)

	// Ctrl+C closes the connection, which unblocks the read loop.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		conn.Close()
	}()

	frames := 0
	for *limit == 0 || frames < *limit {
		conn.SetReadDeadline(time.Now().Add(*idle))
		msgType, frame, err := conn.ReadMessage()
		if err != nil {
			fmt.Fprintf(os.Stderr, "feedprobe: read: %v\n", err)
			return
		}
		frames++
		if *raw {
			fmt.Printf("raw  %s\n", frame)
		}
		if msgType != websocket.TextMessage {
			fmt.Printf("??   non-text frame (type %d, %d bytes)\n", msgType, len(frame))
			continue
		}
		printFrame(frame)
	}
}

func printFrame(frame []byte) {
	now := time.Now()
	ev, err := event.Decode(frame, event.SourcePush, now)
	if err != nil {
		var unknown *event.UnknownTypeError
		if errors.As(err, &unknown) {
			if suggestion, ok := event.SuggestKind(unknown.Type); ok {
				fmt.Printf("drop %v (did you mean %q?)\n", err, suggestion)
				return
			}
		}
		fmt.Printf("drop %v\n", err)
		return
	}

	body, merr := json.Marshal(ev.Payload)
	if merr != nil {
		body = []byte(fmt.Sprintf("%+v", ev.Payload))
	}
	fmt.Printf("%s %-15s %s\n", now.Format("15:04:05"), ev.Kind(), body)
}
