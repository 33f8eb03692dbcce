package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"main/internal/control"
	"main/internal/event"
	"main/pkg/uds"
)

// sessionctl sends one command to a running sessiond and optionally keeps
// the connection open to print the events it triggers.
func main() {
	socketPath := flag.String("socket", "/tmp/sessiond.sock", "Control socket path")
	op := flag.String("op", "", "Command op: requestLogin, cancelLogin, restore, getChannels, subscribeChannel, unsubscribeChannel, disconnect")
	user := flag.String("user", "", "User id")
	identity := flag.String("identity", "", "Provider identity for requestLogin")
	channel := flag.String("channel", "", "Channel id for subscribe/unsubscribe")
	title := flag.String("title", "", "Channel title for subscribeChannel")
	limit := flag.Int("limit", 0, "getChannels result cap, 0 uses the daemon default")
	wait := flag.Duration("wait", 3*time.Second, "How long to stream events after the ack, 0 exits immediately")
	flag.Parse()

	cmd := control.Command{
		Op:        control.Op(*op),
		UserID:    *user,
		Identity:  *identity,
		ChannelID: *channel,
		Title:     *title,
		Limit:     *limit,
	}
	if err := cmd.Validate(); err != nil {
		log.Fatalf("invalid command: %v", err)
	}

	client, err := uds.NewClient(*socketPath)
	if err != nil {
		log.Fatalf("control socket: %v", err)
	}
	dialCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	conn, err := client.DialContext(dialCtx)
	cancel()
	if err != nil {
		log.Fatalf("dial %s: %v", *socketPath, err)
	}
	defer conn.Close()

	frame, err := json.Marshal(cmd)
	if err != nil {
		log.Fatalf("encode command: %v", err)
	}
	if err := uds.WriteFrame(conn, frame); err != nil {
		log.Fatalf("send command: %v", err)
	}

	if *wait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(*wait))
	}
	reader := uds.NewFrameReader(conn)

	acked := false
	for {
		raw, err := reader.Read()
		if err != nil {
			if !acked {
				log.Fatalf("read ack: %v", err)
			}
			return
		}

		// Broadcast events share the connection with the ack, so the
		// first frames may be events for other commands.
		var ack control.Ack
		if !acked && json.Unmarshal(raw, &ack) == nil && (ack.OK || ack.Error != "") {
			if !ack.OK {
				log.Fatalf("command rejected: %s", ack.Error)
			}
			acked = true
			fmt.Println("ok")
			if *wait <= 0 {
				return
			}
			continue
		}

		var e event.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		out, err := json.Marshal(e)
		if err != nil {
			continue
		}
		fmt.Fprintln(os.Stdout, string(out))
	}
}
