// cafectl is a command line client for the cafe director.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/clients/go/cafe"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("CAFE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	client := cafe.NewClient(baseURL, os.Getenv("CAFE_TOKEN"))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health(ctx)
		exitOnError(err)
		printJSON(resp)

	case "rooms":
		rooms, err := client.ListRooms(ctx)
		exitOnError(err)
		for _, r := range rooms {
			fmt.Printf("  %s  %s vs %s  turn=%s state=%s (%d turns)\n",
				r.ID, r.Agents[0], r.Agents[1], r.CurrentTurn, r.State, r.TurnCount)
		}

	case "create":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: cafectl create <agent_a> <agent_b> [room_id]")
			os.Exit(1)
		}
		var id string
		if len(os.Args) > 4 {
			id = os.Args[4]
		}
		room, err := client.CreateRoom(ctx, id, [2]string{os.Args[2], os.Args[3]})
		exitOnError(err)
		fmt.Printf("Created room: %s\n", room.ID)

	case "destroy", "kick", "read", "trades":
		if len(os.Args) < 3 {
			fmt.Fprintf(os.Stderr, "Usage: cafectl %s <room_id>\n", cmd)
			os.Exit(1)
		}
		roomCommand(ctx, client, cmd, os.Args[2])

	case "agent":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: cafectl agent <agent_id>")
			os.Exit(1)
		}
		agent, err := client.GetAgent(ctx, os.Args[2])
		exitOnError(err)
		printJSON(agent)

	case "pause":
		var d time.Duration
		if len(os.Args) > 2 {
			var err error
			d, err = time.ParseDuration(os.Args[2])
			exitOnError(err)
		}
		st, err := client.Pause(ctx, d)
		exitOnError(err)
		printJSON(st)

	case "resume":
		st, err := client.Resume(ctx)
		exitOnError(err)
		printJSON(st)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func roomCommand(ctx context.Context, client *cafe.Client, cmd, roomID string) {
	switch cmd {
	case "destroy":
		exitOnError(client.DestroyRoom(ctx, roomID))
		fmt.Println("Destroyed:", roomID)

	case "kick":
		exitOnError(client.KickRoom(ctx, roomID))
		fmt.Println("Kicked:", roomID)

	case "read":
		resp, err := client.GetMessages(ctx, roomID, 20, 0)
		exitOnError(err)
		for _, msg := range resp.Messages {
			ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
			fmt.Printf("[%s] %s: %s\n", ts, msg.Sender, msg.Text)
		}

	case "trades":
		trades, err := client.GetTrades(ctx, roomID)
		exitOnError(err)
		for _, tr := range trades {
			fmt.Printf("  %s  %s -> %s  %s %s for %s\n",
				tr.ExecutedAt.Format(time.RFC3339), tr.SellerID, tr.BuyerID, tr.Kind, tr.Token, tr.Price)
		}
	}
}

func usage() {
	fmt.Println(`cafectl - control a cafe director

Usage: cafectl <command> [options]

Commands:
  rooms                          List live rooms
  create <agent_a> <agent_b> [id] Pair two agents in a new room
  destroy <room>                 Stop a room
  kick <room>                    Run the next turn now
  read <room>                    Read recent messages
  trades <room>                  List settled trades
  agent <agent_id>               Show balance and holdings
  pause [duration]               Pause every room (e.g. 90s)
  resume                         Lift the global pause
  health                         Check server health

Environment:
  CAFE_URL      Server URL (default: http://localhost:8080)
  CAFE_TOKEN    Control token for write commands`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
