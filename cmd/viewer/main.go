package main

import (
	"board-lab/domain"
	"board-lab/infrastructure/http/client"
	"board-lab/runtime/workers"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

// Exit codes for the viewer application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the viewer-side environment variables.
type Config struct {
	ServerAddr        string        `envconfig:"BOARD_ADDR" default:"http://localhost:8080"`
	SessionID         string        `envconfig:"BOARD_SESSION" required:"true"`
	UserID            string        `envconfig:"BOARD_USER" required:"true"`
	DisplayName       string        `envconfig:"BOARD_NAME" required:"true"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"5s"`
	LogLevel          string        `envconfig:"LOG_LEVEL" default:"WARN"`
	Colours           bool          `envconfig:"BOARD_COLOURS" default:"true"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Viewer error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a session, keeps the participant present and prints the roster,
// the chat and the participant's notifications. Every line typed on stdin is
// posted to the chat; "/who" prints the roster, "/ack" acks notifications.
func run() (int, error) {
	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if !config.Colours {
		color.Disable()
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(log, config.ServerAddr, config.UserID)
	session, err := c.Join(ctx, config.SessionID, config.DisplayName, "")
	if err != nil {
		return exitRuntime, fmt.Errorf("join %s: %w", config.SessionID, err)
	}
	color.Green.Printf("Joined %s (host %s, %d elements on canvas)\n",
		session.ID, session.HostID, session.Canvas.Len())

	heartbeat := workers.NewHeartbeatWorker(log, c, config.SessionID, config.UserID, config.HeartbeatInterval)
	go func() { _ = heartbeat.Run(ctx) }()

	roster, err := client.Stream[[]domain.RosterEntry](ctx, c, config.SessionID, "roster")
	if err != nil {
		return exitRuntime, err
	}
	chat, err := client.Stream[domain.ChatMessage](ctx, c, config.SessionID, "chat")
	if err != nil {
		return exitRuntime, err
	}
	notifications, err := client.Stream[[]domain.Notification](ctx, c, config.SessionID, "notifications")
	if err != nil {
		return exitRuntime, err
	}

	lines := make(chan string)
	go scan(os.Stdin, lines)

	var latest []domain.RosterEntry
	for {
		select {
		case <-ctx.Done():
			_ = c.Leave(context.Background(), config.SessionID)
			return exitOK, nil
		case r, ok := <-roster:
			if !ok {
				color.Yellow.Println("Session ended")
				return exitOK, nil
			}
			latest = r
		case m, ok := <-chat:
			if !ok {
				chat = nil
				continue
			}
			printMessage(m, config.UserID)
		case queue, ok := <-notifications:
			if !ok {
				notifications = nil
				continue
			}
			if len(queue) > 0 {
				color.Magenta.Printf("%d pending mention(s), latest from %s\n", len(queue), queue[0].SenderName)
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			heartbeat.Touch()
			if err := handleLine(ctx, c, config, line, latest); err != nil {
				color.Red.Println(err)
			}
		}
	}
}

func handleLine(ctx context.Context, c *client.Client, config Config, line string, roster []domain.RosterEntry) error {
	switch strings.TrimSpace(line) {
	case "":
		return nil
	case "/who":
		printRoster(roster)
		return nil
	case "/ack":
		return c.AckAll(ctx, config.SessionID)
	case "/end":
		return c.End(ctx, config.SessionID)
	default:
		_, err := c.Chat(ctx, config.SessionID, config.DisplayName, line)
		return err
	}
}

func scan(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

func printMessage(m domain.ChatMessage, self string) {
	header := fmt.Sprintf("[%d %s] %s:", m.Sequence, m.Timestamp.Local().Format("15:04:05"), m.SenderName)
	if m.SenderID == self {
		header = color.Cyan.Render(header)
	} else {
		header = color.New(color.OpBold).Render(header)
	}
	fmt.Println(header, m.Content)
}

func printRoster(roster []domain.RosterEntry) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Name", "Status", "Host", "Last seen"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.AppendBulk(lo.Map(roster, func(e domain.RosterEntry, _ int) []string {
		return []string{
			e.DisplayName,
			string(e.Status),
			lo.Ternary(e.IsHost, "yes", ""),
			e.LastActiveAt.Local().Format("15:04:05"),
		}
	}))
	table.Render()
}
