package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/tcriess/lightspeed-chat-client/api"
	"github.com/tcriess/lightspeed-chat-client/config"
	"github.com/tcriess/lightspeed-chat-client/directory"
	"github.com/tcriess/lightspeed-chat-client/globals"
	"github.com/tcriess/lightspeed-chat-client/session"
	"github.com/tcriess/lightspeed-chat-client/types"
	"github.com/tcriess/lightspeed-chat-client/ws"
)

// A terminal client for lightspeed-chat style chat servers.

const updateChannelSize = 256

func main() {
	log.SetFlags(0)

	var configPath string
	var globalConfig *config.Config

	flagSet := config.GetFlagSet()
	var rootCmd = &cobra.Command{
		Use:           "lightspeed-chat-client",
		Short:         "Chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.ReadConfiguration(configPath, flagSet)
			if err != nil {
				return err
			}
			globals.AppLogger.SetLevel(hclog.LevelFromString(cfg.LogLevel))
			globalConfig = cfg
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")
	rootCmd.PersistentFlags().AddFlagSet(flagSet)

	var cmdChat = &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat",
		Long:  `chat connects to the server, joins the default room and reads commands and messages from STDIN. Type /help for the list of commands.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return runChat(ctx, globalConfig, os.Stdin, os.Stdout)
		},
	}
	var cmdRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show available rooms",
		Long:  `rooms prints the rooms available to the configured user as JSON.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(globalConfig)
			if err != nil {
				return err
			}
			rooms, err := directory.NewSynchronizer(client, globals.AppLogger).Refresh(cmd.Context(), globalConfig.Username)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, directory.NewSet(rooms...).Names())
		},
	}
	var cmdHistory = &cobra.Command{
		Use:   "history [room]",
		Short: "Show the message history of a room",
		Long:  `history prints the messages of the given room, one per line.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(globalConfig)
			if err != nil {
				return err
			}
			messages, err := client.FetchMessages(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, msg := range messages {
				fmt.Println(formatMessage(msg))
			}
			return nil
		},
	}
	var cmdRoom = &cobra.Command{
		Use:   "room [room]",
		Short: "Show room details",
		Long:  `room prints the metadata of the given room as JSON.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient(globalConfig)
			if err != nil {
				return err
			}
			info, err := client.FetchRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, info)
		},
	}
	var cmdDMRoom = &cobra.Command{
		Use:   "dm-room [user] [user]",
		Short: "Print the direct message room name of two users",
		Args:  cobra.ExactArgs(2),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(types.DMRoomName(args[0], args[1]))
		},
	}
	rootCmd.AddCommand(cmdChat, cmdRooms, cmdHistory, cmdRoom, cmdDMRoom)
	if err := rootCmd.Execute(); err != nil {
		globals.AppLogger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newAPIClient(cfg *config.Config) (*api.Client, error) {
	return api.NewClient(api.Options{
		BaseURL: cfg.ServerConfig.APIURL,
		Timeout: cfg.TimingConfig.QueryTimeout,
		Logger:  globals.AppLogger,
	})
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	client, err := newAPIClient(cfg)
	if err != nil {
		return err
	}
	manager := ws.NewManager(ws.Options{
		URL: cfg.ServerConfig.WebsocketURL,
		Identity: ws.Identity{
			Username: cfg.Username,
			IdToken:  cfg.ServerConfig.IdToken,
			Provider: cfg.ServerConfig.Provider,
		},
		Attempts: cfg.ReconnectConfig.Attempts,
		Delay:    cfg.ReconnectConfig.Delay,
		Logger:   globals.AppLogger,
	})

	opts, err := session.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	updates := make(chan session.Update, updateChannelSize)
	opts.Logger = globals.AppLogger
	opts.OnUpdate = func(u session.Update) {
		select {
		case updates <- u:
		default:
		}
	}
	s, err := session.New(opts, manager, client)
	if err != nil {
		return err
	}

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()
	defer s.Close()

	p := &printer{out: out, printed: make(map[string]struct{})}
	go p.loop(s, updates)

	fmt.Fprintf(out, "* logged in as %s, /help lists the commands\n", cfg.Username)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			c, err := parseCommand(line)
			if err != nil {
				if line != "" {
					fmt.Fprintf(out, "! %s\n", err)
				}
				continue
			}
			quit, err := execute(ctx, s, c, out)
			if err != nil {
				fmt.Fprintf(out, "! %s\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// printer renders session updates. It runs on its own goroutine because OnUpdate may not
// call back into the session.
type printer struct {
	out     io.Writer
	room    string
	printed map[string]struct{}
}

func (p *printer) loop(s *session.Session, updates <-chan session.Update) {
	for u := range updates {
		switch u.Kind {
		case session.UpdateNotify:
			fmt.Fprintf(p.out, "! new message in #%s from %s\n", u.Message.Room, u.Message.Sender)
			continue
		case session.UpdateError:
			fmt.Fprintf(p.out, "! server: %s\n", u.Text)
			continue
		case session.UpdateIndicator:
			if u.Room != "" {
				fmt.Fprintf(p.out, "* requesting access to #%s...\n", u.Room)
			}
			continue
		}
		snap, err := s.Snapshot()
		if err != nil {
			return
		}
		p.render(u, snap)
	}
}

func (p *printer) render(u session.Update, snap session.Snapshot) {
	switch u.Kind {
	case session.UpdateConnection:
		fmt.Fprintf(p.out, "* %s\n", snap.Connection)
	case session.UpdateRoom:
		if snap.CurrentRoom != p.room {
			p.room = snap.CurrentRoom
			fmt.Fprintf(p.out, "* now in #%s\n", snap.CurrentRoom)
		}
	case session.UpdateInvitations:
		for _, inv := range snap.Invitations {
			if inv.Status == types.InvitationPending {
				fmt.Fprintf(p.out, "* [%s] %s invited you to #%s, /accept or /decline\n", inv.Id, inv.Inviter, inv.Room)
			}
		}
	case session.UpdateRequests:
		for _, req := range snap.InboundRequests {
			fmt.Fprintf(p.out, "* [%s] %s wants to join #%s, /approve or /deny\n", req.Id, req.Requester, req.Room)
		}
	}
	for _, msg := range snap.Messages {
		if _, ok := p.printed[msg.Id]; ok {
			continue
		}
		p.printed[msg.Id] = struct{}{}
		fmt.Fprintln(p.out, formatMessage(msg))
	}
}
