package cli

import (
	"context"
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"cofe/internal/backend"
	"cofe/internal/config"
	"cofe/internal/gateway"
	"cofe/internal/logging"
	"cofe/internal/node"
	"cofe/internal/paths"
	"cofe/internal/system"
	"cofe/internal/ui"
	"cofe/internal/version"
	"cofe/internal/wire"
)

type globals struct {
	configPath string
	home       string
	cfg        config.Config
}

func Run(app string, args []string) int {
	logger := logging.New()

	fs := flag.NewFlagSet(app, flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	configPath := fs.String("config", "", "path to config file")
	homePath := fs.String("home", "", "cofe home directory")
	address := fs.String("gateway", "", "gateway address (overrides gateway.address)")
	transport := fs.String("transport", "", "gateway transport tcp|unix|ws")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	remaining := fs.Args()
	if len(remaining) == 0 {
		if app != "cofe" {
			usage(app)
			return 2
		}
		remaining = []string{"start"}
	}

	if *homePath != "" {
		_ = os.Setenv(paths.EnvHome, *homePath)
	}
	home, err := paths.HomeDir()
	if err != nil {
		logger.Printf("home: %v", err)
		return 1
	}

	resolvedConfigPath := resolveConfigPath(home, *configPath)
	cfg, err := config.LoadOptional(resolvedConfigPath)
	if err != nil {
		logger.Printf("config error: %v", err)
		return 1
	}
	cfg, err = config.ApplyEnv(paths.EnvFile(home), cfg)
	if err != nil {
		logger.Printf("config error: %v", err)
		return 1
	}
	if *address != "" {
		cfg.Gateway.Address = *address
	}
	if *transport != "" {
		cfg.Gateway.Transport = *transport
	}
	g := globals{configPath: resolvedConfigPath, home: home, cfg: cfg}

	cmd := remaining[0]
	switch cmd {
	case "start":
		return runStart(logger, g)
	case "init":
		return runInit(logger, g, remaining[1:])
	case "node":
		return runNode(logger, g, remaining[1:])
	case "status":
		return runStatus(logger, g)
	case "doctor":
		fmt.Print(system.FormatDoctor(system.RunDoctor(context.Background(), g.cfg, g.home)))
		return 0
	case "peers":
		return runPeers(logger, g, remaining[1:])
	case "add-peer":
		return runAddPeer(logger, g, remaining[1:])
	case "history":
		return runHistory(logger, g, remaining[1:])
	case "send":
		return runSend(logger, g, remaining[1:])
	case "version":
		fmt.Println(version.Version)
		return 0
	case "help":
		usage(app)
		return 0
	case "help-cofe":
		fmt.Print(helpCofe)
		return 0
	default:
		logger.Printf("unknown command: %s", cmd)
		usage(app)
		return 2
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// openNode opens the local node and seeds the peers listed in the config.
func openNode(ctx context.Context, logger *log.Logger, g globals) (*node.Node, error) {
	n, err := node.Open(ctx, node.Options{
		Dir:    paths.ResolveInHome(g.home, g.cfg.Node.DataDir),
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	for _, p := range g.cfg.Node.Peers {
		if err := n.AddPeer(node.PeerEntry{ID: p.ID, Inbox: p.Inbox}); err != nil {
			logger.Printf("peer %s: %v", p.ID, err)
		}
	}
	return n, nil
}

func dialGateway(ctx context.Context, g globals) (*gateway.Client, error) {
	return gateway.Dial(ctx, gateway.Options{
		Transport:   g.cfg.Gateway.Transport,
		Address:     g.cfg.Gateway.Address,
		CallTimeout: time.Duration(g.cfg.Gateway.CallTimeoutMS) * time.Millisecond,
	})
}

func runStart(stdout *log.Logger, g globals) int {
	logPath := paths.ResolveInHome(g.home, g.cfg.Log.File)
	logger, closer, err := logging.NewFile(logPath)
	if err != nil {
		stdout.Printf("start: %v", err)
		return 1
	}
	defer closer.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var gw backend.Gateway
	if g.cfg.Node.Embedded {
		n, err := openNode(ctx, logger, g)
		if err != nil {
			stdout.Printf("start: node: %v", err)
			return 1
		}
		defer n.Close()
		if l, err := wire.Listen(g.cfg.Node.Transport, g.cfg.Node.Listen); err != nil {
			logger.Printf("gateway listener disabled: %v", err)
		} else {
			go func() {
				if err := n.Serve(ctx, l); err != nil {
					logger.Printf("serve: %v", err)
				}
			}()
		}
		gw = n
	} else {
		c, err := dialGateway(ctx, g)
		if err != nil {
			stdout.Printf("start: %v", err)
			return 1
		}
		defer c.Close()
		gw = c
	}

	err = ui.Run(ctx, gw, ui.Options{
		Config:     g.cfg,
		Home:       g.home,
		ConfigPath: g.configPath,
		Logger:     logger,
	})
	if err != nil {
		stdout.Printf("tui error: %v", err)
		return 1
	}
	return 0
}

func runInit(logger *log.Logger, g globals, args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	force := fs.Bool("force", false, "overwrite existing config")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	for _, dir := range []string{
		g.home,
		paths.LogsDir(g.home),
		paths.ResolveInHome(g.home, g.cfg.Node.DataDir),
	} {
		if err := paths.EnsureDir(dir); err != nil {
			logger.Printf("init: %v", err)
			return 1
		}
	}

	if _, err := os.Stat(g.configPath); err == nil && !*force {
		logger.Printf("init: config already exists (%s). Use --force to overwrite", g.configPath)
		return 1
	}
	if err := config.Save(g.configPath, config.DefaultConfig()); err != nil {
		logger.Printf("init: %v", err)
		return 1
	}

	n, err := openNode(context.Background(), logger, g)
	if err != nil {
		logger.Printf("init: %v", err)
		return 1
	}
	self, _ := n.SelfPeerID(context.Background())
	inbox := n.InboxDir()
	if err := n.Close(); err != nil {
		logger.Printf("init: %v", err)
		return 1
	}

	logger.Printf("init: created %s", g.configPath)
	logger.Printf("init: peer id %s", self)
	logger.Printf("init: inbox %s", inbox)
	return 0
}

func runNode(logger *log.Logger, g globals, args []string) int {
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	listen := fs.String("listen", g.cfg.Node.Listen, "listen address")
	transport := fs.String("transport", g.cfg.Node.Transport, "tcp|unix|ws")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, cancel := signalContext()
	defer cancel()

	n, err := openNode(ctx, logger, g)
	if err != nil {
		logger.Printf("node: %v", err)
		return 1
	}
	defer n.Close()

	l, err := wire.Listen(*transport, *listen)
	if err != nil {
		logger.Printf("node: %v", err)
		return 1
	}
	self, _ := n.SelfPeerID(ctx)
	logger.Printf("node: %s listening on %s (%s), inbox %s", self, l.Addr(), *transport, n.InboxDir())
	if err := n.Serve(ctx, l); err != nil && !errors.Is(err, wire.ErrListenerClosed) {
		logger.Printf("node: %v", err)
		return 1
	}
	logger.Println("node: stopped")
	return 0
}

func runStatus(logger *log.Logger, g globals) int {
	ctx := context.Background()
	c, err := dialGateway(ctx, g)
	if err != nil {
		logger.Printf("status: %v (config: %s)", err, g.configPath)
		return 1
	}
	defer c.Close()

	self, err := c.SelfPeerID(ctx)
	if err != nil {
		logger.Printf("status: %v", err)
		return 1
	}
	first, err := c.FirstRun(ctx)
	if err != nil {
		logger.Printf("status: %v", err)
		return 1
	}
	network := "defaults (not saved)"
	if cfg, err := c.LoadConfig(ctx); err == nil {
		network = describeNetwork(cfg.Network)
	} else if !errors.Is(err, backend.ErrNotFound) {
		network = "error: " + err.Error()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Value"})
	table.AppendBulk([][]string{
		{"home", g.home},
		{"config", g.configPath},
		{"gateway", g.cfg.Gateway.Transport + "://" + g.cfg.Gateway.Address},
		{"peer id", self},
		{"first run", fmt.Sprint(first)},
		{"network", network},
	})
	table.Render()
	return 0
}

func describeNetwork(n backend.NetworkConfig) string {
	s := fmt.Sprintf("%s %s:%d", n.IPVersion, n.ListenIP, n.ListenPort)
	if n.BootstrapIP != nil || n.BootstrapPort != nil || n.BootstrapPeerID != nil {
		s += fmt.Sprintf(" bootstrap %s:%s/%s",
			lo.FromPtrOr(n.BootstrapIP, "-"),
			lo.Ternary(n.BootstrapPort == nil, "-", fmt.Sprint(lo.FromPtr(n.BootstrapPort))),
			lo.FromPtrOr(n.BootstrapPeerID, "-"))
	}
	return s
}

func runPeers(logger *log.Logger, g globals, args []string) int {
	query := strings.Join(args, " ")
	ctx := context.Background()
	c, err := dialGateway(ctx, g)
	if err != nil {
		logger.Printf("peers: %v", err)
		return 1
	}
	defer c.Close()

	peers, err := c.FindPeer(ctx, query)
	if err != nil {
		logger.Printf("peers: %v", err)
		return 1
	}
	if len(peers) == 0 {
		fmt.Println("no peers found")
		return 0
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Peer"})
	table.AppendBulk(lo.Map(peers, func(p string, i int) []string {
		return []string{fmt.Sprint(i + 1), p}
	}))
	table.Render()
	return 0
}

func runAddPeer(logger *log.Logger, g globals, args []string) int {
	fs := flag.NewFlagSet("add-peer", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	inbox := fs.String("inbox", "", "inbox directory of a node on this host")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) != 1 {
		fmt.Println("add-peer: usage: add-peer <peer-id> [--inbox dir]")
		return 2
	}

	cfg := g.cfg
	entry := config.PeerConfig{ID: rest[0], Inbox: *inbox}
	_, idx, found := lo.FindIndexOf(cfg.Node.Peers, func(p config.PeerConfig) bool { return p.ID == entry.ID })
	if found {
		cfg.Node.Peers[idx] = entry
	} else {
		cfg.Node.Peers = append(cfg.Node.Peers, entry)
	}
	if err := paths.EnsureDir(filepath.Dir(g.configPath)); err != nil {
		logger.Printf("add-peer: %v", err)
		return 1
	}
	if err := config.Save(g.configPath, cfg); err != nil {
		logger.Printf("add-peer: %v", err)
		return 1
	}
	logger.Printf("add-peer: %s saved to %s (applies on next node start)", entry.ID, g.configPath)
	return 0
}

func runHistory(logger *log.Logger, g globals, args []string) int {
	if len(args) != 1 {
		fmt.Println("history: usage: history <peer-id>")
		return 2
	}
	ctx := context.Background()
	c, err := dialGateway(ctx, g)
	if err != nil {
		logger.Printf("history: %v", err)
		return 1
	}
	defer c.Close()

	msgs, err := c.History(ctx, args[0])
	if err != nil {
		logger.Printf("history: %v", err)
		return 1
	}
	if len(msgs) == 0 {
		fmt.Println("no messages")
		return 0
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "From", "To", "Message"})
	table.SetAutoWrapText(true)
	table.AppendBulk(lo.Map(msgs, func(m backend.ChatMessage, _ int) []string {
		return []string{
			time.UnixMilli(m.Timestamp).Format("2006-01-02 15:04:05"),
			m.From,
			m.To,
			m.Content,
		}
	}))
	table.Render()
	return 0
}

func runSend(logger *log.Logger, g globals, args []string) int {
	if len(args) < 2 {
		fmt.Println("send: usage: send <peer-id> <text...>")
		return 2
	}
	peer, text := args[0], strings.Join(args[1:], " ")
	ctx := context.Background()
	c, err := dialGateway(ctx, g)
	if err != nil {
		logger.Printf("send: %v", err)
		return 1
	}
	defer c.Close()

	self, err := c.SelfPeerID(ctx)
	if err != nil {
		logger.Printf("send: %v", err)
		return 1
	}
	msg := backend.ChatMessage{
		ID:        uuid.NewString(),
		From:      self,
		To:        peer,
		Timestamp: time.Now().UnixMilli(),
		Content:   text,
	}
	if err := c.SendMessage(ctx, peer, msg); err != nil {
		logger.Printf("send: %v", err)
		return 1
	}
	logger.Printf("send: %s -> %s ok (%s)", self, peer, msg.ID)
	return 0
}

func usage(app string) {
	fmt.Printf("%s <command> [options]\n", app)
	fmt.Println("Global flags:")
	fmt.Println("  --config <path>      path to config file (default: <home>/config.yaml)")
	fmt.Println("  --home <path>        cofe home directory (default: ~/.cofe)")
	fmt.Println("  --gateway <addr>     gateway address")
	fmt.Println("  --transport <name>   gateway transport tcp|unix|ws")
	fmt.Println("Commands:")
	fmt.Println("  start                launch the chat TUI")
	fmt.Println("  init [--force]")
	fmt.Println("  node [--listen addr] [--transport tcp|unix|ws]")
	fmt.Println("  status")
	fmt.Println("  doctor")
	fmt.Println("  peers [query]")
	fmt.Println("  add-peer <peer-id> [--inbox dir]")
	fmt.Println("  history <peer-id>")
	fmt.Println("  send <peer-id> <text...>")
	fmt.Println("  version")
	fmt.Println("  help")
	fmt.Println("  help-cofe")
}

func resolveConfigPath(home, path string) string {
	if path != "" {
		return path
	}
	_ = paths.EnsureDir(home)
	return paths.ConfigPath(home)
}

//go:embed help_cofe.txt
var helpCofe string
