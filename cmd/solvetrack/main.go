package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/felixgeelhaar/solvetrack/internal/config"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "solvetrackd.pid"
	logFile = "solvetrackd.log"
)

// cli carries what every command needs: local config, the daemon client
// and where to print.
type cli struct {
	cfg *config.LocalConfig
	api *apiClient
	out io.Writer
}

func newCLI(out io.Writer) (*cli, error) {
	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cli{cfg: cfg, api: newAPIClient(cfg.BaseURL()), out: out}, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	case "version", "-v", "--version":
		fmt.Printf("solvetrack %s\n", Version)
		return
	}

	c, err := newCLI(os.Stdout)
	if err == nil {
		err = c.run(os.Args[1], os.Args[2:])
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func (c *cli) run(cmd string, args []string) error {
	switch cmd {
	case "init":
		return c.cmdInit()
	case "config":
		return c.cmdConfig()
	case "start":
		return c.cmdStart()
	case "stop":
		return c.cmdStop()
	case "status":
		return c.cmdStatus()
	case "logs":
		return c.cmdLogs()
	case "user":
		return c.cmdUser(args)
	case "seed":
		return c.cmdSeed(args)
	case "reindex":
		return c.cmdReindex()
	case "submit":
		return c.cmdSubmit(args)
	case "history":
		return c.cmdHistory(args)
	case "stats":
		return c.cmdStats(args)
	case "streak":
		return c.cmdStreak(args)
	case "progress":
		return c.cmdProgress(args)
	case "leaderboard":
		return c.cmdLeaderboard(args)
	case "mcp":
		return cmdMCP(c.cfg)
	default:
		printUsage(c.out)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `Solvetrack - Practice Submission Tracking

Usage:
  solvetrack <command> [arguments]

Setup Commands:
  init                    Create ~/.solvetrack and a default config
  config                  Show current configuration
  user create <name>      Register a user (saved as the default user)

Daemon Commands:
  start                   Start the solvetrack daemon
  stop                    Stop the solvetrack daemon
  status                  Show daemon status
  logs                    View daemon logs

Catalog Commands:
  seed <path>             Import problems from a YAML file or directory
  reindex                 Rebuild the leaderboard index

Submission Commands:
  submit <problem> [flags]  Record a judged submission
  history [user]          List recent submissions

Dashboard Commands:
  stats [user]            Show the statistics dashboard
  streak [user] [days]    Show the streak and activity calendar
  progress [user]         Show solved problems per difficulty
  leaderboard [limit]     Show the top users

Integration Commands:
  mcp                     Start MCP server on stdio

Other:
  help                    Show this help message
  version                 Show version information

Examples:
  solvetrack start
  solvetrack user create ada
  solvetrack seed problems.yaml
  solvetrack submit two-sum --status pass --passed 12 --total 12 --file main.go
  solvetrack streak 30`)
}

// renderProgressBar creates a visual progress bar
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", empty) + "]"
}
