package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/felixgeelhaar/solvetrack/internal/config"
)

// cmdInit prepares ~/.solvetrack for first use
func (c *cli) cmdInit() error {
	fmt.Fprintln(c.out, "Solvetrack - First-Time Setup")
	fmt.Fprintln(c.out, "=============================")
	fmt.Fprintln(c.out)

	fmt.Fprint(c.out, "Creating ~/.solvetrack directory structure... ")
	dir, err := config.EnsureSolvetrackDir()
	if err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	fmt.Fprintln(c.out, "✓")

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		fmt.Fprint(c.out, "Creating default configuration... ")
		if err := config.SaveLocalConfig(c.cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}
		fmt.Fprintln(c.out, "✓")
	} else {
		fmt.Fprintln(c.out, "Configuration already exists ✓")
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, "Next steps:")
	fmt.Fprintln(c.out, "  1. solvetrack start              # Start the daemon")
	fmt.Fprintln(c.out, "  2. solvetrack user create <name> # Register yourself")
	fmt.Fprintln(c.out, "  3. solvetrack seed <catalog>     # Import problems")
	return nil
}

// cmdConfig shows the effective local configuration
func (c *cli) cmdConfig() error {
	fmt.Fprintln(c.out, "Solvetrack Configuration")
	fmt.Fprintln(c.out)

	fmt.Fprintln(c.out, "Daemon:")
	fmt.Fprintf(c.out, "  bind: %s:%d\n", c.cfg.Daemon.Bind, c.cfg.Daemon.Port)
	fmt.Fprintf(c.out, "  log_level: %s\n", c.cfg.Daemon.LogLevel)

	fmt.Fprintln(c.out, "\nClient:")
	fmt.Fprintf(c.out, "  url: %s\n", c.cfg.BaseURL())
	fmt.Fprintf(c.out, "  user_id: %s\n", orNone(c.cfg.Client.UserID))
	rabbit := "(none)"
	if c.cfg.Client.RabbitMQURL != "" {
		rabbit = "configured"
	}
	fmt.Fprintf(c.out, "  rabbitmq: %s\n", rabbit)

	fmt.Fprintln(c.out, "\nCatalog:")
	fmt.Fprintf(c.out, "  path: %s\n", orNone(c.cfg.Catalog.Path))

	dir, _ := config.SolvetrackDir()
	fmt.Fprintf(c.out, "\nConfig path: %s\n", filepath.Join(dir, "config.yaml"))
	return nil
}

type userInfo struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	ProblemsSolved int       `json:"problemsSolved"`
	CurrentStreak  int       `json:"currentStreak"`
	LongestStreak  int       `json:"longestStreak"`
	CreatedAt      time.Time `json:"createdAt"`
}

// cmdUser handles user subcommands
func (c *cli) cmdUser(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: solvetrack user <create <name>|show [id]>")
	}

	switch args[0] {
	case "create":
		if len(args) < 2 {
			return fmt.Errorf("usage: solvetrack user create <name>")
		}
		return c.cmdUserCreate(args[1])
	case "show":
		id, err := c.userArg(args[1:])
		if err != nil {
			return err
		}
		var u userInfo
		if err := c.api.get("/v1/users/"+id, &u); err != nil {
			return err
		}
		c.printUser(&u)
		return nil
	default:
		return fmt.Errorf("unknown user command: %s", args[0])
	}
}

func (c *cli) cmdUserCreate(name string) error {
	var u userInfo
	if err := c.api.postJSON("/v1/users", map[string]string{"username": name}, &u); err != nil {
		return err
	}
	c.printUser(&u)

	if c.cfg.Client.UserID == "" {
		c.cfg.Client.UserID = u.ID
		if err := config.SaveLocalConfig(c.cfg); err != nil {
			return fmt.Errorf("save default user: %w", err)
		}
		fmt.Fprintln(c.out, "Saved as the default user")
	}
	return nil
}

func (c *cli) printUser(u *userInfo) {
	fmt.Fprintf(c.out, "User:     %s\n", u.Username)
	fmt.Fprintf(c.out, "ID:       %s\n", u.ID)
	fmt.Fprintf(c.out, "Solved:   %d\n", u.ProblemsSolved)
	fmt.Fprintf(c.out, "Streak:   %d (longest %d)\n", u.CurrentStreak, u.LongestStreak)
	fmt.Fprintf(c.out, "Joined:   %s\n", u.CreatedAt.Format("2006-01-02"))
}

// userArg returns the first argument or the configured default user
func (c *cli) userArg(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if c.cfg.Client.UserID != "" {
		return c.cfg.Client.UserID, nil
	}
	return "", fmt.Errorf("no user given and no default user configured (run 'solvetrack user create <name>' or set SOLVETRACK_USER)")
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
