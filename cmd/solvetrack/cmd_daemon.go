package main

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/solvetrack/internal/config"
)

// cmdStart starts the daemon in the background
func (c *cli) cmdStart() error {
	if c.api.healthy() {
		fmt.Fprintln(c.out, "✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureSolvetrackDir()
	if err != nil {
		return fmt.Errorf("setup solvetrack directory: %w", err)
	}

	daemonPath, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(daemonPath)
	cmd.Dir = dir
	cmd.Env = c.daemonEnv()
	configureDaemonProcess(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Fprint(c.out, "Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if c.api.healthy() {
			fmt.Fprintln(c.out, " ✓")
			fmt.Fprintf(c.out, "Daemon running at %s\n", c.cfg.BaseURL())
			return nil
		}
		fmt.Fprint(c.out, ".")
	}

	fmt.Fprintln(c.out, " ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'solvetrack logs')")
}

// daemonEnv passes the local config's address and catalog to the daemon.
// Later entries win, so these override the inherited environment.
func (c *cli) daemonEnv() []string {
	env := append(os.Environ(),
		"PORT="+strconv.Itoa(c.cfg.Daemon.Port),
		"BIND="+c.cfg.Daemon.Bind,
	)
	if c.cfg.Daemon.LogLevel != "" {
		env = append(env, "LOG_LEVEL="+c.cfg.Daemon.LogLevel)
	}
	if c.cfg.Catalog.Path != "" {
		env = append(env, "CATALOG_PATH="+c.cfg.Catalog.Path)
	}
	if c.cfg.Client.RabbitMQURL != "" && os.Getenv("RABBITMQ_URL") == "" {
		env = append(env, "RABBITMQ_URL="+c.cfg.Client.RabbitMQURL)
	}
	return env
}

// cmdStop stops the daemon
func (c *cli) cmdStop() error {
	if !c.api.healthy() {
		fmt.Fprintln(c.out, "Daemon is not running")
		return nil
	}

	pid, err := readPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Fprint(c.out, "Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !c.api.healthy() {
			fmt.Fprintln(c.out, " ✓")
			return nil
		}
		fmt.Fprint(c.out, ".")
	}

	fmt.Fprintln(c.out, " ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

func readPID() (int, error) {
	dir, err := config.SolvetrackDir()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// cmdStatus shows daemon status
func (c *cli) cmdStatus() error {
	var status struct {
		Status           string `json:"status"`
		Timestamp        string `json:"timestamp"`
		Driver           string `json:"driver"`
		LeaderboardIndex bool   `json:"leaderboardIndex"`
		QueueConnected   *bool  `json:"queueConnected"`
	}
	if err := c.api.get("/v1/health", &status); err != nil {
		fmt.Fprintln(c.out, "Status: stopped")
		return nil
	}

	queue := "disabled"
	if status.QueueConnected != nil {
		queue = "disconnected"
		if *status.QueueConnected {
			queue = "connected"
		}
	}
	index := "disabled"
	if status.LeaderboardIndex {
		index = "redis"
	}

	fmt.Fprintf(c.out, "Status:      %s\n", status.Status)
	fmt.Fprintf(c.out, "Storage:     %s\n", status.Driver)
	fmt.Fprintf(c.out, "Leaderboard: %s\n", index)
	fmt.Fprintf(c.out, "Queue:       %s\n", queue)
	fmt.Fprintf(c.out, "Address:     %s\n", c.cfg.BaseURL())
	return nil
}

// cmdLogs prints the tail of the daemon log
func (c *cli) cmdLogs() error {
	dir, err := config.SolvetrackDir()
	if err != nil {
		return err
	}

	logPath := filepath.Join(dir, "logs", logFile)
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		fmt.Fprintln(c.out, "No log file found. Start the daemon first.")
		return nil
	}

	return tailFile(c, logPath, 4096)
}

// tailFile prints roughly the last n bytes of path, starting at a line boundary.
func tailFile(c *cli, path string, n int64) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	offset := max(info.Size()-n, 0)
	if _, err := file.Seek(offset, 0); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(c.out, scanner.Text())
	}
	return scanner.Err()
}

// findDaemonBinary locates the solvetrackd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("solvetrackd"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "solvetrackd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{
		"/usr/local/bin/solvetrackd",
		"./solvetrackd",
		"./cmd/solvetrackd/solvetrackd",
	} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("solvetrackd binary not found (build with 'go build ./cmd/solvetrackd')")
}
