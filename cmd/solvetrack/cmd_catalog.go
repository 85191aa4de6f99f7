package main

import (
	"bytes"
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/solvetrack/internal/catalog"
)

// cmdSeed validates a catalog locally and imports it through the daemon
func (c *cli) cmdSeed(args []string) error {
	path := c.cfg.Catalog.Path
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("usage: solvetrack seed <file-or-directory>")
	}

	problems, err := catalog.Load(path)
	if err != nil {
		return err
	}

	file := catalog.File{Name: filepath.Base(path)}
	for _, p := range problems {
		file.Problems = append(file.Problems, catalog.ProblemEntry{
			Title:      p.Title,
			Difficulty: p.Difficulty.String(),
		})
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}

	var res catalog.Result
	if err := c.api.post("/v1/problems/import", "application/yaml", bytes.NewReader(data), &res); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Imported %d problems (%d already present)\n", res.Created, res.Skipped)
	return nil
}

// cmdReindex rebuilds the daemon's leaderboard index
func (c *cli) cmdReindex() error {
	var res struct {
		Indexed int `json:"indexed"`
	}
	if err := c.api.postJSON("/v1/leaderboard/reindex", nil, &res); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Indexed %d users\n", res.Indexed)
	return nil
}
