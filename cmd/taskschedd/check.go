package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli"

	"taskschedd/internal/config"
	"taskschedd/internal/task/schedule"
)

var previewCount int

var checkFlags = []cli.Flag{
	cli.IntFlag{
		Name:        "next, n",
		Usage:       "number of upcoming runs to show per task",
		Value:       3,
		Destination: &previewCount,
	},
}

func check(_ *cli.Context) error {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	now := time.Now()
	fmt.Printf("%s: ok (%d tasks, tolerance %s)\n", cfgPath, len(cfg.Tasks), cfg.Dispatcher.EffectiveTolerance())
	for _, tc := range cfg.Tasks {
		ps, err := schedule.Parse(tc.Schedule)
		if err != nil {
			return err
		}
		state := ""
		if tc.Disabled {
			state = " (disabled)"
		}
		fmt.Printf("  %-16s %-8s %-16q next: %s%s\n", tc.ID, ps.Kind, tc.Schedule, ps.Preview(now, previewCount), state)
	}
	return nil
}
