package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli"

	"taskschedd/internal/app"
	"taskschedd/internal/config"
	"taskschedd/internal/storage"
	logx "taskschedd/pkg/logx"
)

var (
	historyTask  string
	historyLimit int
)

var historyFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "task, t",
		Usage:       "only show runs of this task id",
		Destination: &historyTask,
	},
	cli.IntFlag{
		Name:        "limit, l",
		Usage:       "maximum number of runs to show",
		Value:       20,
		Destination: &historyLimit,
	},
}

func history(_ *cli.Context) error {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	sc, enabled, err := app.StorageConfig(cfg)
	if err != nil {
		return err
	}
	if !enabled {
		return errors.New("run history is disabled (no storage section)")
	}
	st, err := storage.Open(sc, logx.NewConsole("warn"))
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runs, err := st.RecentRuns(ctx, historyTask, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	for _, r := range runs {
		status := "ok"
		if !r.OK {
			status = "FAILED: " + r.Error
		}
		fmt.Printf("%s  %-16s late %-8s took %-8s %s\n",
			r.Started.Local().Format("2006-01-02 15:04:05"),
			r.TaskID,
			r.Started.Sub(r.Due).Round(time.Millisecond),
			r.Duration.Round(time.Millisecond),
			status,
		)
	}
	return nil
}
