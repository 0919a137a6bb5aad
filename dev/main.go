package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
)

type step struct {
	name string
	run  func() error
}

func create(recreate bool) error {
	_, err := os.Stat("go.mod")
	if os.IsNotExist(err) {
		return fmt.Errorf("run the dev setup from the repository root (next to go.mod)")
	}
	if recreate {
		err = os.RemoveAll("dev/.state")
		if err != nil {
			return err
		}
	}

	for _, s := range []step{
		{name: "create database", run: CreateDatabase},
		{name: "write test config template", run: WriteTestConfigTemplate},
	} {
		err := s.run()
		if err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	PrintConfigLocations()
	return nil
}

func main() {
	recreate := flag.Bool("recreate", false, "wipe dev/.state before setting it up again")
	flag.Parse()

	err := create(*recreate)
	if err != nil {
		slog.Error("failed to create dev environment", "err", err)
		os.Exit(1)
	}
	slog.Info("dev environment ready")
}
