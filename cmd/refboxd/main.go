package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mlourenco/refbox/internal/config"
	"github.com/mlourenco/refbox/internal/daemon"
	"github.com/mlourenco/refbox/internal/profile"
	"go.uber.org/fx"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg := config.LoadOrDefault(profile.ConfigPath())

	app := fx.New(
		daemon.Module(daemon.Params{ProfileName: profileName, Config: cfg}),
	)

	app.Run()
}
