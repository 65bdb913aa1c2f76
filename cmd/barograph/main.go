package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"

	"github.com/chrissnell/barograph/internal/app"
	"github.com/chrissnell/barograph/internal/control"
	"github.com/chrissnell/barograph/internal/log"
	"github.com/chrissnell/barograph/internal/rescale"
	"github.com/chrissnell/barograph/internal/snapshot"
	"github.com/chrissnell/barograph/internal/types"
	"github.com/chrissnell/barograph/pkg/config"
)

const version = "1.0-" + runtime.GOOS + "/" + runtime.GOARCH

var (
	cfgFile string
	debug   bool
	button  bool
)

func main() {
	a := cli.NewApp()
	a.Name = "barograph"
	a.Version = version
	a.Usage = "battery-powered barograph core"
	a.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "config, c",
			Usage:       "path to the YAML configuration file",
			EnvVar:      "BAROGRAPH_CONFIG",
			Value:       "barograph.yaml",
			Destination: &cfgFile,
		},
		cli.BoolFlag{
			Name:        "debug",
			Usage:       "turn on debugging output",
			Destination: &debug,
		},
	}
	a.Before = func(*cli.Context) error {
		return log.Init(debug)
	}
	a.After = func(*cli.Context) error {
		log.Sync()
		return nil
	}
	a.Commands = []cli.Command{
		{
			Name:   "run",
			Usage:  "run wake/sleep cycles until interrupted",
			Action: run,
		},
		{
			Name:   "cycle",
			Usage:  "run a single wake cycle and print the decision",
			Action: cycleOnce,
			Flags: []cli.Flag{
				cli.BoolFlag{
					Name:        "button, b",
					Usage:       "treat the wake as a configuration button press",
					Destination: &button,
				},
			},
		},
		{
			Name:   "status",
			Usage:  "print the current snapshot as JSON",
			Action: status,
		},
		{
			Name:   "reset",
			Usage:  "discard the retained state so the next start is a cold start",
			Action: reset,
		},
		{
			Name:      "rescale",
			Usage:     "re-grid the timeline",
			ArgsUsage: "quarter|half|double|quadruple",
			Action:    rescaleTimeline,
		},
		{
			Name:      "set",
			Usage:     "apply a configuration command offline",
			ArgsUsage: "invert|correction|correction-value|time-range|graphics <value>",
			Action:    set,
		},
	}

	if err := a.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		os.Exit(1)
	}
}

// defaultingProvider runs on built-in defaults when the config file does
// not exist.
type defaultingProvider struct {
	*config.YAMLProvider
	filename string
}

func (p defaultingProvider) LoadConfig() (*config.ConfigData, error) {
	cfg, err := p.YAMLProvider.LoadConfig()
	if errors.Is(err, os.ErrNotExist) {
		log.Warnf("config file %s not found, using defaults", p.filename)
		return config.Defaults(), nil
	}
	return cfg, err
}

func provider() config.ConfigProvider {
	filename, _ := filepath.Abs(cfgFile)
	return defaultingProvider{YAMLProvider: config.NewYAMLProvider(filename), filename: filename}
}

// openDevice loads the configuration and opens the device stores.
func openDevice() (*app.Device, error) {
	cfg, err := provider().LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error reading config file. Did you pass the -config flag? Run with -h for help: %w", err)
	}
	return app.Open(cfg, afero.NewOsFs(), prometheus.NewRegistry(), log.GetSugaredLogger())
}

func run(*cli.Context) error {
	return app.New(provider(), log.GetSugaredLogger()).Run(context.Background())
}

func cycleOnce(*cli.Context) error {
	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	st, rep, err := dev.Restore(time.Now())
	if err != nil {
		return err
	}
	cause := types.CauseTimer
	switch {
	case button:
		cause = types.CauseExt0
	case rep.ColdStart:
		cause = types.CauseUndefined
	}

	out, err := dev.Runner.Run(context.Background(), st, cause)
	if err != nil {
		return err
	}
	fmt.Printf("cycle %s: reason=%s sampled=%t sleep=%s\n", out.CycleID, out.Reason, out.Sampled, out.Decision.Duration())
	if out.Decision.ExceedsCeiling {
		fmt.Printf("sleep exceeds the safety ceiling (clamped=%t)\n", out.Decision.Clamped)
	}
	return errors.Join(out.RetainedErr, out.DurableErr)
}

func status(*cli.Context) error {
	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	now := time.Now()
	st, _, err := dev.Restore(now)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot.Take(st, now))
}

func reset(*cli.Context) error {
	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()
	return dev.Reset()
}

func rescaleTimeline(ctx *cli.Context) error {
	tr, err := rescale.ParseTransform(ctx.Args().First())
	if err != nil {
		return err
	}
	return applyOffline(control.Rescale(tr))
}

func set(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return cli.ShowCommandHelp(ctx, ctx.Command.Name)
	}
	c, err := control.Parse(ctx.Args().Get(0), ctx.Args().Get(1))
	if err != nil {
		return err
	}
	return applyOffline(c)
}

// applyOffline applies one command to the restored state and writes both
// persistence tiers, as a configuration session would.
func applyOffline(c control.Command) error {
	dev, err := openDevice()
	if err != nil {
		return err
	}
	defer dev.Close()

	st, _, err := dev.Restore(time.Now())
	if err != nil {
		return err
	}
	if _, err := dev.Handler.Apply(st, c); err != nil {
		return err
	}
	if err := dev.Checkpoint(st); err != nil {
		return err
	}
	fmt.Printf("applied %s, interval now %d s\n", c, st.Timeline.Interval())
	return nil
}
