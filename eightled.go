package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"gregoryjjb/eightled/gpio"
	"gregoryjjb/eightled/modes"
)

func init() {
	InitializeLogger()
}

// Populated by ldflags (ugh)
var (
	version            string
	buildUnixTimestamp string
	commitHash         string
)

type BuildInfo struct {
	Version    string    `json:"version"`
	BuildTime  time.Time `json:"build_time"`
	CommitHash string    `json:"commit_hash"`
}

func getBuildInfo() BuildInfo {
	ts, _ := strconv.ParseInt(buildUnixTimestamp, 10, 64)
	return BuildInfo{
		Version:    version,
		BuildTime:  time.Unix(ts, 0),
		CommitHash: commitHash,
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &Flags{}

	menu := newMenuCmd(flags)
	root := &cobra.Command{
		Use:          "eightled",
		Short:        "Drive a row of LEDs on the Raspberry Pi GPIO header",
		SilenceUsage: true,
		RunE:         menu.RunE,
	}

	addGlobalFlags(root.PersistentFlags(), flags)
	root.AddCommand(
		menu,
		newRunCmd(flags),
		newServeCmd(flags),
		newVersionCmd(),
		newSystemdCmd(),
	)
	return root
}

func addGlobalFlags(pf *pflag.FlagSet, flags *Flags) {
	pf.StringVarP(&flags.ConfigPath, "config", "c", "", "Path to "+ConfigFileName)
	pf.BoolVar(&flags.DryRun, "dry-run", false, "Use the simulated gpio backend")
	pf.StringVar(&flags.Backend, "backend", "", "GPIO backend: rpio, cdev or simulated")
	pf.StringVar(&flags.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
}

// setup loads the config, applies the log level and opens the gpio
// backend. The caller owns the returned port.
func setup(flags *Flags) (*Config, gpio.Port, error) {
	config, err := NewConfig(newLedOSFS(), *flags, os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	if err := SetLogLevel(config.LogLevel()); err != nil {
		return nil, nil, err
	}
	if config.Path() != "" {
		log.Debug().Str("path", config.Path()).Msg("Loaded config")
	}

	port, err := gpio.Open(config.Backend(), config.GPIOOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("gpio initialization failed: %w", err)
	}
	return config, port, nil
}

func closePort(port gpio.Port) {
	if err := port.Close(); err != nil {
		log.Err(err).Msg("Failed to release gpio")
	}
}

func engineOptions(config *Config) []modes.Option {
	return []modes.Option{
		modes.WithPwmPin(config.PwmPin()),
		modes.WithBlinkRepeat(config.BlinkRepeat()),
		modes.WithOutro(config.FlowingOutro()),
	}
}

// foreground runs fn with an engine that stops on SIGINT or SIGTERM.
func foreground(flags *Flags, fn func(*Config, *modes.Engine) error) error {
	config, port, err := setup(flags)
	if err != nil {
		log.Err(err).Msg("Initialization failed")
		return err
	}
	defer closePort(port)

	interrupts := modes.NewSignalInterrupts()
	defer interrupts.Close()

	engine := modes.New(port, append(engineOptions(config), modes.WithInterrupts(interrupts))...)
	if err := fn(config, engine); err != nil {
		log.Err(err).Msg("Pattern failed")
		return err
	}
	return nil
}

func newMenuCmd(flags *Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "menu",
		Short: "Pick a pattern interactively (the default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return foreground(flags, func(config *Config, engine *modes.Engine) error {
				menu := NewMenu(engine, config, cmd.InOrStdin(), cmd.OutOrStdout())
				return menu.Run(modes.NewToken())
			})
		},
	}
}

func newRunCmd(flags *Flags) *cobra.Command {
	var delayMs, repeat int

	cmd := &cobra.Command{
		Use:       "run <pattern>",
		Short:     "Run one pattern until interrupted",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"binary", "flowing", "breathing", "blink"},
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern, err := modes.ParsePattern(args[0])
			if err != nil {
				return err
			}
			return foreground(flags, func(config *Config, engine *modes.Engine) error {
				delays := config.Delay()
				delay := delays.DefaultDelay()
				if delayMs != 0 {
					var ok bool
					if delay, ok = delays.Clamp(delayMs); !ok {
						log.Warn().
							Int("requested_ms", delayMs).
							Int("min_ms", delays.Min).
							Int("max_ms", delays.Max).
							Msg("Delay value out of bounds, using default")
					}
				}

				log.Info().Str("pattern", string(pattern)).Dur("delay", delay).Msg("Running pattern")
				return engine.Run(modes.NewToken(), modes.Request{
					Pattern: pattern,
					Pins:    config.Pinout(),
					Delay:   delay,
					Repeat:  repeat,
				})
			})
		},
	}

	cmd.Flags().IntVarP(&delayMs, "delay", "d", 0, "Step delay in milliseconds (0 uses the configured default)")
	cmd.Flags().IntVarP(&repeat, "repeat", "r", 0, "Blink count for the blink pattern (0 uses blink_repeat)")
	return cmd
}

func newServeCmd(flags *Flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			buildInfo := getBuildInfo()
			log.Info().
				Str("version", buildInfo.Version).
				Str("build_timestamp", buildInfo.BuildTime.Format(time.RFC3339)).
				Str("commit_hash", buildInfo.CommitHash).
				Msg("Initializing eightled")

			config, port, err := setup(flags)
			if err != nil {
				log.Err(err).Msg("Initialization failed")
				return err
			}
			defer closePort(port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := NewRunner(ctx, config, port)
			defer runner.Stop()

			if config.MQTT().Broker != "" {
				bridge, err := StartMQTT(ctx, config, runner)
				if err != nil {
					log.Err(err).Msg("MQTT unavailable, continuing without it")
				} else {
					defer bridge.Close()
				}
			}

			if err := StartServer(ctx, config, buildInfo, runner); err != nil {
				log.Err(err).Msg("Server closed with error")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.Host, "host", "", "Listen host")
	cmd.Flags().StringVar(&flags.Port, "port", "", "Listen port")
	cmd.Flags().BoolVar(&NoEmbed, "no-embed", false, "Read www/index.html from disk on every request")
	cmd.Flags().MarkHidden("no-embed")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := getBuildInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "eightled version:", info.Version)
			fmt.Fprintln(out, "Built on:", info.BuildTime)
			fmt.Fprintln(out, "Commit hash:", info.CommitHash)
		},
	}
}

func newSystemdCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "systemd",
		Short: "Print systemd service file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := os.Executable()
			if err != nil {
				return err
			}
			return SystemdServiceFile(cmd.OutOrStdout(), ServiceParams{
				BinaryPath: path,
				User:       user,
			})
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "pi", "User the service runs as")
	return cmd
}
