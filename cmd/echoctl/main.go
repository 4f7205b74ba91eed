package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/echo_remote/internal/adapters/config"
	"github.com/mikey-austin/echo_remote/internal/adapters/identity"
	"github.com/mikey-austin/echo_remote/internal/adapters/idgen"
	"github.com/mikey-austin/echo_remote/internal/adapters/output"
	"github.com/mikey-austin/echo_remote/internal/adapters/remotectl"
	"github.com/mikey-austin/echo_remote/internal/adapters/settings"
	"github.com/mikey-austin/echo_remote/internal/connection"
	"github.com/mikey-austin/echo_remote/internal/core"
)

const (
	defaultTimeout         = 10 * time.Second
	defaultDiscoveryWindow = 2 * time.Second
)

type app struct {
	service core.Service
	printer output.Printer
	quiet   bool
	json    bool
	timeout time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(core.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "echoctl",
		Short:        "Echo remote control CLI",
		SilenceUsage: true,
	}

	var (
		name     string
		deviceID string
		timeout  time.Duration
		window   time.Duration
		quiet    bool
		jsonOut  bool
		verbose  bool
	)

	root.PersistentFlags().StringVarP(&name, "name", "n", "", "controller name shown to players")
	root.PersistentFlags().StringVar(&deviceID, "device-id", "", "override the controller device id")
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 0, "command timeout")
	root.PersistentFlags().DurationVar(&window, "discovery-window", 0, "how long to browse for players")
	root.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	root.PersistentFlags().BoolVarP(&jsonOut, "json", "j", false, "output json")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return core.WrapError(core.ExitUsage, "load config", err)
		}

		log := zap.NewNop()
		if verbose {
			log, err = newVerboseLogger()
			if err != nil {
				return err
			}
		}

		id, err := controllerID(deviceID, cfg.DeviceID)
		if err != nil {
			return err
		}
		if timeout <= 0 {
			timeout = cfg.Timeout(defaultTimeout)
		}
		if window <= 0 {
			window = cfg.DiscoveryWindow(defaultDiscoveryWindow)
		}

		coreCfg := core.Config{
			Name:       defaultName(name, cfg.Name),
			DeviceID:   id,
			Extensions: cfg.Extensions,
			Aliases:    cfg.Aliases,
			Defaults:   core.Defaults{Player: cfg.Defaults.Player},
			Settle:     cfg.Settle(),
		}
		service := core.Service{
			Finder: remotectl.NewFinder(log, window),
			Connector: &remotectl.Connector{
				Log: log,
				Options: connection.ControllerOptions{
					DeviceName: coreCfg.Name,
					DeviceID:   coreCfg.DeviceID,
					Extensions: coreCfg.Extensions,
					Client:     remotectl.DefaultClientOptions(),
				},
			},
			Config: coreCfg,
			Log:    log,
		}

		var printer output.Printer
		if jsonOut {
			printer = output.JSONPrinter{}
		} else {
			printer = output.HumanPrinter{}
		}

		cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, &app{
			service: service,
			printer: printer,
			quiet:   quiet,
			json:    jsonOut,
			timeout: timeout,
		}))
		return nil
	}

	root.AddCommand(lsCommand())
	root.AddCommand(statusCommand())
	root.AddCommand(watchCommand())
	root.AddCommand(playCommand())
	root.AddCommand(pauseCommand())
	root.AddCommand(toggleCommand())
	root.AddCommand(seekCommand())
	root.AddCommand(nextCommand())
	root.AddCommand(prevCommand())
	root.AddCommand(shuffleCommand())
	root.AddCommand(repeatCommand())
	root.AddCommand(volumeCommand())
	root.AddCommand(likeCommand())
	root.AddCommand(queueCommand())

	return root
}

type appKey struct{}

func fromContext(cmd *cobra.Command) *app {
	val := cmd.Context().Value(appKey{})
	if val == nil {
		return nil
	}
	return val.(*app)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// controllerID returns the persisted controller id unless overridden.
func controllerID(flagVal string, cfgVal string) (string, error) {
	override := flagVal
	if override == "" {
		override = cfgVal
	}
	if override != "" {
		return override, nil
	}
	path, err := config.StatePath()
	if err != nil {
		return "", core.WrapError(core.ExitRuntime, "resolve state path", err)
	}
	id, err := identity.DeviceID(settings.NewFileStore(path), idgen.Generator{}, "")
	if err != nil {
		return "", core.WrapError(core.ExitRuntime, "controller device id", err)
	}
	return id, nil
}

func defaultName(flagVal string, cfgVal string) string {
	if flagVal != "" {
		return flagVal
	}
	if cfgVal != "" {
		return cfgVal
	}
	usr, _ := user.Current()
	host, _ := os.Hostname()
	if usr != nil && host != "" {
		return fmt.Sprintf("%s@%s", usr.Username, host)
	}
	if host != "" {
		return host
	}
	return "echoctl"
}

func newVerboseLogger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return log.With(zap.String("app", "echoctl")), nil
}

// selectorArg returns the optional leading player selector.
func selectorArg(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return ""
}

// splitValueArgs splits "[player] <value>" into selector and value.
func splitValueArgs(args []string) (string, string) {
	switch len(args) {
	case 0:
		return "", ""
	case 1:
		return "", args[0]
	default:
		return args[0], args[1]
	}
}

// printResult prints result unless the caller asked for quiet output.
func (a *app) printResult(result core.StatusResult) error {
	if a.quiet && !a.json {
		return nil
	}
	return a.printer.Print(result)
}

// run executes build against the selected player.
func (a *app) run(selector string, build core.CommandFunc) error {
	ctx, cancel := withTimeout(context.Background(), a.timeout)
	defer cancel()
	result, err := a.service.Command(ctx, selector, build)
	if err != nil {
		return err
	}
	return a.printResult(result)
}
