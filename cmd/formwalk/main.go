/*
formwalk submits a multi-page web form through a headless browser on a
repeating timer.

Have a look at the README.md for more information.
*/
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/goodsign/monday"
	"github.com/jakopako/formwalk/internal/browser"
	"github.com/jakopako/formwalk/internal/config"
	"github.com/jakopako/formwalk/internal/form"
	"github.com/jakopako/formwalk/internal/log"
	"github.com/jakopako/formwalk/internal/schedule"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var version = "dev"

type VersionFlag string

func (v VersionFlag) Decode(_ *kong.DecodeContext) error { return nil }
func (v VersionFlag) IsBool() bool                       { return true }
func (v VersionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	fmt.Println(vars["version"])
	app.Exit(0)
	return nil
}

type cli struct {
	Version VersionFlag `short:"v" long:"version" help:"Print the version and exit."`
	Debug   bool        `short:"d" long:"debug" help:"Set log level to 'debug'."`

	Run    RunCmd    `cmd:"" default:"withargs" help:"Submit the form now and then on every interval until interrupted"`
	Once   OnceCmd   `cmd:"" help:"Submit the form once and exit"`
	Config ConfigCmd `cmd:"" help:"Print the effective configuration"`
}

// loadConfig reads the configuration and sets up logging. The log file is
// part of the configuration so the default logger is initialized here.
func loadConfig(path string) (*config.Config, error) {
	c, err := config.NewConfig(path)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return nil, err
	}
	log.InitializeDefaultLogger(&c.Log)
	return c, nil
}

func opener(c *config.Config) schedule.Opener {
	return func(ctx context.Context) (browser.Page, error) {
		return browser.Open(ctx, &c.Browser)
	}
}

func walker(c *config.Config, m *schedule.Metrics) schedule.Walk {
	return func(ctx context.Context, page browser.Page, address string, data map[string]string) error {
		return form.NewWalker(page, &c.Form, form.WithObserver(m)).Run(ctx, address, data)
	}
}

type RunCmd struct {
	Config  string `short:"c" default:"./config.yml" help:"The location of the configuration file." type:"path"`
	Summary bool   `short:"s" help:"Print a summary table of all cycles on shutdown."`
}

func (r *RunCmd) Run() error {
	c, err := loadConfig(r.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := schedule.NewMetrics(&c.Metrics)
	s := schedule.New(opener(c), walker(c, metrics),
		schedule.WithRecreateDelay(c.Schedule.RecreateDelay),
		schedule.WithLocale(monday.Locale(c.Locale)),
		schedule.WithMetrics(metrics),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// unblocks the watcher below when the scheduler returns on its own
		defer stop()
		return s.Start(gctx, c.Target.URL, c.Target.Data, c.Schedule.Interval())
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		s.Stop()
		return nil
	})
	err = g.Wait()

	if r.Summary {
		if perr := schedule.PrintSummary(os.Stdout, s.Stats()); perr != nil {
			slog.Error(fmt.Sprintf("%v", perr))
		}
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
	}
	return err
}

type OnceCmd struct {
	Config string `short:"c" default:"./config.yml" help:"The location of the configuration file." type:"path"`
	URL    string `short:"u" long:"url" help:"Submit this form instead of the configured one."`
}

func (o *OnceCmd) Run() error {
	c, err := loadConfig(o.Config)
	if err != nil {
		return err
	}
	if o.URL != "" {
		c.Target.URL = o.URL
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	page, err := browser.Open(ctx, &c.Browser)
	if err != nil {
		slog.Error(fmt.Sprintf("could not open browser session: %v", err))
		return err
	}
	defer page.Close()

	metrics := schedule.NewMetrics(&c.Metrics)
	err = walker(c, metrics)(ctx, page, c.Target.URL, c.Target.Data)
	metrics.ObserveCycle(err == nil)
	if perr := metrics.Push(ctx); perr != nil {
		slog.Warn(fmt.Sprintf("could not push metrics: %v", perr))
	}
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	slog.Info("form submitted successfully")
	return nil
}

type ConfigCmd struct {
	Config string `short:"c" default:"./config.yml" help:"The location of the configuration file." type:"path"`
}

func (cc *ConfigCmd) Run() error {
	c, err := config.NewConfig(cc.Config)
	if err != nil {
		slog.Error(fmt.Sprintf("%v", err))
		return err
	}
	yamlData, err := yaml.Marshal(c)
	if err != nil {
		slog.Error(fmt.Sprintf("error while marshalling. %v", err))
		return err
	}
	fmt.Print(string(yamlData))
	return nil
}

func getVersion() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if ok {
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			return buildInfo.Main.Version
		}
	}
	return version
}

func main() {
	cli := cli{
		Version: VersionFlag(getVersion()),
	}

	ctx := kong.Parse(&cli,
		kong.Name("formwalk"),
		kong.Description("Submit a multi-page web form on a schedule."),
		kong.Vars{
			"version": string(cli.Version),
		})

	log.Debug = cli.Debug
	log.InitializeDefaultLogger(nil)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
