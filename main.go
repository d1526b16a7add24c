/*
Streams every asset under a directory through the loader and keeps the
registry up to date while the files change.
*/
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/spaghettifunk/anima-loader/engine"
	"github.com/spaghettifunk/anima-loader/engine/core"
	"github.com/spaghettifunk/anima-loader/testbed"
)

var (
	cfgFile       string
	assetsDir     string
	workers       int
	watch         bool
	logLevel      string
	metricsListen string
)

var rootCmd = &cobra.Command{
	Use:   "anima-loader",
	Short: "Asynchronous resource loader for the anima engine",
	Long: `anima-loader loads every asset found under a directory on a pool of
worker goroutines, installs the results into the resource registry and,
with --watch, reloads assets as they change on disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "TOML configuration file")
	flags.StringVar(&assetsDir, "assets", "", "asset directory (overrides asset_base_path)")
	flags.IntVar(&workers, "workers", 0, "loader worker goroutines, 0 for CPU count - 1")
	flags.BoolVar(&watch, "watch", false, "reload assets when they change on disk")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&metricsListen, "metrics-listen", "", "serve prometheus metrics on this address")
}

func loadConfig(cmd *cobra.Command) (*engine.ApplicationConfig, error) {
	config := engine.DefaultApplicationConfig()
	if cfgFile != "" {
		c, err := engine.LoadApplicationConfig(cfgFile)
		if err != nil {
			return nil, err
		}
		config = c
	}

	flags := cmd.Flags()
	if flags.Changed("assets") {
		config.AssetBasePath = assetsDir
	}
	if flags.Changed("workers") {
		config.Loader.Workers = workers
	}
	if flags.Changed("watch") {
		config.WatchAssets = watch
	}
	if flags.Changed("log-level") {
		config.LogLevel = logLevel
	}
	if flags.Changed("metrics-listen") {
		config.Metrics.Enabled = metricsListen != ""
		config.Metrics.Listen = metricsListen
	}
	return config, config.Validate()
}

func run(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	tb := testbed.NewTestGame(config)

	e, err := engine.New(tb.Game)
	if err != nil {
		return err
	}

	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		return err
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer signal.Stop(sigCh)

	go func() {
		// capture sigterm and other system call here
		if _, ok := <-sigCh; ok {
			core.LogInfo("signal received, stopping.")
			e.Quit()
		}
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
