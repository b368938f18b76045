// Package cmd wires the command-line interface: a root command with the
// global flags, a discover subcommand (control point), and a serve
// subcommand hosting a registered device type.
package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/consts"
	"github.com/navidrome/upnp/log"
	"github.com/navidrome/upnp/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:     consts.AppName,
	Short:   "UPnP 1.0 device and control point runtime",
	Version: consts.Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		conf.Load()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().String("datafolder", "", "folder for device state and node id (default ~/.UPnP)")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("datafolder", rootCmd.PersistentFlags().Lookup("datafolder"))
}

// Execute runs the CLI. Exit codes: 0 on clean shutdown, 1 on CLI parse
// errors, 2 on startup validation errors.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrUnknownDeviceType) ||
			errors.Is(err, model.ErrUnknownServiceType) || errors.Is(err, model.ErrUnknownServiceID) {
			log.Error("Startup validation failed", err)
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// signalContext returns a context cancelled on INT or TERM, so shutdown
// can emit byebye before the process exits.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-c
		log.Info("Received signal, shutting down", "signal", sig.String())
		cancel()
	}()
	return ctx
}
