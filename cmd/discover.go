package cmd

import (
	"fmt"
	"time"

	"github.com/navidrome/upnp/core/controlpoint"
	"github.com/navidrome/upnp/server/ssdp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var discoverCmd = &cobra.Command{
	Use:   "discover [target...]",
	Short: "Search the local network for UPnP devices",
	Long: `Search the local network for UPnP devices and print what answered.
Targets may be literal (urn:..., uuid:..., ssdp:...) or the shorthand
"root". No targets searches for everything (ssdp:all).`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().Duration("timeout", 3*time.Second, "how long to wait for responses")
	_ = viper.BindPFlag("ssdp.searchtimeout", discoverCmd.Flags().Lookup("timeout"))
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	var targets []ssdp.Target
	for _, arg := range args {
		if arg == "root" {
			targets = append(targets, ssdp.Root())
			continue
		}
		t, err := ssdp.Literal(arg)
		if err != nil {
			return err
		}
		targets = append(targets, t)
	}

	engine, err := ssdp.NewEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	cp := controlpoint.New(engine)
	defer cp.Stop()

	devices, err := cp.Discover(cmd.Context(), targets...)
	if err != nil {
		return err
	}

	for _, dev := range devices {
		printDevice(cmd, dev, "")
	}
	if len(devices) == 0 {
		cmd.Println("No devices found")
	}
	return nil
}

func printDevice(cmd *cobra.Command, dev *controlpoint.RemoteDevice, indent string) {
	cmd.Printf("%s%s (%s)\n", indent, dev.FriendlyName, dev.Type)
	cmd.Printf("%s  UDN:      %s\n", indent, dev.UDN)
	cmd.Printf("%s  Location: %s\n", indent, dev.Location)
	for _, svc := range dev.Services {
		line := fmt.Sprintf("%s  Service:  %s", indent, svc.Type)
		if svc.SCPD != nil && svc.SCPD.ActionList != nil {
			line += fmt.Sprintf(" (%d actions)", len(svc.SCPD.ActionList.Actions))
		}
		cmd.Println(line)
	}
	for _, sub := range dev.SubDevices {
		printDevice(cmd, sub, indent+"  ")
	}
}
