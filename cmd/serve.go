package cmd

import (
	"github.com/navidrome/upnp/conf"
	"github.com/navidrome/upnp/model"
	"github.com/navidrome/upnp/persistence"
	"github.com/navidrome/upnp/server/device"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve <device-type> <friendly-name>",
	Short: "Host a registered device type on the local network",
	Long: `Host a device of a registered type. The device keeps its UUID across
restarts through the state folder. Terminate with INT or TERM for a
clean shutdown with byebye notifications.`,
	Args: cobra.ExactArgs(2),
	RunE: runServe,
}

var serveManufacturer, serveModelName string

func init() {
	serveCmd.Flags().StringVar(&serveManufacturer, "manufacturer", "", "manufacturer string (required unless the type provides one)")
	serveCmd.Flags().StringVar(&serveModelName, "model-name", "", "model name string (required unless the type provides one)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	store := persistence.NewDeviceStore(conf.Server.DataFolder)
	dev, err := model.Create(store, args[0], args[1], func(d *model.Device) {
		if serveManufacturer != "" {
			d.Manufacturer = serveManufacturer
		}
		if serveModelName != "" {
			d.ModelName = serveModelName
		}
	})
	if err != nil {
		return err
	}

	host, err := device.NewHost(dev)
	if err != nil {
		return err
	}
	return host.Run(signalContext())
}
