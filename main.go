package main

import "github.com/navidrome/upnp/cmd"

func main() {
	cmd.Execute()
}
