package conf

import (
	"os"
	"path/filepath"
	"time"

	"github.com/navidrome/upnp/consts"
	"github.com/navidrome/upnp/log"
	"github.com/spf13/viper"
)

type ssdpOptions struct {
	Address        string
	Port           int
	TTL            int
	NotifyInterval time.Duration
	MaxAge         int
	SearchTimeout  time.Duration
	// AnswerAll makes the search responder answer ssdp:all searches with
	// the full advertisement set instead of ignoring them.
	AnswerAll bool
}

type httpOptions struct {
	// Port 0 binds an ephemeral port.
	Port int
}

type configOptions struct {
	Debug      bool
	DataFolder string
	SSDP       ssdpOptions
	HTTP       httpOptions
}

// Server holds the active configuration. It is populated with defaults at
// init time and overwritten by Load.
var Server = &configOptions{}

func init() {
	setDefaults()
	_ = viper.Unmarshal(Server)
}

func setDefaults() {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	viper.SetDefault("debug", false)
	viper.SetDefault("datafolder", filepath.Join(home, consts.DefaultDataFolder))
	viper.SetDefault("ssdp.address", consts.SSDPMulticastAddress)
	viper.SetDefault("ssdp.port", consts.SSDPPort)
	viper.SetDefault("ssdp.ttl", 4)
	viper.SetDefault("ssdp.notifyinterval", 60*time.Second)
	viper.SetDefault("ssdp.maxage", 120)
	viper.SetDefault("ssdp.searchtimeout", 3*time.Second)
	viper.SetDefault("ssdp.answerall", false)
	viper.SetDefault("http.port", 0)
}

// Load resolves the configuration after the CLI has bound its flags.
func Load() {
	if err := viper.Unmarshal(Server); err != nil {
		log.Error("Error parsing config", err)
	}
	if Server.Debug {
		log.SetLevel(log.LevelDebug)
	}
	log.Debug("Configuration loaded", "dataFolder", Server.DataFolder, "ssdpAddress", Server.SSDP.Address)
}
