package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/michalvitousek/miot/internal/infrastructure/config"
	"github.com/michalvitousek/miot/internal/relay"
)

const usage = `Usage:
    miot-relay [-h] [-q] [-x] [-j <pin>] [-t <topic>] [-s 0|1|2]
               [-b <hostname|IP address>] [-p <port>] [-i <clientID>]
               [-c true|false] [-u <username>] [-z <password>]
               [-v true|false] [-r <CA file>] [-config <file>]

Flags:
`

// cliFlags holds the values of flags given on the command line.
type cliFlags struct {
	configPath string
	set        []config.Option
}

// options returns overlays for every flag that was given.
func (f *cliFlags) options() []config.Option {
	return f.set
}

// parseFlags parses the single-letter command-line flags.
// Only flags present on the command line override file and environment values.
func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	fl := &cliFlags{}
	fs := flag.NewFlagSet("miot-relay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	add := func(opt config.Option) { fl.set = append(fl.set, opt) }

	fs.StringVar(&fl.configPath, "config", "", "YAML configuration file (default $MIOT_CONFIG or "+defaultConfigPath+")")
	fs.Func("t", "subscribe to `topic`", func(v string) error {
		add(func(c *config.Config) { c.MQTT.Topic = v })
		return nil
	})
	fs.Func("s", "subscription `qos` 0, 1 or 2 (default 0)", func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		add(func(c *config.Config) { c.MQTT.QoS = n })
		return nil
	})
	fs.Func("b", "broker `host` (default m2m.eclipse.org)", func(v string) error {
		add(func(c *config.Config) { c.MQTT.Broker.Host = v })
		return nil
	})
	fs.Func("p", "broker `port` (default 1883)", func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		add(func(c *config.Config) { c.MQTT.Broker.Port = n })
		return nil
	})
	fs.Func("i", "client `id` (default miot.relay_<uuid>)", func(v string) error {
		add(func(c *config.Config) { c.MQTT.Broker.ClientID = v })
		return nil
	})
	fs.Func("c", "clean session `true|false`", func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		add(func(c *config.Config) { c.MQTT.CleanSession = b })
		return nil
	})
	fs.Func("u", "broker `username`", func(v string) error {
		add(func(c *config.Config) { c.MQTT.Auth.Username = v })
		return nil
	})
	fs.Func("z", "broker `password`", func(v string) error {
		add(func(c *config.Config) { c.MQTT.Auth.Password = v })
		return nil
	})
	fs.Func("v", "TLS enabled `true|false`", func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		add(func(c *config.Config) { c.MQTT.Broker.TLS = b })
		return nil
	})
	fs.Func("r", "CA certificate `file` used to verify the broker", func(v string) error {
		add(func(c *config.Config) { c.MQTT.Broker.CAFile = v })
		return nil
	})
	fs.Func("j", "relay `pin` (GPIO number or name)", func(v string) error {
		add(func(c *config.Config) { c.Relay.Pin = v })
		return nil
	})
	fs.BoolFunc("x", "drive real GPIO instead of the simulated relay", func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		if b {
			add(func(c *config.Config) { c.Relay.Mode = string(relay.ModeGPIO) })
		}
		return nil
	})
	fs.BoolFunc("q", "quiet mode, log warnings and errors only", func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		if b {
			add(func(c *config.Config) { c.Logging.Level = "warn" })
		}
		return nil
	})

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}
	if fs.NArg() > 0 {
		fs.Usage()
		return nil, fmt.Errorf("%w: unrecognised argument %q", config.ErrInvalidConfig, fs.Arg(0))
	}
	return fl, nil
}
