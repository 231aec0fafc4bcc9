// Command fifteenbot runs a Bitrix24 chat bot that plays the fifteen puzzle.
package main

import (
	"context"
	"log"

	"github.com/alecthomas/kong"

	"github.com/m3rciful/bitrixbot/cmd/fifteenbot/fifteen"
	"github.com/m3rciful/bitrixbot/core/bitrix"
	"github.com/m3rciful/bitrixbot/core/bootstrap"
	"github.com/m3rciful/bitrixbot/core/buildinfo"
	corecmd "github.com/m3rciful/bitrixbot/core/cmd"
	coreconfig "github.com/m3rciful/bitrixbot/core/config"
)

// CLI is the command line of fifteenbot.
type CLI struct {
	Config           string           `help:"Path to the YAML config file." env:"CONFIG_PATH" default:"config.yaml" type:"path"`
	SkipRegistration bool             `help:"Do not register commands and the webhook with the portal." name:"skip-registration"`
	Version          kong.VersionFlag `help:"Print version and exit."`
}

type configCarrier struct {
	cfg *coreconfig.Config
}

func (c configCarrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct {
	opts bitrix.RunOptions
}

func (a app) BitrixRunOptions() (bitrix.RunOptions, error) { return a.opts, nil }

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("fifteenbot"),
		kong.Description("Bitrix24 bot playing the fifteen puzzle."),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.String()},
	)

	err := corecmd.Run(corecmd.Options{
		ConfigPath: cli.Config,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := coreconfig.Load(path)
			if err != nil {
				return nil, err
			}
			return configCarrier{cfg: cfg}, nil
		},
		Bootstrap: func(carrier corecmd.ConfigCarrier) (corecmd.BotApp, error) {
			return bootstrapApp(context.Background(), carrier.CoreConfig(), cli.SkipRegistration)
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}

func bootstrapApp(ctx context.Context, cfg *coreconfig.Config, skipRegistration bool) (corecmd.BotApp, error) {
	res, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return nil, err
	}
	reg, err := bootstrap.Install(ctx, res, fifteen.Module(nil))
	if err != nil {
		return nil, err
	}
	opts := res.RunOptions(reg)
	opts.DisableCommandRegistration = skipRegistration
	opts.DisableWebhookRegistration = skipRegistration
	return app{opts: opts}, nil
}
