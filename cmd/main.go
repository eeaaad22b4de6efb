// Copyright 2024-2025 Logz.io
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/logzio/logzio-api-fetcher/internal/config"
	"github.com/logzio/logzio-api-fetcher/internal/logging"
	"github.com/logzio/logzio-api-fetcher/internal/manager"
	"github.com/logzio/logzio-api-fetcher/internal/status"
)

type CLI struct {
	Config string `validate:"omitempty,file"`
	Level  string `validate:"omitempty,oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

func main() {
	var cli CLI
	var params []string

	// init cobra command
	cmd := cobra.Command{
		Use:   "logzio-api-fetcher [test]",
		Short: "Fetch logs from external APIs and ship them to Logz.io",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 && args[0] != "test" {
				return fmt.Errorf("unknown argument %q", args[0])
			}
			// validate cli flags
			return validator.New().Struct(cli)
		},
		Run: func(cmd *cobra.Command, args []string) {
			testMode := len(args) == 1 && args[0] == "test"

			// listen for termination signals as early as possible
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer close(quit)

			// init viper
			v := viper.New()

			// override params from cli
			for _, param := range params {
				split := strings.SplitN(param, ":", 2)
				if len(split) == 2 {
					v.Set(split[0], split[1])
				}
			}

			// init config
			cfg, err := config.NewConfig(v, cli.Config)
			if err != nil {
				zlog.Fatal().Caller().Err(err).Send()
			}

			// configure logger; test mode forces debug so a dry run shows the
			// full request flow
			level := cli.Level
			if testMode {
				level = "debug"
			} else if level == "" {
				level = cfg.Logging.Level
			}
			logging.ConfigureLogger(logging.LoggerOptions{
				Enabled: cfg.Logging.Enabled,
				Level:   level,
				Format:  cfg.Logging.Format,
			})

			// init pipelines
			pipelines, err := manager.BuildPipelines(cfg)
			if err != nil {
				zlog.Fatal().Caller().Err(err).Send()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go func() {
				<-quit
				zlog.Info().Msg("Signal caught... Stopping")
				cancel()
			}()

			// init status server
			if cfg.Status.Enabled {
				go status.Serve(ctx, cfg)
			}

			// run the scheduler until shutdown or an unrecoverable
			// shipping failure
			m := manager.New(pipelines)
			m.TestMode = testMode
			if err := m.Run(ctx); err != nil {
				zlog.Fatal().Caller().Err(err).Send()
			}
		},
	}

	// define flags
	flagset := cmd.Flags()
	flagset.SortFlags = false
	flagset.StringVarP(&cli.Config, "config", "c", "", "Path to the YAML configuration file")
	flagset.StringVarP(&cli.Level, "level", "l", "", "Log level (DEBUG, INFO, WARN, ERROR)")
	flagset.StringArrayVarP(&params, "param", "p", []string{}, "Config params (e.g. --param logging.level:debug)")

	// execute command
	if err := cmd.Execute(); err != nil {
		zlog.Fatal().Caller().Err(err).Send()
	}
}
