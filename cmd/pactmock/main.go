package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/contractkit/pactmock/internal/app/configuration"
	"github.com/contractkit/pactmock/internal/app/logging"
	"github.com/spf13/cobra"

	log "github.com/sirupsen/logrus"
)

func main() {
	root := &cobra.Command{
		Use:           "pactmock",
		Short:         "Consumer-driven contract testing mock server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCommand())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the admin API for managing mock servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := configuration.NewFromEnv()
			if err != nil {
				return err
			}

			logCtx := logging.InitStandard()
			for _, sink := range config.LogSinks {
				level, err := log.ParseLevel(config.LogLevel)
				if err != nil {
					return err
				}
				if err := logCtx.AttachSink(sink, level); err != nil {
					return err
				}
			}
			if err := logCtx.Apply(); err != nil {
				return err
			}
			defer logCtx.Shutdown()

			logger := logCtx.Logger()
			logger.Infof("starting admin API on port %d", config.AdminPort)
			adminServer := configuration.ServeAdminAPI(config)

			c := make(chan os.Signal, 2)
			signal.Notify(c, os.Interrupt, syscall.SIGTERM)
			<-c

			if err := adminServer.Close(); err != nil {
				logger.Error(err)
			}
			configuration.ShutdownAllServers()
			return nil
		},
	}
}
