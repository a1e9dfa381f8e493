package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logrus "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/shortpoint/webhook-dispatcher/internal/api"
	"github.com/shortpoint/webhook-dispatcher/internal/config"
	"github.com/shortpoint/webhook-dispatcher/internal/delivery"
	"github.com/shortpoint/webhook-dispatcher/internal/metrics"
	"github.com/shortpoint/webhook-dispatcher/internal/router"
	"github.com/shortpoint/webhook-dispatcher/internal/store"
	"github.com/shortpoint/webhook-dispatcher/model"
)

var instanceID string

func init() {
	instanceID = model.NewID()

	serverCmd.PersistentFlags().String("database", "sqlite://dispatcher.db", "The database backing the webhook dispatcher.")
	serverCmd.PersistentFlags().String("listen", ":8076", "The interface and port on which to listen.")
	serverCmd.PersistentFlags().String("bus-url", "", "The message bus to consume events from, overriding BUS_URL.")
	serverCmd.PersistentFlags().Bool("bus-consumer", true, "Whether this server will consume bus events or not.")
	serverCmd.PersistentFlags().Bool("debug", false, "Whether to output debug logs.")
	serverCmd.PersistentFlags().Bool("machine-readable-logs", false, "Output the logs in machine readable format.")
	serverCmd.PersistentFlags().Bool("enable-log-stacktrace", false, "Add stacktrace in error logs.")
	serverCmd.PersistentFlags().Bool("dev", false, "Set sane defaults for development")
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the webhook dispatch server.",
	RunE: func(command *cobra.Command, args []string) error {
		command.SilenceUsage = true

		debug, _ := command.Flags().GetBool("debug")
		dev, _ := command.Flags().GetBool("dev")
		if dev && !command.Flags().Changed("debug") {
			debug = true
		}
		if debug {
			logger.SetLevel(logrus.DebugLevel)
		}

		machineLogs, _ := command.Flags().GetBool("machine-readable-logs")
		if machineLogs {
			logger.SetFormatter(&logrus.JSONFormatter{})
		}

		logStacktrace, _ := command.Flags().GetBool("enable-log-stacktrace")
		if logStacktrace {
			enableLogStacktrace()
		}

		cfg, err := config.Read(logger)
		if err != nil {
			return err
		}

		if cfg.LogLevel != "" && !debug {
			level, err := logrus.ParseLevel(cfg.LogLevel)
			if err != nil {
				return errors.Wrapf(err, "unsupported log level %s", cfg.LogLevel)
			}
			logger.SetLevel(level)
		}

		logger := logger.WithFields(logrus.Fields{
			"instance": instanceID,
			"service":  cfg.ServiceName,
		})

		sqlStore, err := sqlStore(command)
		if err != nil {
			return err
		}

		currentVersion, err := sqlStore.GetCurrentVersion()
		if err != nil {
			return err
		}
		serverVersion := store.LatestVersion()

		// Require the schema to be at least the server version, and also the same major
		// version.
		if currentVersion.LT(serverVersion) || currentVersion.Major != serverVersion.Major {
			return errors.Errorf("server requires at least schema %s, current is %s", serverVersion, currentVersion)
		}

		busConsumer, _ := command.Flags().GetBool("bus-consumer")
		if busURL, _ := command.Flags().GetString("bus-url"); busURL != "" {
			cfg.BusURL = busURL
		}

		listen, _ := command.Flags().GetString("listen")

		logger.WithFields(logrus.Fields{
			"bus-consumer":  busConsumer,
			"store-version": currentVersion,
			"listen":        listen,
			"prefetch":      cfg.ConsumerPrefetch,
			"max-requeue":   cfg.MaxRequeueCount,
			"debug":         debug,
			"dev-mode":      dev,
		}).Info("Starting webhook dispatch server")

		dispatcherMetrics := metrics.New()

		deliverer := delivery.NewDeliverer(sqlStore, dispatcherMetrics, logger, delivery.Config{
			DeliveryTimeout: cfg.DeliveryTimeout(),
			TestTimeout:     cfg.TestDeliveryTimeout(),
			DefaultSecret:   cfg.DefaultWebhookSecret,
		})

		// The consumer context outlives individual bus sessions; canceling it
		// is the shutdown signal for the dispatch pipeline.
		consumerCtx, consumerCancel := context.WithCancel(context.Background())
		defer consumerCancel()

		if busConsumer {
			eventRouter := router.NewRouter(sqlStore, deliverer, dispatcherMetrics, logger, router.Config{
				BusURL:           cfg.BusURL,
				ConsumerPrefetch: cfg.ConsumerPrefetch,
				MaxRequeueCount:  cfg.MaxRequeueCount,
			})

			go func() {
				if err := eventRouter.Run(consumerCtx); err != nil {
					logger.WithError(err).Error("Bus consumer failed")
				}
			}()
		} else {
			logger.Warn("Server will be running with no bus consumer. Only API functionality will work.")
		}

		router := mux.NewRouter()

		api.Register(router, &api.Context{
			Store:     sqlStore,
			Deliverer: deliverer,
			Metrics:   dispatcherMetrics,
			Logger:    logger,
		})

		router.Handle("/metrics", promhttp.Handler())

		srv := &http.Server{
			Addr:           listen,
			Handler:        router,
			ReadTimeout:    180 * time.Second,
			WriteTimeout:   180 * time.Second,
			IdleTimeout:    time.Second * 180,
			MaxHeaderBytes: 1 << 20,
			ErrorLog:       log.New(&logrusWriter{logger}, "", 0),
		}

		go func() {
			logger.WithField("addr", srv.Addr).Info("Listening")
			err := srv.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("Failed to listen and serve")
			}
		}()

		c := make(chan os.Signal, 1)
		// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
		// SIGKILL, SIGQUIT or SIGTERM (Ctrl+/) will not be caught.
		signal.Notify(c, os.Interrupt)

		// Block until we receive our signal.
		<-c
		logger.Info("Shutting down")

		consumerCancel()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(ctx)

		return nil
	},
}
