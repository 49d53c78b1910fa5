package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"example.com/socialfeed/cmd/server"
	"example.com/socialfeed/cmd/worker"
	appkafka "example.com/socialfeed/internal/broker"
	"example.com/socialfeed/internal/engage"
	config "example.com/socialfeed/internal/init"
	"example.com/socialfeed/internal/store"
	"example.com/socialfeed/internal/token"
)

func main() {
	// Initialize application configuration
	cfg := config.Init()
	mode := cfg.Mode

	// A server without a signing secret cannot verify anything
	tokens, err := token.New(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil && mode == "server" {
		log.Fatalf("Token service init failed: %v", err)
	}

	// Setup OS signal handling for graceful shutdown (SIGINT, SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store connection
	st, err := store.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Store connection failed (%s): %v", cfg.StoreDriver, err)
	}
	defer st.Close()

	// Configure Kafka client parameters
	kafkaCfg := appkafka.KafkaConfig{
		Brokers:      []string{cfg.KafkaBroker},
		Topic:        cfg.KafkaTopic,
		Partition:    cfg.KafkaPartition,
		GroupID:      cfg.KafkaGroupID,
		WriteTimeout: cfg.KafkaWriteTO,
		ReadTimeout:  cfg.KafkaReadTO,
	}

	// Run application depending on selected mode
	switch mode {
	case "server":
		var opts []engage.Option
		if cfg.KafkaEnabled {
			kafkaWriter, err := appkafka.NewKafkaWriter(kafkaCfg)
			if err != nil {
				log.Fatalf("Kafka writer init failed: %v", err)
			}
			defer kafkaWriter.Close()
			opts = append(opts, engage.WithPublisher(appkafka.NewPublisher(kafkaWriter)))
		} else {
			log.Println("Kafka disabled, engagement events are not published")
		}

		s := server.New(st, tokens, cfg.BcryptCost, opts...)
		server.Run(ctx, s.Routes(), cfg.ServerAddr, cfg.TLSCertFile, cfg.TLSKeyFile)
	case "worker":
		if !cfg.KafkaEnabled {
			log.Fatalf("worker mode requires KAFKA_ENABLED=true")
		}
		kafkaReader := appkafka.NewKafkaReader(kafkaCfg)
		w := worker.New(st, kafkaReader, 0, 0)
		w.Run(ctx)
		if err := kafkaReader.Close(); err != nil {
			log.Printf("Kafka reader close failed: %v", err)
		}
	default:
		log.Fatalf("unknown mode: %s", mode)
	}

	log.Println("Shutdown completed")
}
