package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thural/quietspace-realtime/migration"
	"github.com/thural/quietspace-realtime/transport"
	"github.com/thural/quietspace-realtime/transport/enterprise"
	"github.com/thural/quietspace-realtime/transport/legacy"
)

const (
	defaultEnterpriseURL = "ws://localhost:8887/ws"
	defaultBrokerAddr    = "localhost:6379"
)

func main() {
	enterpriseURL := defaultEnterpriseURL
	if url := os.Getenv("ENTERPRISE_URL"); url != "" {
		enterpriseURL = url
	}
	brokerAddr := defaultBrokerAddr
	if addr := os.Getenv("BROKER_ADDR"); addr != "" {
		brokerAddr = addr
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Register both transports on a factory and create a connection for each
	factory := transport.NewDefaultFactory()
	legacy.RegisterWithFactory(factory, logger)
	enterprise.RegisterWithFactory(factory, logger)

	legacyConfig := &transport.LegacyConfig{Addr: brokerAddr}
	legacyConn, err := factory.CreateConnection(legacyConfig)
	if err != nil {
		log.Fatalf("Failed to create legacy connection: %v", err)
	}

	enterpriseConfig := &transport.EnterpriseConfig{
		AuthToken: os.Getenv("AUTH_TOKEN"),
		Reconnect: true,
	}
	enterpriseConn, err := factory.CreateConnection(enterpriseConfig)
	if err != nil {
		log.Fatalf("Failed to create enterprise connection: %v", err)
	}

	// Hybrid mode tries the enterprise transport first and falls back to the
	// legacy transport on failure or timeout
	controller, err := migration.NewController(migration.Config{
		Feature:            migration.FeatureChat,
		Mode:               migration.ModeHybrid,
		FallbackTimeout:    10 * time.Second,
		EnterpriseEndpoint: enterpriseURL,
		EnterpriseConfig:   enterpriseConfig,
		LegacyEndpoint:     "chat-example-client",
		LegacyConfig:       legacyConfig,
	}, legacyConn, enterpriseConn, nil, logger)
	if err != nil {
		log.Fatalf("Failed to create migration controller: %v", err)
	}

	unsubscribe := controller.Subscribe(func(data []byte) {
		log.Printf("Received chat message: %s", data)
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("Connecting chat feature (enterprise=%s legacy=%s)...", enterpriseURL, brokerAddr)
	if err := controller.Connect(ctx); err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}

	state := controller.State()
	log.Printf("Connected: state=%s mode=%s usingLegacy=%v", state.ConnectionState, state.Mode, state.IsUsingLegacy)

	// Send a message periodically
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := controller.SendMessage(map[string]interface{}{
					"chatId":  "example-chat",
					"content": "hello from the hybrid example",
				})
				if err != nil {
					log.Printf("Error sending message: %v", err)
				}
			}
		}
	}()

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := controller.Disconnect(shutdownCtx); err != nil {
		log.Printf("Error disconnecting: %v", err)
	}

	report := controller.Report()
	log.Printf("Migration report: fallbacks=%d recommended=%s issues=%v",
		report.FallbackCount, report.RecommendedMode, report.Issues)
}
