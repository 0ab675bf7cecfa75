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

// newController wires one feature onto fresh legacy and enterprise connections
// sharing the factory and configuration.
func newController(feature migration.Feature, factory transport.Factory, enterpriseURL, brokerAddr string, logger *zap.Logger) (*migration.Controller, error) {
	legacyConfig := &transport.LegacyConfig{Addr: brokerAddr}
	legacyConn, err := factory.CreateConnection(legacyConfig)
	if err != nil {
		return nil, err
	}

	enterpriseConfig := &transport.EnterpriseConfig{
		AuthToken: os.Getenv("AUTH_TOKEN"),
		Reconnect: true,
	}
	enterpriseConn, err := factory.CreateConnection(enterpriseConfig)
	if err != nil {
		return nil, err
	}

	return migration.NewController(migration.Config{
		Feature:            feature,
		Mode:               migration.ModeHybrid,
		EnterpriseEndpoint: enterpriseURL,
		EnterpriseConfig:   enterpriseConfig,
		LegacyEndpoint:     string(feature) + "-example-client",
		LegacyConfig:       legacyConfig,
	}, legacyConn, enterpriseConn, nil, logger)
}

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

	factory := transport.NewDefaultFactory()
	legacy.RegisterWithFactory(factory, logger)
	enterprise.RegisterWithFactory(factory, logger)

	coordinator := migration.NewCoordinator(logger)
	features := []migration.Feature{
		migration.FeatureChat,
		migration.FeatureNotification,
		migration.FeatureFeed,
	}
	for _, feature := range features {
		controller, err := newController(feature, factory, enterpriseURL, brokerAddr, logger)
		if err != nil {
			log.Fatalf("Failed to create %s controller: %v", feature, err)
		}
		coordinator.Register(controller)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("Connecting all features...")
	if err := coordinator.ConnectAll(ctx); err != nil {
		log.Printf("Some features failed to connect: %v", err)
	}

	log.Printf("anyUsingLegacy=%v allEnterprise=%v",
		coordinator.AnyUsingLegacy(), coordinator.AllEnterprise())

	// Subscribe to chat messages
	if chat, ok := coordinator.Controller(migration.FeatureChat); ok {
		unsubscribe := chat.Subscribe(func(data []byte) {
			log.Printf("Received chat message: %s", data)
		})
		defer unsubscribe()
	}

	// Wait for interrupt signal
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down all features...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := coordinator.DisconnectAll(shutdownCtx); err != nil {
		log.Printf("Error disconnecting: %v", err)
	}

	for _, report := range coordinator.Reports() {
		log.Printf("%s: fallbacks=%d recommended=%s",
			report.Feature, report.FallbackCount, report.RecommendedMode)
	}
}
