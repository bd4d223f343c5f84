// Command alertqld serves the query-builder API.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	aql "github.com/alertql-engine/alertql"
	"github.com/alertql-engine/alertql/service"
)

func main() {
	addr := flag.String("addr", ":9898", "listen address")
	mongoURI := flag.String("mongo", "mongodb://localhost:27017", "MongoDB connection URI")
	database := flag.String("db", "alerts", "MongoDB database name")
	redisAddr := flag.String("redis", "", "Redis address for the schema cache (empty disables caching)")
	origins := flag.String("cors-origins", "", "comma-separated browser origins allowed to call the API")
	devLogging := flag.Bool("dev", false, "human-readable development logging")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *devLogging {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		logger.Fatal("MongoDB connection failed", zap.Error(err))
	}
	defer mongoClient.Disconnect(context.Background())

	backend := aql.WrapMongo(mongoClient.Database(*database)).WithLogger(logger)
	if *redisAddr != "" {
		backend = backend.WithCache(redis.NewClient(&redis.Options{Addr: *redisAddr}))
	}

	conf := service.Config{Logger: logger}
	if *origins != "" {
		conf.CORSAllowedOrigins = strings.Split(*origins, ",")
	}
	core := service.NewCore(conf, backend)

	srv := &http.Server{Addr: *addr, Handler: core}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Listening", zap.String("addr", *addr), zap.String("db", *database))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
