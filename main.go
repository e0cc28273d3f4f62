package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chenyu-w/seasync/pkg/configs"
	"github.com/chenyu-w/seasync/pkg/core"
	"github.com/chenyu-w/seasync/pkg/core/adapters"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var filePath = flag.String("f", "config.yaml", "Specify the config file")

func main() {
	flag.Parse()

	conf, err := configs.Load(*filePath)
	if err != nil {
		log.Fatalln(err)
	}

	config := zap.NewProductionEncoderConfig()
	zapCore := zapcore.NewCore(zapcore.NewJSONEncoder(config), zapcore.AddSync(os.Stdout), zapcore.InfoLevel)
	logger := zap.New(zapCore)
	zap.ReplaceGlobals(logger)

	adapter, err := adapters.New(conf.Adapter)
	if err != nil {
		log.Fatalln(err)
	}
	if err := adapter.TestConnection(context.Background()); err != nil {
		log.Fatalln(err)
	}

	svc, err := core.NewService(conf, adapter, logger)
	if err != nil {
		log.Fatalln(err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		svc.Stop()
	}()

	if err := svc.Run(); err != nil {
		log.Fatalln(err)
	}
}
