package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/anyproto/any-sync/app/logger"
	"github.com/anyproto/any-sync/metric"
	"go.uber.org/zap"

	"github.com/lumilearn/lumilearn-publish-server/config"
	"github.com/lumilearn/lumilearn-publish-server/db"
	"github.com/lumilearn/lumilearn-publish-server/gateway"
	"github.com/lumilearn/lumilearn-publish-server/publish"
	"github.com/lumilearn/lumilearn-publish-server/publish/publishrepo"
	"github.com/lumilearn/lumilearn-publish-server/redisprovider"
	"github.com/lumilearn/lumilearn-publish-server/store"
)

var log = logger.NewNamed("main")

var (
	flagConfigFile = flag.String("c", "etc/lumilearn-publish-server.yml", "path to config file")
	flagVersion    = flag.Bool("v", false, "show version and exit")
	flagHelp       = flag.Bool("h", false, "show help and exit")
)

func main() {
	app.AppName = "lumilearn-publish-server"
	flag.Parse()
	if *flagVersion {
		fmt.Println(app.VersionDescription())
		return
	}
	if *flagHelp {
		fmt.Println("lumilearn publish server")
		flag.PrintDefaults()
		return
	}

	conf, err := config.NewFromFile(*flagConfigFile)
	if err != nil {
		log.Fatal("can't open config file", zap.Error(err))
	}
	conf.Log.ApplyGlobal()

	a := new(app.App)
	bootstrap(a, conf)

	ctx := context.Background()
	if err = a.Start(ctx); err != nil {
		log.Fatal("can't start app", zap.Error(err))
	}
	log.Info("app started")

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGABRT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-exit
	log.Info("received exit signal, stop app...", zap.String("signal", fmt.Sprint(sig)))

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err = a.Close(ctx); err != nil {
		log.Fatal("close error", zap.Error(err))
	}
	log.Info("app stopped")
}

func bootstrap(a *app.App, conf *config.Config) {
	a.Register(conf).
		Register(metric.New()).
		Register(db.New()).
		Register(redisprovider.New()).
		Register(store.New()).
		Register(publishrepo.New()).
		Register(publish.New()).
		Register(gateway.New())
}
