// Hotelsite serves the stand-in booking site locally so the suite can be pointed at something.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"

	"github.com/TheLab-ms/innkeeper/engine"
	"github.com/TheLab-ms/innkeeper/engine/db"
	"github.com/TheLab-ms/innkeeper/modules/hotelsite"
)

type Config struct {
	HttpAddr string `envDefault:":8081"`
	DataDir  string `envDefault:"./hotelsite-data"`

	AdminUsername string `envDefault:"admin"`
	AdminPassword string `envDefault:"password"`
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	conf, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "HOTELSITE_", UseFieldNameByDefault: true})
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 && os.Args[1] == "healthcheck" {
		err := engine.CheckHealthProbe("http://localhost" + conf.HttpAddr + "/healthz")
		if err != nil {
			panic(err)
		}
		return
	}

	database, err := db.OpenDir(conf.DataDir)
	if err != nil {
		panic(err)
	}

	router := engine.NewRouter(nil)
	app := engine.NewApp(conf.HttpAddr, router)
	app.Add(hotelsite.New(database, conf.AdminUsername, conf.AdminPassword))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	slog.Info("serving hotel site", "addr", conf.HttpAddr)
	app.Run(ctx)
}
