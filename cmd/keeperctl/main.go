package main

import (
	"context"
	"errors"
	"log"
	"os"

	"github.com/dmitrijs2005/chatkeeper/internal/client/cli"
	"github.com/dmitrijs2005/chatkeeper/internal/client/config"
	"github.com/dmitrijs2005/chatkeeper/internal/flagx"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	if err := app.Run(ctx, flagx.StripArgs(os.Args[1:], config.Flags)); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			log.Println(err)
			os.Exit(2)
		}
		log.Fatalf("%v", err)
	}

}
