package main

import (
	"context"
	"fmt"
	"k4llisto/app/client/auth"
	"k4llisto/app/client/helix"
	"k4llisto/app/client/netmon"
	"k4llisto/app/client/reqguard"
	"k4llisto/app/client/settings"
	"k4llisto/app/client/stream"
	"k4llisto/app/service/player"
	"k4llisto/pkg/config"
	sentry2 "k4llisto/pkg/sentry"
	"k4llisto/pkg/tlog"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2/log"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/samber/do"
)

type options struct {
	Channel string `short:"c" long:"channel" description:"channel to play"`
	Quality string `short:"q" long:"quality" default:"best" description:"requested quality (best, source, high, medium, low, mobile)"`
	Login   bool   `long:"login" description:"run the device authorization flow"`
	Logout  bool   `long:"logout" description:"clear the stored credential"`
}

func main() {
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = godotenv.Load()

	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	di := do.New()
	do.ProvideValue(di, appCtx)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	do.ProvideValue(di, cfg)

	if err = tlog.Init(cfg); err != nil {
		log.Fatalf("logging init failed: %v", err)
	}

	if err = sentry2.Init(cfg); err != nil {
		slog.Error("Sentry initialization failed", slog.Any("error", err))
	}
	defer sentry.Flush(time.Second)
	defer sentry.RecoverWithContext(appCtx)

	do.Provide(di, netmon.New)
	do.Provide(di, settings.New)
	do.Provide(di, reqguard.New)
	do.Provide(di, auth.New)
	do.Provide(di, stream.NewResolver)
	do.Provide(di, helix.NewClient)
	do.Provide(di, player.New)

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt)
		<-sigint

		log.Info("Shutting down...")

		cancel()
	}()

	monitor := do.MustInvoke[*netmon.Monitor](di)
	monitor.SetCallbacks(netmon.Callbacks{
		OnConnectionLost: func() {
			fmt.Println("Connection lost")
		},
		OnConnectionRestored: func() {
			fmt.Println("Connection restored")
		},
	})

	authManager := do.MustInvoke[*auth.Manager](di)
	helixClient := do.MustInvoke[*helix.Client](di)

	authDone := make(chan bool, 1)
	authManager.SetCallbacks(auth.Callbacks{
		OnAuthenticationChanged: func(authenticated bool) {
			if authenticated {
				helixClient.SetAuthToken(authManager.AccessToken())
			} else {
				helixClient.SetAuthToken("")
			}
		},
		OnTokenRefreshed: func() {
			helixClient.SetAuthToken(authManager.AccessToken())
		},
		OnUserCode: func(userCode, verificationURI string) {
			fmt.Printf("Open %s and enter code: %s\n", verificationURI, userCode)
		},
		OnAuthenticationSucceeded: func() {
			authDone <- true
		},
		OnAuthenticationFailed: func(reason string) {
			fmt.Println(reason)
			select {
			case authDone <- false:
			default:
			}
		},
		OnStatus: func(message string) {
			slog.Debug(message)
		},
	})

	switch {
	case opts.Logout:
		authManager.Logout()
		fmt.Println("Logged out")

	case opts.Login:
		if err = authManager.StartDeviceAuth(appCtx); err != nil {
			log.Fatalf("device auth failed: %v", err)
		}

		select {
		case ok := <-authDone:
			if ok {
				fmt.Println("Authenticated")
			}
		case <-appCtx.Done():
		}

	case opts.Channel != "":
		authManager.ValidateStartup(appCtx)

		if err = do.MustInvoke[*player.Service](di).Play(appCtx, opts.Channel, opts.Quality); err != nil {
			log.Fatalf("playback failed: %v", err)
		}

	default:
		fmt.Println("Nothing to do: pass --channel or --login")
	}

	_ = di.Shutdown()
}
