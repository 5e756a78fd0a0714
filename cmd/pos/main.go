package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/creamsy-pos/internal/config"
	h "github.com/fjod/creamsy-pos/internal/http"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newCLI().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "pos",
		Usage: "point of sale terminal for the ice cream counter",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the local HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, overrides POS_HTTP_ADDR"},
				},
				Action: withApp(serve),
			},
			{
				Name:  "signin",
				Usage: "sign in and remember the session on this terminal",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", EnvVars: []string{"POS_PASSWORD"}, Required: true},
				},
				Action: withApp(signIn),
			},
			{
				Name:   "signout",
				Usage:  "forget the session on this terminal",
				Action: withApp(signOut),
			},
			{
				Name:   "status",
				Usage:  "restore the stored session, refreshing it when expired",
				Action: withApp(status),
			},
		},
	}
}

func withApp(run func(c *cli.Context, a *app) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		cfg.SetupLogging()

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.WithError(err).Warn("shutdown incomplete")
			}
		}()
		return run(c, a)
	}
}

func serve(c *cli.Context, a *app) error {
	addr := a.cfg.HTTPAddr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	if _, err := a.restore(ctx); err != nil {
		log.WithError(err).Warn("starting without a usable session")
	}
	go a.reloader.Run(ctx)

	srv := &http.Server{
		Addr:         addr,
		Handler:      h.NewRouter(a.handlers(), a.cfg.HTTPTimeout),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: a.cfg.HTTPTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("POS API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited")
	return nil
}

func signIn(c *cli.Context, a *app) error {
	ctx, cancel := context.WithTimeout(c.Context, a.cfg.HTTPTimeout)
	defer cancel()

	sess, err := a.sessions.SignIn(ctx, c.String("email"), c.String("password"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "signed in as %s until %s\n", sess.UserID, sess.ExpiresAt.Format(time.RFC3339))
	return nil
}

func signOut(c *cli.Context, a *app) error {
	if err := a.sessions.SignOut(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "signed out")
	return nil
}

func status(c *cli.Context, a *app) error {
	ctx, cancel := context.WithTimeout(c.Context, a.cfg.HTTPTimeout)
	defer cancel()

	result, err := a.sessions.RestoreOrRefresh(ctx)
	fmt.Fprintf(c.App.Writer, "session: %s\n", result)
	if sess, ok := a.sessions.Current(); ok {
		fmt.Fprintf(c.App.Writer, "user: %s\nexpires: %s\n", sess.UserID, sess.ExpiresAt.Format(time.RFC3339))
	}
	if err != nil {
		fmt.Fprintf(c.App.Writer, "last error: %v\n", err)
	}
	return nil
}
