/*
Copyright 2022 The Towline Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io/ioutil"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/towline-dev/towline/pkg/commands"
	"github.com/towline-dev/towline/pkg/config"
	"github.com/towline-dev/towline/pkg/externalapi"
	"github.com/towline-dev/towline/pkg/gif"
	"github.com/towline-dev/towline/pkg/github"
	"github.com/towline-dev/towline/pkg/hook"
	"github.com/towline-dev/towline/pkg/lock"
	"github.com/towline-dev/towline/pkg/logrusutil"
	"github.com/towline-dev/towline/pkg/status"
	"github.com/towline-dev/towline/pkg/store"
)

type options struct {
	port int

	configPath        string
	webhookSecretFile string
	githubTokenFile   string

	dryRun bool
}

func gatherOptions() options {
	o := options{}
	flag.IntVar(&o.port, "port", 8888, "Port to listen on.")
	flag.StringVar(&o.configPath, "config-path", "/etc/towline/config.yaml", "Path to config.yaml.")
	flag.StringVar(&o.webhookSecretFile, "hmac-secret-file", "/etc/webhook/hmac", "Path to the file containing the webhook HMAC secret.")
	flag.StringVar(&o.githubTokenFile, "github-token-file", "", "Path to the file containing the GitHub token. Ignored when app credentials are configured.")
	flag.BoolVar(&o.dryRun, "dry-run", false, "Perform no mutating forge calls.")
	flag.Parse()
	return o
}

func main() {
	logrusutil.ComponentInit("towline")
	o := gatherOptions()

	configAgent := &config.Agent{}
	if err := configAgent.Start(o.configPath); err != nil {
		logrus.WithError(err).Fatal("Error starting config agent.")
	}
	cfg := configAgent.Config()

	webhookSecret, err := ioutil.ReadFile(o.webhookSecretFile)
	if err != nil {
		logrus.WithError(err).Fatal("Could not read webhook secret file.")
	}
	webhookSecret = bytes.TrimSpace(webhookSecret)
	tokenGenerator := func() []byte { return webhookSecret }

	ghc, err := githubClient(o, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Error creating GitHub client.")
	}

	sc, err := store.NewMemoryStore(cfg.Store.SnapshotPath)
	if err != nil {
		logrus.WithError(err).Fatal("Error opening store.")
	}

	var locker lock.Locker
	if cfg.Lock.RedisAddress != "" {
		locker = lock.NewRedisLocker(cfg.Lock.RedisAddress)
	} else {
		logrus.Warn("No redis address configured, using in-process locks.")
		locker = lock.NewMemoryLocker()
	}

	var gifClient commands.GifSearcher
	if cfg.Gif.TenorAPIKey != "" {
		gifClient = gif.NewClient(cfg.Gif.TenorAPIKey)
	}

	engine := status.NewEngine(ghc, sc, locker)
	executor := commands.NewExecutor(cfg.BotName, ghc, sc, gifClient, engine)
	dispatcher := hook.NewDispatcher(configAgent, sc, ghc, executor, engine)
	hookServer := hook.NewServer(dispatcher, tokenGenerator)
	extServer := externalapi.NewServer(configAgent, sc, executor)

	mux := http.NewServeMux()
	mux.Handle("/hook", hookServer)
	mux.Handle("/external/", extServer.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := sc.HealthCheck(); err != nil {
			http.Error(w, fmt.Sprintf("store: %v", err), http.StatusInternalServerError)
			return
		}
		if err := locker.Ping(); err != nil {
			http.Error(w, fmt.Sprintf("lock: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "OK")
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(o.port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Server stopped.")
		}
	}()
	logrus.WithField("port", o.port).Info("Towline is up.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	logrus.Info("Towline is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.WithError(err).Error("Error shutting down HTTP server.")
	}
	hookServer.GracefulShutdown()
	if err := sc.Save(); err != nil {
		logrus.WithError(err).Error("Error saving store snapshot.")
	}
}

// githubClient builds the forge client, preferring app credentials over a
// static token file.
func githubClient(o options, cfg *config.Config) (*github.Client, error) {
	endpoint := cfg.GitHub.Endpoint
	if endpoint == "" {
		endpoint = github.DefaultAPIBase
	}
	newClient := github.NewClient
	if o.dryRun {
		newClient = github.NewDryRunClient
	}

	if cfg.GitHub.AppID != "" {
		keyPEM, err := ioutil.ReadFile(cfg.GitHub.AppPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("reading app private key: %w", err)
		}
		// The exchange client authenticates with the app JWT carried per
		// call, not with an installation token.
		exchange := github.NewClient(func() []byte { return nil }, endpoint)
		appAuth, err := github.NewAppAuth(cfg.GitHub.AppID, cfg.GitHub.AppInstallationID, keyPEM, exchange)
		if err != nil {
			return nil, err
		}
		return newClient(func() []byte {
			token, err := appAuth.Token()
			if err != nil {
				logrus.WithError(err).Error("Error minting installation token.")
				return nil
			}
			return token
		}, endpoint), nil
	}

	if o.githubTokenFile == "" && cfg.GitHub.TokenPath == "" {
		return nil, fmt.Errorf("either app credentials or a token file is required")
	}
	tokenPath := o.githubTokenFile
	if tokenPath == "" {
		tokenPath = cfg.GitHub.TokenPath
	}
	raw, err := ioutil.ReadFile(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("reading token file: %w", err)
	}
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: string(bytes.TrimSpace(raw))})
	return newClient(func() []byte {
		token, err := source.Token()
		if err != nil {
			logrus.WithError(err).Error("Error reading token.")
			return nil
		}
		return []byte(token.AccessToken)
	}, endpoint), nil
}
