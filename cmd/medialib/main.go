// Medialib Core
// Copyright (c) 2026 The Medialib Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Medialib Core.
//
// Medialib Core is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Medialib Core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Medialib Core.  If not, see <http://www.gnu.org/licenses/>.

// A minimal host around the library facade: add roots, wait for the
// pipeline to go idle, print what was catalogued. Mostly useful for
// poking at scanner behavior against a real directory tree.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/MediaLibProject/medialib-core/pkg/config"
	"github.com/MediaLibProject/medialib-core/pkg/database/medialibdb"
	"github.com/MediaLibProject/medialib-core/pkg/helpers"
	"github.com/MediaLibProject/medialib-core/pkg/medialib"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

type cliCallbacks struct {
	medialib.CallbacksBase
	idle chan struct{}
}

func (c *cliCallbacks) OnDiscoveryCompleted(root string, success bool) {
	log.Info().Msgf("discovery of %s completed (success=%v)", root, success)
}

func (c *cliCallbacks) OnBackgroundIdleChanged(idle bool) {
	if idle {
		select {
		case c.idle <- struct{}{}:
		default:
		}
	}
}

func run() error {
	dataDir := helpers.DataDir()
	dbPath := flag.String("db", filepath.Join(dataDir, "medialib.db"), "database file path")
	thumbDir := flag.String("thumbnails", filepath.Join(dataDir, "thumbnails"), "thumbnail directory")
	cfgPath := flag.String("config", helpers.ConfigPath(), "config file path")
	discover := flag.String("discover", "", "root directory or MRL to discover")
	reload := flag.Bool("reload", false, "reload all known roots")
	flag.Parse()

	if err := helpers.InitLogging(helpers.LogDir(), []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout},
	}); err != nil {
		return fmt.Errorf("error initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(*cfgPath, config.BaseDefaults)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if cfg.DebugLogging() {
		helpers.SetVerbosity(helpers.VerbosityDebug)
	} else {
		helpers.SetVerbosity(helpers.VerbosityInfo)
	}

	cb := &cliCallbacks{idle: make(chan struct{}, 1)}
	ml := medialib.New(cfg)
	switch ml.Initialize(*dbPath, *thumbDir, cb) {
	case medialib.InitializeSuccess:
	case medialib.InitializeDbReset:
		log.Warn().Msg("database was reset, roots must be added again")
	case medialib.InitializeAlreadyInitialized:
	case medialib.InitializeFailed:
		return fmt.Errorf("failed to initialize media library at %s", *dbPath)
	}
	defer ml.Stop()

	if err := ml.Start(); err != nil {
		return fmt.Errorf("error starting media library: %w", err)
	}

	pending := false
	if *discover != "" {
		mrl := *discover
		if helpers.SchemeOf(mrl) == "" {
			abs, err := filepath.Abs(mrl)
			if err != nil {
				return fmt.Errorf("error resolving path: %w", err)
			}
			mrl = helpers.PathToMRL(abs)
		}
		if !ml.Discover(mrl) {
			return fmt.Errorf("failed to queue discovery of %s", mrl)
		}
		pending = true
	}
	if *reload {
		if !ml.Reload("") {
			return fmt.Errorf("failed to queue reload")
		}
		pending = true
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	if pending {
		select {
		case <-cb.idle:
		case <-sigs:
			log.Info().Msg("interrupted")
			return nil
		}
	}

	return printSummary(ml)
}

func printSummary(ml *medialib.MediaLibrary) error {
	params := medialib.QueryParameters{}

	videos, err := ml.VideoFiles(params).Count()
	if err != nil {
		return err
	}
	audio, err := ml.AudioFiles(params).Count()
	if err != nil {
		return err
	}
	albums, err := ml.Albums(params).Count()
	if err != nil {
		return err
	}
	shows, err := ml.Shows(params).Count()
	if err != nil {
		return err
	}
	fmt.Printf("catalogue: %d videos, %d audio tracks, %d albums, %d shows\n",
		videos, audio, albums, shows)

	items, err := ml.VideoFiles(medialib.QueryParameters{
		Sort: medialibdb.SortInsertionDate,
		Desc: true,
	}).Items(10, 0)
	if err != nil {
		return err
	}
	for _, md := range items {
		fmt.Printf("  %s (%s)\n", md.Title, md.FileName)
	}
	return nil
}
