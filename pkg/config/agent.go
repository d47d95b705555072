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

package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Agent watches a config file and swaps in new versions as they land. A
// bad new version is logged and skipped; the last good config stays
// active.
type Agent struct {
	mut sync.RWMutex
	c   *Config
}

// Start loads the config once and begins watching its directory.
// Watching the directory instead of the file survives the rename dance
// editors and configmap mounts do on update.
func (a *Agent) Start(path string) error {
	c, err := Load(path)
	if err != nil {
		return err
	}
	a.Set(c)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				c, err := Load(path)
				if err != nil {
					logrus.WithError(err).Error("Error loading config, keeping the previous one.")
					continue
				}
				a.Set(c)
				logrus.Info("Config reloaded.")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Error("Config watcher error.")
			}
		}
	}()
	return nil
}

// Config returns the current config. Callers must not mutate it.
func (a *Agent) Config() *Config {
	a.mut.RLock()
	defer a.mut.RUnlock()
	return a.c
}

// Set replaces the current config.
func (a *Agent) Set(c *Config) {
	a.mut.Lock()
	defer a.mut.Unlock()
	a.c = c
}
