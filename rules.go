package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Seednode/seekingsystems/games/network"
)

// RulesLoader reads a YAML rules file and watches it for changes. Keys left
// out of the file keep their default values.
type RulesLoader struct {
	path     string
	mu       sync.RWMutex
	current  network.Rules
	onChange []func(network.Rules)
}

// NewRulesLoader creates a RulesLoader and performs the initial load. An empty
// path yields the default rules and never reloads.
func NewRulesLoader(path string) (*RulesLoader, error) {
	l := &RulesLoader{path: path, current: network.DefaultRules()}
	if path == "" {
		return l, nil
	}

	rules, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = rules

	return l, nil
}

// Rules returns the latest successfully loaded rules.
func (l *RulesLoader) Rules() network.Rules {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the rules reload.
func (l *RulesLoader) OnChange(fn func(network.Rules)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload forces an immediate re-read of the rules file.
func (l *RulesLoader) Reload() (network.Rules, error) {
	rules, err := l.load()
	if err != nil {
		return network.Rules{}, err
	}

	l.mu.Lock()
	l.current = rules
	callbacks := make([]func(network.Rules), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(rules)
	}
	return rules, nil
}

// Watch hot-reloads the rules file until done is closed. A file that fails to
// parse or validate leaves the previous rules in place and is reported on errs.
func (l *RulesLoader) Watch(done <-chan struct{}, errs chan<- error) error {
	if l.path == "" {
		<-done
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	defer w.Close()

	// Watch the directory so saves that replace the file by rename keep
	// reloading.
	dir, name := filepath.Split(filepath.Clean(l.path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("rules watcher add %s: %w", dir, err)
	}

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if _, err := l.Reload(); err != nil {
					report(errs, err)
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			report(errs, fmt.Errorf("rules watcher: %w", err))
		case <-done:
			return nil
		}
	}
}

func (l *RulesLoader) load() (network.Rules, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return network.Rules{}, fmt.Errorf("read rules %s: %w", l.path, err)
	}

	rules := network.DefaultRules()
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return network.Rules{}, fmt.Errorf("parse rules %s: %w", l.path, err)
	}
	if err := rules.Validate(); err != nil {
		return network.Rules{}, fmt.Errorf("rules %s: %w", l.path, err)
	}

	return rules, nil
}

func report(errs chan<- error, err error) {
	select {
	case errs <- err:
	default:
	}
}
