package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/gatherhq/gather/pkg/ratelimit"
)

func main() {
	file := flag.String("file", "", "Path to the rate limit policy file")
	watch := flag.Bool("watch", false, "Keep watching the file and revalidate on change")
	quiet := flag.Bool("quiet", false, "Only report validity, do not print the policy table")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *file == "" {
		logger.Error("missing required -file flag")
		flag.Usage()
		os.Exit(2)
	}

	ok := validate(logger, *file, *quiet)
	if !*watch {
		if !ok {
			os.Exit(1)
		}
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Fatal("failed to create watcher")
	}
	defer watcher.Close()

	// Watch the directory rather than the file: editors replace files
	// atomically and a watch on the old inode goes stale after the
	// first save.
	dir := filepath.Dir(*file)
	if err := watcher.Add(dir); err != nil {
		logger.WithError(err).Fatalf("failed to watch %s", dir)
	}

	logger.WithField("file", *file).Info("watching for changes")

	base := filepath.Base(*file)
	var last time.Time
	for {
		select {
		case event, open := <-watcher.Events:
			if !open {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// Editors fire several events per save; collapse them.
			if time.Since(last) < 200*time.Millisecond {
				continue
			}
			last = time.Now()
			validate(logger, *file, *quiet)
		case err, open := <-watcher.Errors:
			if !open {
				return
			}
			logger.WithError(err).Error("watcher error")
		}
	}
}

// validate loads the policy file over the built-in defaults and prints
// the effective table.
func validate(logger *logrus.Logger, path string, quiet bool) bool {
	policies, err := ratelimit.LoadPolicyFile(path)
	if err != nil {
		logger.WithError(err).Error("policy file is invalid")
		return false
	}

	logger.WithField("actions", len(policies)).Info("policy file is valid")
	if quiet {
		return true
	}

	actions := make([]string, 0, len(policies))
	for action := range policies {
		actions = append(actions, string(action))
	}
	sort.Strings(actions)

	for _, action := range actions {
		policy := policies[ratelimit.Action(action)]
		fmt.Printf("  %-20s %4d per %s\n", action, policy.MaxCount, policy.Window)
	}
	return true
}
