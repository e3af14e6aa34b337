// Command mosaicfs assembles a composite namespace from a declarative
// mount-table configuration and either lists part of it or serves it
// through FUSE.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	_ "mosaicfs/internal/backend/memfs"
	_ "mosaicfs/internal/backend/osfs"
	_ "mosaicfs/internal/backend/zipfs"
	"mosaicfs/internal/config"
	"mosaicfs/internal/fusefront"
	"mosaicfs/internal/logging"
	"mosaicfs/internal/vfs"
)

var logger = logging.GetLogger()

func main() {
	configPath := flag.String("config", "", "Mount-table configuration file")
	mountPoint := flag.String("mount", "", "Serve the namespace at this FUSE mount point")
	listPath := flag.String("list", "", "List the subtree at this path and exit")
	maxDepth := flag.Int("maxdepth", -1, "Bound --list traversal depth (-1 for unbounded)")
	namePattern := flag.String("name", "", "Filter --list entries by glob pattern")
	logLevel := flag.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	flag.Parse()

	if *logLevel != "" {
		if err := logging.SetLevel(*logLevel); err != nil {
			logger.Error("%v", err)
			os.Exit(2)
		}
	}

	registry := vfs.NewRegistry()
	root := vfs.Root()

	if *configPath != "" {
		logger.Info("Loading configuration from %s", *configPath)
		cfg, err := config.Load(*configPath)
		if err != nil {
			logger.Error("Failed to load configuration: %v", err)
			os.Exit(1)
		}
		if err := config.Apply(cfg, registry, root); err != nil {
			logger.Error("Failed to apply configuration: %v", err)
			os.Exit(1)
		}
	}

	switch {
	case *listPath != "":
		if err := list(root, *listPath, *maxDepth, *namePattern); err != nil {
			logger.Error("List failed: %v", err)
			os.Exit(1)
		}
	case *mountPoint != "":
		if err := serve(root, *mountPoint); err != nil {
			os.Exit(1)
		}
	default:
		logger.Error("Nothing to do: pass --mount or --list")
		flag.Usage()
		os.Exit(2)
	}
}

func list(root *vfs.FileSystem, start string, maxDepth int, pattern string) error {
	p, err := root.PathFor(start)
	if err != nil {
		return err
	}
	set := vfs.NewPathSet(p).WithMaxDepth(maxDepth)
	if pattern != "" {
		set = set.WithPattern(pattern)
	}
	w := set.Walk()
	for w.Next() {
		fmt.Println(w.Path().String())
	}
	return w.Err()
}

func serve(root *vfs.FileSystem, mountPoint string) error {
	srv := fusefront.NewServer(root)
	if err := srv.Mount(mountPoint); err != nil {
		logger.Error("Mount failed: %v", err)
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal %v", sig)

	if err := srv.Unmount(mountPoint); err != nil {
		logger.Error("Unmount error: %v", err)
		return err
	}
	logger.Info("Clean shutdown complete")
	return nil
}
