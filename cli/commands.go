package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"runtime"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/mwantia/vfsindex/cli/tui"
	"github.com/mwantia/vfsindex/metrics"
	"github.com/mwantia/vfsindex/monitor"
	"github.com/mwantia/vfsindex/snapshot"
)

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("%s %s\n", path.Base(os.Args[0]), version)
	fmt.Printf("%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}

type IndexCmd struct {
	Save bool `short:"s" help:"Save the index to the configured store."`
}

func (c *IndexCmd) Run(cli *CLI, ctx context.Context) error {
	sess, err := cli.open(ctx, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	start := time.Now()
	if err := sess.enumerator.WaitIdle(ctx); err != nil {
		return err
	}

	s := sess.enumerator.GetCurrentSnapshot()
	archives := 0
	var size int64
	s.Walk(func(d *snapshot.Directory) bool {
		for _, f := range d.Files {
			size += f.Size
			if f.Archive != nil {
				archives++
			}
		}
		return true
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Mounts:\t%d\n", len(sess.enumerator.Mounts()))
	fmt.Fprintf(w, "Directories:\t%d\n", s.DirectoryCount())
	fmt.Fprintf(w, "Files:\t%d (%s)\n", s.FileCount(), humanize.Bytes(uint64(size)))
	fmt.Fprintf(w, "Archives:\t%d\n", archives)
	fmt.Fprintf(w, "Generation:\t%d\n", s.Generation)
	fmt.Fprintf(w, "Elapsed:\t%s\n", time.Since(start).Round(time.Millisecond))
	if err := w.Flush(); err != nil {
		return err
	}

	if c.Save {
		return sess.enumerator.Save(ctx)
	}
	return nil
}

type FindCmd struct {
	Extension []string `short:"e" help:"File extensions to match."`
	Token     []string `short:"t" help:"File name tokens to match."`
	Pattern   []string `short:"p" help:"Glob patterns matched against the engine path."`
	Flat      bool     `short:"f" help:"Only match files directly inside the directories."`

	Directories []string `arg:"" optional:"" help:"Engine paths to search below."`
}

func (c *FindCmd) Run(cli *CLI, ctx context.Context) error {
	sess, err := cli.open(ctx, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.enumerator.WaitIdle(ctx); err != nil {
		return err
	}

	files := sess.enumerator.GetCurrentSnapshot().FindFiles(snapshot.FileFilter{
		DirectoryFilter: snapshot.DirectoryFilter{
			Directories: c.Directories,
			Recursive:   !c.Flat,
		},
		FileExtensions: c.Extension,
		FileTokens:     c.Token,
		Patterns:       c.Pattern,
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, f := range files {
		source := "disk"
		if entry, ok := f.Providers.Active(); ok && !entry.Provider.IsPhysical() {
			source = entry.Provider.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.Path.Full, humanize.Bytes(uint64(f.Size)), f.Type.Name, source)
	}
	return w.Flush()
}

type ServeCmd struct {
	MetricsAddr string `help:"Address of the metrics endpoint, overrides the configuration."`
}

func (c *ServeCmd) Run(cli *CLI, ctx context.Context) error {
	sess, err := cli.open(ctx, true)
	if err != nil {
		return err
	}
	defer sess.Close()

	addr := sess.cfg.MetricsAddr
	if c.MetricsAddr != "" {
		addr = c.MetricsAddr
	}

	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(sess.registry))
		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			sess.log.Info("Metrics server listening on '%s'", addr)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				sess.log.Error("Metrics server failed: %v", err)
			}
		}()
		defer func() {
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			server.Shutdown(shutdown)
		}()
	}

	go sess.watchConsul(ctx)

	<-ctx.Done()
	sess.log.Info("Shutting down")
	return nil
}

type BrowseCmd struct {
	Path string `arg:"" optional:"" help:"Engine path to start in."`
}

func (c *BrowseCmd) Run(cli *CLI, ctx context.Context) error {
	sess, err := cli.open(ctx, false)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go sess.watchConsul(ctx)

	model := tui.NewModel(sess.enumerator, c.Path)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// The browser redraws on every commit that changes the tree.
	id := sess.enumerator.StartSubTreeMonitor(snapshot.FileFilter{
		DirectoryFilter: snapshot.DirectoryFilter{Recursive: true},
	}, monitor.SubTreeMonitorFunc{
		OnActivated: func(s *snapshot.Snapshot) { p.Send(tui.SnapshotMsg{Snapshot: s}) },
		OnUpdate:    func(u *monitor.SubTreeUpdate) { p.Send(tui.SnapshotMsg{Snapshot: u.To}) },
	})
	defer sess.enumerator.StopMonitor(id)

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}
