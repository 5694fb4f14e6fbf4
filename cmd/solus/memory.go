package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solus-ai/solus/config"
	"github.com/solus-ai/solus/memory"
)

func newMemoryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect the memory snapshot",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print entry counts per user and snapshot sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStats(cmd, a.cfg, cmd.OutOrStdout())
		},
	}
	cmd.AddCommand(stats)
	return cmd
}

// snapshotStats summarizes a snapshot on disk without loading the index.
type snapshotStats struct {
	Path        string
	EntriesFile string
	Entries     int
	Tenants     map[string]int
	IndexBytes  int64
}

func readStats(cmd *cobra.Command, cfg *config.Config) (*snapshotStats, error) {
	codec := newCodec(cfg)
	entriesPath := filepath.Join(cfg.Memory.Path, codec.FileName())

	st := &snapshotStats{
		Path:        cfg.Memory.Path,
		EntriesFile: codec.FileName(),
		Tenants:     make(map[string]int),
	}

	if _, err := os.Stat(entriesPath); err == nil {
		entries, err := codec.Read(cmd.Context(), entriesPath)
		if err != nil {
			return nil, err
		}
		st.Entries = len(entries)
		for _, e := range entries {
			st.Tenants[e.TenantID]++
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if info, err := os.Stat(filepath.Join(cfg.Memory.Path, memory.IndexFileName)); err == nil {
		st.IndexBytes = info.Size()
	}
	return st, nil
}

func printStats(cmd *cobra.Command, cfg *config.Config, w io.Writer) error {
	st, err := readStats(cmd, cfg)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	fmt.Fprintf(w, "path:    %s\n", st.Path)
	fmt.Fprintf(w, "entries: %d (%s)\n", st.Entries, st.EntriesFile)
	fmt.Fprintf(w, "index:   %d bytes (%s)\n", st.IndexBytes, memory.IndexFileName)
	fmt.Fprintf(w, "users:   %d\n", len(st.Tenants))

	tenants := make([]string, 0, len(st.Tenants))
	for t := range st.Tenants {
		tenants = append(tenants, t)
	}
	sort.Strings(tenants)
	for _, t := range tenants {
		fmt.Fprintf(w, "  %-24s %d\n", t, st.Tenants[t])
	}
	return nil
}
