package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gluk-w/claworc/webconsole/internal/backend"
	"github.com/gluk-w/claworc/webconsole/internal/database"
	"github.com/gluk-w/claworc/webconsole/internal/handlers"
)

var connectionsCmd = &cobra.Command{
	Use:     "connections",
	Aliases: []string{"ls"},
	Short:   "List the connections tabs can be opened on",
	Args:    cobra.NoArgs,
	RunE:    runConnections,
}

var importCmd = &cobra.Command{
	Use:   "import <profiles.yaml>",
	Short: "Import connection profiles into the local catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

func init() {
	rootCmd.AddCommand(connectionsCmd)
	rootCmd.AddCommand(importCmd)
}

func runConnections(cmd *cobra.Command, args []string) error {
	cleanup, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	source, _, err := connectionSource(backend.FromConfig())
	if err != nil {
		return err
	}
	lister, ok := source.(handlers.ConnectionLister)
	if !ok {
		return fmt.Errorf("connection source cannot list connections")
	}
	conns, err := lister.ListConnections(context.Background())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPROTOCOL\tHOST\tPORT\tTITLE")
	for _, c := range conns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Protocol, c.Host, c.Port, c.Title())
	}
	return w.Flush()
}

func runImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	cleanup, err := setup(os.Stderr)
	if err != nil {
		return err
	}
	defer cleanup()

	ds, err := database.ParseProfiles(f)
	if err != nil {
		return err
	}
	n, err := database.ImportProfiles(ds)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d connection profiles.\n", n)
	return nil
}
