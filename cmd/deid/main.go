// Command deid de-identifies documents with reversible synthetic
// replacements, restores them from a replacement map, and marks where the
// original values appear in PDF layouts.
//
// Usage:
//
//	# De-identify a file or every supported file in a directory
//	deid deidentify report.pdf --output-dir out/
//
//	# Restore originals using the map file or a stored run ID
//	deid reidentify out/report_processed.json --map out/report_mappings.json
//
//	# Highlight original values in the source PDF
//	deid visualize report.pdf --map out/report_mappings.json
//
//	# Run the HTTP API
//	DEID_API_TOKEN=secret deid serve
//
// Settings come from deid.yaml (or --config), then DEID_* environment
// variables. A .env file in the working directory is loaded first.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"document-deidentifier/internal/config"
	"document-deidentifier/internal/mapstore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func printBanner(w io.Writer, cfg *config.Config) {
	detector := cfg.Detector
	if cfg.Detector == config.DetectorPresidio {
		detector += " (" + cfg.PresidioEndpoint + ")"
	}
	store := cfg.MapStorePath
	if store == "" {
		store = "(memory, set mapStorePath to keep runs)"
	}
	source := cfg.Source
	if source == "" {
		source = "(defaults + environment)"
	}
	token := "disabled"
	if cfg.APIToken != "" {
		token = "enabled"
	}
	fmt.Fprintln(w, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║          Document De-identifier              ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════╝")
	fmt.Fprintf(w, "  Config        : %s\n", source)
	fmt.Fprintf(w, "  Detector      : %s\n", detector)
	fmt.Fprintf(w, "  Entities      : %s\n", strings.Join(cfg.Entities, ", "))
	fmt.Fprintf(w, "  Map store     : %s\n", store)
	fmt.Fprintf(w, "  API           : http://%s\n", cfg.Addr())
	fmt.Fprintf(w, "  API auth      : %s\n", token)
	fmt.Fprintf(w, "  Formats       : %s\n", strings.Join(formatsList(), " "))
	fmt.Fprintln(w)
}

// recordsTable renders stored runs one per line.
func recordsTable(w io.Writer, recs []mapstore.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no stored runs")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %s\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Source)
	}
}
