// Command acbmemctl is an operator CLI for the agent memory store,
// grounded on the teacher's cmd/dbctl/main.go flag-driven action
// dispatch: open the store directly, run one action, print the result.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/acbmem/agentmem/internal/bootstrap"
	"github.com/acbmem/agentmem/internal/store"
)

func main() {
	dbPath := flag.String("db", "./data/acbmem.db", "path to the SQLite store")
	action := flag.String("action", "", "action to perform: health, sweep-capsules, seed, prune-mode-windows")
	seedFile := flag.String("seed-file", "", "YAML seed file (required by the seed action)")
	beforeUnix := flag.Int64("before", 0, "window-start cutoff in unix seconds (prune-mode-windows)")
	jsonOutput := flag.Bool("json", false, "emit JSON output")
	flag.Parse()

	if *action == "" {
		fmt.Fprintln(os.Stderr, "usage: acbmemctl -db <path> -action <health|sweep-capsules|seed|prune-mode-windows> [flags]")
		os.Exit(1)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch *action {
	case "health":
		h, err := st.Health()
		if err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		printResult(*jsonOutput, h, func() {
			fmt.Printf("connected=%v schema_version=%d events=%d chunks=%d capsules=%d db=%s size=%dB\n",
				h.Connected, h.SchemaVersion, h.EventCount, h.ChunkCount, h.CapsuleCount, h.DBPath, h.DBSizeBytes)
		})

	case "sweep-capsules":
		n, err := st.SweepExpiredCapsulesAllTenants()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sweep failed: %v\n", err)
			os.Exit(1)
		}
		printResult(*jsonOutput, map[string]int{"expired": n}, func() {
			fmt.Printf("expired %d capsule(s)\n", n)
		})

	case "seed":
		if *seedFile == "" {
			fmt.Fprintln(os.Stderr, "seed action requires -seed-file")
			os.Exit(1)
		}
		f, err := bootstrap.LoadSeedFile(*seedFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load seed file: %v\n", err)
			os.Exit(1)
		}
		if err := bootstrap.Apply(st, f); err != nil {
			fmt.Fprintf(os.Stderr, "failed to apply seed file: %v\n", err)
			os.Exit(1)
		}
		printResult(*jsonOutput, map[string]int{"rules_applied": len(f.Rules)}, func() {
			fmt.Printf("applied %d rule(s) from %s\n", len(f.Rules), *seedFile)
		})

	case "prune-mode-windows":
		n, err := st.PruneModeWindowsBefore(*beforeUnix)
		if err != nil {
			fmt.Fprintf(os.Stderr, "prune failed: %v\n", err)
			os.Exit(1)
		}
		printResult(*jsonOutput, map[string]int{"pruned": n}, func() {
			fmt.Printf("pruned %d mode error-rate window row(s)\n", n)
		})

	default:
		fmt.Fprintf(os.Stderr, "unknown action: %s\n", *action)
		os.Exit(1)
	}
}

func printResult(asJSON bool, v interface{}, printText func()) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printText()
}
