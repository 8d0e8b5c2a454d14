package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vote-ledger/blockchain"
	"vote-ledger/service"
)

var tallyJSON bool

var tallyCmd = &cobra.Command{
	Use:   "tally",
	Short: "Count the sealed votes for the configured candidates",
	Args:  cobra.NoArgs,
	RunE:  runTally,
}

func init() {
	tallyCmd.Flags().BoolVar(&tallyJSON, "json", false, "print the results as JSON")
}

func runTally(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer log.Sync()

	chain, err := openChain(cfg, log, blockchain.LoadFailFast)
	if err != nil {
		return err
	}
	session, err := newSession(cfg)
	if err != nil {
		return err
	}

	candidates := session.Candidates()
	results := service.Tally(chain.Blocks(), candidates)

	out := cmd.OutOrStdout()
	if tallyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCANDIDATE\tPARTY\tVOTES")
	for _, row := range results.Ranking(candidates) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", row.ID, row.Name, row.Party, row.Votes)
	}
	fmt.Fprintf(w, "\tTOTAL\t\t%d\n", results.Total)
	if results.Excluded > 0 {
		fmt.Fprintf(w, "\tEXCLUDED\t\t%d\n", results.Excluded)
	}
	return w.Flush()
}
