package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/travelhub/crm-escalation/db"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the escalation ladder",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "LEVEL\tLABEL\tAFTER\tTARGET\tCHANNELS\tPRIORITY")
		for _, rule := range db.EscalationRules {
			channels := make([]string, len(rule.Channels))
			for i, ch := range rule.Channels {
				channels[i] = string(ch)
			}
			fmt.Fprintf(w, "%d\t%s\t%dm\t%s\t%s\t%s\n",
				rule.Level, rule.Label, rule.DelayMinutes, rule.Target, strings.Join(channels, ","), rule.Priority)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
