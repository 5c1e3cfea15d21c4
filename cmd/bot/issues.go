package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"issuebot/internal/eventbus"
	"issuebot/internal/issues"
	logx "issuebot/pkg/logx"
)

var issuesMine int64

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List open issues, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		var creator *int64
		if issuesMine != 0 {
			creator = &issuesMine
		}
		open, err := issues.New(st, eventbus.Nop{}, logx.Nop()).ListOpen(cmd.Context(), creator)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no open issues")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "REF\tCREATED\tBY\tTITLE")
		for _, iss := range open {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", iss.Reference(), iss.CreatedAt.Local().Format(time.DateTime), iss.CreatedBy, iss.Title)
		}
		return tw.Flush()
	},
}

func init() {
	issuesCmd.Flags().Int64Var(&issuesMine, "by", 0, "Only issues reported by this user id")
}
