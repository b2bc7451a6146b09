package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/sentinel-home/internal/store"
	"github.com/andresmejia3/sentinel-home/internal/utils"
	"github.com/spf13/cobra"
)

var (
	eventsLimit  int
	eventsAlerts bool
)

var eventsCmd = &cobra.Command{
	Use:         "events",
	Short:       "List recent visitor log entries (or alerts)",
	Annotations: map[string]string{needsDB: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		if eventsAlerts {
			runAlerts(cmd)
			return
		}
		runEvents(cmd)
	},
}

func init() {
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "l", store.DefaultListLimit, "Number of entries to show")
	eventsCmd.Flags().BoolVarP(&eventsAlerts, "alerts", "a", false, "List raised alerts instead of visits")
	rootCmd.AddCommand(eventsCmd)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func runEvents(cmd *cobra.Command) {
	visits, err := DB.ListVisits(cmd.Context(), eventsLimit)
	if err != nil {
		utils.Die("Failed to list visits", err, nil)
	}

	if len(visits) == 0 {
		fmt.Println("No visits recorded yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tNAME\tRECOGNIZED AS\tNOTES\tIMAGE")
	fmt.Fprintln(w, "----\t----\t-------------\t-----\t-----")

	for _, v := range visits {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			v.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			orDash(v.Name), v.RecognizedAs, v.Notes, orDash(v.ImageURL))
	}
	w.Flush()
}

func runAlerts(cmd *cobra.Command) {
	alerts, err := DB.ListAlerts(cmd.Context(), eventsLimit)
	if err != nil {
		utils.Die("Failed to list alerts", err, nil)
	}

	if len(alerts) == 0 {
		fmt.Println("No alerts raised yet.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tMESSAGE\tIMAGE")
	fmt.Fprintln(w, "----\t----\t-------\t-----")

	for _, a := range alerts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.AlertType, a.Message, orDash(a.ImageURL))
	}
	w.Flush()
}
