package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/andresmejia3/sentinel-home/internal/gallery"
	"github.com/spf13/cobra"
)

var galleryShowNames bool

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Fetch the family and criminal galleries once and report what they hold",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		store, _, err := newGalleryStore(slog.Default(), false)
		if err != nil {
			return err
		}
		refreshErr := store.RefreshAll(cmd.Context())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "GALLERY\tENTRIES\tFETCHED\tERROR")
		fmt.Fprintln(w, "-------\t-------\t-------\t-----")
		for _, st := range store.Status() {
			fetched := "-"
			if !st.FetchedAt.IsZero() {
				fetched = st.FetchedAt.Local().Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", st.ID, st.Count, fetched, orDash(st.LastError))
		}
		w.Flush()

		if galleryShowNames {
			for _, id := range gallery.IDs {
				snap := store.Read(id)
				fmt.Printf("\n%s:\n", id)
				for i := 0; i < snap.Len(); i++ {
					_, name := snap.At(i)
					fmt.Printf("  %3d  %s\n", i, name)
				}
			}
		}
		return refreshErr
	},
}

func init() {
	galleryCmd.Flags().BoolVar(&galleryShowNames, "names", false, "Also list the names in each gallery")
	rootCmd.AddCommand(galleryCmd)
}
