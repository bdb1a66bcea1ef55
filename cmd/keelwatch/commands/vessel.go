package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teranos/keelwatch/vessel"
)

// VesselCmd inspects the authoritative vessel inventory
var VesselCmd = &cobra.Command{
	Use:   "vessel",
	Short: "Inspect the vessel inventory",
	Long: `vessel — Inspect the authoritative vessel inventory.

Examples:
  keelwatch vessel ls northdock             # Active vessels for a source
  keelwatch vessel ls northdock --status sold
  keelwatch vessel show northdock hull-42   # One vessel with price history`,
}

var vesselStatusFlag string

var vesselLsCmd = &cobra.Command{
	Use:   "ls <source>",
	Short: "List vessels for a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runVesselLs,
}

var vesselShowCmd = &cobra.Command{
	Use:   "show <source> <vessel-key>",
	Short: "Show one vessel and its price history",
	Args:  cobra.ExactArgs(2),
	RunE:  runVesselShow,
}

func init() {
	vesselLsCmd.Flags().StringVar(&vesselStatusFlag, "status", "active", "Status to list (active, sold, removed)")

	VesselCmd.AddCommand(vesselLsCmd)
	VesselCmd.AddCommand(vesselShowCmd)
}

func formatPrice(price int64, currency string) string {
	if price == 0 {
		return "-"
	}
	if currency == "" {
		return fmt.Sprintf("%d.%02d", price/100, price%100)
	}
	return fmt.Sprintf("%d.%02d %s", price/100, price%100, currency)
}

func runVesselLs(cmd *cobra.Command, args []string) error {
	if !vessel.IsValidStatus(vesselStatusFlag) {
		return fmt.Errorf("unknown vessel status %q", vesselStatusFlag)
	}
	status := vessel.Status(vesselStatusFlag)

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	vessels, err := vessel.NewStore(database).ListByStatus(cmd.Context(), args[0], status)
	if err != nil {
		return err
	}
	if len(vessels) == 0 {
		fmt.Printf("No %s vessels for source %s\n", status, args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTITLE\tPRICE\tFIRST SEEN\tLAST SEEN")
	for _, v := range vessels {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			v.Key, v.Title, formatPrice(v.Price, v.Currency),
			v.FirstSeenAt.Format("2006-01-02"), v.LastSeenAt.Format("2006-01-02"))
	}
	return w.Flush()
}

func runVesselShow(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	store := vessel.NewStore(database)
	v, err := store.Get(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	fmt.Printf("Vessel:     %s/%s\n", v.Source, v.Key)
	fmt.Printf("Title:      %s\n", v.Title)
	fmt.Printf("URL:        %s\n", v.URL)
	fmt.Printf("Status:     %s\n", v.Status)
	fmt.Printf("Price:      %s\n", formatPrice(v.Price, v.Currency))
	fmt.Printf("First seen: %s\n", v.FirstSeenAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Last seen:  %s\n", v.LastSeenAt.Format("2006-01-02 15:04:05"))

	history, err := store.PriceHistory(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Println("\nPrice history:")
		for _, e := range history {
			fmt.Printf("  %s  %s\n", e.RecordedAt.Format("2006-01-02"), formatPrice(e.Price, e.Currency))
		}
	}
	return nil
}
