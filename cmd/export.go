package cmd

import (
	"fmt"
	"os"

	"github.com/camden-git/faceattend/report"
	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the attendance table to CSV",
	Long: `Write every attendance row to a CSV file with the header id,name,date,time,
ordered by date and time. Use --out - to write to standard output.`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().String("out", "", "Output file (defaults to REPORT_PATH)")
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	out := mustGetString(cmd, "out")
	if out == "-" {
		_, err := report.WriteCSV(cmd.Context(), os.Stdout, a.db.SQL, a.db.Builder)
		return err
	}
	if out == "" {
		out = a.cfg.ReportPath
	}

	n, err := report.ExportFile(cmd.Context(), a.db, out)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %d attendance rows to %s\n", n, out)
	return nil
}
