package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/camden-git/faceattend/recognition"
	"github.com/camden-git/faceattend/services"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect recorded attendance",
}

var attendanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List attendance, newest first",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceList,
}

var attendanceStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show student and attendance counts",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceStats,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceListCmd, attendanceStatsCmd)

	attendanceListCmd.Flags().String("date", "", "Only this date (YYYY-MM-DD, or \"today\")")
	attendanceListCmd.Flags().Int64("student", -1, "Only this student id")
	attendanceListCmd.Flags().String("name", "", "Only names containing this text (accents ignored)")
	attendanceListCmd.Flags().Int("limit", 0, "Maximum number of rows (0 for all)")
}

func runAttendanceList(cmd *cobra.Command, args []string) error {
	query := services.AttendanceQuery{
		Date:  mustGetString(cmd, "date"),
		Name:  mustGetString(cmd, "name"),
		Limit: mustGetInt(cmd, "limit"),
	}
	if query.Date == "today" {
		query.Date = time.Now().Format(recognition.DateLayout)
	}
	if query.Date != "" {
		if _, err := time.Parse(recognition.DateLayout, query.Date); err != nil {
			return fmt.Errorf("--date must be formatted YYYY-MM-DD")
		}
	}
	if id := mustGetInt64(cmd, "student"); id >= 0 {
		query.StudentID = &id
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := services.NewAttendanceService(a.store, a.db).List(cmd.Context(), query)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No attendance recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tTIME\tID\tNAME")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Date, r.Time, r.StudentID, r.Name)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d row(s)\n", len(rows))
	return nil
}

func runAttendanceStats(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := services.NewAttendanceService(a.store, a.db).Stats(cmd.Context(), time.Now())
	if err != nil {
		return err
	}
	fmt.Printf("Students enrolled:      %d\n", stats.TotalStudents)
	fmt.Printf("Attendance today:       %d\n", stats.TodayAttendance)
	fmt.Printf("Attendance last 7 days: %d\n", stats.ThisWeekAttendance)
	return nil
}
