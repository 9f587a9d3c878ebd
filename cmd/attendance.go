package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/attendance-kiosk/internal/backend"
	"github.com/kozaktomas/attendance-kiosk/internal/config"
	"github.com/kozaktomas/attendance-kiosk/internal/recognition"
	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Query attendance records",
	Long:  `Commands for reading attendance data from the backend.`,
}

var attendanceTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List attendance records for a day",
	Long: `List check-in and check-out records for today or for the day given
with --date (YYYY-MM-DD).`,
	Args: cobra.NoArgs,
	RunE: runAttendanceToday,
}

var attendancePresentCmd = &cobra.Command{
	Use:   "present",
	Short: "List people currently checked in",
	Args:  cobra.NoArgs,
	RunE:  runAttendancePresent,
}

var attendanceLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List recent recognition attempts",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceLogs,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceTodayCmd, attendancePresentCmd, attendanceLogsCmd)

	attendanceCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	attendanceTodayCmd.Flags().String("date", "", "Day to list (YYYY-MM-DD), defaults to today")
	attendanceLogsCmd.Flags().Int("limit", 20, "Maximum number of entries to show (0 for all)")
}

func attendanceClient() (*backend.Client, context.Context, context.CancelFunc, error) {
	cfg := config.Load()
	client, err := newBackend(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*cfg.Backend.Timeout)
	return client, ctx, cancel, nil
}

func runAttendanceToday(cmd *cobra.Command, args []string) error {
	day := time.Now()
	if s := mustGetString(cmd, "date"); s != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, s, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", s)
		}
		day = parsed
	}

	client, ctx, cancel, err := attendanceClient()
	if err != nil {
		return err
	}
	defer cancel()

	records, err := client.Attendance(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to get attendance: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(records)
	}

	fmt.Printf("Attendance for %s: %d records\n", day.Format(time.DateOnly), len(records))
	for _, r := range records {
		out := r.CheckOutTime
		if out == "" {
			out = "-"
		}
		fmt.Printf("  %-30s in %-8s out %-8s %s\n", r.PersonName, r.CheckInTime, out, recognition.Humanize(r.Status))
	}
	return nil
}

func runAttendancePresent(cmd *cobra.Command, args []string) error {
	client, ctx, cancel, err := attendanceClient()
	if err != nil {
		return err
	}
	defer cancel()

	present, err := client.PresentToday(ctx)
	if err != nil {
		return fmt.Errorf("failed to get present employees: %w", err)
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(present)
	}

	fmt.Printf("Present on %s: %d\n", present.Date, present.PresentCount)
	for _, e := range present.Employees {
		fmt.Printf("  %-30s since %s", e.Name, e.CheckInTime)
		if e.Department != "" {
			fmt.Printf(" (%s)", e.Department)
		}
		fmt.Println()
	}
	return nil
}

func runAttendanceLogs(cmd *cobra.Command, args []string) error {
	client, ctx, cancel, err := attendanceClient()
	if err != nil {
		return err
	}
	defer cancel()

	logs, err := client.RecognitionLogs(ctx)
	if err != nil {
		return fmt.Errorf("failed to get recognition logs: %w", err)
	}
	if limit := mustGetInt(cmd, "limit"); limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	if mustGetBool(cmd, "json") {
		return outputJSON(logs)
	}

	for _, l := range logs {
		name := l.PersonName
		if name == "" {
			name = "(unknown)"
		}
		fmt.Printf("  %s  %-30s %5.1f%%  %s\n", l.RecognitionTime, name, l.ConfidenceScore*100, l.DetectionStatus)
	}
	return nil
}
