package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oakfield/servicelog/internal/model"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Manage service activities",
}

var activityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List activities",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := model.Filter{}
		if v, _ := cmd.Flags().GetString("status"); v != "" {
			filter["status"] = v
		}
		if v, _ := cmd.Flags().GetInt64("student"); v > 0 {
			filter["student"] = v
		}
		if v, _ := cmd.Flags().GetString("date"); v != "" {
			filter["date"] = v
		}
		if v, _ := cmd.Flags().GetString("search"); v != "" {
			filter["search"] = v
		}
		if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
			filter["limit"] = v
		}

		list, err := activities.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
		} else {
			printActivityListTable(list)
		}
		return nil
	},
}

var activityShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		a, err := activities.ReadActivity(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(a)
		} else {
			printActivityTable(a)
		}
		return nil
	},
}

var activityCreateCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Record a new activity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		studentID, _ := cmd.Flags().GetInt64("student")
		dateStr, _ := cmd.Flags().GetString("date")
		description, _ := cmd.Flags().GetString("description")

		a := model.NewActivity()
		a.SetTitle(args[0])
		a.SetStudentID(studentID)
		a.SetDescription(description)
		if dateStr != "" {
			d, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid date %q (want YYYY-MM-DD)", dateStr)
			}
			a.SetActivityDate(d)
		}

		if err := activities.CreateActivity(cmd.Context(), a); err != nil {
			return err
		}
		fmt.Printf("Created activity %d\n", a.ID)
		return nil
	},
}

func newStatusCommand(use, short string, target model.Status) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			a, err := activities.ReadActivity(cmd.Context(), id)
			if err != nil {
				return err
			}
			a.UpdateStatus(target)
			if err := activities.UpdateActivity(cmd.Context(), a); err != nil {
				return err
			}
			fmt.Printf("Activity %d is now %s\n", a.ID, a.Status)
			return nil
		},
	}
}

var activityDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an activity (soft unless --hard)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		hard, _ := cmd.Flags().GetBool("hard")
		if err := activities.Delete(cmd.Context(), id, hard); err != nil {
			return err
		}
		fmt.Printf("Deleted activity %d\n", id)
		return nil
	},
}

func init() {
	activityListCmd.Flags().StringP("status", "s", "", "filter by status")
	activityListCmd.Flags().Int64("student", 0, "filter by student id")
	activityListCmd.Flags().String("date", "", `activity date filter (e.g. "2026-01-02", ">=2026-01-01", "2026-01-01...2026-06-30")`)
	activityListCmd.Flags().String("search", "", "free-text search")
	activityListCmd.Flags().Int("limit", 0, "maximum number of activities to return")

	activityCreateCmd.Flags().Int64("student", 0, "owning student id")
	activityCreateCmd.Flags().String("date", "", "activity date (YYYY-MM-DD)")
	activityCreateCmd.Flags().String("description", "", "activity description")

	activityDeleteCmd.Flags().Bool("hard", false, "remove the row instead of trashing it")

	activityCmd.AddCommand(activityListCmd)
	activityCmd.AddCommand(activityShowCmd)
	activityCmd.AddCommand(activityCreateCmd)
	activityCmd.AddCommand(newStatusCommand("approve", "Approve a pending activity", model.StatusApproved))
	activityCmd.AddCommand(newStatusCommand("decline", "Decline a pending activity", model.StatusDeclined))
	activityCmd.AddCommand(activityDeleteCmd)
}
