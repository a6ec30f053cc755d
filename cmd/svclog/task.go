package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Browse service tasks",
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		t, err := tasks.ReadTask(cmd.Context(), id)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(t)
		} else {
			printTaskTable(t)
		}
		return nil
	},
}

var taskSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		subtype, _ := cmd.Flags().GetString("subtype")
		includeVariants, _ := cmd.Flags().GetBool("variants")
		allStatuses, _ := cmd.Flags().GetBool("all-statuses")
		limit, _ := cmd.Flags().GetInt("limit")

		list, err := tasks.Search(cmd.Context(), args[0], subtype, includeVariants, allStatuses, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
		} else {
			printTaskListTable(list)
		}
		return nil
	},
}

var taskRelatedCmd = &cobra.Command{
	Use:   "related <id>",
	Short: "List tasks related to one task by category or tag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		limit, _ := cmd.Flags().GetInt("limit")

		t, err := tasks.ReadTask(cmd.Context(), id)
		if err != nil {
			return err
		}

		list, err := tasks.Related(cmd.Context(), t.CategoryIDs, t.TagIDs, []int64{t.ID}, limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
		} else {
			printTaskListTable(list)
		}
		return nil
	},
}

func init() {
	taskSearchCmd.Flags().String("subtype", "", "narrow to one task subtype")
	taskSearchCmd.Flags().Bool("variants", false, "include variant tasks")
	taskSearchCmd.Flags().Bool("all-statuses", false, "match tasks in any status")
	taskSearchCmd.Flags().Int("limit", 20, "maximum number of tasks to return")

	taskRelatedCmd.Flags().Int("limit", 5, "maximum number of related tasks")

	taskCmd.AddCommand(taskShowCmd)
	taskCmd.AddCommand(taskSearchCmd)
	taskCmd.AddCommand(taskRelatedCmd)
}
