package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var studentCmd = &cobra.Command{
	Use:   "student",
	Short: "Look up students",
}

var studentSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Search students by name or email",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		list, err := students.Search(cmd.Context(), args[0], limit)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(list)
		} else {
			printStudentListTable(list)
		}
		return nil
	},
}

var studentShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one student with aggregates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		st, err := students.ReadStudent(cmd.Context(), id)
		if err != nil {
			return err
		}

		st.ActivityCount, err = students.ActivityCount(cmd.Context(), id)
		if err != nil {
			return err
		}
		st.MoneySpent, err = students.TotalSpent(cmd.Context(), id)
		if err != nil {
			return err
		}

		if jsonOutput {
			printJSON(st)
			return nil
		}
		fmt.Printf("ID:          %d\n", st.ID)
		fmt.Printf("Name:        %s\n", st.DisplayName)
		fmt.Printf("Email:       %s\n", st.Email)
		if st.Year != 0 {
			fmt.Printf("Year:        %d\n", st.Year)
		}
		if st.House != "" {
			fmt.Printf("House:       %s\n", st.House)
		}
		if st.GuardianEmail != "" {
			fmt.Printf("Guardian:    %s\n", st.GuardianEmail)
		}
		fmt.Printf("Activities:  %d\n", st.ActivityCount)
		fmt.Printf("Spent:       %.2f\n", st.MoneySpent)
		return nil
	},
}

var studentCountCmd = &cobra.Command{
	Use:   "count <id>",
	Short: "Show a student's approved-activity count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		n, err := students.ActivityCount(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

func init() {
	studentSearchCmd.Flags().Int("limit", 20, "maximum number of students to return")

	studentCmd.AddCommand(studentSearchCmd)
	studentCmd.AddCommand(studentShowCmd)
	studentCmd.AddCommand(studentCountCmd)
}
