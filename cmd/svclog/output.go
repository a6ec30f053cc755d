package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/oakfield/servicelog/internal/model"
	"github.com/oakfield/servicelog/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printActivityTable(a *model.Activity) {
	fmt.Printf("ID:          %d\n", a.ID)
	fmt.Printf("Student:     %d\n", a.StudentID())
	fmt.Printf("Title:       %s\n", a.Title)
	fmt.Printf("Status:      %s\n", ui.RenderStatus(a.Status))
	if !a.ActivityDate.IsZero() {
		fmt.Printf("Date:        %s\n", a.ActivityDate.Format("2006-01-02"))
	}
	if a.AttachmentID != 0 {
		fmt.Printf("Attachment:  %d\n", a.AttachmentID)
	}
	if a.ExternalCode != "" {
		fmt.Printf("Code:        %s\n", a.ExternalCode)
	}
	if a.Description() != "" {
		fmt.Printf("Description: %s\n", a.Description())
	}
	fmt.Printf("Created At:  %s\n", ui.RenderMuted(a.CreatedAt.Format("2006-01-02 15:04:05")))
	fmt.Printf("Updated At:  %s\n", ui.RenderMuted(a.UpdatedAt.Format("2006-01-02 15:04:05")))
}

func printActivityListTable(activities []*model.Activity) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	titleWidth := ui.TitleWidth()
	fmt.Fprintln(w, "ID\tSTATUS\tDATE\tSTUDENT\tTITLE")
	for _, a := range activities {
		date := ""
		if !a.ActivityDate.IsZero() {
			date = a.ActivityDate.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			a.ID, ui.RenderStatus(a.Status), date, a.StudentID(), truncate(a.Title, titleWidth))
	}
	w.Flush()
	fmt.Printf("\n%d activities\n", len(activities))
}

func printTaskTable(t *model.Task) {
	fmt.Printf("ID:        %d\n", t.ID)
	fmt.Printf("Title:     %s\n", t.Title)
	fmt.Printf("Status:    %s\n", ui.RenderStatus(t.Status))
	if len(t.Years) > 0 {
		fmt.Printf("Years:     %s\n", joinInts(t.Years))
	}
	if len(t.Houses) > 0 {
		fmt.Printf("Houses:    %s\n", strings.Join(t.Houses, ", "))
	}
	if t.Duties != "" {
		fmt.Printf("Duties:    %s\n", t.Duties)
	}
	fmt.Printf("Created At: %s\n", ui.RenderMuted(t.CreatedAt.Format("2006-01-02 15:04:05")))
}

func printTaskListTable(tasks []*model.Task) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	titleWidth := ui.TitleWidth()
	fmt.Fprintln(w, "ID\tSTATUS\tYEARS\tHOUSES\tTITLE")
	for _, t := range tasks {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			t.ID, ui.RenderStatus(t.Status), joinInts(t.Years), strings.Join(t.Houses, ","), truncate(t.Title, titleWidth))
	}
	w.Flush()
	fmt.Printf("\n%d tasks\n", len(tasks))
}

func printStudentListTable(students []*model.Student) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tEMAIL\tYEAR\tHOUSE")
	for _, s := range students {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			s.ID, s.DisplayName, s.Email, s.Year, s.House)
	}
	w.Flush()
	fmt.Printf("\n%d students\n", len(students))
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
