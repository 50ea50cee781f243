package view

import (
	"fmt"
	"io"
	"strings"
)

// WriteText prints a view as plain text, the way the CLI shows it.
func WriteText(w io.Writer, v View) error {
	var b strings.Builder

	if v.Notice != "" {
		fmt.Fprintf(&b, "! %s\n", v.Notice)
	}

	if sel := v.Upload.Selected; sel != nil {
		fmt.Fprintf(&b, "File: %s (%s)\n", sel.Name, sel.SizeLabel)
	}
	if v.Upload.Status != "" {
		fmt.Fprintf(&b, "Upload: %s\n", v.Upload.Status)
	}
	if v.Upload.Error != "" {
		fmt.Fprintf(&b, "Upload error: %s\n", v.Upload.Error)
	}

	if s := v.Summary; s != nil {
		fmt.Fprintf(&b, "%s\n", s.Counts)
		fmt.Fprintf(&b, "Trend: %s\n", s.QuickTrend)
		for _, c := range s.Columns {
			fmt.Fprintf(&b, "  [%s]\n", c)
		}
	}

	if v.Answer.Text != "" {
		if v.Answer.Question != "" {
			fmt.Fprintf(&b, "Q: %s\n", v.Answer.Question)
		}
		prefix := "A"
		if v.Answer.IsError {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "%s: %s\n", prefix, v.Answer.Text)
	}
	if v.Chart != nil {
		b.WriteString("Chart: available\n")
	}
	if v.Preview != "" {
		fmt.Fprintf(&b, "%s\n", v.Preview)
	}
	if len(v.Suggestions) > 0 {
		fmt.Fprintf(&b, "Try: %s\n", strings.Join(v.Suggestions, " | "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
