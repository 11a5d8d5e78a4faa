package reporting

import (
	"bytes"
	"fmt"
	"html/template"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

const reportTitle = "Readmission Risk Report"

// Markdown renders r as a Markdown document with one table per measure.
func Markdown(r FullReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\nGenerated %s\n", reportTitle, r.GeneratedAt.Format("2006-01-02 15:04 MST"))

	for _, m := range r.Measures {
		fmt.Fprintf(&b, "\n## %s\n\n", m.MeasureName)
		if m.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", m.Description)
		}
		if len(m.Results) == 0 {
			b.WriteString("_No data._\n")
		} else {
			writeTable(&b, m.Columns, m.Results)
		}
		for _, k := range sortedKeys(m.Summary) {
			fmt.Fprintf(&b, "\n**%s**: %s\n", k, cell(m.Summary[k]))
		}
	}
	return b.String()
}

// HTML renders r through Markdown into a standalone HTML page.
func HTML(r FullReport) ([]byte, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(Markdown(r)), &body); err != nil {
		return nil, fmt.Errorf("render report markdown: %w", err)
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{reportTitle, template.HTML(body.String())}) //nolint: gosec
	if err != nil {
		return nil, fmt.Errorf("render report page: %w", err)
	}
	return out.Bytes(), nil
}

func writeTable(b *strings.Builder, cols []string, rows []Row) {
	if len(cols) == 0 {
		cols = sortedKeys(rows[0])
	}
	b.WriteString("| " + strings.Join(cols, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, row := range rows {
		cells := make([]string, len(cols))
		for i, c := range cols {
			cells[i] = cell(row[c])
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
}

func cell(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
