package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/clientledger/clientledger/server/internal/compute"
)

const stampLayout = "02/01/2006 15:04:05"

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format(time.DateOnly) },
	"stamp": func(t time.Time) string { return t.Format(stampLayout) },
	"comma": func(n int) string { return humanize.Comma(int64(n)) },
	"num":   func(f float64) string { return humanize.FormatFloat("#,###.##", f) },
}).Parse(`
{{define "customer"}}<html><body style="font-family: Arial, sans-serif;">
<h2>New customer registered</h2>
<table style="border-collapse: collapse;">
<tr><td><strong>ID</strong></td><td>{{.ID}}</td></tr>
<tr><td><strong>Name</strong></td><td>{{.FirstName}} {{.LastName}}</td></tr>
<tr><td><strong>Age</strong></td><td>{{.Age}}</td></tr>
<tr><td><strong>Birth date</strong></td><td>{{date .BirthDate}}</td></tr>
<tr><td><strong>Projected date</strong></td><td>{{date .ProjectedDate}}</td></tr>
<tr><td><strong>Remaining years</strong></td><td>{{.RemainingYears}}</td></tr>
<tr><td><strong>Registered</strong></td><td>{{stamp .CreatedAt}}</td></tr>
</table>
</body></html>{{end}}

{{define "stats"}}<html><body style="font-family: Arial, sans-serif;">
<h2>Customer statistics</h2>
{{if .Report.Count}}<ul>
<li>Active customers: {{comma .Report.Count}}</li>
<li>Mean age: {{num .Report.Mean}}</li>
<li>Standard deviation: {{num .Report.StdDev}}</li>
<li>Median age: {{num .Report.Median}}</li>
<li>Youngest / oldest: {{.Report.Min}} / {{.Report.Max}}</li>
</ul>
<h3>Age distribution</h3>
<ul>{{range .Report.Histogram}}<li>{{.Label}}: {{comma .Count}}</li>{{end}}</ul>
{{else}}<p>{{.Report.Message}}</p>{{end}}
<p style="color: #7f8c8d;">Generated {{stamp .At}}</p>
</body></html>{{end}}

{{define "batch"}}<html><body style="font-family: Arial, sans-serif;">
<h2>Batch import finished</h2>
<p>{{comma .Created}} of {{comma .Total}} customers created by {{.Actor}}.</p>
{{if .Failed}}<p style="color: #c0392b;">{{comma .Failed}} failed.</p>{{end}}
<p style="color: #7f8c8d;">{{stamp .At}}</p>
</body></html>{{end}}

{{define "custom"}}<html><body style="font-family: Arial, sans-serif;">
<p>{{.}}</p>
</body></html>{{end}}
`))

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		// Templates are fixed at build time; a failure here is a programming error.
		panic(fmt.Sprintf("notify: render %s: %v", name, err))
	}
	return buf.String()
}

// CustomerInfo is the customer data shown in a creation notice.
type CustomerInfo struct {
	ID             int64
	FirstName      string
	LastName       string
	Age            int
	BirthDate      time.Time
	ProjectedDate  time.Time
	RemainingYears int
	CreatedAt      time.Time
}

// CustomerCreated builds the administrator notice for a new customer.
func CustomerCreated(c CustomerInfo) Message {
	return Message{
		Event:   EventCustomerCreated,
		Subject: fmt.Sprintf("New customer registered - ID %d", c.ID),
		HTML:    render("customer", c),
		Text: fmt.Sprintf("%s %s (ID %d, age %d, born %s) was registered at %s. Projected date %s, %d years remaining.",
			c.FirstName, c.LastName, c.ID, c.Age, c.BirthDate.Format(time.DateOnly),
			c.CreatedAt.Format(stampLayout), c.ProjectedDate.Format(time.DateOnly), c.RemainingYears),
	}
}

// StatsComputed builds the statistics report message for to (the
// administrator when empty).
func StatsComputed(to string, r compute.Report, at time.Time) Message {
	var text strings.Builder
	if r.Count == 0 {
		text.WriteString(r.Message)
	} else {
		fmt.Fprintf(&text, "%s active customers, mean age %s, std dev %s, median %s, range %d-%d.",
			humanize.Comma(int64(r.Count)),
			humanize.FormatFloat("#,###.##", r.Mean),
			humanize.FormatFloat("#,###.##", r.StdDev),
			humanize.FormatFloat("#,###.##", r.Median),
			r.Min, r.Max)
		for _, b := range r.Histogram {
			fmt.Fprintf(&text, "\n%s: %s", b.Label, humanize.Comma(int64(b.Count)))
		}
	}
	return Message{
		Event:   EventStatsComputed,
		To:      to,
		Subject: "Customer statistics - " + at.Format(stampLayout),
		HTML: render("stats", struct {
			Report compute.Report
			At     time.Time
		}{r, at}),
		Text: text.String(),
	}
}

// BatchSummary describes one finished batch import.
type BatchSummary struct {
	Actor   string
	Total   int
	Created int
	Failed  int
	At      time.Time
}

// BatchCompleted builds the administrator summary of a batch import.
func BatchCompleted(b BatchSummary) Message {
	text := fmt.Sprintf("%s of %s customers created by %s.",
		humanize.Comma(int64(b.Created)), humanize.Comma(int64(b.Total)), b.Actor)
	if b.Failed > 0 {
		text += fmt.Sprintf(" %s failed.", humanize.Comma(int64(b.Failed)))
	}
	return Message{
		Event:   EventBatchSummary,
		Subject: fmt.Sprintf("Batch import: %d/%d customers created", b.Created, b.Total),
		HTML:    render("batch", b),
		Text:    text,
	}
}

// Custom builds a free-form note to a specific recipient.
func Custom(to, subject, body string) Message {
	return Message{
		Event:   EventCustom,
		To:      to,
		Subject: subject,
		HTML:    render("custom", body),
		Text:    body,
	}
}
