package digest

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	ttemplate "text/template"
	"time"
	"unicode/utf8"
)

//go:embed templates/*.html
var templateFS embed.FS

// DefaultSubject is the subject template used when none is configured.
const DefaultSubject = "Weekly news in the category {{.Category}}"

// View is the data a digest template is executed with.
type View struct {
	Subject  string
	Category Category
	Items    []Item
	Start    time.Time
	End      time.Time
	SiteURL  string
}

// Renderer turns a Group into a mail subject and HTML body.
type Renderer struct {
	body    *template.Template
	subject *ttemplate.Template
	siteURL string
}

// NewRenderer parses the embedded body template and the subject template.
// The subject template receives .Category (the category name).
func NewRenderer(subject, siteURL string, loc *time.Location) (*Renderer, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if loc == nil {
		loc = time.UTC
	}
	siteURL = strings.TrimRight(siteURL, "/")

	funcs := template.FuncMap{
		"truncate": truncate,
		"date": func(t time.Time) string {
			return t.In(loc).Format("02.01.2006 15:04")
		},
		"postURL": func(id int64) string {
			return siteURL + "/news/" + strconv.FormatInt(id, 10)
		},
	}

	body, err := template.New("weekly.html").Funcs(funcs).ParseFS(templateFS, "templates/weekly.html")
	if err != nil {
		return nil, fmt.Errorf("digest: parsing body template: %w", err)
	}
	subj, err := ttemplate.New("subject").Option("missingkey=error").Parse(subject)
	if err != nil {
		return nil, fmt.Errorf("digest: parsing subject template: %w", err)
	}
	return &Renderer{body: body, subject: subj, siteURL: siteURL}, nil
}

// Render produces the subject and HTML body for g.
func (r *Renderer) Render(g Group, start, end time.Time) (subject, html string, err error) {
	var sb bytes.Buffer
	if err := r.subject.Execute(&sb, map[string]string{"Category": g.Category.Name}); err != nil {
		return "", "", fmt.Errorf("digest: rendering subject for %q: %w", g.Category.Name, err)
	}
	subject = strings.TrimSpace(sb.String())

	var hb bytes.Buffer
	view := View{
		Subject:  subject,
		Category: g.Category,
		Items:    g.Items,
		Start:    start,
		End:      end,
		SiteURL:  r.siteURL,
	}
	if err := r.body.Execute(&hb, view); err != nil {
		return "", "", fmt.Errorf("digest: rendering body for %q: %w", g.Category.Name, err)
	}
	return subject, hb.String(), nil
}

// truncate shortens s to at most n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
