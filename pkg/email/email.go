// Package email mails install run reports
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"

	"github.com/hsauto/hsauto/pkg/config"
	"github.com/hsauto/hsauto/pkg/installer"
	gomail "gopkg.in/gomail.v2"
)

// Email contains details about email
type Email struct {
	Subject string
	From    string
	To      []string
	Content string
}

// Sender delivers composed messages. *gomail.Dialer is a Sender.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// NewSender returns a dialer for the configured SMTP server
func NewSender(cfg config.SMTP) Sender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.TLSConfig = &tls.Config{InsecureSkipVerify: true, ServerName: cfg.Host}
	return d
}

// Message composes the gomail message for email
func (email *Email) Message() *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", email.From)
	m.SetHeader("To", email.To...)
	m.SetHeader("Subject", email.Subject)
	m.SetBody("text/html", email.Content)
	return m
}

// SendEmail sends email to recipients
func (email *Email) SendEmail(s Sender) error {
	if len(email.To) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}
	return s.DialAndSend(email.Message())
}

// RunReport builds the summary email of a plan run over all targets
func RunReport(cfg config.SMTP, plan string, reports []*installer.RunReport) (*Email, error) {
	failed := 0
	for _, r := range reports {
		if r != nil && !r.Passed() {
			failed++
		}
	}
	status := "PASSED"
	if failed > 0 {
		status = fmt.Sprintf("FAILED on %d of %d targets", failed, len(reports))
	}

	content, err := prepareEmailBody(plan, reports)
	if err != nil {
		return nil, err
	}
	return &Email{
		Subject: fmt.Sprintf("[hsauto] %s: %s", plan, status),
		From:    cfg.From,
		To:      cfg.To,
		Content: content,
	}, nil
}

type reportData struct {
	Plan    string
	Reports []*installer.RunReport
}

func prepareEmailBody(plan string, reports []*installer.RunReport) (string, error) {
	t, err := template.New("t").Funcs(templateFuncs).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("cannot parse HTML template: %v", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, reportData{Plan: plan, Reports: reports}); err != nil {
		return "", fmt.Errorf("cannot generate body from reports: %v", err)
	}
	return buf.String(), nil
}

var templateFuncs = template.FuncMap{
	"color": func(status interface{}) string {
		switch fmt.Sprint(status) {
		case string(installer.StepPassed):
			return "#79ab78"
		case string(installer.StepSkipped):
			return "#bac5ca"
		default:
			return "#f08080"
		}
	},
}

var htmlTemplate = `
<!DOCTYPE html>
<html>
<head>
<meta http-equiv="Content-Type" content="text/html; charset=utf-8" />
<style>
table {
  border-collapse: collapse;
  width: 100%;
}
th {
   background-color: #0ca1f0;
   text-align: center;
   padding: 3px;
}
td {
  text-align: left;
  padding: 3px;
}
</style>
</head>
<body>
<h1>Install Report: {{.Plan}}</h1>
<hr/>
{{range .Reports}}{{if .}}
<h3>{{.Target}}: {{.Status}}</h3>
<p>Run {{.RunID}}, {{.StartedAt.Format "2006-01-02 15:04:05"}} to {{.EndedAt.Format "15:04:05"}}</p>
{{if .Error}}<p><b>Error:</b> {{.Error}}</p>{{end}}
<table border=1>
<tr><th>Step</th><th>Status</th><th>Screen</th><th>Tries</th><th>Attempts</th><th>Duration</th><th>Reason</th></tr>
{{range .Steps}}<tr bgcolor="{{color .Status}}"><td>{{.Name}}</td><td>{{.Status}}</td><td>{{.Matched}}</td><td>{{.Tries}}</td><td>{{.Attempts}}</td><td>{{.Duration}}</td><td>{{.Reason}}</td></tr>
{{end}}</table>
{{end}}{{end}}
</body>
</html>
`
