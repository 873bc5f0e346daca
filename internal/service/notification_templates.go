package service

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/noah-isme/journal-api/internal/models"
)

type mailTemplate struct {
	subject *template.Template
	body    *template.Template
}

func mustMailTemplate(id, subject, body string) mailTemplate {
	return mailTemplate{
		subject: template.Must(template.New(id + ".subject").Option("missingkey=zero").Parse(subject)),
		body:    template.Must(template.New(id + ".body").Option("missingkey=zero").Parse(body)),
	}
}

var mailTemplates = map[string]mailTemplate{
	models.TemplateArticleApproved: mustMailTemplate(models.TemplateArticleApproved,
		`[{{.journal}}] Your article has been approved`,
		`Dear {{.author_name}},

Your article **{{.title}}** has been approved for publication in {{.journal}}.

To proceed, transfer the publication fee of **{{.fee}}** to:

- Account name: {{.account_name}}
- Account number: {{.account_number}}
- IFSC: {{.ifsc}}
- Bank: {{.bank_name}}

Once paid, submit the transaction reference (UTR) here: {{.link}}

This link expires on {{.expires_at}} and can be used once.
`),
	models.TemplateApprovalResent: mustMailTemplate(models.TemplateApprovalResent,
		`[{{.journal}}] New payment link for your approved article`,
		`Dear {{.author_name}},

A new payment link has been issued for **{{.title}}**. Links sent earlier no longer work.

Fee: **{{.fee}}**, payable to {{.account_name}} ({{.account_number}}, IFSC {{.ifsc}}, {{.bank_name}}).

Submit your UTR here: {{.link}}

This link expires on {{.expires_at}}.
`),
	models.TemplateArticleRejected: mustMailTemplate(models.TemplateArticleRejected,
		`[{{.journal}}] Decision on your article`,
		`Dear {{.author_name}},

After review, your article **{{.title}}** was not accepted in its current form.

Editor's comments:

> {{.reason}}
`),
	models.TemplatePaymentSubmitted: mustMailTemplate(models.TemplatePaymentSubmitted,
		`[{{.journal}}] Payment submitted for "{{.title}}"`,
		`A payment reference was submitted for **{{.title}}** by {{.author_name}}.

- Article: {{.article_id}}
- UTR: {{.utr_number}}

Verify the transfer and publish, or reject the payment, from the review queue.
`),
	models.TemplatePaymentRejected: mustMailTemplate(models.TemplatePaymentRejected,
		`[{{.journal}}] Payment could not be verified`,
		`Dear {{.author_name}},

We could not verify the payment submitted for **{{.title}}**.
{{if .reason}}
Editor's note:

> {{.reason}}
{{end}}
{{if .link}}Submit a corrected UTR here: {{.link}} (expires {{.expires_at}}).{{else}}You can submit a corrected UTR using the link from your approval email. It is valid again until {{.expires_at}}.{{end}}
`),
	models.TemplateArticlePublished: mustMailTemplate(models.TemplateArticlePublished,
		`[{{.journal}}] "{{.title}}" is published`,
		`Dear {{.author_name}},

Your payment was verified and **{{.title}}** is now published in {{.journal}}.
`),
	models.TemplateArticleUnpublished: mustMailTemplate(models.TemplateArticleUnpublished,
		`[{{.journal}}] "{{.title}}" was withdrawn from publication`,
		`Dear {{.author_name}},

Your article **{{.title}}** has been withdrawn from public listing by the editors. Contact the editorial office for details.
`),
	models.TemplateCoAuthorInvitation: mustMailTemplate(models.TemplateCoAuthorInvitation,
		`[{{.journal}}] You were added as a co-author`,
		`Dear {{.coauthor_name}},

{{.author_name}} listed you as a co-author of **{{.title}}** submitted to {{.journal}}.

Confirm your co-authorship here: {{.link}}

The link expires on {{.expires_at}}.
`),
	models.TemplateCoAuthorAccepted: mustMailTemplate(models.TemplateCoAuthorAccepted,
		`[{{.journal}}] {{.coauthor_name}} confirmed co-authorship`,
		`Dear {{.author_name}},

{{.coauthor_name}} confirmed co-authorship of **{{.title}}**.
`),
}

// renderTemplate expands a template into subject and Markdown body.
func renderTemplate(id string, params map[string]string) (string, string, error) {
	tpl, ok := mailTemplates[id]
	if !ok {
		return "", "", fmt.Errorf("unknown notification template %q", id)
	}
	var subject, body bytes.Buffer
	if err := tpl.subject.Execute(&subject, params); err != nil {
		return "", "", fmt.Errorf("render %s subject: %w", id, err)
	}
	if err := tpl.body.Execute(&body, params); err != nil {
		return "", "", fmt.Errorf("render %s body: %w", id, err)
	}
	return subject.String(), body.String(), nil
}
