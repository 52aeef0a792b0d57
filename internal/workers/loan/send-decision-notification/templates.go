// internal/workers/loan/send-decision-notification/templates.go
package sendnotification

import (
	"fmt"
	"strings"

	"loan-workflow/internal/models"
)

func loadTemplates() map[string]template {
	return map[string]template{
		TypeApproved: {
			Subject: "Your loan application {{applicationNumber}} has been approved",
			Body: "Dear {{applicantName}},\n\nGood news: your {{loanType}} loan application {{applicationNumber}} " +
				"has been approved for {{approvedAmount}} at {{interestRate}} APR over {{termMonths}} months.\n\n" +
				"We will contact you shortly with the loan agreement.",
			SMS: "Loan {{applicationNumber}} approved: {{approvedAmount}} at {{interestRate}} APR for {{termMonths}} months.",
		},
		TypeConditional: {
			Subject: "Your loan application {{applicationNumber}} has been conditionally approved",
			Body: "Dear {{applicantName}},\n\nYour {{loanType}} loan application {{applicationNumber}} has been " +
				"conditionally approved for {{approvedAmount}} at {{interestRate}} APR over {{termMonths}} months.\n\n" +
				"Conditions:\n{{conditions}}\n\nAn underwriter will be in touch to complete the review.",
			SMS: "Loan {{applicationNumber}} conditionally approved for {{approvedAmount}}. Check your email for the conditions.",
		},
		TypeRejected: {
			Subject: "Update on your loan application {{applicationNumber}}",
			Body: "Dear {{applicantName}},\n\nAfter careful review we are unable to approve your {{loanType}} loan " +
				"application {{applicationNumber}} at this time.\n\nReasons:\n{{reasons}}",
		},
		TypeDocumentsRequired: {
			Subject: "Documents needed for loan application {{applicationNumber}}",
			Body: "Dear {{applicantName}},\n\nTo continue processing your loan application {{applicationNumber}} " +
				"we need the following documents:\n{{missingDocuments}}",
		},
		TypeHumanReview: {
			Subject: "Your loan application {{applicationNumber}} is under review",
			Body: "Dear {{applicantName}},\n\nYour loan application {{applicationNumber}} has been passed to " +
				"{{underwriter}} for review. We will notify you once a decision is made.",
		},
	}
}

// selectType picks the notification for the application's current outcome.
// An empty result means there is nothing to tell the applicant.
func selectType(app *models.LoanApplication) string {
	if app.Decision != nil {
		switch app.Decision.Decision {
		case models.DecisionApproved:
			return TypeApproved
		case models.DecisionConditional:
			return TypeConditional
		case models.DecisionRejected:
			return TypeRejected
		}
	}
	if app.Status == models.LoanStatusDocumentsRequired {
		return TypeDocumentsRequired
	}
	if app.AssignedUnderwriter != nil && *app.AssignedUnderwriter != "" {
		return TypeHumanReview
	}
	return ""
}

func templateData(app *models.LoanApplication) map[string]interface{} {
	data := map[string]interface{}{
		"applicationNumber": app.ApplicationNumber,
		"applicantName":     app.ApplicantName(),
		"missingDocuments":  bulletList(documentNames(app.MissingDocuments())),
	}
	if app.LoanDetails != nil {
		data["loanType"] = string(app.LoanDetails.LoanType)
	}
	if app.AssignedUnderwriter != nil {
		data["underwriter"] = *app.AssignedUnderwriter
	}
	if d := app.Decision; d != nil {
		if d.ApprovedAmount != nil {
			data["approvedAmount"] = models.FormatMoney(*d.ApprovedAmount)
		}
		if d.InterestRate != nil {
			data["interestRate"] = fmt.Sprintf("%.2f%%", *d.InterestRate)
		}
		if d.ApprovedTermMonths != nil {
			data["termMonths"] = *d.ApprovedTermMonths
		}
		data["conditions"] = bulletList(d.Conditions)
		data["reasons"] = bulletList(d.RejectionReasons)
	}
	return data
}

func documentNames(types []models.DocumentType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = t.DisplayName()
	}
	return names
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	return "- " + strings.Join(items, "\n- ")
}

// renderTemplate substitutes {{key}} placeholders and drops any left unfilled.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if i, ok := v.(int); ok {
			value = fmt.Sprintf("%d", i)
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
