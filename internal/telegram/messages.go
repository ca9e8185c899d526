package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/leadbridge/leadbridge/internal/models"
)

// maxListedFailures caps the failures spelled out in an export summary.
const maxListedFailures = 5

// FormatReauthRequired formats the message sent after a refresh was rejected
// and the stored credential dropped.
func FormatReauthRequired(accountID, reason string) string {
	var sb strings.Builder
	sb.WriteString("🔴 <b>CRM re-authorization required</b>\n\n")
	sb.WriteString(fmt.Sprintf("👤 <b>Account:</b> <code>%s</code>\n", html.EscapeString(accountID)))
	if reason = strings.TrimSpace(reason); reason != "" {
		sb.WriteString(fmt.Sprintf("⚠️ <b>Reason:</b> %s\n", html.EscapeString(truncate(reason, 300))))
	}
	sb.WriteString("\nRun <code>leadbridge auth url</code> and complete the consent flow again.")
	return sb.String()
}

// FormatExportSummary formats the summary of an export batch.
func FormatExportSummary(accountID string, report *models.ExportReport) string {
	if report == nil {
		return ""
	}

	emoji := "🟢"
	switch {
	case report.FailedCount > 0 && report.SuccessCount == 0:
		emoji = "🔴"
	case report.FailedCount > 0:
		emoji = "🟡"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(
		"%s <b>Lead export finished</b>\n\n"+
			"👤 <b>Account:</b> <code>%s</code>\n"+
			"📦 <b>Total:</b> %d\n"+
			"✅ <b>Created:</b> %d\n"+
			"❌ <b>Failed:</b> %d\n",
		emoji,
		html.EscapeString(accountID),
		report.Total,
		report.SuccessCount,
		report.FailedCount,
	))

	if report.FailedCount == 0 {
		return sb.String()
	}

	sb.WriteString("\n")
	listed := 0
	for _, res := range report.Results {
		if res.Success {
			continue
		}
		if listed == maxListedFailures {
			sb.WriteString(fmt.Sprintf("… and %d more\n", report.FailedCount-listed))
			break
		}
		label := res.Email
		if label == "" {
			label = res.LeadID
		}
		if label == "" {
			label = "(unnamed lead)"
		} else {
			label = maskEmail(label)
		}
		sb.WriteString(fmt.Sprintf(
			"• %s: %s\n",
			html.EscapeString(label),
			html.EscapeString(truncate(res.Error, 120)),
		))
		listed++
	}
	return sb.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

func maskEmail(email string) string {
	email = strings.TrimSpace(email)
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return email
	}
	user := maskSegment(parts[0], 1)
	domain := parts[1]
	domainParts := strings.Split(domain, ".")
	first := maskSegment(domainParts[0], 1)
	tld := strings.Join(domainParts[1:], ".")
	if tld != "" {
		return fmt.Sprintf("%s@%s.%s", user, first, tld)
	}
	return fmt.Sprintf("%s@%s", user, first)
}

func maskSegment(value string, keep int) string {
	if value == "" {
		return value
	}
	runes := []rune(value)
	if keep <= 0 || len(runes) <= keep {
		return string(runes[0]) + "***"
	}
	return string(runes[:keep]) + "***"
}
