package notifier

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type emailLine struct {
	Label string
	Value string
}

type emailView struct {
	Title    string
	Greeting string
	Lines    []emailLine
	Footer   string
	Year     int
}

var emailTemplate = template.Must(template.New("email").Parse(`<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>{{.Title}}</title>
  </head>
  <body style="font-family:system-ui,-apple-system,Segoe UI,Roboto,Helvetica,Arial,sans-serif;background:#f6f7fb;margin:0;padding:24px;">
    <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width:560px;margin:0 auto;background:#ffffff;border-radius:12px;overflow:hidden">
      <tr><td style="padding:20px 24px;border-bottom:1px solid #f0f2f5;"><h2 style="margin:0;font-size:18px;color:#111827;">{{.Title}}</h2></td></tr>
      <tr>
        <td style="padding:20px 24px;">
          <p style="margin:0 0 12px 0;color:#111827;">{{.Greeting}}</p>
          <ul style="margin:0;padding-left:18px">
          {{- range .Lines}}
            <li>{{.Label}}: <strong>{{.Value}}</strong></li>
          {{- else}}
            <li>Details available in your dashboard.</li>
          {{- end}}
          </ul>
        </td>
      </tr>
      <tr><td style="padding:16px 24px;border-top:1px solid #f0f2f5;color:#6b7280;font-size:12px;">{{.Footer}}</td></tr>
    </table>
    <p style="text-align:center;color:#9ca3af;font-size:12px;margin-top:12px;">&copy; {{.Year}} Wallet</p>
  </body>
</html>
`))

// Render builds the email subject and HTML body for a notification
func Render(recipient Recipient, n Notification) (string, string, error) {
	amount := FormatNGN(n.Amount)
	var balance string
	if n.Balance.Valid {
		balance = FormatNGN(n.Balance.Decimal)
	}

	view := emailView{
		Greeting: fmt.Sprintf("Hi %s,", firstNonEmpty(recipient.Name, "there")),
		Footer:   "If you did not authorize this activity, please contact support immediately.",
		Year:     time.Now().Year(),
	}

	var subject string
	switch n.Type {
	case TypePaymentSuccess:
		subject = "Payment received " + amount
		if n.Channel != "" {
			subject += " via " + n.Channel
		}
		view.Title = "Payment Successful"
		view.Lines = lines("Amount", amount, "Reference", n.Reference, "New balance", balance)
	case TypePaymentFailed:
		subject = "Payment failed " + amount
		view.Title = "Payment Failed"
		view.Lines = lines("Amount", amount, "Reference", n.Reference, "Reason", n.Reason)
	case TypePaymentReversed:
		subject = "Payment reversed " + amount
		view.Title = "Payment Reversed"
		view.Lines = lines("Amount", amount, "Reference", n.Reference, "Updated balance", balance)
	case TypeTransferSuccess:
		subject = "Transfer sent " + amount
		view.Title = "Transfer Successful"
		view.Lines = lines("Amount", amount, "Recipient", n.RecipientName, "Account", n.RecipientAccount,
			"Reference", n.Reference, "New balance", balance)
	default:
		subject = "Account update"
		view.Title = "Account Update"
		view.Lines = lines("Channel", n.Channel, "Reference", n.Reference)
	}

	var body bytes.Buffer
	if err := emailTemplate.Execute(&body, view); err != nil {
		return "", "", fmt.Errorf("failed to render %s email: %w", n.Type, err)
	}
	return subject, body.String(), nil
}

// lines pairs labels with values, dropping empty values
func lines(pairs ...string) []emailLine {
	var out []emailLine
	for i := 0; i+1 < len(pairs); i += 2 {
		if pairs[i+1] != "" {
			out = append(out, emailLine{Label: pairs[i], Value: pairs[i+1]})
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// FormatNGN renders an amount the way en-NG currency formatting does, e.g. ₦1,500.00
func FormatNGN(amount decimal.Decimal) string {
	sign := ""
	if amount.IsNegative() {
		sign = "-"
		amount = amount.Neg()
	}
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var grouped strings.Builder
	for i, digit := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			grouped.WriteByte(',')
		}
		grouped.WriteRune(digit)
	}
	return sign + "₦" + grouped.String() + "." + frac
}
