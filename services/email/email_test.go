package emailsvc

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/ecolage/core"
	logsvc "github.com/trezcool/ecolage/services/logger"
)

func TestConsoleServiceMock_SendMessages(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewConsoleServiceMock(conf, logsvc.NewNopLogger())
	core.ParseEmailTemplates(conf, logsvc.NewNopLogger())

	to := []mail.Address{{Name: "Guardian", Address: "guardian@test.com"}}
	svc.SendMessages(
		&core.EmailMessage{To: to, Subject: "plain", BodyStr: "hello"},
		&core.EmailMessage{Subject: "no recipient", BodyStr: "hello"},
		&core.EmailMessage{
			To:           to,
			Subject:      "receipt",
			TemplateName: "docfee_receipt",
			TemplateData: map[string]interface{}{
				"GuardianName":  "Guardian",
				"StudentName":   "Jean Kabila",
				"ReceiptNumber": "DOC-2025-000001",
				"FeeAmount":     "5000.00",
				"PenaltyAmount": "",
				"Total":         "5000.00",
				"PaymentDate":   "2025-01-10",
			},
		},
	)

	sent := svc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "hello", sent[0].TextContent)
	assert.Contains(t, sent[1].TextContent, "DOC-2025-000001")
	assert.Contains(t, sent[1].HTMLContent, "Jean Kabila")

	svc.Reset()
	assert.Empty(t, svc.SentMessages())
}

func TestSendgridService_prepare(t *testing.T) {
	conf := core.NewTestConfig()
	svc := NewSendgridService(conf, logsvc.NewNopLogger())

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Name: "A", Address: "a@test.com"}},
		Cc:          []mail.Address{{Name: "B", Address: "b@test.com"}},
		Subject:     "Payment receipt",
		TextContent: "text",
	})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Ecolage] Payment receipt", m.Personalizations[0].Subject)
	assert.Len(t, m.Personalizations[0].To, 1)
	assert.Len(t, m.Personalizations[0].CC, 1)
	require.Len(t, m.Content, 1)
	assert.Equal(t, "text/plain", m.Content[0].Type)
	assert.Equal(t, "noreply@localhost", m.From.Address)
}

func TestSendgridService_prepare_receipt(t *testing.T) {
	svc := NewSendgridService(core.NewTestConfig(), logsvc.NewNopLogger())

	m := svc.prepare(core.EmailMessage{
		To:            []mail.Address{{Name: "Guardian", Address: "guardian@test.com"}},
		Subject:       "Payment receipt PAY-2025-000042",
		TemplateName:  "payment_receipt",
		TextContent:   "text",
		HTMLContent:   "<p>html</p>",
		ReceiptNumber: "PAY-2025-000042",
	})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, map[string]string{"receipt_number": "PAY-2025-000042"}, m.Personalizations[0].CustomArgs)
	assert.Equal(t, []string{"receipt", "payment_receipt"}, m.Categories)
	assert.Len(t, m.Content, 2)

	plain := svc.prepare(core.EmailMessage{Subject: "hello", TextContent: "text"})
	assert.Empty(t, plain.Categories)
	assert.Empty(t, plain.Personalizations[0].CustomArgs)
}
