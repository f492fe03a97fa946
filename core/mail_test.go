package core

import (
	"net/mail"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	tests := []struct {
		name         string
		msg          EmailMessage
		wantErr      bool
		wantText     []string
		wantHTML     []string
		wantSendable bool
	}{
		{
			name:         "plain body",
			msg:          EmailMessage{To: []mail.Address{{Address: "a@x.com"}}, BodyStr: "hello"},
			wantText:     []string{"hello"},
			wantSendable: true,
		},
		{
			name: "credentials template",
			msg: EmailMessage{
				To:           []mail.Address{{Address: "a@x.com"}},
				TemplateName: "learner_credentials",
				TemplateData: map[string]string{
					"FirstName":    "Ada",
					"LastName":     "Lovelace",
					"Username":     "a@x.com",
					"TempPassword": "Xy7#kLm2pQ9!",
					"LoginURL":     "https://academy.test/login",
				},
			},
			wantText:     []string{"Hello Ada Lovelace", "Username: a@x.com", "Temporary password: Xy7#kLm2pQ9!"},
			wantHTML:     []string{"<code>Xy7#kLm2pQ9!</code>", "https://academy.test/login"},
			wantSendable: true,
		},
		{
			name:    "unknown template",
			msg:     EmailMessage{To: []mail.Address{{Address: "a@x.com"}}, TemplateName: "nope"},
			wantErr: true,
		},
		{
			name: "no recipient",
			msg:  EmailMessage{BodyStr: "hello"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.msg
			err := msg.Render()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.wantText {
				assert.Contains(t, msg.TextContent, s)
			}
			for _, s := range tt.wantHTML {
				assert.Contains(t, msg.HTMLContent, s)
			}
			assert.Equal(t, tt.wantSendable, msg.Sendable())
		})
	}
}
