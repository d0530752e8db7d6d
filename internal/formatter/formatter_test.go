package formatter

import (
	"strings"
	"testing"

	"finetuner/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validExample() models.TrainingExample {
	return models.TrainingExample{
		SystemPrompt:      BuildSystemPrompt(strPtr(models.CategoryMalware)),
		UserMessage:       "I found a trojan in the build server logs, what should I do?",
		AssistantResponse: "Isolate the host from the network and collect a memory image before wiping.",
		QualityScore:      0.9,
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	withCategory := BuildSystemPrompt(strPtr(models.CategoryPhishing))
	assert.Contains(t, withCategory, models.CategoryPhishing)

	withoutCategory := BuildSystemPrompt(nil)
	assert.Contains(t, withoutCategory, "general security threats")

	// The template admits exactly one substitution; everything else in the
	// prompt is static.
	a := BuildSystemPrompt(strPtr("a"))
	b := BuildSystemPrompt(strPtr("b"))
	assert.Equal(t, strings.Replace(a, " a.", " b.", 1), b)
}

func TestFormatConversationPairsExchanges(t *testing.T) {
	conv := &models.Conversation{
		ID: 7,
		Messages: []models.ConversationMessage{
			{Role: models.RoleUser, Content: "We detected ransomware on two laptops.", Seq: 0},
			{Role: models.RoleAssistant, Content: "Disconnect them and check your backups immediately.", Seq: 1},
			{Role: models.RoleUser, Content: "Backups are intact, what next?", Seq: 2},
			{Role: models.RoleAssistant, Content: "Reimage the machines and rotate credentials used on them.", Seq: 3},
		},
	}
	cls := &models.ClassificationRecord{
		ConversationID: 7,
		Confidence:     0.8,
		ThreatCategory: strPtr(models.CategoryMalware),
	}

	examples := FormatConversation(conv, cls)
	require.Len(t, examples, 2)
	for _, ex := range examples {
		assert.Equal(t, int64(7), ex.ConversationID)
		assert.Equal(t, BuildSystemPrompt(cls.ThreatCategory), ex.SystemPrompt)
		assert.Equal(t, 0.8, ex.QualityScore)
		require.NotNil(t, ex.ThreatCategory)
		assert.Equal(t, models.CategoryMalware, *ex.ThreatCategory)
	}
	assert.Equal(t, "We detected ransomware on two laptops.", examples[0].UserMessage)
	assert.Equal(t, "Reimage the machines and rotate credentials used on them.", examples[1].AssistantResponse)
}

func TestFormatConversationNoExchanges(t *testing.T) {
	conv := &models.Conversation{
		ID: 8,
		Messages: []models.ConversationMessage{
			{Role: models.RoleAssistant, Content: "Hello, how can I help?", Seq: 0},
			{Role: models.RoleUser, Content: "Never mind.", Seq: 1},
		},
	}
	cls := &models.ClassificationRecord{ConversationID: 8}

	assert.Empty(t, FormatConversation(conv, cls))
	assert.Nil(t, FormatConversation(nil, cls))
	assert.Nil(t, FormatConversation(conv, nil))
}

func TestValidateBatchPartition(t *testing.T) {
	tooShort := validExample()
	tooShort.UserMessage = "short"

	tooLong := validExample()
	tooLong.AssistantResponse = strings.Repeat("x", MaxContentLength)

	missingSystem := validExample()
	missingSystem.SystemPrompt = ""

	batch := []models.TrainingExample{validExample(), tooShort, tooLong, missingSystem}
	report := ValidateBatch(batch)

	assert.Len(t, report.Valid, 1)
	assert.Len(t, report.Invalid, 3)
	assert.Equal(t, len(batch), len(report.Valid)+len(report.Invalid))
	assert.NotEmpty(t, report.Errors)
}

func TestValidateBatchRules(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.TrainingExample)
		wantErr string
	}{
		{
			name:    "content too short",
			mutate:  func(ex *models.TrainingExample) { ex.UserMessage = "hi" },
			wantErr: "too short",
		},
		{
			name: "content too long at the stated bound",
			mutate: func(ex *models.TrainingExample) {
				ex.AssistantResponse = strings.Repeat("y", MaxContentLength)
			},
			wantErr: "too long",
		},
		{
			name: "first message must be system",
			mutate: func(ex *models.TrainingExample) {
				ex.SystemPrompt = ""
			},
			wantErr: "system role",
		},
		{
			name: "fewer than two messages",
			mutate: func(ex *models.TrainingExample) {
				ex.UserMessage = ""
				ex.AssistantResponse = ""
			},
			wantErr: "at least 2 messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := validExample()
			tt.mutate(&ex)
			report := ValidateBatch([]models.TrainingExample{ex})

			assert.Empty(t, report.Valid)
			require.Len(t, report.Invalid, 1)
			require.NotEmpty(t, report.Errors)
			found := false
			for _, verr := range report.Errors {
				assert.Equal(t, 0, verr.ExampleIndex)
				if strings.Contains(verr.Error(), tt.wantErr) {
					found = true
				}
			}
			assert.True(t, found, "expected an error mentioning %q, got %v", tt.wantErr, report.Errors)
		})
	}
}

func TestRenderMessagesOmitsEmptyFields(t *testing.T) {
	full := RenderMessages(validExample())
	require.Len(t, full, 3)
	assert.Equal(t, models.RoleSystem, full[0].Role)
	assert.Equal(t, models.RoleUser, full[1].Role)
	assert.Equal(t, models.RoleAssistant, full[2].Role)

	noUser := validExample()
	noUser.UserMessage = ""
	msgs := RenderMessages(noUser)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleSystem, msgs[0].Role)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	for _, msg := range msgs {
		assert.NotEmpty(t, msg.Content)
	}
}

func TestValidateBatchCountsCharactersNotBytes(t *testing.T) {
	// Two bytes per rune, so byte counting would misjudge both directions.
	underMax := validExample()
	underMax.AssistantResponse = strings.Repeat("é", MaxContentLength-1)

	report := ValidateBatch([]models.TrainingExample{underMax})
	assert.Len(t, report.Valid, 1)
	assert.Empty(t, report.Errors)

	atMax := validExample()
	atMax.AssistantResponse = strings.Repeat("é", MaxContentLength)
	report = ValidateBatch([]models.TrainingExample{atMax})
	assert.Empty(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Reason, "too long")

	underMin := validExample()
	underMin.UserMessage = strings.Repeat("é", MinContentLength-1)
	report = ValidateBatch([]models.TrainingExample{underMin})
	assert.Empty(t, report.Valid)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Reason, "too short")
}

func TestValidateBatchBoundaries(t *testing.T) {
	atMin := validExample()
	atMin.UserMessage = strings.Repeat("a", MinContentLength)

	justUnderMax := validExample()
	justUnderMax.AssistantResponse = strings.Repeat("b", MaxContentLength-1)

	report := ValidateBatch([]models.TrainingExample{atMin, justUnderMax})
	assert.Len(t, report.Valid, 2)
	assert.Empty(t, report.Invalid)
	assert.Empty(t, report.Errors)
}

func TestValidateBatchErrorAttribution(t *testing.T) {
	bad := validExample()
	bad.UserMessage = "x"

	report := ValidateBatch([]models.TrainingExample{validExample(), bad})
	require.Len(t, report.Errors, 1)
	assert.Equal(t, 1, report.Errors[0].ExampleIndex)
	assert.Equal(t, models.RoleUser, report.Errors[0].MessageRole)
}

func TestValidateBatchEmptyInput(t *testing.T) {
	report := ValidateBatch(nil)
	assert.Empty(t, report.Valid)
	assert.Empty(t, report.Invalid)
	assert.Empty(t, report.Errors)
}
