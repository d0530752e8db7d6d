package formatter

import (
	"fmt"
	"unicode/utf8"

	"finetuner/internal/models"
)

// Message content bounds for a valid training example, counted in characters,
// not bytes. The upper bound is exclusive: a 4000-character message is
// already too long.
const (
	MinContentLength = 10
	MaxContentLength = 4000
)

// systemPromptTemplate is static text with exactly one substitution, the
// threat category, so every generated system prompt stays auditable.
const systemPromptTemplate = "You are a security analysis assistant specialized in %s. " +
	"Analyze the reported activity and respond with clear, actionable guidance."

const defaultPromptCategory = "general security threats"

// BuildSystemPrompt renders the fixed system prompt for a threat category.
func BuildSystemPrompt(category *string) string {
	name := defaultPromptCategory
	if category != nil && *category != "" {
		name = *category
	}
	return fmt.Sprintf(systemPromptTemplate, name)
}

// FormatConversation turns one classified conversation into training
// examples, one per adjacent user->assistant exchange. Conversations with no
// such exchange produce an empty slice, never an error.
func FormatConversation(conv *models.Conversation, cls *models.ClassificationRecord) []models.TrainingExample {
	if conv == nil || cls == nil {
		return nil
	}

	examples := make([]models.TrainingExample, 0, 2)
	systemPrompt := BuildSystemPrompt(cls.ThreatCategory)

	for i := 0; i+1 < len(conv.Messages); i++ {
		if conv.Messages[i].Role != models.RoleUser || conv.Messages[i+1].Role != models.RoleAssistant {
			continue
		}
		examples = append(examples, models.TrainingExample{
			ConversationID:    conv.ID,
			SystemPrompt:      systemPrompt,
			UserMessage:       conv.Messages[i].Content,
			AssistantResponse: conv.Messages[i+1].Content,
			QualityScore:      cls.Confidence,
			ThreatCategory:    cls.ThreatCategory,
		})
	}
	return examples
}

// ValidationError attributes one structural defect to an example and, where
// it applies, to the offending message role.
type ValidationError struct {
	ExampleIndex int    `json:"example_index"`
	MessageRole  string `json:"message_role,omitempty"`
	Reason       string `json:"reason"`
}

func (e ValidationError) Error() string {
	if e.MessageRole != "" {
		return fmt.Sprintf("example %d (%s message): %s", e.ExampleIndex, e.MessageRole, e.Reason)
	}
	return fmt.Sprintf("example %d: %s", e.ExampleIndex, e.Reason)
}

// Report partitions a batch into valid and invalid examples. Every invalid
// example carries at least one error; Valid and Invalid together cover the
// whole input.
type Report struct {
	Valid   []models.TrainingExample `json:"valid"`
	Invalid []models.TrainingExample `json:"invalid"`
	Errors  []ValidationError        `json:"errors"`
}

// Message is one line of an example in the provider's training-file wire
// format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RenderMessages serializes an example into its wire messages, omitting empty
// fields. Validation and file upload both work from this rendering, so a
// validated example never ships a message the validator did not see.
func RenderMessages(ex models.TrainingExample) []Message {
	var msgs []Message
	if ex.SystemPrompt != "" {
		msgs = append(msgs, Message{models.RoleSystem, ex.SystemPrompt})
	}
	if ex.UserMessage != "" {
		msgs = append(msgs, Message{models.RoleUser, ex.UserMessage})
	}
	if ex.AssistantResponse != "" {
		msgs = append(msgs, Message{models.RoleAssistant, ex.AssistantResponse})
	}
	return msgs
}

// ValidateBatch checks every example against the structural rules. It is
// total: malformed input is classified, never raised.
func ValidateBatch(examples []models.TrainingExample) Report {
	report := Report{
		Valid:   make([]models.TrainingExample, 0, len(examples)),
		Invalid: make([]models.TrainingExample, 0),
	}

	for i, ex := range examples {
		var errs []ValidationError
		msgs := RenderMessages(ex)

		if len(msgs) < 2 {
			errs = append(errs, ValidationError{
				ExampleIndex: i,
				Reason:       "example must contain at least 2 messages",
			})
		}
		if len(msgs) > 0 && msgs[0].Role != models.RoleSystem {
			errs = append(errs, ValidationError{
				ExampleIndex: i,
				Reason:       "first message must have the system role",
			})
		}
		for _, msg := range msgs {
			length := utf8.RuneCountInString(msg.Content)
			if length < MinContentLength {
				errs = append(errs, ValidationError{
					ExampleIndex: i,
					MessageRole:  msg.Role,
					Reason:       fmt.Sprintf("message content too short (%d chars, minimum %d)", length, MinContentLength),
				})
			} else if length >= MaxContentLength {
				errs = append(errs, ValidationError{
					ExampleIndex: i,
					MessageRole:  msg.Role,
					Reason:       fmt.Sprintf("message content too long (%d chars, limit %d)", length, MaxContentLength),
				})
			}
		}

		if len(errs) > 0 {
			report.Invalid = append(report.Invalid, ex)
			report.Errors = append(report.Errors, errs...)
		} else {
			report.Valid = append(report.Valid, ex)
		}
	}
	return report
}
