package models

import (
	"time"

	"github.com/lib/pq"
)

// Threat categories assigned by the keyword classifier.
const (
	CategoryMalware           = "malware"
	CategoryPhishing          = "phishing"
	CategoryNetworkIntrusion  = "network_intrusion"
	CategoryDataBreach        = "data_breach"
	CategoryVulnerability     = "vulnerability"
	CategorySocialEngineering = "social_engineering"
)

// ClassificationRecord is the stored relevance judgment for one conversation.
// ProcessedForTraining is the idempotency guard: it transitions false->true
// exactly once, when a job claims the record into a training batch, and never
// reverts.
type ClassificationRecord struct {
	ID                   int64          `db:"id" json:"id"`
	ConversationID       int64          `db:"conversation_id" json:"conversation_id"`
	IsSecurityRelated    bool           `db:"is_security_related" json:"is_security_related"`
	Confidence           float64        `db:"confidence" json:"confidence"`
	ThreatCategory       *string        `db:"threat_category" json:"threat_category,omitempty"`
	MatchedKeywords      pq.StringArray `db:"matched_keywords" json:"matched_keywords"`
	ProcessedForTraining bool           `db:"processed_for_training" json:"processed_for_training"`
	ClaimedJobID         *string        `db:"claimed_job_id" json:"claimed_job_id,omitempty"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
}
