package repository

import (
	"database/sql"
	"errors"

	"finetuner/internal/models"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// ClassificationRepository stores relevance judgments and owns the atomic
// claim operation that feeds training batches.
type ClassificationRepository interface {
	// SaveClassification inserts the record for its conversation if none
	// exists yet. Re-inserting for the same conversation is a no-op, so
	// at-least-once classification never reverts processed_for_training.
	SaveClassification(rec *models.ClassificationRecord) (bool, error)
	GetByConversationID(conversationID int64) (*models.ClassificationRecord, error)

	// CountQualifyingUnclaimed counts security-related, unclaimed records at
	// or above the given confidence.
	CountQualifyingUnclaimed(minConfidence float64) (int, error)

	// ClaimBatch atomically marks up to limit qualifying unclaimed records as
	// processed for the given job and returns them. The update is guarded at
	// the storage layer; concurrent claimants never receive the same record,
	// and a short result is a normal race outcome.
	ClaimBatch(jobID string, minConfidence float64, limit int) ([]*models.ClassificationRecord, error)

	// GetHeldOutRecords returns up to limit high-confidence security-related
	// records for evaluation.
	GetHeldOutRecords(minConfidence float64, limit int) ([]*models.ClassificationRecord, error)

	GetStats() (*ClassificationStats, error)
}

// ClassificationStats summarizes the stored corpus for the stats endpoint.
type ClassificationStats struct {
	Total           int            `json:"total"`
	SecurityRelated int            `json:"security_related"`
	Unclaimed       int            `json:"unclaimed"`
	ByCategory      map[string]int `json:"by_category"`
}

type classificationRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewClassificationRepository(db *sqlx.DB, logger *zap.Logger) ClassificationRepository {
	return &classificationRepository{db: db, logger: logger}
}

func (r *classificationRepository) SaveClassification(rec *models.ClassificationRecord) (bool, error) {
	query := `
		INSERT INTO classification_records (
			conversation_id, is_security_related, confidence, threat_category,
			matched_keywords, processed_for_training
		) VALUES ($1, $2, $3, $4, $5, FALSE)
		ON CONFLICT (conversation_id) DO NOTHING
		RETURNING id, created_at
	`
	err := r.db.QueryRow(
		query,
		rec.ConversationID,
		rec.IsSecurityRelated,
		rec.Confidence,
		rec.ThreatCategory,
		rec.MatchedKeywords,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil // Already classified; keep the first record.
		}
		return false, err
	}
	return true, nil
}

func (r *classificationRepository) GetByConversationID(conversationID int64) (*models.ClassificationRecord, error) {
	var rec models.ClassificationRecord
	query := `SELECT id, conversation_id, is_security_related, confidence, threat_category,
			matched_keywords, processed_for_training, claimed_job_id, created_at
		FROM classification_records WHERE conversation_id = $1`
	err := r.db.Get(&rec, query, conversationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (r *classificationRepository) CountQualifyingUnclaimed(minConfidence float64) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM classification_records
		WHERE is_security_related = TRUE
		  AND processed_for_training = FALSE
		  AND confidence >= $1`
	err := r.db.Get(&count, query, minConfidence)
	return count, err
}

func (r *classificationRepository) ClaimBatch(jobID string, minConfidence float64, limit int) ([]*models.ClassificationRecord, error) {
	// FOR UPDATE SKIP LOCKED keeps the flip conditional inside the storage
	// layer: two concurrent claimants lock disjoint row sets, so a record is
	// claimed at most once across processes.
	query := `
		UPDATE classification_records
		SET processed_for_training = TRUE,
		    claimed_job_id = $1
		WHERE id IN (
			SELECT id FROM classification_records
			WHERE is_security_related = TRUE
			  AND processed_for_training = FALSE
			  AND confidence >= $2
			ORDER BY created_at, id
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, conversation_id, is_security_related, confidence, threat_category,
		          matched_keywords, processed_for_training, claimed_job_id, created_at
	`
	rows, err := r.db.Queryx(query, jobID, minConfidence, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.ClassificationRecord
	for rows.Next() {
		rec := &models.ClassificationRecord{}
		if err := rows.StructScan(rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *classificationRepository) GetHeldOutRecords(minConfidence float64, limit int) ([]*models.ClassificationRecord, error) {
	var records []*models.ClassificationRecord
	query := `SELECT id, conversation_id, is_security_related, confidence, threat_category,
			matched_keywords, processed_for_training, claimed_job_id, created_at
		FROM classification_records
		WHERE is_security_related = TRUE
		  AND confidence >= $1
		  AND threat_category IS NOT NULL
		ORDER BY confidence DESC, id
		LIMIT $2`
	err := r.db.Select(&records, query, minConfidence, limit)
	return records, err
}

func (r *classificationRepository) GetStats() (*ClassificationStats, error) {
	stats := &ClassificationStats{ByCategory: make(map[string]int)}

	query := `SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_security_related),
			COUNT(*) FILTER (WHERE is_security_related AND NOT processed_for_training)
		FROM classification_records`
	if err := r.db.QueryRow(query).Scan(&stats.Total, &stats.SecurityRelated, &stats.Unclaimed); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`SELECT threat_category, COUNT(*)
		FROM classification_records
		WHERE threat_category IS NOT NULL
		GROUP BY threat_category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		stats.ByCategory[category] = count
	}
	return stats, rows.Err()
}
