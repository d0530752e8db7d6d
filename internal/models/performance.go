package models

import "time"

// PerformanceRecord is one append-only evaluation result for a fine-tuned
// model. Records are never mutated after insert.
type PerformanceRecord struct {
	ID             int64     `db:"id" json:"id"`
	ModelID        string    `db:"model_id" json:"model_id"`
	EvaluationType string    `db:"evaluation_type" json:"evaluation_type"`
	Score          float64   `db:"score" json:"score"`
	TestDataSize   int       `db:"test_data_size" json:"test_data_size"`
	EvaluationDate time.Time `db:"evaluation_date" json:"evaluation_date"`
}
