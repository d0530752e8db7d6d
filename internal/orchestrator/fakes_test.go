package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"finetuner/internal/finetune_client"
	"finetuner/internal/models"
	"finetuner/internal/repository"
)

// fakeStore is an in-memory stand-in for the Postgres repositories. The
// claim operation is guarded by a mutex to mirror the storage-enforced
// conditional update.
type fakeStore struct {
	mu            sync.Mutex
	conversations map[int64]*models.Conversation
	records       map[int64]*models.ClassificationRecord
	jobs          map[string]*models.FineTuningJob
	examples      map[string][]models.TrainingExample

	claimErr  error
	saveErr   error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[int64]*models.Conversation),
		records:       make(map[int64]*models.ClassificationRecord),
		jobs:          make(map[string]*models.FineTuningJob),
		examples:      make(map[string][]models.TrainingExample),
	}
}

// addClassified seeds one conversation with n user/assistant exchanges plus
// its qualifying classification record.
func (s *fakeStore) addClassified(id int64, confidence float64, category string) {
	conv := &models.Conversation{ID: id}
	conv.Messages = []models.ConversationMessage{
		{ConversationID: id, Role: models.RoleUser, Content: fmt.Sprintf("We found a trojan on workstation %d, please advise.", id), Seq: 0},
		{ConversationID: id, Role: models.RoleAssistant, Content: "Quarantine the machine and run a full scan before reconnecting it.", Seq: 1},
		{ConversationID: id, Role: models.RoleUser, Content: "The scan finished, the hash matches a known sample.", Seq: 2},
	}
	s.conversations[id] = conv
	s.records[id] = &models.ClassificationRecord{
		ID:                id,
		ConversationID:    id,
		IsSecurityRelated: true,
		Confidence:        confidence,
		ThreatCategory:    &category,
		MatchedKeywords:   []string{"trojan", "hash"},
	}
}

// ConversationRepository

func (s *fakeStore) GetConversationByID(id int64) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[id], nil
}

func (s *fakeStore) GetConversationsByIDs(ids []int64) (map[int64]*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[int64]*models.Conversation)
	for _, id := range ids {
		if conv, ok := s.conversations[id]; ok {
			result[id] = conv
		}
	}
	return result, nil
}

// ClassificationRepository

func (s *fakeStore) SaveClassification(rec *models.ClassificationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return false, s.saveErr
	}
	if _, exists := s.records[rec.ConversationID]; exists {
		return false, nil
	}
	s.records[rec.ConversationID] = rec
	return true, nil
}

func (s *fakeStore) GetByConversationID(conversationID int64) (*models.ClassificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[conversationID], nil
}

func (s *fakeStore) CountQualifyingUnclaimed(minConfidence float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, rec := range s.records {
		if rec.IsSecurityRelated && !rec.ProcessedForTraining && rec.Confidence >= minConfidence {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) ClaimBatch(jobID string, minConfidence float64, limit int) ([]*models.ClassificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	var claimed []*models.ClassificationRecord
	for _, rec := range s.records {
		if len(claimed) >= limit {
			break
		}
		if rec.IsSecurityRelated && !rec.ProcessedForTraining && rec.Confidence >= minConfidence {
			rec.ProcessedForTraining = true
			rec.ClaimedJobID = &jobID
			claimed = append(claimed, rec)
		}
	}
	return claimed, nil
}

func (s *fakeStore) GetHeldOutRecords(minConfidence float64, limit int) ([]*models.ClassificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.ClassificationRecord
	for _, rec := range s.records {
		if len(out) >= limit {
			break
		}
		if rec.IsSecurityRelated && rec.Confidence >= minConfidence && rec.ThreatCategory != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeStore) GetStats() (*repository.ClassificationStats, error) {
	return &repository.ClassificationStats{ByCategory: map[string]int{}}, nil
}

// JobRepository

func (s *fakeStore) CreateJob(job *models.FineTuningJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

func (s *fakeStore) GetJobByID(id string) (*models.FineTuningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		copied := *job
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) GetJobs(limit int) ([]*models.FineTuningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*models.FineTuningJob
	for _, job := range s.jobs {
		copied := *job
		jobs = append(jobs, &copied)
	}
	return jobs, nil
}

func (s *fakeStore) GetActiveJobs() ([]*models.FineTuningJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var jobs []*models.FineTuningJob
	for _, job := range s.jobs {
		if (job.Status == models.JobStatusDataUploaded || job.Status == models.JobStatusTraining) && job.ProviderJobID != nil {
			copied := *job
			jobs = append(jobs, &copied)
		}
	}
	return jobs, nil
}

func (s *fakeStore) UpdateJobStatus(job *models.FineTuningJob, prev models.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	stored, ok := s.jobs[job.ID]
	if !ok || stored.Status != prev {
		return repository.ErrStaleJobStatus
	}
	copied := *job
	s.jobs[job.ID] = &copied
	return nil
}

// ExampleRepository

func (s *fakeStore) SaveExamples(jobID string, examples []models.TrainingExample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.examples[jobID] = append(s.examples[jobID], examples...)
	return nil
}

func (s *fakeStore) GetExamplesByJob(jobID string) ([]*models.TrainingExample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TrainingExample
	for i := range s.examples[jobID] {
		out = append(out, &s.examples[jobID][i])
	}
	return out, nil
}

// fakeProvider is a scripted fine-tuning provider.
type fakeProvider struct {
	mu sync.Mutex

	uploadErr error
	createErr error
	statusErr error

	status         string
	fineTunedModel string
	statusMessage  string

	uploads     int
	submissions int
	polls       int
}

func (p *fakeProvider) UploadTrainingFile(ctx context.Context, filename string, examples []models.TrainingExample) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploadErr != nil {
		return "", p.uploadErr
	}
	p.uploads++
	return "file-123", nil
}

func (p *fakeProvider) CreateJob(ctx context.Context, fileID, baseModel string, hyperparameters json.RawMessage) (*finetune_client.JobResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.submissions++
	return &finetune_client.JobResponse{JobID: "prov-1", Status: finetune_client.ProviderStatusQueued}, nil
}

func (p *fakeProvider) GetJobStatus(ctx context.Context, providerJobID string) (*finetune_client.JobResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	p.polls++
	return &finetune_client.JobResponse{
		JobID:          providerJobID,
		Status:         p.status,
		FineTunedModel: p.fineTunedModel,
		Error:          p.statusMessage,
	}, nil
}

var errBoom = errors.New("boom")
