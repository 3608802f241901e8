// Package importer runs asynchronous historical CSV imports: parse the
// export, group messages into conversations, extract pattern candidates,
// and feed them to the learning engine.
package importer

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fairwayops/patternd/internal/conversation"
	"github.com/fairwayops/patternd/internal/events"
	"github.com/fairwayops/patternd/internal/extraction"
	"github.com/fairwayops/patternd/internal/pattern"
	"github.com/fairwayops/patternd/internal/store"
)

const (
	defaultWorkers = 4

	// progressInterval is how many conversations are processed between
	// job progress writes.
	progressInterval = 25
)

// Importer runs import jobs in the background. One conversation failing
// never fails the job; failures count toward the job's error tally.
type Importer struct {
	store     store.Store
	engine    *pattern.Engine
	parser    *conversation.Parser
	grouper   *conversation.Grouper
	extractor extraction.Extractor
	refiner   extraction.Refiner
	events    *events.Publisher
	workers   int
	logger    *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
	ctx    context.Context
}

// New creates an importer with the given worker count (0 for default).
func New(
	st store.Store,
	engine *pattern.Engine,
	grouper *conversation.Grouper,
	extractor extraction.Extractor,
	refiner extraction.Refiner,
	publisher *events.Publisher,
	workers int,
	logger *zap.Logger,
) *Importer {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Importer{
		store:     st,
		engine:    engine,
		parser:    conversation.NewParser(),
		grouper:   grouper,
		extractor: extractor,
		refiner:   refiner,
		events:    publisher,
		workers:   workers,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartImport parses the CSV synchronously so format errors surface
// immediately, then processes conversations in the background. The
// returned job is in the pending state; poll GetImportJob for progress.
func (i *Importer) StartImport(ctx context.Context, source string, r io.Reader) (*store.ImportJob, error) {
	result, err := i.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing import: %w", err)
	}

	job := &store.ImportJob{
		ID:         uuid.NewString(),
		Status:     store.JobPending,
		Source:     source,
		ErrorCount: result.ErrorCount,
		CreatedAt:  time.Now().UTC(),
	}
	if err := i.store.CreateImportJob(ctx, job); err != nil {
		return nil, fmt.Errorf("creating import job: %w", err)
	}

	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.run(job, result.Messages)
	}()

	return job, nil
}

// run processes one job to completion. Runs on the importer's own
// context so an HTTP request cancel does not abort the job.
func (i *Importer) run(job *store.ImportJob, messages []conversation.Message) {
	started := time.Now().UTC()
	job.Status = store.JobRunning
	job.StartedAt = &started
	if err := i.store.UpdateImportJob(i.ctx, job); err != nil {
		i.logger.Error("failed to mark import job running", zap.String("job_id", job.ID), zap.Error(err))
	}

	conversations := i.grouper.Group(messages)
	i.logger.Info("import started",
		zap.String("job_id", job.ID),
		zap.Int("messages", len(messages)),
		zap.Int("conversations", len(conversations)),
	)

	work := make(chan conversation.Conversation)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for w := 0; w < i.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for conv := range work {
				created, merged, skipped, errCount := i.processConversation(conv)
				observeConversation(created, merged, skipped, errCount)
				mu.Lock()
				job.ConversationsSeen++
				job.PatternsCreated += created
				job.PatternsMerged += merged
				job.Skipped += skipped
				job.ErrorCount += errCount
				flush := job.ConversationsSeen%progressInterval == 0
				if flush {
					i.persistProgress(job)
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, conv := range conversations {
		select {
		case <-i.ctx.Done():
			break feed
		case work <- conv:
		}
	}
	close(work)
	wg.Wait()

	finished := time.Now().UTC()
	job.FinishedAt = &finished
	if i.ctx.Err() != nil {
		job.Status = store.JobFailed
		job.Error = "import aborted during shutdown"
	} else {
		job.Status = store.JobCompleted
	}
	if err := i.store.UpdateImportJob(context.Background(), job); err != nil {
		i.logger.Error("failed to finalize import job", zap.String("job_id", job.ID), zap.Error(err))
	}

	i.logger.Info("import finished",
		zap.String("job_id", job.ID),
		zap.String("status", job.Status),
		zap.Int("conversations", job.ConversationsSeen),
		zap.Int("created", job.PatternsCreated),
		zap.Int("merged", job.PatternsMerged),
		zap.Int("errors", job.ErrorCount),
	)
}

// persistProgress writes the job row mid-flight. Caller holds mu.
func (i *Importer) persistProgress(job *store.ImportJob) {
	snapshot := *job
	if err := i.store.UpdateImportJob(i.ctx, &snapshot); err != nil {
		i.logger.Warn("failed to persist import progress", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// processConversation extracts and learns candidates from one
// conversation. Returns created, merged, skipped, and error counts.
func (i *Importer) processConversation(conv conversation.Conversation) (created, merged, skipped, errCount int) {
	candidates, err := i.extractor.Extract(conv)
	if err != nil {
		i.logger.Warn("extraction failed",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return 0, 0, 0, 1
	}
	if len(candidates) == 0 {
		return 0, 0, 1, 0
	}

	for _, candidate := range candidates {
		if candidate.NeedsLLMRefine && i.refiner.Available() {
			refined, err := i.refiner.Refine(i.ctx, candidate)
			if err != nil {
				i.logger.Warn("refinement failed, keeping heuristic candidate",
					zap.String("conversation_id", conv.ID),
					zap.Error(err),
				)
			} else {
				candidate = refined
			}
		}

		result, err := i.engine.Learn(i.ctx, candidate)
		if err != nil {
			i.logger.Warn("learning failed",
				zap.String("conversation_id", conv.ID),
				zap.Error(err),
			)
			errCount++
			continue
		}
		if result.Merged {
			merged++
			i.events.Publish(events.SubjectPatternMerged, map[string]any{
				"pattern_id": result.Pattern.ID,
				"job_source": "import",
			})
		} else {
			created++
			i.events.Publish(events.SubjectPatternLearned, map[string]any{
				"pattern_id": result.Pattern.ID,
				"type":       result.Pattern.Type,
				"job_source": "import",
			})
		}
	}
	return created, merged, skipped, errCount
}

// GetJob returns the current state of an import job.
func (i *Importer) GetJob(ctx context.Context, id string) (*store.ImportJob, error) {
	return i.store.GetImportJob(ctx, id)
}

// Close aborts in-flight jobs and waits for workers to exit.
func (i *Importer) Close() {
	i.cancel()
	i.wg.Wait()
}
