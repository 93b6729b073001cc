// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"market-genome/internal/domain"
	"market-genome/internal/domain/model"
	"market-genome/internal/domain/ports/adapter"
	"market-genome/internal/domain/ports/repository"
	"market-genome/internal/infra/logging"
	"market-genome/internal/infra/metrics"
)

// Compile-time check
var _ ChatUseCase = (*chatUC)(nil)

type ChatUseCase interface {
	Initialize(ctx context.Context, brandHandle string) (*ChatStart, error)
	SendMessage(ctx context.Context, sessionID, text string) (*ChatReply, error)
	RequestReport(ctx context.Context, sessionID, email string) (*model.GenomeJob, error)
	History(ctx context.Context, sessionID string) ([]model.ChatMessage, error)
	Terminate(ctx context.Context, sessionID string) (exportLocation string, err error)
	ListActive(ctx context.Context) ([]model.SessionSummary, error)
	// EvictIdle closes sessions idle for at least idle; busy sessions are skipped.
	EvictIdle(ctx context.Context, idle time.Duration) (int, error)
}

type ChatStart struct {
	Session    *model.ChatSession
	Greeting   string
	HasContext bool
}

type ChatReply struct {
	SessionID  string
	Text       string
	Action     model.ActionCategory
	Attachment *model.ImageRef
	JobID      string
	Timestamp  time.Time
}

// MessageLimiter throttles messages per key. The redis rate limiter satisfies it.
type MessageLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type ChatOptions struct {
	Model          string
	HistoryWindow  int
	ContextTokens  int
	HandlerTimeout time.Duration
	ImageSize      adapter.ImageSize
	RateLimit      int
	RateWindow     time.Duration
}

type chatUC struct {
	sessions repository.ChatSessionRepository
	archive  repository.ConversationArchive
	ai       adapter.AIServiceAdapter
	genome   GenomeUseCase
	limiter  MessageLimiter
	handlers map[model.ActionCategory]actionHandler
	validate *validator.Validate
	opts     ChatOptions
	log      *zerolog.Logger
}

func NewChatUseCase(
	sessions repository.ChatSessionRepository,
	archive repository.ConversationArchive,
	ai adapter.AIServiceAdapter,
	genome GenomeUseCase,
	limiter MessageLimiter,
	opts ChatOptions,
	logger *zerolog.Logger,
) *chatUC {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 2 * time.Minute
	}
	if opts.ImageSize == "" {
		opts.ImageSize = adapter.DefaultImageSize
	}
	c := &chatUC{
		sessions: sessions,
		archive:  archive,
		ai:       ai,
		genome:   genome,
		limiter:  limiter,
		validate: newValidator(),
		opts:     opts,
		log:      logger,
	}
	c.handlers = c.buildHandlers()
	return c
}

type sessionInput struct {
	BrandHandle string `json:"brand_handle" validate:"required,min=3,max=200"`
}

const greetingTemplate = `Hi! I'm your personal AI strategist for **%s**.

I can help you with:
- Content creation (Instagram posts, captions, campaigns)
- Audience insights and personas
- Competitor analysis
- Growth strategies
- Engagement predictions
- Weekly content planning

What would you like to work on today?`

func (c *chatUC) Initialize(ctx context.Context, brandHandle string) (*ChatStart, error) {
	defer logging.TraceDuration(c.log, "ChatUC.Initialize")()

	brandHandle = strings.TrimSpace(brandHandle)
	// Same bounds as BrandInput.Brand, or the report bridge could never submit.
	in := sessionInput{BrandHandle: brandHandle}
	if err := c.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	bc := c.lookupContext(ctx, brandHandle)
	s := model.NewChatSession(brandHandle, bc)
	if err := c.sessions.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	metrics.SetActiveSessions(c.sessions.Count(ctx))

	l := logging.With(logging.WithSessID(ctx, s.ID), c.log)
	l.Info().Str("brand", brandHandle).Bool("has_context", bc != nil).Msg("chat session started")

	return &ChatStart{
		Session:    s,
		Greeting:   fmt.Sprintf(greetingTemplate, brandHandle),
		HasContext: bc != nil,
	}, nil
}

// lookupContext seeds a session from the most recent completed analysis.
func (c *chatUC) lookupContext(ctx context.Context, brand string) *model.BrandContext {
	if c.genome == nil {
		return nil
	}
	job, err := c.genome.LatestCompletedForBrand(ctx, brand)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.log.Warn().Err(err).Str("brand", brand).Msg("brand context lookup failed")
		}
		return nil
	}
	bc := &model.BrandContext{JobID: job.ID}
	if _, err := job.StageResult(StageBrandDNA, &bc.BrandDNA); err != nil {
		c.log.Warn().Err(err).Str("job_id", job.ID).Msg("brand dna unreadable")
	}
	if _, err := job.StageResult(StageCompetitors, &bc.Competitors); err != nil {
		c.log.Warn().Err(err).Str("job_id", job.ID).Msg("competitor result unreadable")
	}
	if bc.BrandDNA != nil {
		bc.Audience = bc.BrandDNA["audience"]
	}
	return bc
}

func (c *chatUC) SendMessage(ctx context.Context, sessionID, text string) (*ChatReply, error) {
	defer logging.TraceDuration(c.log, "ChatUC.SendMessage")()

	s, err := c.active(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: message is required", domain.ErrInvalidArgument)
	}
	if err := c.allow(ctx, s.ID); err != nil {
		return nil, err
	}

	action := ClassifyIntent(text)
	ctx = logging.WithSessID(ctx, s.ID)
	log := logging.With(ctx, c.log)

	if err := s.BeginTurn(ctx); err != nil {
		return nil, err
	}
	defer s.EndTurn()
	// terminated or evicted while we waited
	if s.Closed() {
		return nil, fmt.Errorf("%w: chat session %s", domain.ErrNotFound, s.ID)
	}

	s.AddMessage(model.ChatMessage{Role: model.RoleUser, Content: text})

	hctx, cancel := context.WithTimeout(ctx, c.opts.HandlerTimeout)
	res, herr := c.handlers[action](hctx, s, text)
	cancel()
	if herr != nil {
		log.Error().Err(herr).Str("action", string(action)).Msg("chat handler failed")
		metrics.IncChatHandlerFailure(string(action))
		res = handlerResult{Text: apology(action, s.BrandHandle)}
	}

	reply := model.ChatMessage{
		Role:       model.RoleAssistant,
		Content:    res.Text,
		Action:     string(action),
		Attachment: res.Attachment,
	}
	s.AddMessage(reply)
	metrics.IncChatMessage(string(action))

	return &ChatReply{
		SessionID:  s.ID,
		Text:       res.Text,
		Action:     action,
		Attachment: res.Attachment,
		JobID:      res.JobID,
		Timestamp:  time.Now().UTC(),
	}, nil
}

func (c *chatUC) RequestReport(ctx context.Context, sessionID, email string) (*model.GenomeJob, error) {
	s, err := c.active(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Touch()
	return c.submitReport(ctx, s, email)
}

func (c *chatUC) submitReport(ctx context.Context, s *model.ChatSession, email string) (*model.GenomeJob, error) {
	if c.genome == nil {
		return nil, fmt.Errorf("%w: report generation unavailable", domain.ErrService)
	}
	return c.genome.Submit(ctx, model.BrandInput{
		Brand:         s.BrandHandle,
		InputType:     model.InputAuto,
		DeliveryEmail: email,
		ChatSessionID: s.ID,
	})
}

func (c *chatUC) History(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	s, err := c.active(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.Messages(), nil
}

func (c *chatUC) Terminate(ctx context.Context, sessionID string) (string, error) {
	s, err := c.active(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if err := s.BeginTurn(ctx); err != nil {
		return "", err
	}
	defer s.EndTurn()
	if s.Closed() {
		return "", fmt.Errorf("%w: chat session %s", domain.ErrNotFound, s.ID)
	}

	loc := c.closeSession(ctx, s, "terminated")
	return loc, nil
}

// closeSession exports then removes a session. Caller holds the turn.
func (c *chatUC) closeSession(ctx context.Context, s *model.ChatSession, reason string) string {
	log := logging.With(logging.WithSessID(ctx, s.ID), c.log)
	s.Close()

	loc := ""
	if c.archive != nil {
		var err error
		loc, err = c.archive.Export(ctx, s.Export())
		if err != nil {
			log.Warn().Err(err).Msg("conversation export failed")
			loc = ""
		}
	}
	if err := c.sessions.Delete(ctx, s.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Msg("failed to remove session")
	}
	metrics.SetActiveSessions(c.sessions.Count(ctx))
	log.Info().Str("reason", reason).Int("messages", s.MessageCount()).Str("export", loc).Msg("chat session closed")
	return loc
}

func (c *chatUC) ListActive(ctx context.Context) ([]model.SessionSummary, error) {
	list, err := c.sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.SessionSummary, 0, len(list))
	for _, s := range list {
		if s.Closed() {
			continue
		}
		out = append(out, s.Summary())
	}
	return out, nil
}

func (c *chatUC) EvictIdle(ctx context.Context, idle time.Duration) (int, error) {
	list, err := c.sessions.List(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	evicted := 0
	for _, s := range list {
		if s.IdleSince(now) < idle {
			continue
		}
		if !s.TryBeginTurn() {
			continue
		}
		if s.Closed() || s.IdleSince(time.Now()) < idle {
			s.EndTurn()
			continue
		}
		c.closeSession(ctx, s, "idle")
		s.EndTurn()
		evicted++
	}
	if evicted > 0 {
		metrics.AddSessionsEvicted(evicted)
	}
	return evicted, nil
}

func (c *chatUC) active(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	s, err := c.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if s.Closed() {
		return nil, fmt.Errorf("%w: chat session %s", domain.ErrNotFound, sessionID)
	}
	return s, nil
}

func (c *chatUC) allow(ctx context.Context, sessionID string) error {
	if c.limiter == nil || c.opts.RateLimit <= 0 {
		return nil
	}
	ok, err := c.limiter.Allow(ctx, "chat:"+sessionID, c.opts.RateLimit, c.opts.RateWindow)
	if err != nil {
		// limiter outage does not block chat
		c.log.Warn().Err(err).Msg("chat rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func apology(action model.ActionCategory, brand string) string {
	if action == model.ActionImageGeneration {
		return "I couldn't create that image right now. Let me help you with the concept instead: tell me more about what you'd like to see."
	}
	return fmt.Sprintf("Sorry, I ran into a problem answering that. Let's try again: what would you like to know about %s?", brand)
}
