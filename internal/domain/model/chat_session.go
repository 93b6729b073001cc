package model

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ActionCategory is the handler a chat message was routed to.
type ActionCategory string

const (
	ActionImageGeneration ActionCategory = "image_generation"
	ActionReportRequest   ActionCategory = "report_request"
	ActionContentCreation ActionCategory = "content_creation"
	ActionCompetitor      ActionCategory = "competitor_analysis"
	ActionPredictive      ActionCategory = "predictive_analysis"
	ActionPersona         ActionCategory = "persona_insight"
	ActionCampaign        ActionCategory = "campaign_planning"
	ActionGeneralChat     ActionCategory = "general_chat"
)

type ChatMessage struct {
	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Action     string    `json:"action,omitempty"`
	Attachment *ImageRef `json:"attachment,omitempty"`
}

// ChatSession holds one conversation about one brand. The message log is
// append-only; turns are serialized by BeginTurn/EndTurn.
type ChatSession struct {
	ID           string
	BrandHandle  string
	BrandContext *BrandContext
	CreatedAt    time.Time

	mu           sync.RWMutex
	messages     []ChatMessage
	lastActivity time.Time
	closed       bool

	turn chan struct{}
}

func NewChatSession(brandHandle string, bc *BrandContext) *ChatSession {
	now := time.Now().UTC()
	return &ChatSession{
		ID:           uuid.NewString(),
		BrandHandle:  brandHandle,
		BrandContext: bc,
		CreatedAt:    now,
		lastActivity: now,
		turn:         make(chan struct{}, 1),
	}
}

// BeginTurn blocks until the session is free or ctx ends.
func (s *ChatSession) BeginTurn(ctx context.Context) error {
	select {
	case s.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryBeginTurn takes the turn only if nobody holds it.
func (s *ChatSession) TryBeginTurn() bool {
	select {
	case s.turn <- struct{}{}:
		return true
	default:
		return false
	}
}

func (s *ChatSession) EndTurn() { <-s.turn }

func (s *ChatSession) AddMessage(m ChatMessage) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	s.messages = append(s.messages, m)
	s.lastActivity = m.Timestamp
	s.mu.Unlock()
}

// Messages returns a copy of the full log in append order.
func (s *ChatSession) Messages() []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ChatMessage(nil), s.messages...)
}

// GetRecentMessages returns the last n messages (all when n <= 0).
func (s *ChatSession) GetRecentMessages(n int) []ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	start := 0
	if n > 0 && len(s.messages) > n {
		start = len(s.messages) - n
	}
	return append([]ChatMessage(nil), s.messages[start:]...)
}

func (s *ChatSession) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *ChatSession) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now().UTC()
	s.mu.Unlock()
}

func (s *ChatSession) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

func (s *ChatSession) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

func (s *ChatSession) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *ChatSession) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *ChatSession) HasContext() bool { return s.BrandContext != nil }

// SessionSummary is the listing view; it carries no message content.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	BrandHandle  string    `json:"brand_handle"`
	MessageCount int       `json:"message_count"`
	HasContext   bool      `json:"has_context"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

func (s *ChatSession) Summary() SessionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SessionSummary{
		SessionID:    s.ID,
		BrandHandle:  s.BrandHandle,
		MessageCount: len(s.messages),
		HasContext:   s.BrandContext != nil,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.lastActivity,
	}
}

// ConversationExport is the archived form of a session.
type ConversationExport struct {
	BrandHandle  string        `json:"brand_handle"`
	SessionID    string        `json:"session_id"`
	Conversation []ChatMessage `json:"conversation"`
	BrandContext *BrandContext `json:"brand_context"`
	ExportedAt   time.Time     `json:"exported_at"`
}

func (s *ChatSession) Export() ConversationExport {
	return ConversationExport{
		BrandHandle:  s.BrandHandle,
		SessionID:    s.ID,
		Conversation: s.Messages(),
		BrandContext: s.BrandContext,
		ExportedAt:   time.Now().UTC(),
	}
}
