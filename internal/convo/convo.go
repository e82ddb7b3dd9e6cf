// Package convo implements the conversation manager of spec §4.6: partition
// and conversation lifecycle, encrypted message append, snapshot creation,
// and context reconstruction.
package convo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/loom-gateway/internal/cryptoutil"
	"github.com/teradata-labs/loom-gateway/internal/store"
	"go.uber.org/zap"
)

// ContextMessage is a decrypted message ready for context reconstruction.
type ContextMessage struct {
	Role   store.MessageRole
	Text   string
	Tokens int
}

// LoadedContext is the result of loadContext (spec §4.6).
type LoadedContext struct {
	Messages               []ContextMessage
	TokenEstimate           int
	LatestSnapshotID        *uuid.UUID
	LatestSnapshotPlaintext *string
}

// Manager implements the conversation manager's operations. Grounded on
// internal/trustledger/postgres.go's advisory-lock pattern for
// CreateSnapshot and internal/users/repository.go's upsert-then-reselect
// shape for the idempotent GetOrCreate* calls (adapted into the
// store package's repositories, which Manager composes).
type Manager struct {
	partitions    *store.PartitionRepository
	conversations *store.ConversationRepository
	messages      *store.MessageRepository
	snapshots     *store.SnapshotRepository
	cipher        *cryptoutil.Cipher
	logger        *zap.Logger
}

// New builds a Manager. cipher may be nil, in which case message/snapshot
// content is stored as plaintext bytes with an empty IV — callers should
// avoid this in production; it exists only so tests can exercise the
// non-crypto logic in isolation.
func New(partitions *store.PartitionRepository, conversations *store.ConversationRepository, messages *store.MessageRepository, snapshots *store.SnapshotRepository, cipher *cryptoutil.Cipher, logger *zap.Logger) *Manager {
	return &Manager{partitions: partitions, conversations: conversations, messages: messages, snapshots: snapshots, cipher: cipher, logger: logger}
}

// GetOrCreatePartition materialises a partition idempotently on
// (tenant, externalId) (spec §4.6).
func (m *Manager) GetOrCreatePartition(ctx context.Context, tenantID uuid.UUID, externalID string, parentID *uuid.UUID) (*store.Partition, error) {
	return m.partitions.GetOrCreate(ctx, tenantID, externalID, parentID)
}

// GetOrCreateConversation materialises a conversation idempotently on
// (tenant, externalId) (spec §4.6).
func (m *Manager) GetOrCreateConversation(ctx context.Context, tenantID uuid.UUID, partitionID *uuid.UUID, externalID string, agentID *uuid.UUID) (*store.Conversation, error) {
	return m.conversations.GetOrCreate(ctx, tenantID, partitionID, externalID, agentID)
}

// EstimateTokens returns the ceil(len(text)/4) fallback estimate (spec §4.6,
// §9 Open Questions). Callers supplying an explicit estimate on a message
// row take priority over this fallback.
func EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + 3) / 4
}

// LoadContext reconstructs "active snapshot + subsequent messages"
// semantics (spec §4.6): let S be the newest snapshot (or none); messages
// are all rows created after S (or all, if none), ordered ascending.
func (m *Manager) LoadContext(ctx context.Context, conversationID uuid.UUID, tenantID uuid.UUID) (*LoadedContext, error) {
	snap, err := m.snapshots.Latest(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	var since time.Time
	out := &LoadedContext{}
	if snap != nil {
		since = snap.CreatedAt
		out.LatestSnapshotID = &snap.ID
		out.TokenEstimate += snap.TokenEstimate

		plaintext, decErr := m.decrypt(snap.Ciphertext, snap.IV, tenantID)
		if decErr != nil {
			m.logger.Warn("failed to decrypt conversation snapshot", zap.Error(decErr), zap.String("conversation_id", conversationID.String()))
		} else {
			out.LatestSnapshotPlaintext = &plaintext
		}
	}

	rows, err := m.messages.ListAfter(ctx, conversationID, since)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	for _, row := range rows {
		plaintext, decErr := m.decrypt(row.Ciphertext, row.IV, tenantID)
		if decErr != nil {
			m.logger.Warn("failed to decrypt conversation message", zap.Error(decErr), zap.String("conversation_id", conversationID.String()))
			continue
		}
		out.Messages = append(out.Messages, ContextMessage{Role: row.Role, Text: plaintext, Tokens: row.TokenEstimate})
		out.TokenEstimate += row.TokenEstimate
	}

	return out, nil
}

// BuildInjectionMessages turns a LoadedContext into an ordered list ready to
// prepend to the caller's messages (spec §4.6): a synthetic system message
// carrying the snapshot summary (if any), followed by the post-snapshot
// messages in order with roles preserved.
func (m *Manager) BuildInjectionMessages(ctx LoadedContext) []ContextMessage {
	var out []ContextMessage
	if ctx.LatestSnapshotPlaintext != nil {
		out = append(out, ContextMessage{Role: "system", Text: *ctx.LatestSnapshotPlaintext})
	}
	out = append(out, ctx.Messages...)
	return out
}

// NeedsSnapshot reports whether tokenEstimate has grown past limit
// (spec §4.6).
func NeedsSnapshot(tokenEstimate, limit int) bool {
	return tokenEstimate > limit
}

// StoreMessages appends a (user, assistant) pair of encrypted rows and
// bumps the conversation's lastActiveAt. Per spec §4.6 this "may fail
// silently (log and continue)"; callers on the request path should invoke
// this in a goroutine and never block the response on its result.
func (m *Manager) StoreMessages(ctx context.Context, conversationID, tenantID uuid.UUID, userText, assistantText string, estimatedTokens *int, belongsToSnapshot *uuid.UUID) {
	userTok := EstimateTokens(userText)
	asstTok := EstimateTokens(assistantText)
	if estimatedTokens != nil {
		userTok = *estimatedTokens
		asstTok = *estimatedTokens
	}

	if err := m.appendMessage(ctx, conversationID, tenantID, store.MessageRoleUser, userText, userTok, belongsToSnapshot); err != nil {
		m.logger.Warn("failed to store user message", zap.Error(err), zap.String("conversation_id", conversationID.String()))
	}
	if err := m.appendMessage(ctx, conversationID, tenantID, store.MessageRoleAssistant, assistantText, asstTok, belongsToSnapshot); err != nil {
		m.logger.Warn("failed to store assistant message", zap.Error(err), zap.String("conversation_id", conversationID.String()))
	}

	if err := m.conversations.TouchLastActive(ctx, conversationID); err != nil {
		m.logger.Warn("failed to touch conversation last_active_at", zap.Error(err), zap.String("conversation_id", conversationID.String()))
	}
}

func (m *Manager) appendMessage(ctx context.Context, conversationID, tenantID uuid.UUID, role store.MessageRole, text string, tokens int, belongsToSnapshot *uuid.UUID) error {
	ciphertext, iv, err := m.encrypt(text, tenantID)
	if err != nil {
		return fmt.Errorf("encrypt message: %w", err)
	}
	msg := &store.ConversationMessage{
		ConversationID:      conversationID,
		Role:                role,
		Ciphertext:          ciphertext,
		IV:                  iv,
		TokenEstimate:       tokens,
		BelongsToSnapshotID: belongsToSnapshot,
	}
	return m.messages.Append(ctx, msg)
}

// CreateSnapshot appends a snapshot row under the conversation's advisory
// lock, serialising concurrent summarisation attempts to one (spec §4.6,
// §8 property 8). The caller has already produced summaryPlaintext via a
// summariser model call.
func (m *Manager) CreateSnapshot(ctx context.Context, conversationID, tenantID uuid.UUID, summaryPlaintext string, messagesArchivedCount int) (*store.ConversationSnapshot, error) {
	ciphertext, iv, err := m.encrypt(summaryPlaintext, tenantID)
	if err != nil {
		return nil, fmt.Errorf("encrypt snapshot: %w", err)
	}
	snap := &store.ConversationSnapshot{
		ConversationID:   conversationID,
		Ciphertext:       ciphertext,
		IV:               iv,
		TokenEstimate:    EstimateTokens(summaryPlaintext),
		MessagesArchived: messagesArchivedCount,
	}
	if err := m.snapshots.Create(ctx, snap); err != nil {
		return nil, fmt.Errorf("create snapshot: %w", err)
	}
	return snap, nil
}

func (m *Manager) encrypt(plaintext string, tenantID uuid.UUID) ([]byte, []byte, error) {
	if m.cipher == nil {
		return []byte(plaintext), []byte{}, nil
	}
	return m.cipher.Encrypt([]byte(plaintext), tenantID[:])
}

func (m *Manager) decrypt(ciphertext, iv []byte, tenantID uuid.UUID) (string, error) {
	if m.cipher == nil {
		return string(ciphertext), nil
	}
	plaintext, err := m.cipher.Decrypt(ciphertext, iv, tenantID[:])
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
