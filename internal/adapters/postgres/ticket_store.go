package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/longregen/helpdesk/internal/domain"
	"github.com/longregen/helpdesk/internal/domain/models"
)

// IDGenerator mints server-side ids for tickets and responses.
type IDGenerator interface {
	GenerateConversationID() string
	GenerateMessageID() string
}

const responseColumns = `id, ticket_id, author_role, author_name, body, is_internal, attachments, created_at`

// TicketStore is the ticket/response store backed by the support_tickets and
// ticket_responses tables.
type TicketStore struct {
	tx    *TransactionManager
	ids   IDGenerator
	clock clock.Clock
}

func NewTicketStore(pool *pgxpool.Pool, ids IDGenerator, clk clock.Clock) *TicketStore {
	if clk == nil {
		clk = clock.New()
	}
	return &TicketStore{
		tx:    NewTransactionManager(pool),
		ids:   ids,
		clock: clk,
	}
}

// FetchMessages returns the visible responses of a ticket in creation order.
func (s *TicketStore) FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT ` + responseColumns + `
		FROM ticket_responses
		WHERE ticket_id = $1 AND NOT is_internal
		ORDER BY created_at ASC, id ASC`

	rows, err := s.tx.Conn(ctx).Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch responses: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read responses: %w", err)
	}
	return messages, nil
}

// GetMessage loads a single response by id, internal ones included.
func (s *TicketStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + responseColumns + ` FROM ticket_responses WHERE id = $1`

	m, err := scanResponse(s.tx.Conn(ctx).QueryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return m, nil
}

// AppendMessage inserts a response and touches its ticket in one transaction.
// A resolved ticket reopens as in_progress when the end user writes again;
// closed tickets reject new responses.
func (s *TicketStore) AppendMessage(ctx context.Context, conversationID string, role models.MessageRole, body string, attachments []models.Attachment) (*models.Message, error) {
	if !role.Valid() {
		return nil, domain.NewDomainError(domain.ErrInvalidRole, string(role))
	}
	if strings.TrimSpace(body) == "" {
		return nil, domain.ErrEmptyContent
	}
	attachmentsJSON, err := encodeAttachments(attachments)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attachments: %w", err)
	}

	msg := models.NewMessage(s.ids.GenerateMessageID(), conversationID, role, body, s.clock.Now())
	msg.Attachments = attachments

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		status, err := s.lockTicket(ctx, conversationID)
		if err != nil {
			return err
		}
		if status == models.ConversationStatusClosed {
			return domain.ErrConversationClosed
		}

		_, err = s.tx.Conn(ctx).Exec(ctx, `
			INSERT INTO ticket_responses (`+responseColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			msg.ID, msg.ConversationID, string(msg.Role), optionalText(msg.AuthorName),
			msg.Body, msg.Internal, attachmentsJSON, msg.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert response: %w", err)
		}

		next := status
		if status == models.ConversationStatusResolved && role == models.MessageRoleEndUser {
			next = models.ConversationStatusInProgress
		}
		return s.updateTicket(ctx, conversationID, next)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetConversation returns the ticket record.
func (s *TicketStore) GetConversation(ctx context.Context, conversationID string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `
		SELECT id, status, category, created_at, updated_at
		FROM support_tickets
		WHERE id = $1`

	var c models.Conversation
	var category pgtype.Text
	err := s.tx.Conn(ctx).QueryRow(ctx, query, conversationID).Scan(
		&c.ID, &c.Status, &category, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, fmt.Errorf("failed to load ticket: %w", err)
	}
	c.Category = category.String
	return &c, nil
}

// CreateConversation opens a new ticket for userID.
func (s *TicketStore) CreateConversation(ctx context.Context, userID, category string) (*models.Conversation, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	c := models.NewConversation(s.ids.GenerateConversationID(), category)
	c.CreatedAt = s.clock.Now().UTC()
	c.UpdatedAt = c.CreatedAt

	_, err := s.tx.Conn(ctx).Exec(ctx, `
		INSERT INTO support_tickets (id, user_id, status, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, userID, string(c.Status), optionalText(c.Category), c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	return c, nil
}

// ApplyAction moves a ticket to the status an escalate or close action targets.
func (s *TicketStore) ApplyAction(ctx context.Context, conversationID string, action models.ConversationAction) error {
	if !action.Valid() {
		return domain.NewDomainError(domain.ErrInvalidAction, string(action))
	}
	return s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		status, err := s.lockTicket(ctx, conversationID)
		if err != nil {
			return err
		}
		target := action.TargetStatus()
		if err := models.ValidateTransition(status, target); err != nil {
			return domain.NewDomainError(domain.ErrInvalidStatusTransition, err.Error())
		}
		return s.updateTicket(ctx, conversationID, target)
	})
}

func (s *TicketStore) lockTicket(ctx context.Context, conversationID string) (models.ConversationStatus, error) {
	var status models.ConversationStatus
	err := s.tx.Conn(ctx).QueryRow(ctx,
		`SELECT status FROM support_tickets WHERE id = $1 FOR UPDATE`, conversationID).Scan(&status)
	if err != nil {
		if isNoRows(err) {
			return "", domain.ErrConversationNotFound
		}
		return "", fmt.Errorf("failed to lock ticket: %w", err)
	}
	return status, nil
}

func (s *TicketStore) updateTicket(ctx context.Context, conversationID string, status models.ConversationStatus) error {
	_, err := s.tx.Conn(ctx).Exec(ctx,
		`UPDATE support_tickets SET status = $2, updated_at = $3 WHERE id = $1`,
		conversationID, string(status), s.clock.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update ticket: %w", err)
	}
	return nil
}

func scanResponse(row pgx.Row) (*models.Message, error) {
	var m models.Message
	var role string
	var authorName pgtype.Text
	var attachments []byte
	if err := row.Scan(&m.ID, &m.ConversationID, &role, &authorName, &m.Body,
		&m.Internal, &attachments, &m.CreatedAt); err != nil {
		if isNoRows(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan response: %w", err)
	}
	m.Role = models.MessageRole(role)
	m.AuthorName = authorName.String
	m.SyncStatus = models.SyncStatusSynced
	m.CreatedAt = m.CreatedAt.UTC()

	var err error
	if m.Attachments, err = decodeAttachments(attachments); err != nil {
		return nil, fmt.Errorf("failed to decode attachments of %s: %w", m.ID, err)
	}
	return &m, nil
}
