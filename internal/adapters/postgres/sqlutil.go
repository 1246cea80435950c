package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/longregen/helpdesk/internal/domain/models"
)

// QueryTimeout bounds store statements whose context carries no deadline.
const QueryTimeout = 30 * time.Second

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, QueryTimeout)
}

// optionalText stores "" as NULL in nullable text columns.
func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// encodeAttachments renders attachment metadata for the JSONB column. The
// column is NOT NULL, so nil becomes [].
func encodeAttachments(attachments []models.Attachment) ([]byte, error) {
	if attachments == nil {
		attachments = []models.Attachment{}
	}
	return json.Marshal(attachments)
}

func decodeAttachments(data []byte) ([]models.Attachment, error) {
	var attachments []models.Attachment
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &attachments); err != nil {
		return nil, err
	}
	if len(attachments) == 0 {
		return nil, nil
	}
	return attachments, nil
}
