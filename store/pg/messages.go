package pg

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

type Message struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

// SaveMessage persists one chat message and returns its id and the
// server-side timestamp. Persistence is unconditional: it happens before any
// delivery attempt so history never depends on the recipient being online.
func (s *Store) SaveMessage(ctx context.Context, senderID, receiverID int64, content string) (int64, time.Time, error) {
	var (
		id int64
		ts time.Time
	)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3) RETURNING id, ts`,
		senderID, receiverID, content,
	).Scan(&id, &ts)
	if err != nil {
		return 0, time.Time{}, errors.Wrap(err, "insert message")
	}
	return id, ts, nil
}

// History returns up to limit messages between two users, oldest first.
func (s *Store) History(ctx context.Context, userA, userB int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, content, ts FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY ts DESC LIMIT $3`,
		userA, userB, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan message")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "history rows")
	}
	// newest-last, same order clients render
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
