package pg

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Store) AddContact(ctx context.Context, userID, contactID int64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO contacts (user_id, contact_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, contactID,
	)
	return errors.Wrap(err, "add contact")
}

func (s *Store) ListContacts(ctx context.Context, userID int64) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.name, u.created_at FROM contacts c
		 JOIN users u ON u.id = c.contact_id
		 WHERE c.user_id = $1 ORDER BY u.name`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "list contacts")
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan contact")
		}
		out = append(out, u)
	}
	return out, errors.Wrap(rows.Err(), "contacts rows")
}
