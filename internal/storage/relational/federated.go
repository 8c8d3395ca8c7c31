package relational

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// FederatedUpdate is a client's locally trained model delta.
type FederatedUpdate struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"client_id"`
	ModelWeights json.RawMessage `json:"model_weights"`
	Accuracy     float64         `json:"accuracy"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (s *Store) SaveFederatedUpdate(ctx context.Context, u FederatedUpdate) error {
	_, err := s.exec(ctx, `INSERT INTO fl_updates (id, client_id, model_weights, accuracy, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.ClientID, string(u.ModelWeights), u.Accuracy, u.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("save federated update: %w", err)
	}
	return nil
}

// FederatedUpdates returns a client's updates, newest first.
func (s *Store) FederatedUpdates(ctx context.Context, clientID string, limit int) ([]FederatedUpdate, error) {
	rows, err := s.query(ctx, `SELECT id, client_id, model_weights, accuracy, created_at
		FROM fl_updates WHERE client_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, clientID, limit)
	if err != nil {
		return nil, fmt.Errorf("list federated updates: %w", err)
	}
	defer rows.Close()

	var out []FederatedUpdate
	for rows.Next() {
		var (
			u       FederatedUpdate
			weights string
			created int64
		)
		if err := rows.Scan(&u.ID, &u.ClientID, &weights, &u.Accuracy, &created); err != nil {
			return nil, fmt.Errorf("scan federated update: %w", err)
		}
		u.ModelWeights = json.RawMessage(weights)
		u.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}
