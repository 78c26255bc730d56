package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL notification repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const channelColumns = `id, tenant_id, name, type, config, enabled, created_at`

// ListEnabledChannels returns the tenant's enabled channels.
func (r *PostgresRepository) ListEnabledChannels(ctx context.Context, tenantID string) ([]*Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM notification_channels
		WHERE tenant_id = $1 AND enabled = true
		ORDER BY created_at, id
	`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var channels []*Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}

// ListConfirmedSubscribers returns the tenant's confirmed subscribers.
func (r *PostgresRepository) ListConfirmedSubscribers(ctx context.Context, tenantID string) ([]*Subscriber, error) {
	query := `
		SELECT id, tenant_id, email, confirmed, created_at
		FROM subscribers
		WHERE tenant_id = $1 AND confirmed = true
		ORDER BY email
	`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*Subscriber
	for rows.Next() {
		var s Subscriber
		if err := rows.Scan(&s.ID, &s.TenantID, &s.Email, &s.Confirmed, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, &s)
	}
	return subs, rows.Err()
}

// GetChannel retrieves a channel by ID.
func (r *PostgresRepository) GetChannel(ctx context.Context, id string) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM notification_channels WHERE id = $1`

	ch, err := scanChannel(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChannelNotFound
	}
	return ch, err
}

// CreateChannel stores a new channel.
func (r *PostgresRepository) CreateChannel(ctx context.Context, ch *Channel) error {
	config, err := json.Marshal(ch.Config)
	if err != nil {
		return fmt.Errorf("encode channel config: %w", err)
	}

	query := `INSERT INTO notification_channels (` + channelColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = r.pool.Exec(ctx, query, ch.ID, ch.TenantID, ch.Name, string(ch.Type), config, ch.Enabled, ch.CreatedAt)
	return err
}

// CreateSubscriber stores a new subscriber.
func (r *PostgresRepository) CreateSubscriber(ctx context.Context, sub *Subscriber) error {
	query := `INSERT INTO subscribers (id, tenant_id, email, confirmed, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := r.pool.Exec(ctx, query, sub.ID, sub.TenantID, sub.Email, sub.Confirmed, sub.CreatedAt)
	return err
}

func scanChannel(row pgx.Row) (*Channel, error) {
	var (
		ch      Channel
		chType  string
		rawConf []byte
	)
	if err := row.Scan(&ch.ID, &ch.TenantID, &ch.Name, &chType, &rawConf, &ch.Enabled, &ch.CreatedAt); err != nil {
		return nil, err
	}
	ch.Type = ChannelType(chType)
	if len(rawConf) > 0 {
		if err := json.Unmarshal(rawConf, &ch.Config); err != nil {
			return nil, fmt.Errorf("decode channel %s config: %w", ch.ID, err)
		}
	}
	return &ch, nil
}

// Ensure PostgresRepository implements Repository.
var _ Repository = (*PostgresRepository)(nil)
