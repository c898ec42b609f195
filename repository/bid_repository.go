package repository

import (
	"context"
	"errors"
	"fmt"

	"chitfund/database"
	"chitfund/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// BidRepository implements the service.BidRepository interface
type BidRepository struct {
	q queryable
}

// NewBidRepository creates a new bid repository
func NewBidRepository(db *database.DB) *BidRepository {
	return &BidRepository{q: db.Pool}
}

// newBidRepositoryWithTx creates a new bid repository with a transaction
func newBidRepositoryWithTx(tx queryable) *BidRepository {
	return &BidRepository{q: tx}
}

const bidColumns = "id, group_id, username, amount, month, is_winner, created_at"

func scanBid(row pgx.Row) (*models.Bid, error) {
	var bid models.Bid
	err := row.Scan(
		&bid.ID,
		&bid.GroupID,
		&bid.Username,
		&bid.Amount,
		&bid.Month,
		&bid.IsWinner,
		&bid.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

func (r *BidRepository) queryBids(ctx context.Context, query string, args ...any) ([]*models.Bid, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []*models.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, bid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bids: %w", err)
	}

	return bids, nil
}

// Create inserts a new bid
func (r *BidRepository) Create(ctx context.Context, bid *models.Bid) error {
	query := `
		INSERT INTO bids (group_id, username, amount, month, is_winner)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		bid.GroupID,
		bid.Username,
		bid.Amount,
		bid.Month,
		bid.IsWinner,
	).Scan(&bid.ID, &bid.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create bid for group %s: %w", bid.GroupID, err)
	}

	return nil
}

// GetByGroupMonth returns a month's bids ordered by amount, then creation time.
// Earliest creation breaks ties between equal amounts.
func (r *BidRepository) GetByGroupMonth(ctx context.Context, groupID string, month int) ([]*models.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM bids
		WHERE group_id = $1 AND month = $2
		ORDER BY amount ASC, created_at ASC, id ASC
	`, bidColumns)

	return r.queryBids(ctx, query, groupID, month)
}

// GetLowestForMonth returns the month's lowest live bid, nil when none
func (r *BidRepository) GetLowestForMonth(ctx context.Context, groupID string, month int) (*models.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM bids
		WHERE group_id = $1 AND month = $2 AND is_winner = FALSE
		ORDER BY amount ASC, created_at ASC, id ASC
		LIMIT 1
	`, bidColumns)

	bid, err := scanBid(r.q.QueryRow(ctx, query, groupID, month))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lowest bid for group %s month %d: %w", groupID, month, err)
	}

	return bid, nil
}

// GetWinningBid returns the month's winner-flagged bid, nil when not yet settled
func (r *BidRepository) GetWinningBid(ctx context.Context, groupID string, month int) (*models.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM bids
		WHERE group_id = $1 AND month = $2 AND is_winner
	`, bidColumns)

	bid, err := scanBid(r.q.QueryRow(ctx, query, groupID, month))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get winning bid for group %s month %d: %w", groupID, month, err)
	}

	return bid, nil
}

// GetWinningBids returns all winner-flagged bids for a group, month ascending
func (r *BidRepository) GetWinningBids(ctx context.Context, groupID string) ([]*models.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM bids
		WHERE group_id = $1 AND is_winner
		ORDER BY month ASC
	`, bidColumns)

	return r.queryBids(ctx, query, groupID)
}

// GetLiveBids returns the group's non-winning bids below the pool amount,
// ordered by amount ascending
func (r *BidRepository) GetLiveBids(ctx context.Context, groupID string, poolAmount int64) ([]*models.Bid, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM bids
		WHERE group_id = $1 AND is_winner = FALSE AND amount < $2
		ORDER BY amount ASC, created_at ASC
	`, bidColumns)

	return r.queryBids(ctx, query, groupID, poolAmount)
}

// HasWinningBid reports whether the user already holds a win in the group
func (r *BidRepository) HasWinningBid(ctx context.Context, groupID string, username string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM bids
			WHERE group_id = $1 AND username = $2 AND is_winner
		)
	`

	var exists bool
	if err := r.q.QueryRow(ctx, query, groupID, username).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check winning bid for %q in group %s: %w", username, groupID, err)
	}

	return exists, nil
}

// MarkWinner conditionally flips the winner flag on a bid. The guard makes the
// flip first-writer-wins: a concurrent settlement that already flagged a winner
// for this (group, month) leaves this update with zero rows affected.
func (r *BidRepository) MarkWinner(ctx context.Context, bidID int64, groupID string, month int) (bool, error) {
	query := `
		UPDATE bids
		SET is_winner = TRUE
		WHERE id = $1
		  AND is_winner = FALSE
		  AND NOT EXISTS (
			SELECT 1 FROM bids
			WHERE group_id = $2 AND month = $3 AND is_winner
		  )
	`

	result, err := r.q.Exec(ctx, query, bidID, groupID, month)
	if err != nil {
		return false, fmt.Errorf("failed to mark winning bid %d: %w", bidID, err)
	}

	return result.RowsAffected() > 0, nil
}

// InsertWinner conditionally inserts a synthetic winning bid for the fallback
// random pick. Zero rows inserted means a winner already exists for the month.
func (r *BidRepository) InsertWinner(ctx context.Context, bid *models.Bid) (bool, error) {
	query := `
		INSERT INTO bids (group_id, username, amount, month, is_winner)
		SELECT $1, $2, $3, $4, TRUE
		WHERE NOT EXISTS (
			SELECT 1 FROM bids
			WHERE group_id = $1 AND month = $4 AND is_winner
		)
		RETURNING id, created_at
	`

	err := r.q.QueryRow(ctx, query,
		bid.GroupID,
		bid.Username,
		bid.Amount,
		bid.Month,
	).Scan(&bid.ID, &bid.CreatedAt)

	if err == pgx.ErrNoRows {
		return false, nil
	}
	// Under read committed the NOT EXISTS guard cannot see a concurrent
	// uncommitted winner. The partial unique index on (group_id, month)
	// WHERE is_winner catches that race as a unique violation.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert winning bid for group %s month %d: %w", bid.GroupID, bid.Month, err)
	}

	bid.IsWinner = true
	return true, nil
}
