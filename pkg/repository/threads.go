package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dskvich/perplexed/pkg/domain"
)

type threadsRepository struct {
	db *sql.DB
}

func NewThreadsRepository(db *sql.DB) *threadsRepository {
	return &threadsRepository{db: db}
}

func (t *threadsRepository) Save(ctx context.Context, userID string, thread domain.SearchThread) error {
	const query = `
		INSERT INTO search_threads (id, user_id, query, answer, sources, images, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`

	sources, err := json.Marshal(thread.Sources)
	if err != nil {
		return fmt.Errorf("encoding sources: %w", err)
	}

	images, err := json.Marshal(thread.Images)
	if err != nil {
		return fmt.Errorf("encoding images: %w", err)
	}

	if _, err := t.db.ExecContext(ctx, query,
		thread.ID, userID, thread.Query, thread.Answer, sources, images, thread.CreatedAt,
	); err != nil {
		return fmt.Errorf("saving search thread: %w", err)
	}

	return nil
}

func (t *threadsRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.SearchThread, error) {
	const query = `
		SELECT id, query, answer, sources, images, created_at
		FROM search_threads
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := t.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing search threads: %w", err)
	}
	defer rows.Close()

	var threads []domain.SearchThread
	for rows.Next() {
		var thread domain.SearchThread
		var sources, images []byte

		if err := rows.Scan(&thread.ID, &thread.Query, &thread.Answer, &sources, &images, &thread.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning search thread: %w", err)
		}
		if err := json.Unmarshal(sources, &thread.Sources); err != nil {
			return nil, fmt.Errorf("decoding sources for thread %s: %w", thread.ID, err)
		}
		if err := json.Unmarshal(images, &thread.Images); err != nil {
			return nil, fmt.Errorf("decoding images for thread %s: %w", thread.ID, err)
		}

		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search threads: %w", err)
	}

	return threads, nil
}

func (t *threadsRepository) Delete(ctx context.Context, id string) error {
	const query = `
		DELETE FROM search_threads
		WHERE id = $1
	`

	if _, err := t.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deleting search thread: %w", err)
	}

	return nil
}
