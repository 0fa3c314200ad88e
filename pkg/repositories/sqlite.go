package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/scene"
	_ "github.com/mattn/go-sqlite3"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	statements, err := readMigrations("sqlite")
	if err != nil {
		db.Close()
		return nil, err
	}
	for i, migration := range statements {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &SQLiteRepository{
		db: db,
	}, nil
}

func (r *SQLiteRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func (r *SQLiteRepository) SaveScene(ctx context.Context, snap *scene.Snapshot) error {
	row, pieces, err := models.FromSnapshot(snap, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback()

	q := `
	INSERT OR REPLACE INTO scenes (scene_id, name, owner, background_type, background_reference, grid_x, grid_y, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);
	`
	if _, err := tx.ExecContext(ctx, q, row.ID, row.Name, row.Owner, row.BackgroundType, row.BackgroundReference, row.GridX, row.GridY, row.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert scene: %v", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pieces WHERE scene_id = ?;`, row.ID); err != nil {
		return fmt.Errorf("failed to delete pieces: %v", err)
	}

	for _, p := range pieces {
		q := `
		INSERT INTO pieces (scene_id, piece_id, stack_index, data)
		VALUES (?, ?, ?, ?);
		`
		if _, err := tx.ExecContext(ctx, q, p.SceneID, p.PieceID, p.StackIndex, string(p.Data)); err != nil {
			return fmt.Errorf("failed to insert piece %s: %v", p.PieceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *SQLiteRepository) LoadScene(ctx context.Context, sceneID string) (*scene.Snapshot, error) {
	q := `
	SELECT scene_id, name, owner, background_type, background_reference, grid_x, grid_y, updated_at
	FROM scenes WHERE scene_id = ?;
	`
	var row models.Scene
	err := r.db.QueryRowContext(ctx, q, sceneID).Scan(&row.ID, &row.Name, &row.Owner, &row.BackgroundType, &row.BackgroundReference, &row.GridX, &row.GridY, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &ErrNotFound{SceneID: sceneID}
		}
		return nil, fmt.Errorf("failed to scan scene: %v", err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT piece_id, stack_index, data FROM pieces WHERE scene_id = ? ORDER BY stack_index;`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pieces: %v", err)
	}
	defer rows.Close()

	var pieces []models.Piece
	for rows.Next() {
		p := models.Piece{SceneID: sceneID}
		var data string
		if err := rows.Scan(&p.PieceID, &p.StackIndex, &data); err != nil {
			return nil, fmt.Errorf("failed to scan piece: %v", err)
		}
		p.Data = []byte(data)
		pieces = append(pieces, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pieces: %v", err)
	}

	return row.ToSnapshot(pieces)
}
