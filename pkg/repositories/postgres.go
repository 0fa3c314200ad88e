package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/repositories/models"
	"github.com/cbodonnell/tabletop/pkg/scene"
	"github.com/jackc/pgx/v5"
)

type PostgresRepository struct {
	conn *pgx.Conn
}

// NewPostgresRepository connects to postgres and applies the migrations.
// The caller is responsible for calling Close() on the repository.
func NewPostgresRepository(ctx context.Context, connStr string) (Repository, error) {
	conn, err := connectDb(ctx, connStr)
	if err != nil {
		return nil, err
	}

	statements, err := readMigrations("postgres")
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	for i, migration := range statements {
		if _, err := conn.Exec(ctx, migration); err != nil {
			conn.Close(ctx)
			return nil, fmt.Errorf("failed to execute migration %d: %v", i+1, err)
		}
	}

	return &PostgresRepository{
		conn: conn,
	}, nil
}

func connectDb(ctx context.Context, connStr string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}

	var username string
	var database string
	err = conn.QueryRow(ctx, "SELECT current_user, current_database()").Scan(&username, &database)
	if err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("unable to query database: %v", err)
	}

	log.Info("Connected to %s as %s", database, username)

	return conn, nil
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	return r.conn.Close(ctx)
}

func (r *PostgresRepository) SaveScene(ctx context.Context, snap *scene.Snapshot) error {
	row, pieces, err := models.FromSnapshot(snap, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	q := `
	INSERT INTO scenes (scene_id, name, owner, background_type, background_reference, grid_x, grid_y, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (scene_id) DO UPDATE SET name = $2, owner = $3, background_type = $4,
		background_reference = $5, grid_x = $6, grid_y = $7, updated_at = $8;
	`
	if _, err := tx.Exec(ctx, q, row.ID, row.Name, row.Owner, row.BackgroundType, row.BackgroundReference, row.GridX, row.GridY, row.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert scene: %v", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pieces WHERE scene_id = $1;`, row.ID); err != nil {
		return fmt.Errorf("failed to delete pieces: %v", err)
	}

	copyRows := make([][]interface{}, 0, len(pieces))
	for _, p := range pieces {
		copyRows = append(copyRows, []interface{}{p.SceneID, p.PieceID, p.StackIndex, string(p.Data)})
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"pieces"},
		[]string{"scene_id", "piece_id", "stack_index", "data"},
		pgx.CopyFromRows(copyRows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy pieces: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %v", err)
	}

	return nil
}

func (r *PostgresRepository) LoadScene(ctx context.Context, sceneID string) (*scene.Snapshot, error) {
	q := `
	SELECT scene_id, name, owner, background_type, background_reference, grid_x, grid_y, updated_at
	FROM scenes WHERE scene_id = $1;
	`
	var row models.Scene
	err := r.conn.QueryRow(ctx, q, sceneID).Scan(&row.ID, &row.Name, &row.Owner, &row.BackgroundType, &row.BackgroundReference, &row.GridX, &row.GridY, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &ErrNotFound{SceneID: sceneID}
		}
		return nil, fmt.Errorf("failed to scan scene: %v", err)
	}

	rows, err := r.conn.Query(ctx, `SELECT piece_id, stack_index, data::text FROM pieces WHERE scene_id = $1 ORDER BY stack_index;`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pieces: %v", err)
	}
	pieces, err := pgx.CollectRows(rows, func(cr pgx.CollectableRow) (models.Piece, error) {
		p := models.Piece{SceneID: sceneID}
		var data string
		if err := cr.Scan(&p.PieceID, &p.StackIndex, &data); err != nil {
			return p, err
		}
		p.Data = []byte(data)
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect pieces: %v", err)
	}

	return row.ToSnapshot(pieces)
}
