package audit

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cloudcarver/extworker/pkg/config"
	"github.com/cloudcarver/extworker/pkg/logger"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

var log = logger.NewLogAgent("audit")

//go:embed migrations/*.sql
var migrations embed.FS

const upsertState = `
INSERT INTO extworker_task_state (task_id, topic, worker_id, status, attempts, variables, error, updated_at)
VALUES ($1, $2, $3, $4, CASE WHEN $4 = 'STARTED' THEN 1 ELSE 0 END, $5::jsonb, $6, NOW())
ON CONFLICT (task_id) DO UPDATE SET
  worker_id = EXCLUDED.worker_id,
  status    = EXCLUDED.status,
  attempts  = extworker_task_state.attempts + EXCLUDED.attempts,
  variables = COALESCE(EXCLUDED.variables, extworker_task_state.variables),
  error     = EXCLUDED.error,
  updated_at = NOW()
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgRecorder struct {
	db    execer
	close func()
}

func NewPgRecorder(cfg *config.Config) (*PgRecorder, error) {
	dsn := *cfg.Pg.DSN
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse pgxpool config")
	}
	poolCfg.MaxConns = cfg.Pg.MaxConns
	poolCfg.MinConns = cfg.Pg.MinConns

	var (
		retryLimit = 5
		retry      = 0
		p          *pgxpool.Pool
	)
	for {
		err := func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
			if err != nil {
				return errors.Wrap(err, "failed to init pgxpool")
			}
			if err := pool.Ping(ctx); err != nil {
				pool.Close()
				return errors.Wrap(err, "failed to ping db")
			}
			p = pool
			return nil
		}()
		if err == nil {
			break
		}
		if retry >= retryLimit {
			return nil, err
		}
		retry++
		log.Warnf("audit database not ready, retry %d/%d: %s", retry, retryLimit, err.Error())
		time.Sleep(2 * time.Second)
	}

	if err := migrateUp(&poolCfg.ConnConfig.Config); err != nil {
		p.Close()
		return nil, err
	}

	return &PgRecorder{db: p, close: p.Close}, nil
}

func migrationURL(c *pgconn.Config) string {
	u := url.URL{
		Scheme:   "pgx5",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "x-migrations-table=extworker_migrations",
	}
	return u.String()
}

func migrateUp(c *pgconn.Config) error {
	d, err := iofs.New(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "failed to create migration source driver")
	}

	m, err := migrate.NewWithSourceInstance("iofs", d, migrationURL(c))
	if err != nil {
		return errors.Wrap(err, "failed to init migrate")
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to migrate up")
	}
	return nil
}

func (r *PgRecorder) Record(ctx context.Context, entry Entry) error {
	var vars *string
	if entry.State == StateStarted && entry.Variables != nil {
		raw, err := json.Marshal(entry.Variables)
		if err != nil {
			return errors.Wrap(err, "failed to marshal variables")
		}
		s := string(raw)
		vars = &s
	}
	if _, err := r.db.Exec(ctx, upsertState,
		entry.TaskID, entry.Topic, entry.WorkerID, string(entry.State), vars, entry.Error,
	); err != nil {
		return errors.Wrapf(err, "failed to record state %s of task %s", entry.State, entry.TaskID)
	}
	return nil
}

func (r *PgRecorder) Close() {
	if r.close != nil {
		r.close()
	}
}
