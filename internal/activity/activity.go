// internal/activity/activity.go
//
// Fire-and-forget audit trail.
//
// Context
// -------
// Sync and provisioning code records what happened to which entity in
// `activity_logs`:
//
//	CREATE TABLE activity_logs (
//	    id          BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    actor_id    BIGINT UNSIGNED NULL,
//	    entity_type VARCHAR(32)  NOT NULL,
//	    entity_id   BIGINT UNSIGNED NOT NULL,
//	    action      VARCHAR(64)  NOT NULL,
//	    details     JSON NULL,
//	    created_at  DATETIME(3) NOT NULL
//	);
//
// Log never returns an error.  A failed write is logged, counted in
// metrics.ActivityWriteErrorsTotal, and dropped, so the audit trail can
// never fail the operation it describes.
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/keefcreative/designworks/internal/auth"
	"github.com/keefcreative/designworks/internal/metrics"
)

// Entity types.
const (
	EntityDesignRequest = "design_request"
	EntityClient        = "client"
)

// Details is free-form event data stored as JSON.
type Details map[string]any

// writeTimeout bounds one insert so a slow database cannot stall callers.
const writeTimeout = 3 * time.Second

// Logger writes activity rows.  The zero value is unusable; DB is required.
type Logger struct {
	DB    sqlx.ExecerContext
	Clock clock.Clock
}

// Log records action on an entity, attributed to the actor in ctx.
func (l *Logger) Log(ctx context.Context, entityType string, entityID int64, action string, details Details) {
	if l == nil || l.DB == nil {
		return
	}
	clk := l.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	if details == nil {
		details = Details{}
	}

	var actor any
	if a, ok := auth.ActorFrom(ctx); ok && a.ID > 0 {
		actor = a.ID
	}

	data, err := json.Marshal(details)
	if err != nil {
		l.drop(entityType, entityID, action, err)
		return
	}

	// Detached from the caller's cancellation; the caller may be finishing.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	const q = `INSERT INTO activity_logs (actor_id, entity_type, entity_id, action, details, created_at)
               VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := l.DB.ExecContext(wctx, q, actor, entityType, entityID, action, data, clk.Now().UTC()); err != nil {
		l.drop(entityType, entityID, action, err)
	}
}

func (l *Logger) drop(entityType string, entityID int64, action string, err error) {
	metrics.ActivityWriteErrorsTotal.Inc()
	zap.L().Warn("activity log dropped",
		zap.String("entity_type", entityType),
		zap.Int64("entity_id", entityID),
		zap.String("action", action),
		zap.Error(err))
}
