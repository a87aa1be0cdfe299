package postgres

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zoomgo/pkg/database"
	"zoomgo/pkg/logger"

	"github.com/jackc/pgx/v5"
)

// changeListener holds one dedicated connection in LISTEN for every watch
// on a store and wakes the watchers of the collection each notification
// names. The connection is opened by the first watch and closed when the
// last one leaves, so watches never hold pool connections.
type changeListener struct {
	connConfig *pgx.ConnConfig
	logger     *logger.Logger

	lock    sync.Mutex
	current *listenSession
}

type listenSession struct {
	cancel   context.CancelFunc
	watchers map[*watcher]struct{}
}

type watcher struct {
	session    *listenSession
	collection string
	// wake holds at most one pending refresh; watchers re-read state, so
	// coalesced notifications lose nothing.
	wake chan struct{}
	// lost is closed when the listener connection fails.
	lost chan struct{}
}

func newChangeListener(connConfig *pgx.ConnConfig, log *logger.Logger) *changeListener {
	return &changeListener{
		connConfig: connConfig,
		logger:     log,
	}
}

// add registers a watcher for collection, starting the listener if needed.
// LISTEN is active when add returns.
func (l *changeListener) add(ctx context.Context, collection string) (*watcher, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.current == nil {
		session, err := l.startLocked(ctx)
		if err != nil {
			return nil, err
		}
		l.current = session
	}

	w := &watcher{
		session:    l.current,
		collection: collection,
		wake:       make(chan struct{}, 1),
		lost:       make(chan struct{}),
	}
	l.current.watchers[w] = struct{}{}
	return w, nil
}

func (l *changeListener) remove(w *watcher) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := w.session.watchers[w]; !ok {
		return
	}
	delete(w.session.watchers, w)
	if len(w.session.watchers) == 0 && l.current == w.session {
		w.session.cancel()
		l.current = nil
	}
}

func (l *changeListener) startLocked(ctx context.Context) (*listenSession, error) {
	conn, err := pgx.ConnectConfig(ctx, l.connConfig.Copy())
	if err != nil {
		return nil, fmt.Errorf("failed to open listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+database.DocumentChangesChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen for document changes: %w", err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	session := &listenSession{
		cancel:   cancel,
		watchers: map[*watcher]struct{}{},
	}
	go l.run(listenCtx, session, conn)
	return session, nil
}

func (l *changeListener) run(ctx context.Context, session *listenSession, conn *pgx.Conn) {
	defer func() {
		closeCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = conn.Close(closeCtx)
	}()

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				l.logger.WithError(err).Error("Document change listener failed")
			}
			l.end(session)
			return
		}
		l.dispatch(session, notification.Payload)
	}
}

func (l *changeListener) dispatch(session *listenSession, collection string) {
	l.lock.Lock()
	defer l.lock.Unlock()

	for w := range session.watchers {
		if w.collection != collection {
			continue
		}
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// end drops session and releases its remaining watchers. The next watch
// opens a fresh connection.
func (l *changeListener) end(session *listenSession) {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.current == session {
		l.current = nil
	}
	session.cancel()
	for w := range session.watchers {
		close(w.lost)
		delete(session.watchers, w)
	}
}
