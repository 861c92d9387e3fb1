// Package relay carries sync batches between two stores over a websocket.
//
// One side calls Flush to drain its store's sync queue onto the socket.
// The other side runs Run, which applies every received batch with
// AddTransaction so both replicas share transaction ids. Retry and
// reconnection are left to the caller.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/webstudio-is/immerhin/internal/patch"
	"github.com/webstudio-is/immerhin/internal/syncqueue"
	"github.com/webstudio-is/immerhin/internal/transaction"
)

// DefaultSource tags batches applied by Run unless WithSource says otherwise.
const DefaultSource = "remote"

// Drainer is the outbound side of a store.
type Drainer interface {
	PopAll() []syncqueue.Entry
}

// Applier is the inbound side of a store.
type Applier interface {
	AddTransaction(id string, changes []transaction.Change, source string) error
}

// Peer is one end of a websocket carrying sync batches.
//
// Flush may be called from any goroutine. Run must be called from exactly
// one goroutine, and the Applier it drives is only touched from there.
type Peer struct {
	conn   *websocket.Conn
	source string
	logger *slog.Logger

	wmu sync.Mutex
}

// Option configures a Peer.
type Option func(*Peer)

// WithSource sets the source inbound batches are tagged with.
func WithSource(source string) Option {
	return func(p *Peer) {
		p.source = source
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Peer) {
		p.logger = l
	}
}

// NewPeer wraps an established websocket connection.
func NewPeer(conn *websocket.Conn, opts ...Option) *Peer {
	p := &Peer{
		conn:   conn,
		source: DefaultSource,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Dial connects to a relay endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Peer, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewPeer(conn, opts...), nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Handler upgrades incoming requests and hands each new Peer to accept,
// which runs on the request goroutine.
func Handler(accept func(*Peer), opts ...Option) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade already replied with an HTTP error.
			return
		}
		accept(NewPeer(conn, opts...))
	})
}

// Send writes entries in order and returns how many were written.
func (p *Peer) Send(entries []syncqueue.Entry) (int, error) {
	p.wmu.Lock()
	defer p.wmu.Unlock()

	for i, e := range entries {
		if err := p.conn.WriteJSON(e); err != nil {
			return i, fmt.Errorf("send %s: %w", e.TransactionID, err)
		}
	}
	return len(entries), nil
}

// Flush drains d and sends everything it held. Entries that could not be
// written are lost to the queue; the count tells how many went out.
func (p *Peer) Flush(d Drainer) (int, error) {
	return p.Send(d.PopAll())
}

// Run reads batches until the connection closes or ctx is done, applying
// each one to a. Batches the Applier rejects are logged and skipped.
func (p *Peer) Run(ctx context.Context, a Applier) error {
	stop := context.AfterFunc(ctx, func() {
		p.conn.Close()
	})
	defer stop()

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read batch: %w", err)
		}
		var e syncqueue.Entry
		if err := patch.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode batch: %w", err)
		}
		if e.TransactionID == "" {
			p.logger.Warn("dropping batch without transaction id")
			continue
		}
		if err := a.AddTransaction(e.TransactionID, e.Changes, p.source); err != nil {
			p.logger.Error("failed to apply batch",
				"transaction_id", e.TransactionID,
				"error", err)
		}
	}
}

// Close sends a normal closure frame and closes the connection.
func (p *Peer) Close() error {
	p.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	werr := p.conn.WriteMessage(websocket.CloseMessage, msg)
	p.wmu.Unlock()

	cerr := p.conn.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return errors.Join(werr, cerr)
	}
	return cerr
}
