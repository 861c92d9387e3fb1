package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webstudio-is/immerhin/internal/idgen"
	"github.com/webstudio-is/immerhin/internal/store"
	"github.com/webstudio-is/immerhin/internal/syncqueue"
	"github.com/webstudio-is/immerhin/internal/transaction"
	"github.com/webstudio-is/immerhin/internal/value"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPeer_FlushAndRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	receiver := store.New(store.WithUnsyncedSources(DefaultSource))
	mirror := value.New([]string{})
	receiver.Register("items", mirror)

	type applied struct{ id, source string }
	got := make(chan applied, 4)
	receiver.Subscribe(func(id string, _ []transaction.Change, source string) {
		got <- applied{id, source}
	})

	runErr := make(chan error, 1)
	srv := httptest.NewServer(Handler(func(p *Peer) {
		runErr <- p.Run(ctx, receiver)
	}))
	defer srv.Close()

	sender := store.New(store.WithIDSource(idgen.NewSequenceSource("tx")))
	items := value.New([]string{})
	sender.Register("items", items)
	_, err := store.Update(sender, items, func(v *[]string) { *v = append(*v, "x") })
	require.NoError(t, err)

	peer, err := Dial(ctx, wsURL(srv))
	require.NoError(t, err)

	n, err := peer.Flush(sender)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case a := <-got:
		assert.Equal(t, "tx-1", a.id)
		assert.Equal(t, DefaultSource, a.source)
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not applied")
	}
	assert.Equal(t, []string{"x"}, mirror.Read())
	assert.Empty(t, receiver.PopAll(), "applied batches are not queued for echo")

	_ = peer.Close()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after close")
	}
}

func TestPeer_FlushEmptyQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(Handler(func(p *Peer) {
		_ = p.Run(ctx, store.New())
	}))
	defer srv.Close()

	peer, err := Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	defer peer.Close()

	n, err := peer.Flush(store.New())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type recordingApplier struct {
	ids chan string
}

func (r *recordingApplier) AddTransaction(id string, _ []transaction.Change, _ string) error {
	r.ids <- id
	return nil
}

func TestPeer_RunSkipsBatchesWithoutID(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recordingApplier{ids: make(chan string, 4)}
	srv := httptest.NewServer(Handler(func(p *Peer) {
		_ = p.Run(ctx, rec)
	}, WithSource("peer-a")))
	defer srv.Close()

	peer, err := Dial(ctx, wsURL(srv))
	require.NoError(t, err)
	defer peer.Close()

	_, err = peer.Send([]syncqueue.Entry{{}, {TransactionID: "tx-9"}})
	require.NoError(t, err)

	select {
	case id := <-rec.ids:
		assert.Equal(t, "tx-9", id)
	case <-time.After(5 * time.Second):
		t.Fatal("batch was not applied")
	}
}

func TestPeer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runErr := make(chan error, 1)
	srv := httptest.NewServer(Handler(func(p *Peer) {
		runErr <- p.Run(ctx, store.New())
	}))
	defer srv.Close()

	peer, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer peer.Close()

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
