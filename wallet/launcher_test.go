package wallet

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/layer-3/chainauth/core"
)

const testRedirect = "chainauth-test://wallet"

// fakeLauncher records opened URIs and lets a test play the wallet.
type fakeLauncher struct {
	mu        sync.Mutex
	installed bool
	opened    []string
	openErr   error
	// respond runs in its own goroutine for every opened URI.
	respond func(uri *url.URL)
	// onCanOpen runs synchronously before CanOpen answers.
	onCanOpen func()
}

func (l *fakeLauncher) CanOpen(context.Context, string) bool {
	l.mu.Lock()
	hook := l.onCanOpen
	l.mu.Unlock()
	if hook != nil {
		hook()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.installed
}

func (l *fakeLauncher) Open(_ context.Context, uri string) error {
	l.mu.Lock()
	l.opened = append(l.opened, uri)
	respond, err := l.respond, l.openErr
	l.mu.Unlock()

	if err != nil {
		return err
	}
	if respond != nil {
		u, perr := url.Parse(uri)
		if perr != nil {
			return perr
		}
		go respond(u)
	}
	return nil
}

func (l *fakeLauncher) setRespond(fn func(uri *url.URL)) {
	l.mu.Lock()
	l.respond = fn
	l.mu.Unlock()
}

func (l *fakeLauncher) uris() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.opened...)
}

func (l *fakeLauncher) last(t *testing.T) *url.URL {
	t.Helper()
	uris := l.uris()
	require.NotEmpty(t, uris)
	u, err := url.Parse(uris[len(uris)-1])
	require.NoError(t, err)
	return u
}

// callback appends params to a redirect URL the adapter handed out.
func callback(t *testing.T, redirect string, params map[string]string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type stateRecorder struct {
	mu          sync.Mutex
	transitions []core.ConnectionState
}

func (r *stateRecorder) listen(_, to core.ConnectionState) {
	r.mu.Lock()
	r.transitions = append(r.transitions, to)
	r.mu.Unlock()
}

func (r *stateRecorder) states() []core.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.ConnectionState(nil), r.transitions...)
}

func newTestAdapter(t *testing.T, walletID string, l *fakeLauncher, opts ...Option) *Adapter {
	t.Helper()
	info, err := Lookup(walletID)
	require.NoError(t, err)
	a, err := NewAdapter(info, l, Config{
		App:            AppMetadata{Name: "Test App", URL: "https://app.test"},
		RedirectURL:    testRedirect,
		ConnectTimeout: 2 * time.Second,
		SignTimeout:    2 * time.Second,
	}, opts...)
	require.NoError(t, err)
	return a
}
