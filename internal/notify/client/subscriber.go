package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/habitflow/habitflow/internal/notify"
	"github.com/habitflow/habitflow/internal/platform/logger"
)

// State is the subscriber connection state
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateCancelled    State = "cancelled"
)

// Subscriber maintains one logical subscription to the notification stream
// endpoint over an inherently fragile transport. It reconnects with
// exponential backoff (doubling from the floor, capped at the ceiling,
// reset on success) and feeds received events into a Store. Reconnect
// attempts are strictly sequential; at most one connection is open at a
// time.
type Subscriber struct {
	url        string
	token      string
	httpClient *http.Client
	store      *Store
	alerter    Alerter
	log        logger.Logger

	backoffFloor   time.Duration
	backoffCeiling time.Duration
	sleep          func(ctx context.Context, d time.Duration) bool

	mu         sync.Mutex
	state      State
	permission Permission
	reconnects int
	started    bool

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// SubscriberOption configures a Subscriber
type SubscriberOption func(*Subscriber)

// WithHTTPClient overrides the HTTP client used for the stream connection
func WithHTTPClient(c *http.Client) SubscriberOption {
	return func(s *Subscriber) { s.httpClient = c }
}

// WithAlerter sets the desktop alert capability
func WithAlerter(a Alerter) SubscriberOption {
	return func(s *Subscriber) { s.alerter = a }
}

// WithBackoff overrides the reconnect backoff bounds
func WithBackoff(floor, ceiling time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.backoffFloor = floor
		s.backoffCeiling = ceiling
	}
}

// WithSubscriberLogger sets the subscriber logger
func WithSubscriberLogger(log logger.Logger) SubscriberOption {
	return func(s *Subscriber) { s.log = log }
}

// NewSubscriber creates a subscriber for the given stream URL. The bearer
// token authenticates the stream connection.
func NewSubscriber(url, token string, store *Store, opts ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		url:        url,
		token:      token,
		store:      store,
		httpClient: &http.Client{},
		alerter:    NopAlerter{},
		log:        logger.NewNop(),

		backoffFloor:   time.Second,
		backoffCeiling: 30 * time.Second,
		sleep:          sleepCtx,

		state:      StateDisconnected,
		permission: PermissionUndetermined,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the subscription loop. Calling Start more than once is a
// no-op.
func (s *Subscriber) Start() {
	s.mu.Lock()
	if s.started || s.state == StateCancelled {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	go s.run(ctx)
}

// Close cancels the subscription: the pending reconnect timer is dropped,
// the active connection (if any) is closed, and no further attempts are
// made even if a late transport error fires afterward. Close is idempotent
// and waits for the loop to exit.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.state = StateCancelled
		started := s.started
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if !started {
			close(s.done)
		}
	})
	<-s.done
}

// State returns the current connection state
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Permission returns the negotiated desktop alert permission
func (s *Subscriber) Permission() Permission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permission
}

// Reconnects returns how many reconnect attempts have been scheduled
func (s *Subscriber) Reconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnects
}

func (s *Subscriber) run(ctx context.Context) {
	defer close(s.done)

	s.negotiatePermission()

	backoff := s.backoffFloor
	for {
		if !s.setState(StateConnecting) {
			return
		}

		err := s.stream(ctx, &backoff)

		if ctx.Err() != nil || !s.setState(StateDisconnected) {
			return
		}
		s.log.Debug("notification stream lost", "error", err, "retry_in", backoff)

		s.mu.Lock()
		s.reconnects++
		s.mu.Unlock()

		if !s.sleep(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > s.backoffCeiling {
			backoff = s.backoffCeiling
		}
	}
}

// stream opens one connection and consumes frames until it breaks. A
// successful open and every successfully decoded event reset the backoff
// to its floor.
func (s *Subscriber) stream(ctx context.Context, backoff *time.Duration) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	if !s.setState(StateConnected) {
		return nil
	}
	*backoff = s.backoffFloor

	scanner := bufio.NewScanner(resp.Body)
	var data []byte
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			// Blank line dispatches the accumulated frame
			if len(data) > 0 {
				if s.dispatch(data) {
					*backoff = s.backoffFloor
				}
				data = nil
			}
		case strings.HasPrefix(line, ":"):
			// Heartbeat or control comment; keeps the connection warm
		case strings.HasPrefix(line, "data:"):
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")...)
		default:
			// Unused event-stream field (event:, id:, retry:)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// dispatch decodes one data frame. Malformed frames are discarded without
// touching connection state.
func (s *Subscriber) dispatch(data []byte) bool {
	var event notify.Event
	if err := json.Unmarshal(data, &event); err != nil {
		s.log.Debug("discarding malformed notification frame", "error", err)
		return false
	}
	if event.ID == "" {
		s.log.Debug("discarding notification frame without id")
		return false
	}

	s.store.Add(&event)

	if s.Permission() == PermissionGranted {
		s.alerter.Raise("HabitFlow", event.Message, event.ID)
	}
	return true
}

func (s *Subscriber) negotiatePermission() {
	status := s.alerter.CurrentStatus()
	if status == PermissionUndetermined {
		status = s.alerter.RequestPermission()
	}
	s.mu.Lock()
	s.permission = status
	s.mu.Unlock()
}

// setState transitions to the given state unless the subscriber was
// cancelled, guarding against late callbacks re-arming the loop.
func (s *Subscriber) setState(state State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled {
		return false
	}
	s.state = state
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
