package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"hexwatch-backend/config"
	"hexwatch-backend/internal/colorimetry"
	"hexwatch-backend/internal/itemdata"
	"hexwatch-backend/internal/model"
	"hexwatch-backend/internal/notification"
	"hexwatch-backend/internal/palette"
	"hexwatch-backend/internal/parse"
	"hexwatch-backend/internal/store"
	"hexwatch-backend/pkg/logger"
	"hexwatch-backend/pkg/metrics"
)

// LocationAuctionHouse marks ledger records observed on a live listing.
const LocationAuctionHouse = "auction_house"

const maxBody = 64 << 20

var (
	// ErrMalformedResponse is returned for pages that cannot be used.
	ErrMalformedResponse = errors.New("malformed auctions response")
	// ErrTransient is returned for failures worth retrying.
	ErrTransient = errors.New("transient fetch failure")
)

// State is the scanner's position in its poll loop.
type State int32

const (
	StateStopped State = iota
	StateInitializing
	StatePolling
	StateIdle
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StatePolling:
		return "POLLING"
	case StateIdle:
		return "IDLE"
	case StateProcessing:
		return "PROCESSING"
	default:
		return "STOPPED"
	}
}

// Outcome summarises one poll.
type Outcome string

const (
	OutcomeIdle       Outcome = metrics.CycleIdle
	OutcomeProcessed  Outcome = metrics.CycleProcessed
	OutcomeMalformed  Outcome = metrics.CycleMalformed
	OutcomeStoreError Outcome = metrics.CycleStoreError
)

// Dispatcher accepts alerts for delivery.
type Dispatcher interface {
	Dispatch(alert notification.Alert)
}

// Service polls the auctions endpoint and records dyed pieces.
type Service struct {
	cfg      config.ScraperConfig
	results  int
	store    store.Store
	ranker   *palette.Ranker
	matcher  *parse.Matcher
	client   *http.Client
	clock    Clock
	backoff  Backoff
	dispatch Dispatcher
	log      logger.Logger

	mu        sync.RWMutex
	state     State
	cursor    int64
	hasCursor bool
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Service) { s.clock = c } }

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(s *Service) { s.client = c } }

// WithDispatcher sets where alerts go. Without one alerts are dropped.
func WithDispatcher(d Dispatcher) Option { return func(s *Service) { s.dispatch = d } }

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option { return func(s *Service) { s.log = l } }

// NewService creates and initializes a new scanner.
func NewService(cfg *config.Config, st store.Store, ranker *palette.Ranker, opts ...Option) *Service {
	kinds := make([]string, 0, len(cfg.Scraper.WatchedItems))
	for k := range cfg.Scraper.WatchedItems {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	s := &Service{
		cfg:     cfg.Scraper,
		results: cfg.Catalog.Results,
		store:   st,
		ranker:  ranker,
		matcher: parse.NewMatcher(kinds),
		clock:   realClock{},
		backoff: BackoffFrom(cfg.Scraper.Retry),
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logger.OrNop(s.log)

	if s.client == nil {
		var transport http.RoundTripper = http.DefaultTransport
		if cfg.Scraper.HTTPProxy != "" {
			proxyURL, err := url.Parse(cfg.Scraper.HTTPProxy)
			if err != nil {
				s.log.Warn(context.Background(), "invalid proxy url, scanner will not use a proxy",
					logger.String("proxy", cfg.Scraper.HTTPProxy), logger.Error(err))
			} else {
				transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
			}
		}
		s.client = &http.Client{Transport: transport, Timeout: cfg.Scraper.Timeout}
	}
	return s
}

// State returns the current loop state.
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Cursor returns the lastUpdated value of the last processed page.
func (s *Service) Cursor() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursor, s.hasCursor
}

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Service) setCursor(v int64) {
	s.mu.Lock()
	s.cursor, s.hasCursor = v, true
	s.mu.Unlock()
	metrics.SetCursor(v)
}

// Run initializes the cursor and polls until ctx is cancelled. It returns an
// error only when initialization fails.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info(ctx, "scanner is disabled, not starting")
		return nil
	}
	defer s.setState(StateStopped)

	s.log.Info(ctx, "starting scanner", logger.String("url", s.cfg.URL))
	if err := s.Init(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	failures := 0
	for {
		start := s.clock.Now()
		outcome, err := s.PollOnce(ctx)
		if ctx.Err() != nil {
			s.log.Info(ctx, "scanner shutting down")
			return nil
		}

		var wait time.Duration
		switch outcome {
		case OutcomeIdle:
			failures = 0
			wait = s.cfg.IdleInterval
		case OutcomeProcessed:
			failures = 0
			wait = s.nextPoll(start)
		default:
			failures++
			wait = s.backoff.Delay(failures)
			s.log.Warn(ctx, "poll cycle failed",
				logger.String("outcome", string(outcome)),
				logger.Int("failures", failures),
				logger.Duration("retry_in", wait),
				logger.Error(err))
		}

		if err := s.clock.Sleep(ctx, wait); err != nil {
			s.log.Info(ctx, "scanner shutting down")
			return nil
		}
	}
}

// Init restores the persisted cursor, or seeds it from the current page.
func (s *Service) Init(ctx context.Context) error {
	s.setState(StateInitializing)

	v, ok, err := s.store.LoadCursor(ctx, s.cfg.CursorName)
	if err != nil {
		return fmt.Errorf("failed to load scan cursor: %w", err)
	}
	if ok {
		s.setCursor(v)
		s.log.Info(ctx, "resuming from persisted cursor", logger.Int64("cursor", v))
		return nil
	}

	page, err := s.fetchWithRetry(ctx, s.backoff.MaxAttempts, true)
	if err != nil {
		return fmt.Errorf("initial fetch failed: %w", err)
	}
	s.setCursor(page.LastUpdated)
	if err := s.store.SaveCursor(ctx, s.cfg.CursorName, page.LastUpdated); err != nil {
		return fmt.Errorf("failed to persist scan cursor: %w", err)
	}
	s.log.Info(ctx, "seeded cursor from current page", logger.Int64("cursor", page.LastUpdated))
	return nil
}

// PollOnce fetches the first page and processes it when it is newer than
// the cursor. Transient fetch errors are retried until ctx is done.
func (s *Service) PollOnce(ctx context.Context) (Outcome, error) {
	s.setState(StatePolling)

	page, err := s.fetchWithRetry(ctx, 0, false)
	if err != nil {
		if ctx.Err() != nil {
			return OutcomeIdle, ctx.Err()
		}
		metrics.ObserveCycle(string(OutcomeMalformed))
		return OutcomeMalformed, err
	}

	cursor, _ := s.Cursor()
	if page.LastUpdated <= cursor {
		s.setState(StateIdle)
		metrics.ObserveCycle(string(OutcomeIdle))
		return OutcomeIdle, nil
	}

	s.setState(StateProcessing)
	n, err := s.processPage(ctx, page, cursor)
	if err != nil {
		metrics.ObserveCycle(string(OutcomeStoreError))
		return OutcomeStoreError, err
	}

	s.setCursor(page.LastUpdated)
	if err := s.store.SaveCursor(ctx, s.cfg.CursorName, page.LastUpdated); err != nil {
		s.log.Error(ctx, "failed to persist scan cursor", logger.Error(err))
	}
	metrics.AddProcessed(n)
	metrics.ObserveCycle(string(OutcomeProcessed))
	s.log.Debug(ctx, "processed page",
		logger.Int64("cursor", page.LastUpdated),
		logger.Int("auctions", len(page.Auctions)),
		logger.Int("recorded", n))
	return OutcomeProcessed, nil
}

func (s *Service) nextPoll(start time.Time) time.Duration {
	d := start.Add(s.cfg.Cadence).Sub(s.clock.Now())
	if d < s.cfg.MinSleep {
		return s.cfg.MinSleep
	}
	return d
}

type candidate struct {
	auction Auction
	item    itemdata.Item
	slot    string
	stars   int
	piece   model.Piece
}

func (s *Service) processPage(ctx context.Context, page *AuctionPage, cursor int64) (int, error) {
	now := s.clock.Now().Unix()

	var found []candidate
	for _, a := range page.Auctions {
		if a.Start <= cursor || a.Claimed {
			continue
		}
		title := parse.ParseItemName(a.ItemName)
		if _, ok := s.matcher.MatchClean(title.Clean); !ok {
			continue
		}

		it, err := itemdata.DecodeFirst(a.ItemBytes)
		if err != nil || it.UUID == "" {
			metrics.ObserveSkip(metrics.SkipDecode)
			s.log.Debug(ctx, "skipping undecodable listing", logger.String("auction", a.UUID), logger.Error(err))
			continue
		}
		slot, ok := s.cfg.WatchedItems[it.Kind]
		if !ok {
			metrics.ObserveSkip(metrics.SkipUnwatched)
			continue
		}
		if !it.HasColor {
			metrics.ObserveSkip(metrics.SkipNoColor)
			continue
		}
		owner, err := parse.NormalizeOwner(a.Auctioneer)
		if err != nil {
			metrics.ObserveSkip(metrics.SkipOwner)
			s.log.Debug(ctx, "skipping listing with bad auctioneer", logger.String("auction", a.UUID), logger.Error(err))
			continue
		}

		found = append(found, candidate{
			auction: a,
			item:    it,
			slot:    slot,
			stars:   title.Stars,
			piece: model.Piece{
				ItemUUID: it.UUID,
				ItemKind: it.Kind,
				Owner:    owner,
				Location: LocationAuctionHouse,
				LastSeen: now,
				HexCode:  it.Hex(),
			},
		})
	}
	if len(found) == 0 {
		return 0, nil
	}

	pieces := make([]model.Piece, len(found))
	for i, c := range found {
		pieces[i] = c.piece
	}
	if err := s.store.UpsertBatch(ctx, pieces); err != nil {
		return 0, fmt.Errorf("failed to record %d pieces: %w", len(pieces), err)
	}

	for _, c := range found {
		s.announce(ctx, c)
	}
	return len(found), nil
}

func (s *Service) announce(ctx context.Context, c candidate) {
	if s.dispatch == nil {
		return
	}
	lab := colorimetry.ToLab(c.item.Color)
	closest, err := s.ranker.Closest(lab, c.slot, colorimetry.CIEDE2000, s.results)
	if err != nil {
		s.log.Warn(ctx, "cannot rank piece", logger.String("slot", c.slot), logger.Error(err))
		return
	}
	closest76, _ := s.ranker.Closest(lab, c.slot, colorimetry.Euclidean, s.results)

	var reference []string
	if catalog := s.ranker.Catalog(); catalog.IsReferenceHex(c.piece.HexCode) {
		reference = catalog.NamesByHex(c.piece.HexCode)
	}

	dupes, err := s.store.FindByColor(ctx, c.piece.HexCode, c.piece.ItemUUID)
	if err != nil {
		s.log.Warn(ctx, "duplicate lookup failed", logger.String("hex", c.piece.HexCode), logger.Error(err))
	}

	s.dispatch.Dispatch(notification.Alert{
		AuctionUUID:  c.auction.UUID,
		Auctioneer:   c.piece.Owner,
		ItemName:     c.auction.ItemName,
		BIN:          c.auction.BIN,
		StartingBid:  c.auction.StartingBid,
		Piece:        c.piece,
		Slot:         c.slot,
		Closest:      closest,
		ClosestCIE76: closest76,
		Variant:      itemdata.Classify(c.item, s.stockHex),
		Reforge:      c.item.Modifier,
		Stars:        c.stars,
		Duplicates:   dupes,
		ReferenceOf:  reference,
	})
}

func (s *Service) stockHex(kind string) (string, bool) {
	e, ok := s.ranker.Catalog().Lookup(kind)
	if !ok {
		return "", false
	}
	return e.Hex, true
}

// fetchWithRetry retries transient failures. maxAttempts <= 0 retries
// until ctx is done; retryMalformed also retries unusable pages.
func (s *Service) fetchWithRetry(ctx context.Context, maxAttempts int, retryMalformed bool) (*AuctionPage, error) {
	for attempt := 1; ; attempt++ {
		page, err := s.fetchPage(ctx)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		kind := metrics.FetchTransient
		if errors.Is(err, ErrMalformedResponse) {
			kind = metrics.FetchMalformed
		}
		metrics.ObserveFetchError(kind)

		if kind == metrics.FetchMalformed && !retryMalformed {
			return nil, err
		}
		if maxAttempts > 0 && attempt >= maxAttempts {
			return nil, fmt.Errorf("giving up after %d attempts: %w", attempt, err)
		}

		delay := s.backoff.Delay(attempt)
		s.log.Warn(ctx, "auction fetch failed, retrying",
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Error(err))
		if err := s.clock.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// fetchPage downloads page 0 of the auctions endpoint.
func (s *Service) fetchPage(ctx context.Context) (*AuctionPage, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid auctions url: %w", err)
	}
	q := u.Query()
	q.Set("page", "0")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http request failed: %w", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: received status code %d", ErrTransient, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: received status code %d", ErrMalformedResponse, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: failed to read response body: %w", ErrTransient, err)
		}
		return nil, fmt.Errorf("%w: failed to read response body: %w", ErrMalformedResponse, err)
	}
	metrics.ObserveFetch(time.Since(started))

	var page AuctionPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if page.Success != nil && !*page.Success {
		return nil, fmt.Errorf("%w: success=false cause=%q", ErrMalformedResponse, page.Cause)
	}
	if page.LastUpdated <= 0 {
		return nil, fmt.Errorf("%w: missing lastUpdated", ErrMalformedResponse)
	}
	return &page, nil
}
