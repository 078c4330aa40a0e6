package pool

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cgminer-rs/cgominer/work"
)

// DefaultKeepaliveInterval is how long the client waits for any
// server message before issuing a harmless keepalive request.
const DefaultKeepaliveInterval = 60 * time.Second

// Config describes one configured pool endpoint.
type Config struct {
	Name            string
	URL             string // host:port, stratum+tcp:// prefix stripped by the caller
	User            string
	Password        string
	Priority        int
	Quota           int
	Enabled         bool
	UserAgent       string
	KeepaliveEvery  time.Duration
	RetryInterval   time.Duration
	SubmitRateLimit rate.Limit // mining.submit calls per second, 0 = unlimited
}

// ShareResult reports the outcome of one submitted share, correlated
// back to the Work/nonce that produced it.
type ShareResult struct {
	PoolName string
	JobID    string
	Outcome  ShareOutcome
	Latency  time.Duration
	Err      error
}

// Stats is a rolling snapshot of a Client's connection health.
type Stats struct {
	Accepted     uint64
	Rejected     uint64
	Stale        uint64
	Disconnects  uint64
	LastLatency  time.Duration
	AvgLatencyMs float64
}

// Client drives one Stratum v1 connection: subscribe, authorize,
// notify → Work, submit → ShareResult.
type Client struct {
	cfg Config
	log logrus.FieldLogger

	onWork func(*work.Work)

	mu              sync.Mutex
	conn            net.Conn
	state           atomic.Int32 // State
	messageID       uint64
	pending         map[uint64]pendingCall
	extranonce1 string
	extranonce2Size int
	difficulty float64
	currentJob notifyParams

	submitLimiter *rate.Limiter

	accepted, rejected, stale, disconnects atomic.Uint64
	lastLatencyNs                          atomic.Int64

	backoff *backoff
}

type pendingCall struct {
	method string
	jobID  string
	sent   time.Time
}

// NewClient builds a Client for cfg. onWork is invoked, from the
// client's own read loop, for every fresh job synthesized from a
// mining.notify.
func NewClient(cfg Config, onWork func(*work.Work), log logrus.FieldLogger) *Client {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "cgominer/1.0.0"
	}
	if cfg.KeepaliveEvery <= 0 {
		cfg.KeepaliveEvery = DefaultKeepaliveInterval
	}

	var limiter *rate.Limiter
	if cfg.SubmitRateLimit > 0 {
		limiter = rate.NewLimiter(cfg.SubmitRateLimit, 1)
	}

	c := &Client{
		cfg:           cfg,
		log:           log.WithField("pool", cfg.Name),
		onWork:        onWork,
		pending:       make(map[uint64]pendingCall),
		submitLimiter: limiter,
		backoff:       newBackoff(time.Second, cfg.RetryInterval),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) Stats() Stats {
	return Stats{
		Accepted:    c.accepted.Load(),
		Rejected:    c.rejected.Load(),
		Stale:       c.stale.Load(),
		Disconnects: c.disconnects.Load(),
		LastLatency: time.Duration(c.lastLatencyNs.Load()),
	}
}

// Run connects and serves the connection until ctx is canceled,
// reconnecting with exponential backoff on transient failure.
// Authorization failure is fatal: Run returns once State is Failed.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := c.runOnce(ctx)
		if c.State() == StateFailed {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.disconnects.Add(1)
		delay := c.backoff.Next()
		c.state.Store(int32(StateReconnecting))
		c.log.WithError(err).WithField("retry_in", delay).
			Warn("pool connection lost, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	c.state.Store(int32(StateConnecting))

	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	if err := c.call(methodSubscribe, c.cfg.UserAgent, nil); err != nil {
		return err
	}

	msgCh := make(chan []byte, 16)
	errCh := make(chan error, 1)
	go readLines(conn, msgCh, errCh)

	keepalive := time.NewTimer(c.cfg.KeepaliveEvery)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case line := <-msgCh:
			keepalive.Reset(c.cfg.KeepaliveEvery)
			if err := c.handleLine(line); err != nil {
				c.log.WithError(err).Warn("failed to handle stratum line")
			}
			if c.State() == StateFailed {
				return errors.New("pool: authorization rejected")
			}
			c.backoff.Reset()
		case <-keepalive.C:
			if err := c.call(methodSuggestDiff, c.difficulty); err != nil {
				return fmt.Errorf("keepalive: %w", err)
			}
			keepalive.Reset(c.cfg.KeepaliveEvery)
		}
	}
}

func readLines(conn net.Conn, out chan<- []byte, errc chan<- error) {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			out <- line
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (c *Client) call(method string, params ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return errors.New("pool: not connected")
	}

	id := c.messageID
	c.messageID++

	req := request{ID: id, Method: method, Params: params}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	pc := pendingCall{method: method, sent: time.Now()}
	if method == methodSubmit && len(params) > 1 {
		pc.jobID = fmt.Sprint(params[1])
	}
	c.pending[id] = pc

	_, err = c.conn.Write(raw)
	return err
}

func (c *Client) handleLine(line []byte) error {
	var probe struct {
		Method string `json:"method"`
	}
	json.Unmarshal(line, &probe)

	if probe.Method != "" {
		return c.handleNotification(probe.Method, line)
	}
	return c.handleResponse(line)
}

func (c *Client) handleNotification(method string, line []byte) error {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return err
	}

	switch method {
	case methodSetDifficulty:
		if len(req.Params) != 1 {
			return errParamCount(method, 1, len(req.Params))
		}
		d, ok := req.Params[0].(float64)
		if !ok {
			return errParamType(method, "difficulty")
		}
		c.difficulty = d
		return nil

	case methodSetExtranonce:
		if len(req.Params) != 2 {
			return errParamCount(method, 2, len(req.Params))
		}
		en1, ok := req.Params[0].(string)
		if !ok {
			return errParamType(method, "extranonce1")
		}
		size, ok := req.Params[1].(float64)
		if !ok {
			return errParamType(method, "extranonce2_size")
		}
		c.extranonce1 = en1
		c.extranonce2Size = int(size)
		return nil

	case methodNotify:
		np, err := parseNotifyParams(req.Params)
		if err != nil {
			return err
		}
		c.currentJob = np
		return c.synthesizeWork(np)

	case methodReconnect:
		return errors.New("pool: server requested reconnect")

	default:
		c.log.WithField("method", method).Debug("unsupported stratum notification")
		return nil
	}
}

func (c *Client) synthesizeWork(np notifyParams) error {
	prevHash, err := hex.DecodeString(np.PrevHash)
	if err != nil || len(prevHash) != 32 {
		return fmt.Errorf("pool: malformed prevhash: %w", err)
	}
	coinb1, err := hex.DecodeString(np.Coinbase1)
	if err != nil {
		return fmt.Errorf("pool: malformed coinb1: %w", err)
	}
	coinb2, err := hex.DecodeString(np.Coinbase2)
	if err != nil {
		return fmt.Errorf("pool: malformed coinb2: %w", err)
	}
	branches := make([][]byte, 0, len(np.MerkleBranches))
	for _, b := range np.MerkleBranches {
		raw, err := hex.DecodeString(b)
		if err != nil {
			return fmt.Errorf("pool: malformed merkle branch: %w", err)
		}
		branches = append(branches, raw)
	}

	version, err := hexToUint32(np.Version)
	if err != nil {
		return err
	}
	nbits, err := hexToUint32(np.NBits)
	if err != nil {
		return err
	}
	ntime, err := hexToUint32(np.NTime)
	if err != nil {
		return err
	}

	extranonce1, err := hex.DecodeString(c.extranonce1)
	if err != nil {
		return fmt.Errorf("pool: malformed extranonce1: %w", err)
	}

	w, err := work.New(work.Params{
		JobID:           np.JobID,
		PoolID:          c.cfg.Name,
		PrevHash:        prevHash,
		Coinbase1:       coinb1,
		Coinbase2:       coinb2,
		MerkleBranches:  branches,
		Version:         version,
		NBits:           nbits,
		NTime:           ntime,
		Extranonce1:     extranonce1,
		Extranonce2Size: c.extranonce2Size,
		Difficulty:      c.difficulty,
		CleanJobs:       np.CleanJobs,
	})
	if err != nil {
		return err
	}

	if c.onWork != nil {
		c.onWork(w)
	}
	return nil
}

func hexToUint32(s string) (uint32, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 4 {
		return 0, fmt.Errorf("pool: malformed 4-byte hex field %q", s)
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

func (c *Client) handleResponse(line []byte) error {
	var res response
	if err := json.Unmarshal(line, &res); err != nil {
		return err
	}

	c.mu.Lock()
	pend, known := c.pending[res.ID]
	delete(c.pending, res.ID)
	c.mu.Unlock()

	if !known {
		return nil
	}

	switch pend.method {
	case methodSubscribe:
		return c.handleSubscribeResponse(res)
	case methodAuthorize:
		return c.handleAuthorizeResponse(res)
	case methodSubmit:
		return c.handleSubmitResponse(res, pend)
	default:
		return nil
	}
}

func (c *Client) handleSubscribeResponse(res response) error {
	if res.Error != nil {
		c.state.Store(int32(StateFailed))
		return errors.New("pool: subscribe failed: " + res.Error.Message)
	}

	sub, err := parseSubscribeResult(res.Result)
	if err != nil {
		return err
	}
	c.extranonce1 = sub.Extranonce1
	c.extranonce2Size = sub.Extranonce2Size
	c.state.Store(int32(StateSubscribed))

	if err := c.call(methodAuthorize, c.cfg.User, c.cfg.Password); err != nil {
		return err
	}
	return nil
}

func (c *Client) handleAuthorizeResponse(res response) error {
	if res.Error != nil {
		c.state.Store(int32(StateFailed))
		return errors.New("pool: authorize failed: " + res.Error.Message)
	}

	var ok bool
	if err := json.Unmarshal(res.Result, &ok); err != nil || !ok {
		c.state.Store(int32(StateFailed))
		return errors.New("pool: authorize rejected")
	}

	c.state.Store(int32(StateActive))
	return nil
}

func (c *Client) handleSubmitResponse(res response, pend pendingCall) error {
	latency := time.Since(pend.sent)
	c.lastLatencyNs.Store(int64(latency))

	outcome := ShareAccepted
	if res.Error != nil {
		outcome = classifyRejection(res.Error.Code, res.Error.Message)
	} else {
		var ok bool
		if json.Unmarshal(res.Result, &ok) == nil && !ok {
			outcome = ShareRejected
		}
	}

	switch outcome {
	case ShareAccepted:
		c.accepted.Add(1)
	case ShareStale:
		c.stale.Add(1)
	default:
		c.rejected.Add(1)
	}
	return nil
}

// errCodeJobNotFound is the Stratum error code pools use for a share
// submitted against an unknown/expired job id. It is preferred over
// string matching, which is kept only as a fallback for pools that
// return code 0 with a descriptive message instead.
const errCodeJobNotFound = 21

func classifyRejection(code int, msg string) ShareOutcome {
	if code == errCodeJobNotFound {
		return ShareStale
	}
	lower := toLower(msg)
	if contains(lower, "stale") || contains(lower, "old") {
		return ShareStale
	}
	return ShareRejected
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return len(needle) == 0
}

// Submit sends mining.submit for an accepted share, rate-limited per
// SubmitRateLimit if configured.
func (c *Client) Submit(ctx context.Context, jobID string, extranonce2 []byte, ntime, nonce uint32) error {
	if c.submitLimiter != nil {
		if err := c.submitLimiter.Wait(ctx); err != nil {
			return err
		}
	}
	ntimeHex := fmt.Sprintf("%08x", ntime)
	nonceHex := fmt.Sprintf("%08x", nonce)
	return c.call(methodSubmit, c.cfg.User, jobID, hex.EncodeToString(extranonce2), ntimeHex, nonceHex)
}

// Authorized reports whether the authorize handshake has completed,
// so mining.submit must still be treated as true-until-response.
func (c *Client) Authorized() bool {
	return c.State() == StateAuthorized || c.State() == StateActive
}
