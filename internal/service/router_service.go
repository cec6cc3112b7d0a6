package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tamshai/gateway/internal/domain/audit"
	"github.com/tamshai/gateway/internal/domain/page"
	"github.com/tamshai/gateway/internal/domain/policy"
	"github.com/tamshai/gateway/internal/domain/tool"
	"github.com/tamshai/gateway/internal/port/outbound"
	"github.com/tamshai/gateway/pkg/api"
)

// readRetryBackoff is the pause before the single retry of an unavailable
// backend on the read path.
const readRetryBackoff = 200 * time.Millisecond

// RouterService is the gateway core: it resolves (domain, tool), checks the
// policy table, and dispatches. Reads go to the backend directly; writes are
// handed to the confirmation workflow and never executed inline.
type RouterService struct {
	registry      *tool.Registry
	table         *policy.Table
	backends      map[string]outbound.ToolBackend
	confirmations *ConfirmationService
	auditor       *AuditService

	decisions *decisionCache
	softCap   int
	sleep     func(ctx context.Context, d time.Duration) error
	logger    *slog.Logger
}

// RouterOption configures RouterService.
type RouterOption func(*RouterService)

// WithPageSoftCap sets the read page soft cap.
func WithPageSoftCap(n int) RouterOption {
	return func(s *RouterService) {
		if n > 0 {
			s.softCap = n
		}
	}
}

// WithDecisionCacheSize bounds the policy decision cache.
func WithDecisionCacheSize(n int) RouterOption {
	return func(s *RouterService) { s.decisions = newDecisionCache(n) }
}

// NewRouterService builds the router.
func NewRouterService(
	registry *tool.Registry,
	table *policy.Table,
	backends map[string]outbound.ToolBackend,
	confirmations *ConfirmationService,
	auditor *AuditService,
	logger *slog.Logger,
	opts ...RouterOption,
) *RouterService {
	s := &RouterService{
		registry:      registry,
		table:         table,
		backends:      backends,
		confirmations: confirmations,
		auditor:       auditor,
		decisions:     newDecisionCache(4096),
		softCap:       page.DefaultSoftCap,
		sleep:         sleepCtx,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Route processes one tool invocation end to end. Every denial happens before
// any backend is contacted.
func (s *RouterService) Route(ctx context.Context, inv tool.Invocation) *api.Response {
	spec, ok := s.registry.Resolve(inv.Domain, inv.Tool)
	if !ok {
		resp := s.unknownTool(inv)
		s.audit(ctx, inv, audit.DecisionDeny, string(resp.Code))
		return resp
	}

	decision := s.checkPolicy(inv, spec.Class)
	if !decision.Allowed {
		resp := s.insufficientPermissions(inv, spec.Class)
		s.audit(ctx, inv, audit.DecisionDeny, string(resp.Code))
		return resp
	}

	if spec.Class == tool.ClassWrite {
		// The confirmation service audits its own lifecycle events.
		return s.confirmations.Begin(ctx, spec, inv)
	}
	return s.read(ctx, spec, inv)
}

// read dispatches a READ tool with cursor paging and the truncation guard.
func (s *RouterService) read(ctx context.Context, spec tool.Spec, inv tool.Invocation) *api.Response {
	cursorParam, _ := inv.Params["cursor"].(string)
	sortKey, err := api.DecodeCursor(cursorParam)
	if err != nil {
		resp := api.FromError(api.Errorf(api.CodeInvalidRequest,
			"Pass the cursor exactly as returned in metadata.nextCursor.",
			"invalid cursor: %v", err))
		s.audit(ctx, inv, audit.DecisionDeny, string(resp.Code))
		return resp
	}

	backend, ok := s.backends[inv.Domain]
	if !ok {
		resp := api.FromError(api.Errorf(api.CodeBackendUnavailable,
			"Retry later; the backend for this domain is not configured or not reachable.",
			"no backend serves domain %s", inv.Domain))
		s.audit(ctx, inv, audit.DecisionDeny, string(resp.Code))
		return resp
	}

	result, err := backend.Read(ctx, inv.Caller, inv.Tool, inv.Params, s.softCap, sortKey)
	if errors.Is(err, outbound.ErrBackendUnavailable) {
		// One retry with backoff; connectivity blips are the only retryable
		// failure class.
		s.logger.Warn("backend unavailable, retrying read",
			"domain", inv.Domain, "tool", inv.Tool, "error", err)
		if s.sleep(ctx, readRetryBackoff) == nil {
			result, err = backend.Read(ctx, inv.Caller, inv.Tool, inv.Params, s.softCap, sortKey)
		}
	}
	if err != nil {
		resp := s.readError(err, inv)
		s.audit(ctx, inv, audit.DecisionDeny, string(resp.Code))
		return resp
	}

	rows, meta := page.Guard(result.Rows, s.softCap, spec.SortKey)
	s.audit(ctx, inv, audit.DecisionAllow, "")
	return api.SuccessPage(rows, meta)
}

// checkPolicy evaluates the policy table, reusing cached outcomes for
// decisions that did not depend on request parameters.
func (s *RouterService) checkPolicy(inv tool.Invocation, class tool.Class) policy.Decision {
	key := decisionKey(inv.Caller.Subject, inv.Caller.Roles, inv.Domain, inv.Tool, class)
	if d, ok := s.decisions.Get(key); ok {
		return d
	}
	d := s.table.Check(inv.Caller, inv.Domain, inv.Tool, class, inv.Params)
	if d.Cacheable {
		s.decisions.Put(key, d)
	}
	return d
}

func (s *RouterService) unknownTool(inv tool.Invocation) *api.Response {
	if !s.registry.HasDomain(inv.Domain) {
		return api.FromError(api.Errorf(api.CodeUnknownTool,
			fmt.Sprintf("Known domains: %s.", strings.Join(s.registry.Domains(), ", ")),
			"unknown domain %q", inv.Domain))
	}
	return api.FromError(api.Errorf(api.CodeUnknownTool,
		"Check the tool name against the domain's tool list.",
		"unknown tool %q in domain %q", inv.Tool, inv.Domain))
}

func (s *RouterService) insufficientPermissions(inv tool.Invocation, class tool.Class) *api.Response {
	suggestion := "No role grants this tool; contact an administrator."
	if roles := s.table.MissingRoles(inv.Domain, inv.Tool, class); len(roles) > 0 {
		suggestion = fmt.Sprintf("This tool requires one of: %s.", strings.Join(roles, ", "))
	}
	return api.FromError(api.Errorf(api.CodeInsufficientPermissions, suggestion,
		"none of your roles permit %s %s/%s", class, inv.Domain, inv.Tool))
}

func (s *RouterService) readError(err error, inv tool.Invocation) *api.Response {
	if errors.Is(err, outbound.ErrBackendUnavailable) {
		return api.FromError(api.Errorf(api.CodeBackendUnavailable,
			"Retry later.", "%s backend unreachable", inv.Domain))
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return api.FromError(apiErr)
	}
	s.logger.Error("read dispatch failed", "domain", inv.Domain, "tool", inv.Tool, "error", err)
	return api.FromError(err)
}

func (s *RouterService) audit(ctx context.Context, inv tool.Invocation, decision, code string) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(audit.Record{
		Timestamp: time.Now().UTC(),
		RequestID: requestID(ctx),
		Subject:   inv.Caller.Subject,
		Username:  inv.Caller.Username,
		Domain:    inv.Domain,
		Tool:      inv.Tool,
		Decision:  decision,
		Code:      code,
	})
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// decisionKey hashes the identity-and-target tuple a cacheable decision
// depends on. Roles are sorted so the key is order-independent.
func decisionKey(subject string, roles []string, domain, toolName string, class tool.Class) uint64 {
	sorted := make([]string, len(roles))
	copy(sorted, roles)
	sort.Strings(sorted)

	h := xxhash.New()
	_, _ = h.WriteString(subject)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(strings.Join(sorted, ","))
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(domain)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(toolName)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(string(class))
	return h.Sum64()
}

// decisionCache is a bounded LRU over policy decisions. Both Get and Put
// mutate recency order, so a plain mutex guards it.
type decisionCache struct {
	mu      sync.Mutex
	entries map[uint64]*decisionEntry
	head    *decisionEntry
	tail    *decisionEntry
	maxSize int
}

type decisionEntry struct {
	key      uint64
	decision policy.Decision
	prev     *decisionEntry
	next     *decisionEntry
}

func newDecisionCache(maxSize int) *decisionCache {
	if maxSize <= 0 {
		maxSize = 4096
	}
	return &decisionCache{
		entries: make(map[uint64]*decisionEntry, maxSize),
		maxSize: maxSize,
	}
}

func (c *decisionCache) Get(key uint64) (policy.Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return policy.Decision{}, false
	}
	c.moveToHead(e)
	return e.decision, true
}

func (c *decisionCache) Put(key uint64, d policy.Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.decision = d
		c.moveToHead(e)
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictTail()
	}
	e := &decisionEntry{key: key, decision: d}
	c.entries[key] = e
	c.pushHead(e)
}

func (c *decisionCache) moveToHead(e *decisionEntry) {
	if c.head == e {
		return
	}
	c.unlink(e)
	c.pushHead(e)
}

func (c *decisionCache) pushHead(e *decisionEntry) {
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *decisionCache) unlink(e *decisionEntry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (c *decisionCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.unlink(c.tail)
}
