package socket

import (
	"context"
	"fmt"
	"sync"

	"github.com/tsarna/resocket/pkg/resocket"
)

type requestResult struct {
	reply any
	err   error
}

// request is one outstanding Send waiting for its reply.
type request struct {
	sent    any
	result  chan requestResult
	settled bool
}

// requestSet tracks outstanding requests in registration order. Requests
// live on the socket rather than on a transport, so a reply that arrives on
// a replacement transport still reaches them.
type requestSet struct {
	mu   sync.Mutex
	reqs []*request
}

func (rs *requestSet) add(sent any) (*request, int) {
	req := &request{
		sent:   sent,
		result: make(chan requestResult, 1),
	}

	rs.mu.Lock()
	rs.reqs = append(rs.reqs, req)
	n := len(rs.reqs)
	rs.mu.Unlock()

	return req, n
}

// remove deregisters req without settling it. Returns the remaining count.
func (rs *requestSet) remove(req *request) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	req.settled = true
	rs.removeLocked(req)
	return len(rs.reqs)
}

func (rs *requestSet) removeLocked(req *request) {
	for i, r := range rs.reqs {
		if r == req {
			rs.reqs = append(rs.reqs[:i], rs.reqs[i+1:]...)
			return
		}
	}
}

func (rs *requestSet) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.reqs)
}

func (rs *requestSet) snapshot() []*request {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if len(rs.reqs) == 0 {
		return nil
	}
	out := make([]*request, len(rs.reqs))
	copy(out, rs.reqs)
	return out
}

// settle delivers a result to req once and deregisters it.
func (rs *requestSet) settle(req *request, res requestResult) bool {
	rs.mu.Lock()
	if req.settled {
		rs.mu.Unlock()
		return false
	}
	req.settled = true
	rs.removeLocked(req)
	rs.mu.Unlock()

	req.result <- res
	return true
}

// offer tests reply against every outstanding request in registration
// order. Each request whose predicate matches is resolved, so one message
// may answer several requests.
func (rs *requestSet) offer(ctx context.Context, reply any, identify resocket.IdentifyFunc) int {
	resolved := 0
	for _, req := range rs.snapshot() {
		ok, err := identify(ctx, req.sent, reply)
		if err != nil {
			rs.settle(req, requestResult{err: fmt.Errorf("%w: %w", resocket.ErrIdentify, err)})
			continue
		}
		if ok && rs.settle(req, requestResult{reply: reply}) {
			resolved++
		}
	}
	return resolved
}

// failAll rejects every outstanding request with err.
func (rs *requestSet) failAll(err error) {
	for _, req := range rs.snapshot() {
		rs.settle(req, requestResult{err: err})
	}
}
