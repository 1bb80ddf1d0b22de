package models

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"

	"github.com/moyoez/bill2sheet/api/notifyhub"
	"github.com/moyoez/bill2sheet/pipeline"
)

// SessionTTL is how long a session stays queryable after it was registered.
var SessionTTL = 30 * time.Minute

var (
	sessionMu sync.RWMutex
	sessions  = ttlworker.NewCache[string, *pipeline.Task](SessionTTL)
)

func RegisterSession(task *pipeline.Task) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	sessions.Set(task.ID(), task)
}

func LookupSession(sessionId string) (*pipeline.Task, bool) {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	task := sessions.Get(sessionId)
	return task, task != nil
}

// LookupSessionHub resolves the fan-out of a running session for the websocket mirror.
func LookupSessionHub(sessionId string) (*notifyhub.Hub, bool) {
	task, ok := LookupSession(sessionId)
	if !ok {
		return nil, false
	}
	return task.Hub(), true
}

// CancelSession stops a running session with cause. It reports false for unknown ids.
func CancelSession(sessionId string, cause error) bool {
	task, ok := LookupSession(sessionId)
	if !ok {
		return false
	}
	task.Cancel(cause)
	return true
}

func RemoveSession(sessionId string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	sessions.Delete(sessionId)
}
