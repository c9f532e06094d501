package dispatch

import "sync"

// Controller carries the pause/cancel flags for one owner's bulk run. The
// dispatch loop reads it between sends; control calls write it.
type Controller struct {
	mu        sync.Mutex
	paused    bool
	cancelled bool
	active    bool
}

func (c *Controller) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *Controller) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

func (c *Controller) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *Controller) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

func (c *Controller) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// controllerMap holds at most one controller per owner.
type controllerMap struct {
	mu sync.Mutex
	m  map[uint]*Controller
}

func newControllerMap() *controllerMap {
	return &controllerMap{m: make(map[uint]*Controller)}
}

// get returns the owner's controller, creating it on first use.
func (cm *controllerMap) get(ownerID uint) *Controller {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ctrl, ok := cm.m[ownerID]
	if !ok {
		ctrl = &Controller{}
		cm.m[ownerID] = ctrl
	}
	return ctrl
}

// activate marks the owner's controller as running a bulk send. Returns the
// controller and false if a run is already active.
func (cm *controllerMap) activate(ownerID uint) (*Controller, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ctrl, ok := cm.m[ownerID]
	if ok && ctrl.active {
		return nil, false
	}
	if !ok {
		ctrl = &Controller{}
		cm.m[ownerID] = ctrl
	}
	ctrl.active = true
	return ctrl, true
}

// isActive reports whether the owner has a bulk run in flight.
func (cm *controllerMap) isActive(ownerID uint) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	ctrl, ok := cm.m[ownerID]
	return ok && ctrl.active
}

// release removes the owner's controller when the run completes or is
// cancelled.
func (cm *controllerMap) release(ownerID uint) {
	cm.mu.Lock()
	delete(cm.m, ownerID)
	cm.mu.Unlock()
}
