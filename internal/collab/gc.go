package collab

import "time"

// Run drives the garbage collector until Stop is called. The sweep
// repairs state the explicit disconnect path missed: connections that
// died without a close frame, locks whose holder vanished, and rooms
// left empty.
func (c *Coordinator) Run() {
	c.log.Info("garbage collector started (interval %s)", c.opts.SweepInterval)
	defer c.log.Info("garbage collector stopped")

	ticker := time.NewTicker(c.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.quit:
			return
		}
	}
}

// Stop terminates the garbage collector loop
func (c *Coordinator) Stop() {
	c.quitOnce.Do(func() { close(c.quit) })
}

// Sweep reconciles the registries and lock tables against actually-live
// connections. Reclaimed locks are broadcast as unlocked so surviving
// room members learn the resource is free immediately rather than on
// their next request.
func (c *Coordinator) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Connections whose transport is gone but never delivered a
	// disconnect event: run the normal leave cascade for them.
	for connID, conn := range c.conns {
		if conn.sender.Closed() {
			c.log.Warn("sweeping dead connection %s (user %s)", connID, conn.userID)
			c.leaveCurrentRoomLocked(connID)
			delete(c.conns, connID)
		}
	}

	// Locks held by connections the coordinator no longer knows.
	for key, lock := range c.trackLocks {
		if _, live := c.conns[lock.ConnectionID]; live {
			continue
		}
		delete(c.trackLocks, key)
		c.log.Warn("reclaimed orphaned track lock %s/%s (holder %s)", key.projectID, key.trackID, lock.UserName)
		if room, ok := c.rooms[key.projectID]; ok {
			c.broadcastLocked(room, "", &Event{
				Type:      EventTrackUnlocked,
				ProjectID: key.projectID,
				TrackID:   key.trackID,
			})
		}
	}

	now := time.Now()
	for projectID, lock := range c.projectLocks {
		_, live := c.conns[lock.ConnectionID]
		expired := c.opts.MaxProjectLockHold > 0 && now.Sub(lock.AcquiredAt) > c.opts.MaxProjectLockHold
		if live && !expired {
			continue
		}

		delete(c.projectLocks, projectID)
		if expired && live {
			c.log.Warn("force-released project lock on %s held by %s for %s past the lease",
				projectID, lock.UserName, lock.Operation)
		} else {
			c.log.Warn("reclaimed orphaned project lock on %s (holder %s)", projectID, lock.UserName)
		}

		if room, ok := c.rooms[projectID]; ok {
			c.broadcastLocked(room, "", &Event{
				Type:      EventProjectUnlocked,
				ProjectID: projectID,
			})
		}
	}

	for projectID, room := range c.rooms {
		if room.empty() {
			delete(c.rooms, projectID)
			c.log.Debug("swept empty room %s", projectID)
		}
	}
}
