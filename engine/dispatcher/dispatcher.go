// Package dispatcher streams entity visibility changes to clients.
//
// Each entity type is dispatched by its own worker. A tick of a type queries the grid around every
// client, diffs the result with what the client saw on the previous tick and emits removes, then
// creates, then updates of entities which stayed visible.
package dispatcher

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ErikKalkoken/go-set"
	"github.com/xiaonanln/entitysync/engine/common"
	"github.com/xiaonanln/entitysync/engine/consts"
	"github.com/xiaonanln/entitysync/engine/entity"
	"github.com/xiaonanln/entitysync/engine/gwlog"
	"github.com/xiaonanln/entitysync/engine/gwutils"
	"github.com/xiaonanln/entitysync/engine/opmon"
	"github.com/xiaonanln/entitysync/engine/spatial"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	"golang.org/x/sync/errgroup"
)

// Dispatcher manages clients and runs the dispatch workers
type Dispatcher struct {
	reg *entity.Registry
	gs  *spatial.GridSet

	clientsLock sync.RWMutex
	clients     map[common.ClientID]*Client

	tickLocks [common.EntityTypeCount]sync.Mutex
	kicks     [common.EntityTypeCount]chan struct{}
	tickNames [common.EntityTypeCount]string

	runLock sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	stopped xnsyncutil.AtomicBool
}

// New creates a Dispatcher reading entities from reg. The change feed of reg is enabled.
func New(reg *entity.Registry, gs *spatial.GridSet) *Dispatcher {
	reg.EnableChangeFeed()
	d := &Dispatcher{
		reg:     reg,
		gs:      gs,
		clients: map[common.ClientID]*Client{},
	}
	for _, t := range common.AllEntityTypes() {
		d.kicks[t] = make(chan struct{}, consts.DISPATCHER_KICK_QUEUE_SIZE)
		d.tickNames[t] = "Dispatcher.Tick." + t.String()
	}
	return d
}

// AddClient adds a client. A client with the same ID is replaced.
func (d *Dispatcher) AddClient(id common.ClientID, pos spatial.Vector3, dim int32, sink ClientSink) *Client {
	client := newClient(id, pos, dim, sink)

	d.clientsLock.Lock()
	if _, ok := d.clients[id]; ok {
		gwlog.Warnf("%s: client %s already exists, replaced", d, id)
	}
	d.clients[id] = client
	d.clientsLock.Unlock()

	if consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: client %s added at %s dim %d", d, id, pos, dim)
	}
	return client
}

// UpdateClient changes the position and dimension of the client, returns false if it does not exist
func (d *Dispatcher) UpdateClient(id common.ClientID, pos spatial.Vector3, dim int32) bool {
	client := d.GetClient(id)
	if client == nil {
		return false
	}
	client.setPosition(pos, dim)
	return true
}

// RemoveClient removes the client. Its visible sets are discarded without sending removes.
func (d *Dispatcher) RemoveClient(id common.ClientID) bool {
	d.clientsLock.Lock()
	_, ok := d.clients[id]
	delete(d.clients, id)
	d.clientsLock.Unlock()

	if ok && consts.DEBUG_CLIENTS {
		gwlog.Debugf("%s: client %s removed", d, id)
	}
	return ok
}

// GetClient returns the client, or nil if it does not exist
func (d *Dispatcher) GetClient(id common.ClientID) *Client {
	d.clientsLock.RLock()
	client := d.clients[id]
	d.clientsLock.RUnlock()
	return client
}

// ClientCount returns the number of clients
func (d *Dispatcher) ClientCount() int {
	d.clientsLock.RLock()
	n := len(d.clients)
	d.clientsLock.RUnlock()
	return n
}

func (d *Dispatcher) clientList() []*Client {
	d.clientsLock.RLock()
	clients := make([]*Client, 0, len(d.clients))
	for _, client := range d.clients {
		clients = append(clients, client)
	}
	d.clientsLock.RUnlock()
	return clients
}

// VisibleEntities returns the entities of the type the client currently sees, in ascending order
func (d *Dispatcher) VisibleEntities(id common.ClientID, t common.EntityType) []common.EntityID {
	client := d.GetClient(id)
	if client == nil || !t.IsValid() {
		return nil
	}

	d.tickLocks[t].Lock()
	defer d.tickLocks[t].Unlock()
	return sortedIDs(client.visible[t])
}

func (d *Dispatcher) String() string {
	return "Dispatcher"
}

// Start runs one dispatch worker per entity type until ctx is done or Stop is called
func (d *Dispatcher) Start(ctx context.Context) {
	d.runLock.Lock()
	defer d.runLock.Unlock()

	if d.group != nil || d.stopped.Load() {
		gwlog.Warnf("%s: already started or stopped", d)
		return
	}

	ctx, d.cancel = context.WithCancel(ctx)
	d.group, ctx = errgroup.WithContext(ctx)
	for _, t := range common.AllEntityTypes() {
		t := t
		d.group.Go(func() error {
			d.loop(ctx, t)
			return nil
		})
	}
	gwlog.Infof("%s: started %d workers", d, common.EntityTypeCount)
}

func (d *Dispatcher) loop(ctx context.Context, t common.EntityType) {
	interval := d.gs.Grid(t).Config().TickInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.kicks[t]:
		}
		gwutils.RunPanicless(func() {
			d.Tick(t)
		})
	}
}

// Kick requests an early tick of the entity type. Pending requests are coalesced.
func (d *Dispatcher) Kick(t common.EntityType) {
	if !t.IsValid() {
		return
	}
	select {
	case d.kicks[t] <- struct{}{}:
	default:
	}
}

// Stop stops the workers and flushes a remove for every entity still visible to any client.
// The change feed of the registry is disabled, so entities removed afterwards release their IDs at once.
func (d *Dispatcher) Stop() {
	d.runLock.Lock()
	defer d.runLock.Unlock()

	if d.stopped.Load() {
		return
	}
	d.stopped.Store(true)

	if d.group != nil {
		d.cancel()
		_ = d.group.Wait()
	}

	clients := d.clientList()
	for _, t := range common.AllEntityTypes() {
		d.flushRemoves(t, clients)
	}
	d.reg.DisableChangeFeed()
	gwlog.Infof("%s: stopped", d)
}

// IsStopped returns if Stop was called
func (d *Dispatcher) IsStopped() bool {
	return d.stopped.Load()
}

func (d *Dispatcher) flushRemoves(t common.EntityType, clients []*Client) {
	d.tickLocks[t].Lock()
	defer d.tickLocks[t].Unlock()

	for _, client := range clients {
		var events []Event
		for _, id := range sortedIDs(client.visible[t]) {
			events = append(events, Event{Kind: EventRemove, Type: t, ID: id})
		}
		client.visible[t].Clear()
		d.send(client, events)
	}

	var removed []common.EntityID
	for _, change := range d.reg.DrainChanges(t) {
		if change.Kind == entity.ChangeRemove {
			removed = append(removed, change.ID)
		}
	}
	d.reg.ReleaseRemoved(t, removed)
}

// tickChanges is the summary of the registry changes of one tick
type tickChanges struct {
	removed []common.EntityID
	updated common.EntityIDSet
	data    map[common.EntityID]common.StringSet
}

func summarizeChanges(changes []entity.Change) *tickChanges {
	tc := &tickChanges{
		updated: common.EntityIDSet{},
		data:    map[common.EntityID]common.StringSet{},
	}
	for _, change := range changes {
		switch change.Kind {
		case entity.ChangeRemove:
			tc.removed = append(tc.removed, change.ID)
		case entity.ChangePosition, entity.ChangeDimension:
			tc.updated.Add(change.ID)
		case entity.ChangeData:
			keys := tc.data[change.ID]
			if keys == nil {
				keys = common.StringSet{}
				tc.data[change.ID] = keys
			}
			keys.Add(change.Key)
		}
	}
	return tc
}

// Tick runs one dispatch tick of the entity type
func (d *Dispatcher) Tick(t common.EntityType) {
	if !t.IsValid() {
		gwlog.Errorf("%s: tick of invalid entity type %s", d, t)
		return
	}

	d.tickLocks[t].Lock()
	defer d.tickLocks[t].Unlock()

	op := opmon.StartOperation(d.tickNames[t])
	tc := summarizeChanges(d.reg.DrainChanges(t))

	nevents := 0
	for _, client := range d.clientList() {
		events := d.diffClient(t, client, tc)
		nevents += len(events)
		d.send(client, events)
	}

	// removes of these entities were emitted above, their ids can be reused now
	d.reg.ReleaseRemoved(t, tc.removed)

	interval := d.gs.Grid(t).Config().TickInterval
	takeTime := op.Finish(interval * consts.DISPATCHER_SLOW_TICK_FACTOR)
	if consts.DEBUG_DISPATCH {
		gwlog.Debugf("%s: tick %s: %d events, takes %s", d, t, nevents, takeTime)
	}
}

func (d *Dispatcher) diffClient(t common.EntityType, client *Client, tc *tickChanges) []Event {
	pos, dim := client.Position()
	ids, err := d.gs.QueryVisible(t, pos, spatial.InDimension(dim))
	if err != nil {
		gwlog.Panicf("%s: query %s failed: %v", d, t, err)
	}

	prev := client.visible[t]
	now := set.Of(ids...)
	var events []Event

	for _, id := range sortedIDs(prev) {
		if !now.Contains(id) {
			events = append(events, Event{Kind: EventRemove, Type: t, ID: id})
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	for _, id := range ids {
		if prev.Contains(id) {
			continue
		}
		snapshot, ok := d.reg.Snapshot(t, id)
		if !ok {
			// removed after the query, the remove is in the next tick's changes
			now.Delete(id)
			continue
		}
		events = append(events, Event{
			Kind:      EventCreate,
			Type:      t,
			ID:        id,
			Snapshot:  &snapshot,
			Position:  snapshot.Position,
			Dimension: snapshot.Dimension,
		})
	}

	for _, id := range ids {
		if !prev.Contains(id) {
			continue
		}
		if tc.updated.Contains(id) {
			pos, err1 := d.reg.GetPosition(t, id)
			dim, err2 := d.reg.GetDimension(t, id)
			if err1 == nil && err2 == nil {
				events = append(events, Event{Kind: EventUpdate, Type: t, ID: id, Position: pos, Dimension: dim})
			}
		}
		for _, key := range tc.data[id].ToSortedList() {
			val, ok, err := d.reg.GetData(t, id, key)
			if err != nil {
				continue
			}
			events = append(events, Event{Kind: EventDataChange, Type: t, ID: id, Key: key, Value: val, Deleted: !ok})
		}
	}

	client.visible[t] = now
	return events
}

func (d *Dispatcher) send(client *Client, events []Event) {
	if len(events) == 0 || client.sink == nil {
		return
	}
	if err := client.sink.SendEvents(events); err != nil {
		gwlog.Warnf("%s: send %d events to %s failed: %v", d, len(events), client, err)
	}
}

func sortedIDs(s set.Set[common.EntityID]) []common.EntityID {
	ids := make([]common.EntityID, 0, s.Size())
	for id := range s.All() {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}
