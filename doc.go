/*
Package entitysync synchronizes spatially located game entities with the clients observing them.

Entities are partitioned by type (Object, Character, TextLabel, Marker). Every type has its own spatial
grid and its own dispatch worker, so the types are indexed and dispatched independently and in parallel.
A client receives an entity when the client is within the entity's range and the entity is in the
client's dimension or in the shared dimension 0.

Facade

The Facade is the API for hosts. Its methods never panic and never return errors: operations on
entities which do not exist log a warning and return a zero value, like

	f, err := entitysync.New(config.Get())
	f.Start(context.Background())
	id, ok := f.CreateEntity(common.Marker, spatial.Vector3{X: 1, Y: 2}, 0, 100, nil)
	f.SetEntityData(common.Marker, id, "color", 3)
	...
	f.Shutdown()

Clients are added to the Dispatcher returned by Facade.Dispatcher with a ClientSink receiving their
event stream. The gate package serves clients over TCP, KCP and WebSocket.

Configuration

Grid geometry, cell capacity and tick interval of every entity type are read from entitysync.ini, see
entitysync.ini.sample. Without a config file the built-in defaults are a 50000 x 50000 world with
offset 10000, cells of 100 holding up to 350 objects or 125 entities of the other types.
*/
package entitysync
