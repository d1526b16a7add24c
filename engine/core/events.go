package core

import "sync"

// System internal event codes. Application should use codes beyond 255.
type SystemEventCode int

const (
	// Shuts the application down on the next tick.
	EVENT_CODE_APPLICATION_QUIT SystemEventCode = 0x01

	// A resource finished loading and was installed.
	/* Context usage:
	 * Path = resource path
	 * Kind = resource kind
	 * Data = *resources.Resource
	 */
	EVENT_CODE_RESOURCE_LOADED SystemEventCode = 0x02

	// A resource failed to load.
	/* Context usage:
	 * Path = resource path
	 * Kind = resource kind
	 * Err  = failure reason
	 */
	EVENT_CODE_RESOURCE_FAILED SystemEventCode = 0x03

	// An asset changed on disk.
	/* Context usage:
	 * Path = changed asset path
	 */
	EVENT_CODE_ASSET_CHANGED SystemEventCode = 0x04

	// The loader workers were paused.
	EVENT_CODE_LOADER_PAUSED SystemEventCode = 0x05

	// The loader workers were resumed.
	EVENT_CODE_LOADER_RESUMED SystemEventCode = 0x06

	MAX_EVENT_CODE SystemEventCode = 0xFF
)

// This should be more than enough codes...
const MAX_MESSAGE_CODES = 16384

type EventContext struct {
	Type SystemEventCode
	Path string
	Kind int
	Err  error
	Data interface{}
}

// Should return true if handled.
type FnOnEvent func(code SystemEventCode, sender interface{}, listener interface{}, data EventContext) bool

type registeredEvent struct {
	listener interface{}
	callback FnOnEvent
}

/**
 * @brief Event bus owned by the application root. Registration may happen
 * from any goroutine; handlers run on the goroutine that fires the event.
 */
type EventBus struct {
	mutex      sync.RWMutex
	registered map[SystemEventCode][]*registeredEvent
}

func NewEventBus() *EventBus {
	return &EventBus{
		registered: make(map[SystemEventCode][]*registeredEvent),
	}
}

/**
 * Register to listen for when events are sent with the provided code. Events with duplicate
 * listener combos will not be registered again and will cause this to return FALSE.
 * @param code The event code to listen for.
 * @param listener A pointer to a listener instance. Can be nil.
 * @param onEvent The callback function to be invoked when the event code is fired.
 * @returns TRUE if the event is successfully registered; otherwise false.
 */
func (eb *EventBus) Register(code SystemEventCode, listener interface{}, onEvent FnOnEvent) bool {
	if code <= 0 || code >= MAX_MESSAGE_CODES || onEvent == nil {
		return false
	}
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	for _, e := range eb.registered[code] {
		if listener != nil && e.listener == listener {
			LogWarn("listener already registered for event code %d", code)
			return false
		}
	}
	eb.registered[code] = append(eb.registered[code], &registeredEvent{
		listener: listener,
		callback: onEvent,
	})
	return true
}

/**
 * Unregister from listening for when events are sent with the provided code. If no matching
 * registration is found, this function returns FALSE.
 * @param code The event code to stop listening for.
 * @param listener The listener used at registration time.
 * @returns TRUE if the event is successfully unregistered; otherwise false.
 */
func (eb *EventBus) Unregister(code SystemEventCode, listener interface{}) bool {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	events := eb.registered[code]
	for i, e := range events {
		if e.listener == listener {
			eb.registered[code] = append(events[:i:i], events[i+1:]...)
			return true
		}
	}
	return false
}

/**
 * Fires an event to listeners of the given code. If an event handler returns
 * TRUE, the event is considered handled and is not passed on to any more listeners.
 * @param code The event code to fire.
 * @param sender The sender. Can be nil.
 * @param data The event data.
 * @returns TRUE if handled, otherwise FALSE.
 */
func (eb *EventBus) Fire(code SystemEventCode, sender interface{}, data EventContext) bool {
	eb.mutex.RLock()
	events := make([]*registeredEvent, len(eb.registered[code]))
	copy(events, eb.registered[code])
	eb.mutex.RUnlock()

	data.Type = code
	for _, e := range events {
		if e.callback(code, sender, e.listener, data) {
			// Message has been handled, do not send to other listeners.
			return true
		}
	}
	return false
}

func (eb *EventBus) Shutdown() error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	eb.registered = make(map[SystemEventCode][]*registeredEvent)
	return nil
}
