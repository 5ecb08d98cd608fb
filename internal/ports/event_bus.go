package ports

// EventBus is the cross-component broadcast channel. Delivery is
// at-least-once and ordered per publisher; subscribers must tolerate events
// published before they attached.
type EventBus interface {
	Publish(event any)
	Subscribe(handler func(event any)) (unsubscribe func())
}
