package common

type Observer interface {
	Update(event ChangeEvent) error
	Name() string
}

type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	Notify(event ChangeEvent)
	NotifyAsync(event ChangeEvent)
}

// Publisher is the write side of the change feed, used by the store after commits.
type Publisher interface {
	Notify(event ChangeEvent)
}
