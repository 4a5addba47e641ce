package types

type LifecycleManager interface {
	Start() error
	Stop() error
	IsRunning() bool
}

type Pinger interface {
	Ping() error
}
