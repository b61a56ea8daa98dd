package queue

// Repository is implemented by complete storage backends
type Repository interface {
	EnqueuerRepository
	WorkerRepository
	DeadLetterRepository
}

var _ Repository = (*MemoryStorage)(nil)
