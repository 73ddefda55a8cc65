package storage

import "comfybridge/internal/ports"

// Provider is the durable store contract used by the worker.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
