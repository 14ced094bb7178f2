package bootstrap

import (
	"github.com/kbukum/flowkit/database"
	"github.com/kbukum/flowkit/kafka"
	"github.com/kbukum/flowkit/provider"
	"github.com/kbukum/flowkit/redis"
	"github.com/kbukum/flowkit/storage/local"
	"github.com/kbukum/flowkit/storage/s3"
)

// Built-in provider ids besides the ones exported by their packages.
const (
	MemoryProviderID = "memory"
	JSONLProviderID  = "jsonl"
)

// registerProviders binds every bundled provider. Factories connect lazily,
// so registering a provider whose backend is absent costs nothing.
func registerProviders(reg *provider.Registry, mem *provider.Memory) {
	reg.Register(MemoryProviderID, mem.Factory)
	reg.Register(JSONLProviderID, provider.JSONLinesFactory)
	redis.RegisterProviders(reg)
	database.RegisterProviders(reg)
	kafka.RegisterProviders(reg)
	s3.RegisterProviders(reg)
	local.RegisterProviders(reg)
}
