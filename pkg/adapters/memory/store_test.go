package memory_test

import (
	"testing"

	"github.com/aretw0/council/pkg/adapters/memory"
	"github.com/aretw0/council/pkg/ports"
)

func TestMemoryStore_Contract(t *testing.T) {
	store := memory.NewStore()
	ports.RunArchiveStoreContract(t, store)
}
