package memory_test

import (
	"testing"

	"github.com/xraph/subhub/store"
	"github.com/xraph/subhub/store/memory"
	"github.com/xraph/subhub/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
