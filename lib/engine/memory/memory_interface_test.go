package memory

import (
	"testing"

	"github.com/mfellner/kvstash/lib/engine"
	"github.com/mfellner/kvstash/lib/engine/enginetest"
)

// TestMemoryEngineInterface validates that the memory engine conforms to
// the engine.Engine interface contract.
func TestMemoryEngineInterface(t *testing.T) {
	enginetest.RunEngineTests(t, "memory", func(t *testing.T) engine.Engine {
		return NewEngine()
	})
}
