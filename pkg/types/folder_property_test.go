package types

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFolderHashProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is a pure function of name and counters", prop.ForAll(
		func(name string, count, unseen, uidNext uint32) bool {
			return FolderHash(name, count, unseen, uidNext) == FolderHash(name, count, unseen, uidNext)
		},
		gen.AnyString(), gen.UInt32(), gen.UInt32(), gen.UInt32(),
	))

	properties.Property("a new message changes the hash", prop.ForAll(
		func(name string, count, unseen, uidNext uint32) bool {
			return FolderHash(name, count, unseen, uidNext) != FolderHash(name, count+1, unseen+1, uidNext+1)
		},
		gen.Identifier(), gen.UInt32Range(0, 1<<20), gen.UInt32Range(0, 1<<20), gen.UInt32Range(1, 1<<20),
	))

	properties.TestingRun(t)
}
